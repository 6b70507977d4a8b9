package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/freed-tools/internal/capture"
	"github.com/banshee-data/freed-tools/internal/config"
	"github.com/banshee-data/freed-tools/internal/freed"
	"github.com/banshee-data/freed-tools/internal/network"
	"github.com/banshee-data/freed-tools/internal/validate"
)

// multiRecorder fans events out to every configured recorder.
type multiRecorder []network.Recorder

func (m multiRecorder) Record(e validate.Event) error {
	for _, r := range m {
		if err := r.Record(e); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) cmdValidate(ctx context.Context, args []string) error {
	cf := a.newFlags("validate", "validate [options]")
	ip := cf.String("ip", config.DefaultListenIP, "IP address to listen on")
	port := cf.Int("port", config.DefaultPort, "UDP port to listen on")
	duration := cf.Duration("duration", 60*time.Second, "How long to listen (0 runs until interrupted)")
	logPath := cf.String("log", "", "Write a CSV packet log to this file")
	dbPath := cf.String("db", "", "Record into this SQLite capture database")
	label := cf.String("label", "", "Session label when recording with --db")
	forward := cf.String("forward", "", "Forward valid packets to host:port")
	lensPolicy := cf.String("lens-policy", "strict", "Handling of 37-38 byte packets: strict or omit")
	readTimeout := cf.Duration("read-timeout", config.DefaultReadTimeout, "Receive timeout between cancellation checks")
	maxSources := cf.Int("max-sources", config.DefaultMaxSources, "Number of senders to track individually")
	quiet := cf.Bool("quiet", false, "Only print rates and the summary, not every packet")

	cfg, set, err := cf.parse(args)
	if err != nil {
		return err
	}
	if !set["ip"] {
		*ip = cfg.GetListenIP()
	}
	if !set["port"] {
		*port = cfg.GetListenPort()
	}
	if !set["db"] {
		*dbPath = cfg.GetDBPath()
	}
	if !set["forward"] {
		*forward = cfg.GetForward()
	}
	if !set["read-timeout"] {
		*readTimeout = cfg.GetReadTimeout()
	}
	if !set["max-sources"] {
		*maxSources = cfg.GetMaxSources()
	}
	policy := cfg.GetLensPolicy()
	if set["lens-policy"] {
		if policy, err = freed.ParseLensPolicy(*lensPolicy); err != nil {
			return cf.usageError("%v", err)
		}
	}
	if *port < 1 || *port > 65535 {
		return cf.usageError("--port must be between 1 and 65535")
	}
	if *duration < 0 {
		return cf.usageError("--duration must not be negative")
	}

	var recorders multiRecorder
	if *logPath != "" {
		w, err := capture.CreateCSV(*logPath)
		if err != nil {
			return err
		}
		defer w.Close()
		recorders = append(recorders, w)
	}
	if *dbPath != "" {
		store, err := capture.OpenStore(*dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		rec, err := store.BeginSession(*label, a.clock.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Recording session %s to %s\n", rec.ID(), *dbPath)
		recorders = append(recorders, rec)
	}

	var fwd *network.Forwarder
	if *forward != "" {
		host, fport, err := config.SplitHostPort(*forward)
		if err != nil {
			return cf.usageError("invalid --forward: %v", err)
		}
		fwd, err = network.NewForwarder(network.ForwarderConfig{
			Host:          host,
			Port:          fport,
			SocketFactory: a.sockets,
			Clock:         a.clock,
		})
		if err != nil {
			return err
		}
		fwdCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		fwd.Start(fwdCtx)
		defer fwd.Close()
	}

	sources, err := validate.NewSourceTracker(*maxSources)
	if err != nil {
		return err
	}

	lcfg := network.ListenerConfig{
		Address:       net.JoinHostPort(*ip, strconv.Itoa(*port)),
		ReadTimeout:   *readTimeout,
		Duration:      *duration,
		Decoder:       freed.Decoder{LensPolicy: policy},
		Forwarder:     fwd,
		Sources:       sources,
		SocketFactory: a.sockets,
		Clock:         a.clock,
		OnRate: func(rate float64, _ validate.Session) {
			fmt.Fprintf(a.stdout, "Packet Rate: %.1f packets/sec\n", rate)
		},
	}
	if len(recorders) > 0 {
		lcfg.Recorder = recorders
	}
	if !*quiet {
		lcfg.OnEvent = a.printEvent
	}

	fmt.Fprintln(a.stdout, a.paint(ansiYellow, "=== FreeD Network Test Mode ==="))
	if *duration > 0 {
		fmt.Fprintf(a.stdout, "Listening on %s for %v...\n", lcfg.Address, *duration)
	} else {
		fmt.Fprintf(a.stdout, "Listening on %s...\n", lcfg.Address)
	}
	fmt.Fprintln(a.stdout, "Press Ctrl+C to stop...")

	summary, runErr := network.NewListener(lcfg).Run(ctx)

	fmt.Fprintln(a.stdout)
	fmt.Fprintln(a.stdout, a.paint(ansiYellow, "=== Network Test Summary ==="))
	fmt.Fprint(a.stdout, summary.String())
	a.printSources(sources)
	if fwd != nil {
		fmt.Fprintf(a.stdout, "Forwarded: %d, dropped: %d\n", fwd.Forwarded(), fwd.Dropped())
	}
	return runErr
}

func (a *app) printEvent(e validate.Event) {
	ts := e.Time.Format(capture.TimestampLayout)
	if e.Result.Valid() {
		p := e.Result.Packet
		fmt.Fprintln(a.stdout)
		fmt.Fprintln(a.stdout, a.paint(ansiCyan, "Received packet from "+e.Source.String()))
		fmt.Fprintf(a.stdout, "Time: %s\n", ts)
		fmt.Fprintf(a.stdout, "Frame: %d\n", p.Frame)
		fmt.Fprintf(a.stdout, "Position: X=%.2f, Y=%.2f, Z=%.2f\n", p.X, p.Y, p.Z)
		fmt.Fprintf(a.stdout, "Rotation: Pan=%.2f, Tilt=%.2f, Roll=%.2f\n", p.Pan, p.Tilt, p.Roll)
		if p.HasLens() {
			fmt.Fprintf(a.stdout, "Lens: Zoom=%.2f, Focus=%.2f\n", p.Zoom(), p.Focus())
		}
		return
	}
	fmt.Fprintln(a.stdout)
	fmt.Fprintln(a.stdout, a.paint(ansiRed, "Invalid packet from "+e.Source.String()))
	fmt.Fprintf(a.stdout, "Time: %s\n", ts)
	fmt.Fprintf(a.stdout, "Size: %d bytes\n", e.Size)
	fmt.Fprintf(a.stdout, "Raw data: %s\n", hex.EncodeToString(e.Raw))
	fmt.Fprintf(a.stdout, "Reason: %v\n", e.Result.Err)
}

func (a *app) printSources(t *validate.SourceTracker) {
	srcs := t.Sources()
	if len(srcs) == 0 {
		return
	}
	fmt.Fprintln(a.stdout)
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tPACKETS\tVALID\tINVALID\tFRAME GAPS")
	for _, s := range srcs {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", s.Source, s.Packets, s.Valid, s.Invalid, s.FrameGaps)
	}
	tw.Flush()
	if n := t.Evicted(); n > 0 {
		fmt.Fprintf(a.stdout, "(%d quieter sources evicted)\n", n)
	}
}
