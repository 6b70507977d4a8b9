package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/freed-tools/internal/capture"
	"github.com/banshee-data/freed-tools/internal/config"
	"github.com/banshee-data/freed-tools/internal/freed"
	"github.com/banshee-data/freed-tools/internal/network"
	"github.com/banshee-data/freed-tools/internal/pace"
)

// progressEvery throttles replay progress lines.
const progressEvery = 100

// loadRows reads a capture by file extension, or a session from a capture
// database when dbPath is set.
func loadRows(path, dbPath, session string, pcapPort int, dec freed.Decoder) (capture.Rows, string, error) {
	if dbPath != "" {
		store, err := capture.OpenStore(dbPath)
		if err != nil {
			return nil, "", err
		}
		defer store.Close()
		if session == "" {
			sessions, err := store.Sessions()
			if err != nil {
				return nil, "", err
			}
			if len(sessions) == 0 {
				return nil, "", fmt.Errorf("no sessions in %s", dbPath)
			}
			session = sessions[0].ID
		}
		rows, err := store.Rows(session)
		return rows, fmt.Sprintf("%s session %s", dbPath, session), err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err := capture.LoadCSV(path)
		return rows, path, err
	case ".pcap", ".pcapng", ".cap":
		rows, err := capture.LoadPCAP(path, pcapPort, dec)
		return rows, path, err
	default:
		return nil, "", fmt.Errorf("unsupported capture %q: expected .csv, .pcap or .pcapng", path)
	}
}

func (a *app) openSink(serialPath string, serialOpts network.SerialOptions, ip string, port int) (pace.Sink, string, error) {
	if serialPath != "" {
		s, err := network.OpenSerialSink(serialPath, serialOpts)
		if err != nil {
			return nil, "", err
		}
		return s, serialPath, nil
	}
	s, err := network.DialUDPSink(a.sockets, ip, port)
	if err != nil {
		return nil, "", err
	}
	return s, s.Destination().String(), nil
}

func (a *app) cmdReplay(ctx context.Context, args []string) error {
	cf := a.newFlags("replay", "replay <capture.csv|capture.pcap> [options]")
	ip := cf.String("ip", config.DefaultTargetIP, "Target IP address")
	port := cf.Int("port", config.DefaultPort, "Target UDP port")
	speed := cf.Float64("speed", config.DefaultSpeed, "Playback speed multiplier")
	loop := cf.Bool("loop", false, "Loop playback continuously")
	duration := cf.Duration("duration", 0, "Stop after this long (0 plays to the end)")
	serialPath := cf.String("serial", "", "Write to this serial device instead of UDP")
	baud := cf.Int("baud", 0, "Serial baud rate (default from config or 38400)")
	dbPath := cf.String("db", "", "Replay a session from this capture database")
	session := cf.String("session", "", "Session id to replay with --db (default: latest)")
	pcapPort := cf.Int("pcap-port", 0, "Only replay pcap datagrams sent to this port (0 for any)")
	skipErrors := cf.Bool("skip-errors", false, "Keep going when a packet cannot be sent")

	cfg, set, err := cf.parse(args)
	if err != nil {
		return err
	}
	if !set["ip"] {
		*ip = cfg.GetTargetIP()
	}
	if !set["port"] {
		*port = cfg.GetTargetPort()
	}
	if !set["speed"] {
		*speed = cfg.GetSpeed()
	}
	if !set["loop"] {
		*loop = cfg.GetLoop()
	}
	if !set["db"] {
		*dbPath = cfg.GetDBPath()
	}

	path := cf.arg(0)
	if path == "" && *dbPath == "" {
		return cf.usageError("a capture file or --db is required")
	}
	if path != "" {
		*dbPath = ""
	}
	if *speed <= 0 {
		return cf.usageError("--speed must be positive")
	}

	fmt.Fprintf(a.stdout, "Loading capture: %s\n", firstNonEmpty(path, *dbPath))
	rows, source, err := loadRows(path, *dbPath, *session, *pcapPort, freed.Decoder{LensPolicy: cfg.GetLensPolicy()})
	if err != nil {
		return err
	}
	items := rows.Timed()
	if len(items) == 0 {
		return fmt.Errorf("no valid packets found in %s", source)
	}

	serialOpts := cfg.GetSerialOptions()
	if set["baud"] {
		serialOpts.BaudRate = *baud
	}
	sink, dest, err := a.openSink(*serialPath, serialOpts, *ip, *port)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Sending packets to %s\n", dest)

	pcfg := pace.DefaultConfig()
	pcfg.Speed = *speed
	pcfg.Loop = *loop
	pcfg.Duration = *duration
	pcfg.Clock = a.clock
	if *skipErrors {
		pcfg.ErrorPolicy = pace.SkipOnError
		pcfg.OnError = func(e pace.SendError) {
			fmt.Fprintf(a.stderr, "send failed: %v\n", &e)
		}
	}
	lastPass := 1
	pcfg.OnProgress = func(p pace.Progress) {
		if p.Pass != lastPass {
			lastPass = p.Pass
			fmt.Fprintln(a.stdout, "Restarting replay...")
		}
		if p.Sent%progressEvery == 0 || p.Index == p.Total-1 {
			fmt.Fprintf(a.stdout, "Progress: %.1f%% (%d/%d packets)\n",
				float64(p.Index+1)/float64(p.Total)*100, p.Index+1, p.Total)
		}
	}

	player, err := pace.NewReplayPlayer(items, sink, pcfg)
	if err != nil {
		sink.Close()
		return err
	}

	suffix := ""
	if *loop {
		suffix = " (loop enabled)"
	}
	fmt.Fprintf(a.stdout, "\nReplaying %d packets%s\n", len(items), suffix)
	fmt.Fprintf(a.stdout, "Playback speed: %gx\n", *speed)
	fmt.Fprintln(a.stdout, "Press Ctrl+C to stop...")

	runErr := player.Run(ctx)
	a.printPlayerResult(player, "Replay complete!", "Playback stopped by user")
	return runErr
}

func (a *app) printPlayerResult(p *pace.Player, complete, stopped string) {
	st := p.Stats()
	switch p.State() {
	case pace.Completed:
		fmt.Fprintln(a.stdout, "\n"+complete)
	case pace.Cancelled:
		fmt.Fprintln(a.stdout, "\n"+stopped)
	}
	fmt.Fprintf(a.stdout, "Sent %d packets over %.1f seconds", st.Sent, st.Elapsed.Seconds())
	if st.Failed > 0 {
		fmt.Fprintf(a.stdout, " (%d failed)", st.Failed)
	}
	fmt.Fprintln(a.stdout)
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}
