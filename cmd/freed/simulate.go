package main

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/freed-tools/internal/config"
	"github.com/banshee-data/freed-tools/internal/freed"
	"github.com/banshee-data/freed-tools/internal/pace"
	"github.com/banshee-data/freed-tools/internal/pattern"
)

func (a *app) cmdSimulate(ctx context.Context, args []string) error {
	cf := a.newFlags("simulate", "simulate <"+strings.Join(pattern.Variants(), "|")+"> [options]")
	ip := cf.String("ip", config.DefaultTargetIP, "Target IP address")
	port := cf.Int("port", config.DefaultPort, "Target UDP port")
	rate := cf.Float64("rate", config.DefaultRate, "Packets per second")
	duration := cf.Duration("duration", 0, "How long to run (0 runs until interrupted)")
	size := cf.Float64("size", pattern.DefaultParams().Size, "Pattern radius or amplitude in mm")
	height := cf.Float64("height", pattern.DefaultParams().Height, "Base camera height in mm")
	period := cf.Duration("period", pattern.DefaultParams().Period, "Time for one full pattern cycle")
	noLens := cf.Bool("no-lens", false, "Send 31-byte packets without zoom/focus")
	serialPath := cf.String("serial", "", "Write to this serial device instead of UDP")
	baud := cf.Int("baud", 0, "Serial baud rate (default from config or 38400)")

	cfg, set, err := cf.parse(args)
	if err != nil {
		return err
	}
	name := cf.arg(0)

	variant := cfg.GetPattern()
	if name != "" {
		if variant, err = pattern.ParseVariant(name); err != nil {
			return cf.usageError("%v", err)
		}
	}
	params := cfg.GetPatternParams()
	if set["size"] {
		params.Size = *size
	}
	if set["height"] {
		params.Height = *height
	}
	if set["period"] {
		params.Period = *period
	}
	if !set["ip"] {
		*ip = cfg.GetTargetIP()
	}
	if !set["port"] {
		*port = cfg.GetTargetPort()
	}
	if !set["rate"] {
		*rate = cfg.GetRate()
	}
	if *rate <= 0 {
		return cf.usageError("--rate must be positive")
	}

	gen, err := pattern.NewGenerator(variant, params)
	if err != nil {
		return err
	}
	var lens *freed.Lens
	if !*noLens {
		l := pattern.SimulatedLens
		lens = &l
	}

	serialOpts := cfg.GetSerialOptions()
	if set["baud"] {
		serialOpts.BaudRate = *baud
	}
	sink, dest, err := a.openSink(*serialPath, serialOpts, *ip, *port)
	if err != nil {
		return err
	}

	statusEvery := int(math.Max(1, math.Round(*rate)))
	pcfg := pace.DefaultConfig()
	pcfg.Rate = *rate
	pcfg.Duration = *duration
	pcfg.Clock = a.clock
	pcfg.OnProgress = func(p pace.Progress) {
		if p.Sent%statusEvery != 0 {
			return
		}
		pkt := p.Packet
		fmt.Fprintf(a.stdout, "Frame: %d, Position: (%.1f, %.1f, %.1f), Pan: %.1f, Tilt: %.1f\n",
			pkt.Frame, pkt.X, pkt.Y, pkt.Z, pkt.Pan, pkt.Tilt)
	}

	player, err := pace.NewLivePlayer(gen, lens, sink, pcfg)
	if err != nil {
		sink.Close()
		return err
	}

	fmt.Fprintf(a.stdout, "Simulating %s pattern at %g Hz\n", variant, *rate)
	fmt.Fprintf(a.stdout, "Sending to %s\n", dest)
	fmt.Fprintln(a.stdout, "Press Ctrl+C to stop...")

	runErr := player.Run(ctx)
	a.printPlayerResult(player, "Simulation complete!", "Simulation stopped by user")
	if st := player.Stats(); st.Elapsed > 0 {
		fmt.Fprintf(a.stdout, "Average rate: %.1f packets/second\n", float64(st.Sent)/st.Elapsed.Seconds())
	}
	return runErr
}
