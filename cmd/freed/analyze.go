package main

import (
	"errors"
	"fmt"

	"github.com/banshee-data/freed-tools/internal/analysis"
	"github.com/banshee-data/freed-tools/internal/freed"
)

func (a *app) cmdAnalyze(args []string) error {
	cf := a.newFlags("analyze", "analyze <capture.csv|capture.pcap> [options]")
	output := cf.String("output", "freed_analysis", "Prefix for the PNG charts")
	htmlPath := cf.String("html", "", "Also write an interactive HTML report to this file")
	noPNG := cf.Bool("no-png", false, "Skip the PNG charts")
	dbPath := cf.String("db", "", "Analyse a session from this capture database")
	session := cf.String("session", "", "Session id with --db (default: latest)")
	pcapPort := cf.Int("pcap-port", 0, "Only analyse pcap datagrams sent to this port (0 for any)")

	cfg, _, err := cf.parse(args)
	if err != nil {
		return err
	}
	path := cf.arg(0)
	if path == "" && *dbPath == "" {
		return cf.usageError("a capture file or --db is required")
	}
	if path != "" {
		*dbPath = ""
	}

	fmt.Fprintf(a.stdout, "Loading data from %s...\n", firstNonEmpty(path, *dbPath))
	rows, _, err := loadRows(path, *dbPath, *session, *pcapPort, freed.Decoder{LensPolicy: cfg.GetLensPolicy()})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.New("capture is empty")
	}

	fmt.Fprintln(a.stdout, "Generating statistical analysis...")
	fmt.Fprintln(a.stdout)
	analysis.Summarize(rows).Print(a.stdout)

	if !*noPNG {
		fmt.Fprintln(a.stdout, "\nGenerating plots...")
		written, err := analysis.WritePNGs(*output, rows)
		if err != nil {
			return err
		}
		for _, p := range written {
			fmt.Fprintf(a.stdout, "  %s\n", p)
		}
	}
	if *htmlPath != "" {
		if err := analysis.WriteHTMLFile(*htmlPath, rows); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "  %s\n", *htmlPath)
	}

	fmt.Fprintf(a.stdout, "\nAnalysis complete. Output files saved with prefix: %s\n", *output)
	return nil
}
