package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/freed-tools/internal/capture"
)

func (a *app) cmdSessions(args []string) error {
	cf := a.newFlags("sessions", "sessions --db <file> [--delete <id>] [--export <id> --out <file.csv>]")
	dbPath := cf.String("db", "", "Capture database")
	deleteID := cf.String("delete", "", "Delete this session")
	exportID := cf.String("export", "", "Export this session as a CSV packet log")
	out := cf.String("out", "", "CSV file for --export")

	cfg, set, err := cf.parse(args)
	if err != nil {
		return err
	}
	if !set["db"] {
		*dbPath = cfg.GetDBPath()
	}
	if *dbPath == "" {
		return cf.usageError("--db is required")
	}

	store, err := capture.OpenStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case *deleteID != "":
		if err := store.DeleteSession(*deleteID); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Deleted session %s\n", *deleteID)
		return nil
	case *exportID != "":
		if *out == "" {
			return cf.usageError("--out is required with --export")
		}
		return a.exportSession(store, *exportID, *out)
	}

	sessions, err := store.Sessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(a.stdout, "No sessions recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tSTARTED\tPACKETS\tVALID")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", s.ID, s.Label, s.Started.Format(time.RFC3339), s.Packets, s.Valid)
	}
	return tw.Flush()
}

func (a *app) exportSession(store *capture.Store, id, path string) error {
	rows, err := store.Rows(id)
	if err != nil {
		return err
	}
	w, err := capture.CreateCSV(path)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.WriteRow(r); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Exported %d rows to %s\n", len(rows), path)
	return nil
}
