// Package analysis summarises recorded FreeD captures and renders charts
// of packet rate, camera trail and rotation.
package analysis

import (
	"fmt"
	"io"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/freed-tools/internal/capture"
)

// RateWindow is the number of inter-arrival gaps averaged for the rolling
// packet rate.
const RateWindow = 10

// Range is the observed extent of one field.
type Range struct {
	Min, Max float64
}

func (r Range) String() string { return fmt.Sprintf("%.2f to %.2f", r.Min, r.Max) }

// Report holds summary statistics for a capture.
type Report struct {
	Total    int
	Valid    int
	Invalid  int
	Duration time.Duration
	// AverageRate is packets per second across the whole capture.
	AverageRate float64

	// Inter-arrival statistics over consecutive rows.
	MeanInterval   time.Duration
	StdDevInterval time.Duration

	// FrameGaps counts valid rows whose frame did not follow the previous
	// valid row's.
	FrameGaps int

	// Pose ranges are computed over valid rows only; HasPose is false when
	// there were none.
	HasPose         bool
	X, Y, Z         Range
	Pan, Tilt, Roll Range
}

// Summarize computes a Report for rows.
func Summarize(rows capture.Rows) Report {
	rep := Report{Total: len(rows)}
	if len(rows) == 0 {
		return rep
	}

	rep.Duration = rows.Span()
	if rep.Duration > 0 {
		rep.AverageRate = float64(rep.Total) / rep.Duration.Seconds()
	}

	if gaps := intervals(rows); len(gaps) > 0 {
		mean, std := stat.MeanStdDev(gaps, nil)
		if len(gaps) == 1 {
			std = 0
		}
		rep.MeanInterval = seconds(mean)
		rep.StdDevInterval = seconds(std)
	}

	valid := rows.Valid()
	rep.Valid = len(valid)
	rep.Invalid = rep.Total - rep.Valid
	if len(valid) == 0 {
		return rep
	}

	rep.HasPose = true
	cols := make([][]float64, 6)
	for i := range cols {
		cols[i] = make([]float64, len(valid))
	}
	for i, r := range valid {
		p := r.Packet
		for c, v := range []float64{p.X, p.Y, p.Z, p.Pan, p.Tilt, p.Roll} {
			cols[c][i] = v
		}
		if i > 0 && p.Frame != valid[i-1].Packet.Frame+1 {
			rep.FrameGaps++
		}
	}
	ranges := []*Range{&rep.X, &rep.Y, &rep.Z, &rep.Pan, &rep.Tilt, &rep.Roll}
	for c, r := range ranges {
		*r = Range{Min: floats.Min(cols[c]), Max: floats.Max(cols[c])}
	}
	return rep
}

// Print writes the report in the analyser's text layout.
func (r Report) Print(w io.Writer) {
	fmt.Fprintln(w, "=== FreeD Packet Analysis ===")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Basic Statistics:")
	fmt.Fprintf(w, "Total Duration: %.2f seconds\n", r.Duration.Seconds())
	fmt.Fprintf(w, "Total Packets: %d\n", r.Total)
	fmt.Fprintf(w, "Valid Packets: %d\n", r.Valid)
	fmt.Fprintf(w, "Invalid Packets: %d\n", r.Invalid)
	fmt.Fprintf(w, "Average Packet Rate: %.2f packets/second\n", r.AverageRate)
	fmt.Fprintf(w, "Packet Interval: mean %.2f ms, stddev %.2f ms\n",
		msFloat(r.MeanInterval), msFloat(r.StdDevInterval))
	if r.FrameGaps > 0 {
		fmt.Fprintf(w, "Frame Gaps: %d\n", r.FrameGaps)
	}
	if !r.HasPose {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Position Range (mm):")
	fmt.Fprintf(w, "X: %s\nY: %s\nZ: %s\n", r.X, r.Y, r.Z)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Rotation Range (degrees):")
	fmt.Fprintf(w, "Pan: %s\nTilt: %s\nRoll: %s\n", r.Pan, r.Tilt, r.Roll)
}

// RatePoint is the rolling packet rate at a row.
type RatePoint struct {
	Time time.Time
	// Offset is the time since the first row.
	Offset time.Duration
	Rate   float64
}

// RollingRate returns 1 / mean of the last RateWindow inter-arrival gaps
// for every row that has a full window. Windows with a zero mean gap are
// skipped.
func RollingRate(rows capture.Rows) []RatePoint {
	gaps := intervals(rows)
	if len(gaps) < RateWindow {
		return nil
	}
	out := make([]RatePoint, 0, len(gaps)-RateWindow+1)
	for i := RateWindow; i <= len(gaps); i++ {
		mean := stat.Mean(gaps[i-RateWindow:i], nil)
		if mean <= 0 {
			continue
		}
		row := rows[i]
		out = append(out, RatePoint{
			Time:   row.Time,
			Offset: row.Time.Sub(rows[0].Time),
			Rate:   1 / mean,
		})
	}
	return out
}

// intervals returns the gaps between consecutive rows in seconds.
func intervals(rows capture.Rows) []float64 {
	if len(rows) < 2 {
		return nil
	}
	out := make([]float64, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		out[i-1] = rows[i].Time.Sub(rows[i-1].Time).Seconds()
	}
	return out
}

func seconds(s float64) time.Duration {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func msFloat(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
