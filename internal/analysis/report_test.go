package analysis

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/freed-tools/internal/capture"
	"github.com/banshee-data/freed-tools/internal/freed"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// steadyRows returns n valid rows spaced by gap, panning one degree per row.
func steadyRows(n int, gap time.Duration) capture.Rows {
	rows := make(capture.Rows, n)
	for i := range rows {
		p := freed.NewPacket(uint32(i))
		p.X = float64(i) * 10
		p.Y = -float64(i)
		p.Z = 2000
		p.Pan = float64(i)
		p.Tilt = -5
		rows[i] = capture.Row{Time: t0.Add(time.Duration(i) * gap), Valid: true, Packet: p}
	}
	return rows
}

func TestSummarize(t *testing.T) {
	rows := steadyRows(31, 100*time.Millisecond)
	rows[5].Valid = false
	rows[5].Packet = freed.Packet{}

	rep := Summarize(rows)

	assert.Equal(t, 31, rep.Total)
	assert.Equal(t, 30, rep.Valid)
	assert.Equal(t, 1, rep.Invalid)
	assert.Equal(t, 3*time.Second, rep.Duration)
	assert.InDelta(t, 31.0/3.0, rep.AverageRate, 1e-9)
	assert.InDelta(t, 100.0, msFloat(rep.MeanInterval), 1e-6)
	assert.InDelta(t, 0.0, msFloat(rep.StdDevInterval), 1e-6)
	// Frame 5 is missing from the valid rows.
	assert.Equal(t, 1, rep.FrameGaps)

	require.True(t, rep.HasPose)
	assert.Equal(t, Range{Min: 0, Max: 300}, rep.X)
	assert.Equal(t, Range{Min: -30, Max: 0}, rep.Y)
	assert.Equal(t, Range{Min: 2000, Max: 2000}, rep.Z)
	assert.Equal(t, Range{Min: 0, Max: 30}, rep.Pan)
	assert.Equal(t, Range{Min: -5, Max: -5}, rep.Tilt)
}

func TestSummarizeEdgeCases(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		rep := Summarize(nil)
		assert.Zero(t, rep.Total)
		assert.False(t, rep.HasPose)
	})

	t.Run("single row", func(t *testing.T) {
		rep := Summarize(steadyRows(1, time.Second))
		assert.Equal(t, 1, rep.Total)
		assert.Zero(t, rep.Duration)
		assert.Zero(t, rep.AverageRate)
		assert.Zero(t, rep.MeanInterval)
		assert.True(t, rep.HasPose)
	})

	t.Run("all invalid", func(t *testing.T) {
		rows := capture.Rows{
			{Time: t0},
			{Time: t0.Add(time.Second)},
		}
		rep := Summarize(rows)
		assert.Equal(t, 2, rep.Invalid)
		assert.False(t, rep.HasPose)
		assert.InDelta(t, 2.0, rep.AverageRate, 1e-9)
	})
}

func TestReportPrint(t *testing.T) {
	rep := Summarize(steadyRows(11, 50*time.Millisecond))

	var buf bytes.Buffer
	rep.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "=== FreeD Packet Analysis ===")
	assert.Contains(t, out, "Total Duration: 0.50 seconds")
	assert.Contains(t, out, "Total Packets: 11")
	assert.Contains(t, out, "Average Packet Rate: 22.00 packets/second")
	assert.Contains(t, out, "Position Range (mm):\nX: 0.00 to 100.00\n")
	assert.Contains(t, out, "Pan: 0.00 to 10.00")
	assert.NotContains(t, out, "Frame Gaps")
}

func TestReportPrintWithoutPose(t *testing.T) {
	var buf bytes.Buffer
	Summarize(capture.Rows{{Time: t0}}).Print(&buf)
	assert.NotContains(t, buf.String(), "Position Range")
}

func TestRollingRate(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		assert.Empty(t, RollingRate(steadyRows(RateWindow, 10*time.Millisecond)))
	})

	t.Run("steady", func(t *testing.T) {
		rows := steadyRows(RateWindow+3, 20*time.Millisecond)
		pts := RollingRate(rows)
		require.Len(t, pts, 3)
		for i, pt := range pts {
			assert.InDelta(t, 50.0, pt.Rate, 1e-6)
			assert.Equal(t, rows[RateWindow+i].Time, pt.Time)
		}
		assert.Equal(t, 200*time.Millisecond, pts[0].Offset)
	})

	t.Run("slowdown", func(t *testing.T) {
		rows := steadyRows(RateWindow+1, 10*time.Millisecond)
		last := rows[len(rows)-1]
		last.Time = last.Time.Add(100 * time.Millisecond)
		rows = append(rows, last)
		pts := RollingRate(rows)
		require.Len(t, pts, 2)
		assert.InDelta(t, 100.0, pts[0].Rate, 1e-6)
		// Window of nine 10ms gaps and one 100ms gap.
		assert.InDelta(t, 1/0.019, pts[1].Rate, 1e-6)
	})

	t.Run("zero gaps skipped", func(t *testing.T) {
		rows := make(capture.Rows, RateWindow+1)
		for i := range rows {
			rows[i] = capture.Row{Time: t0, Valid: true}
		}
		assert.Empty(t, RollingRate(rows))
	})
}
