package analysis

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/freed-tools/internal/capture"
)

// ErrNoData is returned when a capture has nothing to plot.
var ErrNoData = errors.New("analysis: no data to plot")

var (
	panColor  = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	tiltColor = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
	rollColor = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
)

// WritePNGs saves <prefix>_packet_rate.png, <prefix>_position_trail.png and
// <prefix>_rotation.png. Plots without data are skipped; the paths written
// are returned.
func WritePNGs(prefix string, rows capture.Rows) ([]string, error) {
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	var written []string
	save := func(p *plot.Plot, suffix string, w, h vg.Length) error {
		path := fmt.Sprintf("%s_%s.png", prefix, suffix)
		if err := p.Save(w, h, path); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
		written = append(written, path)
		return nil
	}

	if p, err := ratePlot(rows); err != nil {
		return written, err
	} else if p != nil {
		if err := save(p, "packet_rate", 12*vg.Inch, 6*vg.Inch); err != nil {
			return written, err
		}
	}

	valid := rows.Valid()
	if len(valid) == 0 {
		return written, nil
	}

	p, err := trailPlot(valid)
	if err != nil {
		return written, err
	}
	if err := save(p, "position_trail", 10*vg.Inch, 10*vg.Inch); err != nil {
		return written, err
	}

	p, err = rotationPlot(valid)
	if err != nil {
		return written, err
	}
	if err := save(p, "rotation", 12*vg.Inch, 6*vg.Inch); err != nil {
		return written, err
	}
	return written, nil
}

func ratePlot(rows capture.Rows) (*plot.Plot, error) {
	rates := RollingRate(rows)
	if len(rates) == 0 {
		return nil, nil
	}
	pts := make(plotter.XYs, len(rates))
	for i, r := range rates {
		pts[i] = plotter.XY{X: r.Offset.Seconds(), Y: r.Rate}
	}

	p := plot.New()
	p.Title.Text = "FreeD Packet Rate Over Time"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Packets per Second"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Width = vg.Points(1)
	line.Color = panColor
	p.Add(line)
	p.Legend.Add("Packet Rate", line)
	return p, nil
}

// trailPlot draws the XY trail, shading points from light to dark as
// time passes.
func trailPlot(valid capture.Rows) (*plot.Plot, error) {
	pts := make(plotter.XYs, len(valid))
	for i, r := range valid {
		pts[i] = plotter.XY{X: r.Packet.X, Y: r.Packet.Y}
	}

	p := plot.New()
	p.Title.Text = "Camera Position Trail"
	p.X.Label.Text = "X Position (mm)"
	p.Y.Label.Text = "Y Position (mm)"
	p.Add(plotter.NewGrid())

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	n := len(valid)
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		g := sc.GlyphStyle
		g.Radius = vg.Points(2)
		g.Color = timeShade(i, n)
		return g
	}
	p.Add(sc)
	return p, nil
}

// timeShade maps sample i of n onto a purple to yellow ramp.
func timeShade(i, n int) color.Color {
	t := 0.0
	if n > 1 {
		t = float64(i) / float64(n-1)
	}
	lerp := func(a, b uint8) uint8 { return uint8(float64(a) + t*(float64(b)-float64(a))) }
	return color.RGBA{R: lerp(0x44, 0xfd), G: lerp(0x01, 0xe7), B: lerp(0x54, 0x25), A: 0xff}
}

func rotationPlot(valid capture.Rows) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Camera Rotation Over Time"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Degrees"
	p.Add(plotter.NewGrid())

	start := valid[0].Time
	series := []struct {
		name  string
		color color.Color
		value func(r capture.Row) float64
	}{
		{"Pan", panColor, func(r capture.Row) float64 { return r.Packet.Pan }},
		{"Tilt", tiltColor, func(r capture.Row) float64 { return r.Packet.Tilt }},
		{"Roll", rollColor, func(r capture.Row) float64 { return r.Packet.Roll }},
	}
	for _, s := range series {
		pts := make(plotter.XYs, len(valid))
		for i, r := range valid {
			pts[i] = plotter.XY{X: r.Time.Sub(start).Seconds(), Y: s.value(r)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	return p, nil
}
