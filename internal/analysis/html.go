package analysis

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/freed-tools/internal/capture"
)

// maxChartPoints caps each HTML series; longer captures are strided.
const maxChartPoints = 5000

// WriteHTML renders an interactive page with the rolling packet rate, the
// camera's XY trail and its rotation over time.
func WriteHTML(w io.Writer, rows capture.Rows) error {
	page := components.NewPage()
	page.PageTitle = "FreeD Packet Analysis"
	page.AddCharts(rateChart(rows), trailChart(rows), rotationChart(rows))
	return page.Render(w)
}

// WriteHTMLFile writes the page to path.
func WriteHTMLFile(path string, rows capture.Rows) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteHTML(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("render %s: %w", path, err)
	}
	return f.Close()
}

func stride(n int) int {
	if n <= maxChartPoints {
		return 1
	}
	return (n + maxChartPoints - 1) / maxChartPoints
}

func rateChart(rows capture.Rows) *charts.Line {
	rates := RollingRate(rows)
	step := stride(len(rates))

	x := make([]string, 0, len(rates)/step+1)
	y := make([]opts.LineData, 0, len(rates)/step+1)
	for i := 0; i < len(rates); i += step {
		x = append(x, fmt.Sprintf("%.3f", rates[i].Offset.Seconds()))
		y = append(y, opts.LineData{Value: rates[i].Rate})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "FreeD Packet Rate Over Time", Subtitle: fmt.Sprintf("rolling %d-packet window", RateWindow)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Packets per Second"}),
	)
	line.SetXAxis(x).AddSeries("Packet Rate", y)
	return line
}

func trailChart(rows capture.Rows) *charts.Scatter {
	valid := rows.Valid()
	step := stride(len(valid))

	data := make([]opts.ScatterData, 0, len(valid)/step+1)
	for i := 0; i < len(valid); i += step {
		p := valid[i].Packet
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, p.Z}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Camera Position Trail", Subtitle: fmt.Sprintf("points=%d stride=%d", len(data), step)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (mm)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Dimension:  "2",
			Min:        float32(zRange(valid).Min),
			Max:        float32(zRange(valid).Max),
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("trail", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter
}

func zRange(valid capture.Rows) Range {
	if len(valid) == 0 {
		return Range{}
	}
	r := Range{Min: valid[0].Packet.Z, Max: valid[0].Packet.Z}
	for _, row := range valid[1:] {
		r.Min = min(r.Min, row.Packet.Z)
		r.Max = max(r.Max, row.Packet.Z)
	}
	return r
}

func rotationChart(rows capture.Rows) *charts.Line {
	valid := rows.Valid()
	step := stride(len(valid))

	var x []string
	var pan, tilt, roll []opts.LineData
	for i := 0; i < len(valid); i += step {
		r := valid[i]
		x = append(x, fmt.Sprintf("%.3f", r.Time.Sub(valid[0].Time).Seconds()))
		pan = append(pan, opts.LineData{Value: r.Packet.Pan})
		tilt = append(tilt, opts.LineData{Value: r.Packet.Tilt})
		roll = append(roll, opts.LineData{Value: r.Packet.Roll})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Camera Rotation Over Time"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Degrees"}),
	)
	line.SetXAxis(x).
		AddSeries("Pan", pan).
		AddSeries("Tilt", tilt).
		AddSeries("Roll", roll)
	return line
}
