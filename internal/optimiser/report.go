package optimiser

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteHTMLReport renders a trial history (automation/precision/recall per
// trial, feasible trials highlighted) to an HTML scatter chart file via
// go-echarts, adapted from the teacher's handleBackgroundGridPolar pattern
// (NewScatter/SetGlobalOptions/AddSeries/Render) from an HTTP handler to a
// file writer.
func WriteHTMLReport(path string, trials []Trial, constraints Constraints) error {
	feasible := make([]opts.ScatterData, 0)
	infeasible := make([]opts.ScatterData, 0)
	for _, t := range trials {
		point := opts.ScatterData{Value: []interface{}{t.Metrics.Recall, t.Metrics.Precision, t.Metrics.Automation}}
		if t.Penalty == 0 {
			feasible = append(feasible, point)
		} else {
			infeasible = append(infeasible, point)
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Validator threshold search", Theme: "white", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Trial recall/precision", Subtitle: fmt.Sprintf("%d trials, %d feasible", len(trials), len(feasible))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: 1, Name: "recall"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "precision"}),
	)
	scatter.AddSeries("feasible", feasible, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	scatter.AddSeries("infeasible", infeasible, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("optimiser: render html report: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("optimiser: write html report: %w", err)
	}
	return nil
}

// WritePNGReport renders the same trial history to a static PNG scatter
// plot via gonum/plot, grounded on the teacher's generateRingPlot pattern
// (plot.New/Add/Save with a fixed 14x6 inch canvas).
func WritePNGReport(path string, trials []Trial) error {
	p := plot.New()
	p.Title.Text = "Validator threshold search"
	p.X.Label.Text = "recall"
	p.Y.Label.Text = "precision"

	feasiblePts := make(plotter.XYs, 0, len(trials))
	infeasiblePts := make(plotter.XYs, 0, len(trials))
	for _, t := range trials {
		xy := plotter.XY{X: t.Metrics.Recall, Y: t.Metrics.Precision}
		if t.Penalty == 0 {
			feasiblePts = append(feasiblePts, xy)
		} else {
			infeasiblePts = append(infeasiblePts, xy)
		}
	}

	if len(feasiblePts) > 0 {
		feasibleScatter, err := plotter.NewScatter(feasiblePts)
		if err != nil {
			return fmt.Errorf("optimiser: png report: %w", err)
		}
		p.Add(feasibleScatter)
		p.Legend.Add("feasible", feasibleScatter)
	}
	if len(infeasiblePts) > 0 {
		infeasibleScatter, err := plotter.NewScatter(infeasiblePts)
		if err != nil {
			return fmt.Errorf("optimiser: png report: %w", err)
		}
		p.Add(infeasibleScatter)
		p.Legend.Add("infeasible", infeasibleScatter)
	}

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("optimiser: save png report: %w", err)
	}
	return nil
}
