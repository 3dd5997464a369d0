package cli

import (
	"fmt"
	"io"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"go.viam.com/projmap/projector"
	"go.viam.com/projmap/structuredlight"
)

const histogramBins = 10

type decodeRow struct {
	id    int
	stats structuredlight.DecodeStats
	after int
}

func decodeTable(rows []decodeRow) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Projector", "Pixels", "Threshold fail", "No mapping", "Mapped", "After denoise"})
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.id,
			r.stats.PixelCount,
			fmt.Sprintf("%.1f%%", r.stats.ThresholdFailPercent()),
			fmt.Sprintf("%.1f%%", r.stats.ProjectionFailPercent()),
			fmt.Sprintf("%.1f%%", r.stats.MappedPercent()),
			r.after,
		})
	}
	return t.Render()
}

func homographyTable(results []projector.CalibrationResult) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Projector", "Inliers", "Total", "Iterations", "Mean", "Median", "P95", "Max"})
	for _, r := range results {
		est := r.Estimate
		t.AppendRow(table.Row{
			r.ID, est.Inliers, est.Total, est.Iterations,
			fmt.Sprintf("%.3f", est.Residuals.Mean),
			fmt.Sprintf("%.3f", est.Residuals.Median),
			fmt.Sprintf("%.3f", est.Residuals.P95),
			fmt.Sprintf("%.3f", est.Residuals.Max),
		})
	}
	return t.Render()
}

// printResidualHistogram draws a terminal histogram of reprojection residuals in pixels.
func printResidualHistogram(w io.Writer, residuals []float64) error {
	if len(residuals) == 0 {
		return nil
	}
	hist := histogram.Hist(histogramBins, residuals)
	return histogram.Fprint(w, hist, histogram.Linear(40))
}

// saveResidualPlot writes a histogram of reprojection residuals to an image file.
func saveResidualPlot(path string, id int, residuals []float64) error {
	if len(residuals) == 0 {
		return errors.New("no residuals to plot")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("projector %d reprojection error", id)
	p.X.Label.Text = "pixels"
	p.Y.Label.Text = "correspondences"

	h, err := plotter.NewHist(plotter.Values(residuals), histogramBins)
	if err != nil {
		return err
	}
	p.Add(h)
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
