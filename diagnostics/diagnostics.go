// Package diagnostics renders PNG plots for a finished training run: the
// calibration residual histogram with the conformal margin marked, and the
// evaluation learning curve of the asymmetric retrain.
package diagnostics

import (
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

const (
	// Width and Height are the rendered image size.
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch

	defaultBins = 30
)

var markerColor = color.RGBA{R: 200, A: 255}

// ResidualHistogram writes a histogram of absolute calibration residuals
// with a vertical line at the margin q.
func ResidualHistogram(residuals []float64, q float64, w io.Writer) (err error) {
	defer errors.Recover(&err, "diagnostics.ResidualHistogram")

	if len(residuals) == 0 {
		return errors.NewInsufficientDataError("diagnostics.ResidualHistogram", 1, 0, "no residuals to plot")
	}
	if math.IsNaN(q) || math.IsInf(q, 0) || q < 0 {
		return errors.NewValidationError("q", "margin must be finite and non-negative", q)
	}

	p := plot.New()
	p.Title.Text = "Calibration residuals"
	p.X.Label.Text = "|price - prediction|"
	p.Y.Label.Text = "count"

	bins := defaultBins
	if len(residuals) < bins {
		bins = len(residuals)
	}
	h, err := plotter.NewHist(plotter.Values(residuals), bins)
	if err != nil {
		return errors.Wrap(err, "diagnostics: histogram")
	}
	p.Add(h)

	top := 0.0
	for _, b := range h.Bins {
		top = math.Max(top, b.Weight)
	}
	marker, err := plotter.NewLine(plotter.XYs{{X: q, Y: 0}, {X: q, Y: top}})
	if err != nil {
		return errors.Wrap(err, "diagnostics: margin line")
	}
	marker.Color = markerColor
	marker.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(marker)
	p.Legend.Add("q", marker)

	return render(p, w)
}

// LearningCurve writes the per-round evaluation RMSE and marks bestRound.
func LearningCurve(history []float64, bestRound int, w io.Writer) (err error) {
	defer errors.Recover(&err, "diagnostics.LearningCurve")

	if len(history) == 0 {
		return errors.NewInsufficientDataError("diagnostics.LearningCurve", 1, 0, "no evaluation history to plot")
	}
	if bestRound < 0 || bestRound >= len(history) {
		return errors.NewValidationError("best_round", "outside the evaluation history", bestRound)
	}

	p := plot.New()
	p.Title.Text = "Evaluation RMSE"
	p.X.Label.Text = "round"
	p.Y.Label.Text = "rmse"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(history))
	for i, v := range history {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "diagnostics: learning curve")
	}
	p.Add(line)

	best, err := plotter.NewScatter(plotter.XYs{{X: float64(bestRound), Y: history[bestRound]}})
	if err != nil {
		return errors.Wrap(err, "diagnostics: best round")
	}
	best.Color = markerColor
	best.Radius = vg.Points(4)
	p.Add(best)
	p.Legend.Add("eval", line)
	p.Legend.Add("best round", best)

	return render(p, w)
}

func render(p *plot.Plot, w io.Writer) error {
	c := vgimg.PngCanvas{Canvas: vgimg.New(Width, Height)}
	p.Draw(draw.New(c))
	if _, err := c.WriteTo(w); err != nil {
		return errors.Wrap(err, "diagnostics: write png")
	}
	return nil
}
