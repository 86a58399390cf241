package diagnostics

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// FitSummary carries the reported quantities of a stored fit.
type FitSummary struct {
	RunID   string
	Family  string
	Basis   string
	K       int
	Lambda  float64
	Nu      float64
	EDF     float64
	FStat   float64
	PValue  float64
	DevExpl float64
	REML    float64
	Scale   float64
	N       int
}

// Write renders the model summary, the k-check and the residual
// diagnostics as a report.
func Write(w io.Writer, s FitSummary, kc KCheck, rs ResidualStats) error {
	fmt.Fprintf(w, "model summary: %s\n\n", s.RunID)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "family\t%s\n", s.Family)
	fmt.Fprintf(tw, "basis\t%s (k=%d)\n", s.Basis, s.K)
	fmt.Fprintf(tw, "n\t%d\n", s.N)
	fmt.Fprintf(tw, "lambda\t%.6g\n", s.Lambda)
	if s.Nu > 0 {
		fmt.Fprintf(tw, "scat dof\t%.0f\n", s.Nu)
	}
	fmt.Fprintf(tw, "smooth edf\t%.3f\n", s.EDF)
	fmt.Fprintf(tw, "approx F\t%.3f (p=%.4g)\n", s.FStat, s.PValue)
	fmt.Fprintf(tw, "deviance explained\t%.1f%%\n", 100*s.DevExpl)
	fmt.Fprintf(tw, "REML score\t%.4f\n", s.REML)
	fmt.Fprintf(tw, "scale est\t%.6g\n", s.Scale)
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nbasis dimension check:\n")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "k'\t%d\n", kc.KPrime)
	fmt.Fprintf(tw, "edf\t%.3f\n", kc.EDF)
	fmt.Fprintf(tw, "k-index\t%.3f\n", kc.KIndex)
	verdict := "ok"
	if kc.Low {
		verdict = "k may be too low"
	}
	fmt.Fprintf(tw, "verdict\t%s\n", verdict)
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nresiduals:\n")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "mean\t%.5g\n", rs.Mean)
	fmt.Fprintf(tw, "sd\t%.5g\n", rs.SD)
	fmt.Fprintf(tw, "skewness\t%.3f\n", rs.Skewness)
	fmt.Fprintf(tw, "excess kurtosis\t%.3f\n", rs.ExKurtosis)
	fmt.Fprintf(tw, "lag-1 autocorr\t%.3f\n", rs.Lag1)
	fmt.Fprintf(tw, "quantiles\t%.4g  %.4g  %.4g  %.4g  %.4g\n",
		rs.Quantiles[0], rs.Quantiles[1], rs.Quantiles[2], rs.Quantiles[3], rs.Quantiles[4])
	return tw.Flush()
}
