package explore

import (
	"math"
	"testing"
)

func line(n int) (t, y []float64) {
	t = make([]float64, n)
	y = make([]float64, n)
	for i := range t {
		t[i] = 1.714e9 + float64(i)*3600
		y[i] = 2.5 + 0.3*float64(i)
	}
	return t, y
}

func TestFitPolyRecoversLine(t *testing.T) {
	tv, y := line(50)
	fit, err := FitPoly(tv, y, 1)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	pred := fit.Predict(tv)
	for i := range y {
		if math.Abs(pred[i]-y[i]) > 1e-6 {
			t.Fatalf("point %d: predicted %v, want %v", i, pred[i], y[i])
		}
	}
	if fit.R2 < 0.999999 {
		t.Errorf("R2 = %v, want ~1", fit.R2)
	}
}

func TestFitPolyHighDegreeStable(t *testing.T) {
	// Degree 8 over unix-second covariates must survive thanks to the
	// [-1,1] standardization.
	tv := make([]float64, 200)
	y := make([]float64, 200)
	for i := range tv {
		tv[i] = 1.714e9 + float64(i)*3600
		z := float64(i)/199*2 - 1
		y[i] = math.Sin(3 * z)
	}
	fit, err := FitPoly(tv, y, 8)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	pred := fit.Predict(tv)
	for i := range y {
		if math.Abs(pred[i]-y[i]) > 0.05 {
			t.Fatalf("point %d: degree-8 fit off by %v", i, math.Abs(pred[i]-y[i]))
		}
	}
}

func TestFitPolyErrors(t *testing.T) {
	tv, y := line(50)
	if _, err := FitPoly(tv, y, 0); err == nil {
		t.Error("expected error for degree 0")
	}
	if _, err := FitPoly(tv[:3], y[:3], 8); err == nil {
		t.Error("expected error for too few points")
	}
	if _, err := FitPoly(tv, y[:10], 1); err == nil {
		t.Error("expected error for length mismatch")
	}
}

func TestLoessTracksSmoothSignal(t *testing.T) {
	n := 300
	tv := make([]float64, n)
	y := make([]float64, n)
	for i := range tv {
		tv[i] = float64(i)
		y[i] = math.Cos(float64(i) / 40)
	}
	sm, err := Loess(tv, y, DefaultSpan, tv)
	if err != nil {
		t.Fatalf("loess failed: %v", err)
	}
	// Interior points should be close; a wide span flattens the curve
	// a little, so the tolerance is loose.
	for i := 30; i < n-30; i++ {
		if math.Abs(sm[i]-y[i]) > 0.35 {
			t.Fatalf("point %d: loess off by %v", i, math.Abs(sm[i]-y[i]))
		}
	}
}

func TestLoessBadSpan(t *testing.T) {
	tv, y := line(20)
	for _, span := range []float64{0, -0.5, 1.5} {
		if _, err := Loess(tv, y, span, tv); err == nil {
			t.Errorf("span %v: expected error", span)
		}
	}
}
