package basis

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func covariate(n int) []float64 {
	t := make([]float64, n)
	for i := range t {
		t[i] = 1.714e9 + float64(i)*3600
	}
	return t
}

func TestNewGP(t *testing.T) {
	sm, err := New(Spec{Type: TypeGP, K: 20}, covariate(200))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	r, c := sm.Design().Dims()
	if r != 200 || c != 20 {
		t.Errorf("design dims %dx%d, want 200x20", r, c)
	}
	if sm.NullPenalty() != nil {
		t.Error("gp penalty is full rank, expected nil null penalty")
	}

	// Columns are centered.
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += sm.Design().At(i, j)
		}
		if math.Abs(sum) > 1e-8 {
			t.Errorf("column %d not centered: sum=%g", j, sum)
		}
	}
}

func TestGPPenaltyPositiveDefinite(t *testing.T) {
	sm, err := New(Spec{Type: TypeGP, K: 12}, covariate(100))
	if err != nil {
		t.Fatal(err)
	}
	var ch mat.Cholesky
	if ok := ch.Factorize(sm.Penalty()); !ok {
		t.Error("gp penalty is not positive definite")
	}
}

func TestNewPS(t *testing.T) {
	sm, err := New(Spec{Type: TypePS, K: 15}, covariate(150))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if sm.NullPenalty() == nil {
		t.Fatal("difference penalty has a null space, expected a null penalty")
	}

	// Constant and linear coefficient vectors are unpenalized by S but
	// penalized by the null penalty.
	k := sm.K()
	lin := mat.NewVecDense(k, nil)
	for i := 0; i < k; i++ {
		lin.SetVec(i, float64(i))
	}
	var tmp mat.VecDense
	tmp.MulVec(sm.Penalty(), lin)
	if q := mat.Dot(lin, &tmp); math.Abs(q) > 1e-8 {
		t.Errorf("linear pattern penalized by S: %g", q)
	}
	tmp.MulVec(sm.NullPenalty(), lin)
	if q := mat.Dot(lin, &tmp); q < 1e-6 {
		t.Errorf("linear pattern not penalized by null penalty: %g", q)
	}
}

func TestBSplinePartitionOfUnity(t *testing.T) {
	knots := uniformKnotVector(10, splineDegree)
	for _, u := range []float64{0, 0.1, 0.37, 0.5, 0.82, 0.999} {
		sum := 0.0
		for j := 0; j < 10; j++ {
			sum += bspline(j, splineDegree, u, knots)
		}
		if math.Abs(sum-1) > 1e-10 {
			t.Errorf("u=%v: basis sums to %v, want 1", u, sum)
		}
	}
}

func TestEvalAtMatchesDesign(t *testing.T) {
	tv := covariate(80)
	for _, typ := range []Type{TypeGP, TypePS} {
		sm, err := New(Spec{Type: typ, K: 10}, tv)
		if err != nil {
			t.Fatal(err)
		}
		x := sm.EvalAt(tv)
		if !mat.EqualApprox(x, sm.Design(), 1e-10) {
			t.Errorf("%s: EvalAt on fitting data differs from design", typ)
		}
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		t    []float64
	}{
		{"k too small", Spec{Type: TypeGP, K: 2}, covariate(50)},
		{"too few points", Spec{Type: TypeGP, K: 20}, covariate(10)},
		{"constant covariate", Spec{Type: TypeGP, K: 5}, []float64{1, 1, 1, 1, 1, 1}},
		{"unknown type", Spec{Type: "tp", K: 10}, covariate(50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.spec, tt.t); err == nil {
				t.Error("expected error")
			}
		})
	}
}
