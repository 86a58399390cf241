package gam

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/beescale/hivegam/internal/basis"
	"github.com/beescale/hivegam/internal/dataset"
)

// syntheticTable builds n observations over 12 sites with 3 scales
// each, weight = signal(t) + noise.
func syntheticTable(n int, seed int64, signal func(float64) float64) *dataset.Table {
	rng := rand.New(rand.NewSource(seed))
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tbl := &dataset.Table{}
	scales := make([]string, 0, 36)
	sites := make([]string, 0, 12)
	for s := 0; s < 12; s++ {
		sites = append(sites, fmt.Sprintf("site_%02d", s))
		for c := 0; c < 3; c++ {
			scales = append(scales, fmt.Sprintf("sc_%02d_%d", s, c))
		}
	}

	scaleCol := make([]string, n)
	siteCol := make([]string, n)
	for i := 0; i < n; i++ {
		ts := t0.Add(time.Duration(i) * time.Hour)
		u := float64(ts.Unix())
		sc := i % 36
		tbl.Times = append(tbl.Times, ts)
		tbl.Unix = append(tbl.Unix, u)
		tbl.Weight = append(tbl.Weight, signal(float64(i)/float64(n-1))+0.05*rng.NormFloat64())
		scaleCol[i] = scales[sc]
		siteCol[i] = sites[sc/3]
	}

	// Intern the grouping columns so the table is well formed.
	tbl.Scales, tbl.ScaleID = internLevels(scaleCol)
	tbl.Sites, tbl.SiteID = internLevels(siteCol)
	return tbl
}

func internLevels(vals []string) ([]string, []int) {
	pos := map[string]int{}
	var levels []string
	idx := make([]int, len(vals))
	for i, v := range vals {
		p, ok := pos[v]
		if !ok {
			p = len(levels)
			pos[v] = p
			levels = append(levels, v)
		}
		idx[i] = p
	}
	return levels, idx
}

func TestFitGaussianRecoversSmooth(t *testing.T) {
	g := NewWithT(t)

	signal := func(u float64) float64 { return math.Sin(2 * math.Pi * u) }
	tbl := syntheticTable(600, 7, signal)

	cfg := DefaultConfig()
	cfg.Family = FamilyGaussian
	m, err := Fit(tbl, cfg)
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(m.DevExpl).To(BeNumerically(">", 0.9))
	for i := 50; i < 550; i += 25 {
		g.Expect(m.Fitted[i]).To(BeNumerically("~", signal(float64(i)/599), 0.1))
	}
}

func TestFitScenarioEDFBounds(t *testing.T) {
	// 1,000 rows, 12 sites x 3 scales, smoothly varying signal: the
	// smooth must use more than one but fewer than k degrees of
	// freedom, and must not be shrunk away by the selection penalty.
	g := NewWithT(t)

	tbl := syntheticTable(1000, 42, func(u float64) float64 {
		return 0.8*math.Sin(2*math.Pi*u) + 0.3*u
	})

	m, err := Fit(tbl, DefaultConfig())
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(m.SmoothEDF).To(BeNumerically(">", 1))
	g.Expect(m.SmoothEDF).To(BeNumerically("<", 20))
	g.Expect(m.DevExpl).To(BeNumerically(">", 0.5))
	g.Expect(m.PValue).To(BeNumerically("<", 0.01))
}

func TestFitDeterministic(t *testing.T) {
	tbl := syntheticTable(400, 3, func(u float64) float64 { return math.Cos(3 * u) })

	cfg := DefaultConfig()
	a, err := Fit(tbl, cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Fit(tbl, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if a.Lambda != b.Lambda {
		t.Errorf("lambda differs across identical fits: %v vs %v", a.Lambda, b.Lambda)
	}
	if a.DevExpl != b.DevExpl {
		t.Errorf("deviance explained differs: %v vs %v", a.DevExpl, b.DevExpl)
	}
	if a.Nu != b.Nu {
		t.Errorf("nu differs: %v vs %v", a.Nu, b.Nu)
	}
}

func TestFitScatDownweightsOutliers(t *testing.T) {
	g := NewWithT(t)

	tbl := syntheticTable(500, 11, func(u float64) float64 { return math.Sin(2 * math.Pi * u) })
	// Inject gross outliers.
	for i := 40; i < 500; i += 60 {
		tbl.Weight[i] += 5
	}

	cfgT := DefaultConfig()
	mT, err := Fit(tbl, cfgT)
	g.Expect(err).NotTo(HaveOccurred())

	cfgG := DefaultConfig()
	cfgG.Family = FamilyGaussian
	mG, err := Fit(tbl, cfgG)
	g.Expect(err).NotTo(HaveOccurred())

	// The robust fit should sit closer to the clean signal at the
	// contaminated points than the Gaussian fit does.
	var errT, errG float64
	for i := 40; i < 500; i += 60 {
		clean := math.Sin(2 * math.Pi * float64(i) / 499)
		errT += math.Abs(mT.Fitted[i] - clean)
		errG += math.Abs(mG.Fitted[i] - clean)
	}
	g.Expect(errT).To(BeNumerically("<", errG))
	g.Expect(mT.Nu).To(BeNumerically("<", 40))
}

func TestFitFlatSignalShrinks(t *testing.T) {
	// With selection on and a constant signal, the ps basis null
	// penalty lets REML shrink the smooth to almost nothing.
	tbl := syntheticTable(400, 5, func(u float64) float64 { return 0.2 })

	cfg := DefaultConfig()
	cfg.Family = FamilyGaussian
	cfg.Basis = basis.Spec{Type: basis.TypePS, K: 15}
	m, err := Fit(tbl, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if m.SmoothEDF > 2.5 {
		t.Errorf("flat signal kept %.2f smooth EDF, expected near-zero", m.SmoothEDF)
	}
}

func TestFitErrors(t *testing.T) {
	tbl := syntheticTable(100, 1, func(u float64) float64 { return u })

	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"bad family", func(c *Config) { c.Family = "poisson" }},
		{"bad basis", func(c *Config) { c.Basis.K = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mut(&cfg)
			if _, err := Fit(tbl, cfg); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := Fit(&dataset.Table{}, DefaultConfig()); err != ErrEmptyData {
		t.Errorf("empty table: got %v, want ErrEmptyData", err)
	}
}

func TestPredictSmoothMatchesFitted(t *testing.T) {
	g := NewWithT(t)

	tbl := syntheticTable(300, 9, func(u float64) float64 { return math.Sin(4 * u) })
	cfg := DefaultConfig()
	cfg.Family = FamilyGaussian
	m, err := Fit(tbl, cfg)
	g.Expect(err).NotTo(HaveOccurred())

	fit, se := m.PredictSmooth(tbl.Unix)
	for i := 0; i < len(fit); i += 17 {
		g.Expect(fit[i]).To(BeNumerically("~", m.Fitted[i], 1e-8))
		g.Expect(se[i]).To(BeNumerically("~", m.SE[i], 1e-8))
		g.Expect(se[i]).To(BeNumerically(">", 0))
	}
}
