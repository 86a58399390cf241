package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/beescale/hivegam/internal/basis"
	"github.com/beescale/hivegam/internal/dataset"
	"github.com/beescale/hivegam/internal/gam"
	"github.com/beescale/hivegam/internal/mcmc"
)

func testFit() (*dataset.Table, *gam.Model) {
	tbl := &dataset.Table{
		Unix:   []float64{1000, 2000, 3000},
		Weight: []float64{40.1, 40.5, 40.2},
	}
	m := &gam.Model{
		Config: gam.Config{
			Basis:  basis.Spec{Type: basis.TypeGP, K: 8},
			Family: gam.FamilyScat,
		},
		Lambda:    12.5,
		Nu:        8,
		EDF:       4.2,
		SmoothEDF: 3.2,
		DevExpl:   0.91,
		N:         3,
		Fitted:    []float64{40.2, 40.4, 40.2},
		SE:        []float64{0.1, 0.08, 0.1},
		Residuals: []float64{-0.1, 0.1, 0.0},
	}
	return tbl, m
}

func testPosterior() *mcmc.Posterior {
	cfg := mcmc.DefaultConfig()
	cfg.Basis.K = 2
	cfg.Iterations = 6
	cfg.Warmup = 3
	cfg.Chains = 2
	cfg.Seed = 7

	post := &mcmc.Posterior{Basis: cfg.Basis, Config: cfg}
	for id := 0; id < cfg.Chains; id++ {
		ch := &mcmc.Chain{ID: id, Seed: cfg.Seed + int64(id)}
		for i := 0; i < 3; i++ {
			v := float64(id*10 + i)
			ch.Intercept = append(ch.Intercept, 40+v)
			ch.Sigma = append(ch.Sigma, 0.5+v/100)
			ch.Tau = append(ch.Tau, 1+v/10)
			ch.Coef = append(ch.Coef, []float64{v, -v})
		}
		post.Chains = append(post.Chains, ch)
	}
	return post
}

func TestStoreSaveLoadFit(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	tbl, m := testFit()
	runID, err := st.SaveFit("hive.csv", tbl, m)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Kind != "fit" {
		t.Errorf("expected kind fit, got %s", meta.Kind)
	}
	if meta.Family != "scat" {
		t.Errorf("expected family scat, got %s", meta.Family)
	}
	if meta.Metrics["edf"] != 4.2 {
		t.Errorf("expected edf 4.2, got %f", meta.Metrics["edf"])
	}

	series, err := st.LoadFit(runID)
	if err != nil {
		t.Fatalf("load fit failed: %v", err)
	}
	if len(series.Fitted) != 3 {
		t.Fatalf("expected 3 fitted values, got %d", len(series.Fitted))
	}
	if series.Fitted[1] != 40.4 || series.Resid[0] != -0.1 {
		t.Errorf("series round trip lost values: %+v", series)
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	tbl, m := testFit()
	if _, err := st.SaveFit("hive.csv", tbl, m); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}
}

func TestStoreBayesCheckpoint(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	post := testPosterior()
	fp := post.Config.Fingerprint("hive.csv")

	if _, ok := st.FindCheckpoint(fp); ok {
		t.Fatal("found checkpoint before any save")
	}

	runID, err := st.SaveBayes("hive.csv", post)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	found, ok := st.FindCheckpoint(fp)
	if !ok || found != runID {
		t.Fatalf("checkpoint lookup failed: %q %v", found, ok)
	}

	other := post.Config
	other.Seed = 999
	if _, ok := st.FindCheckpoint(other.Fingerprint("hive.csv")); ok {
		t.Error("different seed matched the same checkpoint")
	}

	loaded, err := st.LoadBayes(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded.Chains) != len(post.Chains) {
		t.Fatalf("expected %d chains, got %d", len(post.Chains), len(loaded.Chains))
	}
	for i := range post.Chains {
		if !reflect.DeepEqual(loaded.Chains[i].Intercept, post.Chains[i].Intercept) {
			t.Errorf("chain %d intercept draws changed in round trip", i)
		}
		if !reflect.DeepEqual(loaded.Chains[i].Coef, post.Chains[i].Coef) {
			t.Errorf("chain %d coefficient draws changed in round trip", i)
		}
	}
	if loaded.Config.Seed != post.Config.Seed {
		t.Errorf("sampler settings not carried: %+v", loaded.Config)
	}
}

func TestSaveBayesReplacesExisting(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	post := testPosterior()
	if _, err := st.SaveBayes("hive.csv", post); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	post.Chains[0].Intercept[0] = 99
	runID, err := st.SaveBayes("hive.csv", post)
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	loaded, err := st.LoadBayes(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Chains[0].Intercept[0] != 99 {
		t.Error("second save did not replace the stored draws")
	}
}

func TestStoreFileStructure(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	tbl, m := testFit()
	runID, err := st.SaveFit("hive.csv", tbl, m)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	for _, name := range []string{"metadata.json", "fit.csv"} {
		if _, err := os.Stat(filepath.Join(dir, runID, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}
}

func TestExportJSON(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	tbl, m := testFit()
	runID, err := st.SaveFit("hive.csv", tbl, m)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	out := filepath.Join(t.TempDir(), "run.json")
	if err := st.ExportJSON(out, runID); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"kind": "fit"`, `"fitted"`, `"dev_expl"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("export missing %s", want)
		}
	}
}

func TestListSortedByTime(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	tbl, m := testFit()
	for i := 0; i < 3; i++ {
		if _, err := st.SaveFit("hive.csv", tbl, m); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].Timestamp.Before(runs[i-1].Timestamp) {
			t.Error("runs not sorted by timestamp")
		}
	}
}
