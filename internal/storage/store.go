// Package storage persists analysis runs: each run gets its own
// directory with a metadata.json plus the run's series, fit.csv for
// frequentist fits and draws.csv for posterior samples. Bayesian run
// directories are keyed by the sampler fingerprint so a finished run
// doubles as a checkpoint for identical re-runs.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/beescale/hivegam/internal/dataset"
	"github.com/beescale/hivegam/internal/gam"
	"github.com/beescale/hivegam/internal/mcmc"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // fit or bayes
	Timestamp time.Time `json:"timestamp"`
	DataPath  string    `json:"data_path"`
	Family    string    `json:"family,omitempty"`
	Basis     string    `json:"basis"`
	K         int       `json:"k"`
	N         int       `json:"n"`

	Fingerprint string       `json:"fingerprint,omitempty"`
	Sampler     *mcmc.Config `json:"sampler,omitempty"`

	Metrics map[string]float64 `json:"metrics"`
}

// FitSeries is the per-observation output of a frequentist run.
type FitSeries struct {
	Unix   []float64
	Weight []float64
	Fitted []float64
	SE     []float64
	Resid  []float64
}

// SaveFit writes a frequentist run: metadata plus the fitted series.
func (s *Store) SaveFit(dataPath string, tbl *dataset.Table, m *gam.Model) (string, error) {
	runID := fmt.Sprintf("fit_%d", time.Now().UnixNano())
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Kind:      "fit",
		Timestamp: time.Now(),
		DataPath:  dataPath,
		Family:    string(m.Config.Family),
		Basis:     string(m.Config.Basis.Type),
		K:         m.Config.Basis.K,
		N:         m.N,
		Metrics: map[string]float64{
			"lambda":      m.Lambda,
			"lambda_null": m.LambdaNull,
			"nu":          m.Nu,
			"scale":       m.Scale,
			"edf":         m.EDF,
			"smooth_edf":  m.SmoothEDF,
			"reml":        m.REML,
			"dev_expl":    m.DevExpl,
			"f":           m.FStat,
			"p":           m.PValue,
		},
	}
	if err := writeMetadata(runDir, meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "fit.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	if err := w.Write([]string{"unix", "weight", "fitted", "se", "resid"}); err != nil {
		return "", err
	}
	for i := 0; i < m.N; i++ {
		row := []string{
			strconv.FormatFloat(tbl.Unix[i], 'f', 0, 64),
			strconv.FormatFloat(tbl.Weight[i], 'g', -1, 64),
			strconv.FormatFloat(m.Fitted[i], 'g', -1, 64),
			strconv.FormatFloat(m.SE[i], 'g', -1, 64),
			strconv.FormatFloat(m.Residuals[i], 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	return runID, nil
}

// SaveBayes writes a posterior run keyed by its fingerprint,
// replacing any previous run with the same identity.
func (s *Store) SaveBayes(dataPath string, post *mcmc.Posterior) (string, error) {
	fp := post.Config.Fingerprint(dataPath)
	runID := "bayes_" + fp
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.RemoveAll(runDir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	n := 0
	for _, ch := range post.Chains {
		n += len(ch.Intercept)
	}
	cfg := post.Config
	meta := RunMetadata{
		ID:          runID,
		Kind:        "bayes",
		Timestamp:   time.Now(),
		DataPath:    dataPath,
		Basis:       string(cfg.Basis.Type),
		K:           cfg.Basis.K,
		N:           n,
		Fingerprint: fp,
		Sampler:     &cfg,
		Metrics:     map[string]float64{},
	}
	// Convergence statistics can be NaN on degenerate chains, which
	// json cannot encode; skip those.
	setMetric := func(name string, v float64) {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			meta.Metrics[name] = v
		}
	}
	for _, sum := range post.Summaries() {
		setMetric(sum.Name+"_mean", sum.Mean)
		setMetric(sum.Name+"_rhat", sum.Rhat)
		setMetric(sum.Name+"_ess", sum.ESS)
	}
	if err := writeMetadata(runDir, meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "draws.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	header := []string{"chain", "iteration", "intercept", "sigma", "tau"}
	for j := 0; j < cfg.Basis.K; j++ {
		header = append(header, fmt.Sprintf("coef_%d", j))
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, ch := range post.Chains {
		for i := range ch.Intercept {
			row := []string{
				strconv.Itoa(ch.ID),
				strconv.Itoa(i),
				strconv.FormatFloat(ch.Intercept[i], 'g', -1, 64),
				strconv.FormatFloat(ch.Sigma[i], 'g', -1, 64),
				strconv.FormatFloat(ch.Tau[i], 'g', -1, 64),
			}
			for _, c := range ch.Coef[i] {
				row = append(row, strconv.FormatFloat(c, 'g', -1, 64))
			}
			if err := w.Write(row); err != nil {
				return "", err
			}
		}
	}
	return runID, nil
}

// FindCheckpoint reports the run that already holds draws for this
// sampler identity, if one exists.
func (s *Store) FindCheckpoint(fingerprint string) (string, bool) {
	runID := "bayes_" + fingerprint
	if _, err := os.Stat(filepath.Join(s.baseDir, runID, "draws.csv")); err != nil {
		return "", false
	}
	return runID, true
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadFit reads back the fitted series of a frequentist run.
func (s *Store) LoadFit(runID string) (*FitSeries, error) {
	records, err := readCSV(filepath.Join(s.baseDir, runID, "fit.csv"))
	if err != nil {
		return nil, err
	}

	out := &FitSeries{}
	for i := 1; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 5 {
			continue
		}
		vals := make([]float64, 5)
		ok := true
		for j := 0; j < 5; j++ {
			vals[j], err = strconv.ParseFloat(rec[j], 64)
			if err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		out.Unix = append(out.Unix, vals[0])
		out.Weight = append(out.Weight, vals[1])
		out.Fitted = append(out.Fitted, vals[2])
		out.SE = append(out.SE, vals[3])
		out.Resid = append(out.Resid, vals[4])
	}
	return out, nil
}

// LoadBayes reconstructs a posterior from a saved run. The result is
// unbound; call Rebind with the data table before evaluating curves.
func (s *Store) LoadBayes(runID string) (*mcmc.Posterior, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	if meta.Sampler == nil {
		return nil, fmt.Errorf("storage: run %s has no sampler settings", runID)
	}

	records, err := readCSV(filepath.Join(s.baseDir, runID, "draws.csv"))
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("storage: run %s has no draws", runID)
	}

	k := len(records[0]) - 5
	chains := map[int]*mcmc.Chain{}
	for i := 1; i < len(records); i++ {
		rec := records[i]
		if len(rec) != 5+k {
			return nil, fmt.Errorf("storage: run %s: draw row %d has %d fields, want %d",
				runID, i, len(rec), 5+k)
		}
		id, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("storage: run %s: bad chain id %q", runID, rec[0])
		}
		ch := chains[id]
		if ch == nil {
			ch = &mcmc.Chain{ID: id, Seed: meta.Sampler.Seed + int64(id)}
			chains[id] = ch
		}

		fields := make([]float64, 3+k)
		for j := range fields {
			fields[j], err = strconv.ParseFloat(rec[j+2], 64)
			if err != nil {
				return nil, fmt.Errorf("storage: run %s: bad draw value %q", runID, rec[j+2])
			}
		}
		ch.Intercept = append(ch.Intercept, fields[0])
		ch.Sigma = append(ch.Sigma, fields[1])
		ch.Tau = append(ch.Tau, fields[2])
		ch.Coef = append(ch.Coef, fields[3:])
	}

	ids := make([]int, 0, len(chains))
	for id := range chains {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	post := &mcmc.Posterior{
		Basis:  meta.Sampler.Basis,
		Config: *meta.Sampler,
	}
	for _, id := range ids {
		post.Chains = append(post.Chains, chains[id])
	}
	return post, nil
}

func writeMetadata(runDir string, meta RunMetadata) error {
	f, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}
