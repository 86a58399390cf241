package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/beescale/hivegam/internal/config"
	"github.com/beescale/hivegam/internal/dataset"
	"github.com/beescale/hivegam/internal/diagnostics"
	"github.com/beescale/hivegam/internal/explore"
	"github.com/beescale/hivegam/internal/figure"
	"github.com/beescale/hivegam/internal/gam"
	"github.com/beescale/hivegam/internal/mcmc"
	"github.com/beescale/hivegam/internal/storage"
	"github.com/beescale/hivegam/internal/viz"
)

var (
	dataDir    string
	figDir     string
	configFile string
	preset     string
	verbose    bool

	family     string
	basisType  string
	kDim       int
	selectTerm bool
	span       float64

	iterations int
	warmup     int
	chains     int
	seed       int64
	priorFile  string
	force      bool

	outFile string
)

func main() {
	// A .env beside the binary can set HIVEGAM_DATA; absence is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "hivegam",
		Short: "hive scale weight analysis lab",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			if env := os.Getenv("HIVEGAM_DATA"); env != "" && !cmd.Flags().Changed("data") {
				dataDir = env
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".hivegam", "run data directory")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")

	inspectCmd := &cobra.Command{
		Use:   "inspect [csv]",
		Short: "summarize a hive scale dataset",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectData,
	}

	exploreCmd := &cobra.Command{
		Use:   "explore [csv]",
		Short: "render the exploratory comparison figures",
		Args:  cobra.ExactArgs(1),
		RunE:  exploreData,
	}
	exploreCmd.Flags().StringVar(&figDir, "out", "figures", "figure output directory")
	exploreCmd.Flags().Float64Var(&span, "span", explore.DefaultSpan, "loess span")

	fitCmd := &cobra.Command{
		Use:   "fit [csv]",
		Short: "fit the weight smooth by REML",
		Args:  cobra.ExactArgs(1),
		RunE:  fitData,
	}
	fitCmd.Flags().StringVar(&family, "family", "scat", "error family (gaussian, scat)")
	fitCmd.Flags().StringVar(&basisType, "basis", "gp", "smooth basis (gp, ps)")
	fitCmd.Flags().IntVar(&kDim, "k", config.DefaultK, "basis dimension")
	fitCmd.Flags().BoolVar(&selectTerm, "select", true, "allow the smooth to shrink away")
	fitCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	fitCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")

	checkCmd := &cobra.Command{
		Use:   "check [run_id]",
		Short: "diagnostics for a stored fit",
		Args:  cobra.ExactArgs(1),
		RunE:  checkRun,
	}

	bayesCmd := &cobra.Command{
		Use:   "bayes [csv]",
		Short: "sample the Bayesian posterior",
		Args:  cobra.ExactArgs(1),
		RunE:  bayesData,
	}
	addSamplerFlags(bayesCmd)
	bayesCmd.Flags().BoolVar(&force, "force", false, "resample even when a checkpoint exists")

	traceCmd := &cobra.Command{
		Use:   "trace [run_id]",
		Short: "trace plots and convergence for a posterior run",
		Args:  cobra.ExactArgs(1),
		RunE:  traceRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&figDir, "out", "figures", "figure output directory")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVar(&outFile, "file", "", "write to file instead of stdout")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available analysis presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tFAMILY\tBASIS\tK\tITER\tCHAINS")
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
					name, p.Family, p.Basis.Type, p.Basis.K,
					p.Sampler.Iterations, p.Sampler.Chains)
			}
			return w.Flush()
		},
	}

	liveCmd := &cobra.Command{
		Use:   "live [csv]",
		Short: "sample the posterior with a live chain viewer",
		Args:  cobra.ExactArgs(1),
		RunE:  liveBayes,
	}
	addSamplerFlags(liveCmd)

	rootCmd.AddCommand(inspectCmd, exploreCmd, fitCmd, checkCmd, bayesCmd,
		traceCmd, plotCmd, listCmd, exportJSONCmd, presetsCmd, liveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSamplerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&basisType, "basis", "gp", "smooth basis (gp, ps)")
	cmd.Flags().IntVar(&kDim, "k", config.DefaultK, "basis dimension")
	cmd.Flags().IntVar(&iterations, "iterations", config.DefaultIterations, "draws per chain, warmup included")
	cmd.Flags().IntVar(&warmup, "warmup", 0, "warmup draws per chain (default iterations/2)")
	cmd.Flags().IntVar(&chains, "chains", config.DefaultChains, "number of chains")
	cmd.Flags().Int64Var(&seed, "seed", config.DefaultSeed, "random seed")
	cmd.Flags().StringVar(&priorFile, "prior", "", "explicit prior file (yaml)")
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
}

// resolveConfig merges preset, config file and flags: presets are the
// base, a config file overrides them, and explicitly set flags win.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		p := config.GetPreset(preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		*cfg = *p
	}

	if configFile != "" {
		loaded, err := config.LoadOver(configFile, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("family") {
		cfg.Family = family
	}
	if flags.Changed("basis") {
		cfg.Basis.Type = basisType
	}
	if flags.Changed("k") {
		cfg.Basis.K = kDim
	}
	if flags.Changed("select") {
		cfg.Select = selectTerm
	}
	if flags.Changed("span") {
		cfg.Span = span
	}
	if flags.Changed("iterations") {
		cfg.Sampler.Iterations = iterations
	}
	if flags.Changed("warmup") {
		cfg.Sampler.Warmup = warmup
	}
	if flags.Changed("chains") {
		cfg.Sampler.Chains = chains
	}
	if flags.Changed("seed") {
		cfg.Sampler.Seed = seed
	}
	return cfg, nil
}

func inspectData(cmd *cobra.Command, args []string) error {
	tbl, err := dataset.Load(args[0])
	if err != nil {
		return err
	}

	lo, hi := tbl.UnixRange()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "observations\t%d\n", tbl.Len())
	fmt.Fprintf(w, "span\t%s to %s\n",
		time.Unix(int64(lo), 0).UTC().Format("2006-01-02 15:04"),
		time.Unix(int64(hi), 0).UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "scales\t%d\n", len(tbl.Scales))
	fmt.Fprintf(w, "sites\t%d\n", len(tbl.Sites))
	wMin, wMax := tbl.Weight[0], tbl.Weight[0]
	for _, v := range tbl.Weight {
		wMin = math.Min(wMin, v)
		wMax = math.Max(wMax, v)
	}
	fmt.Fprintf(w, "weight range\t%.3f to %.3f\n", wMin, wMax)
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println("\nscale nesting:")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCALE\tSITE")
	for i, sc := range tbl.Scales {
		fmt.Fprintf(w, "%s\t%s\n", sc, tbl.Sites[tbl.SiteOfScale[i]])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(figure.Terminal(tbl.Weight, "weight (observation order)"))
	return nil
}

func exploreData(cmd *cobra.Command, args []string) error {
	tbl, err := dataset.Load(args[0])
	if err != nil {
		return err
	}
	if err := os.MkdirAll(figDir, 0755); err != nil {
		return err
	}

	grid := evalGrid(tbl.Unix, 200)

	poly1, err := explore.FitPoly(tbl.Unix, tbl.Weight, 1)
	if err != nil {
		return err
	}
	poly3, err := explore.FitPoly(tbl.Unix, tbl.Weight, 3)
	if err != nil {
		return err
	}
	poly8, err := explore.FitPoly(tbl.Unix, tbl.Weight, 8)
	if err != nil {
		return err
	}
	smooth, err := explore.Loess(tbl.Unix, tbl.Weight, span, grid)
	if err != nil {
		return err
	}

	figures := []struct {
		file  string
		title string
		build func(f *figure.Figure)
	}{
		{figure.Fig1Linear, "weight vs time: linear fit", func(f *figure.Figure) {
			f.AddLine(fmt.Sprintf("degree 1 (R2=%.3f)", poly1.R2), grid, poly1.Predict(grid), "#e4c34a")
		}},
		{figure.Fig2Cubic, "weight vs time: cubic fit", func(f *figure.Figure) {
			f.AddLine(fmt.Sprintf("degree 3 (R2=%.3f)", poly3.R2), grid, poly3.Predict(grid), "#e4784a")
		}},
		{figure.Fig3Degree8, "weight vs time: degree-8 fit", func(f *figure.Figure) {
			f.AddLine(fmt.Sprintf("degree 8 (R2=%.3f)", poly8.R2), grid, poly8.Predict(grid), "#c44ae4")
		}},
		{figure.Fig4Overlay, "weight vs time: polynomial comparison", func(f *figure.Figure) {
			f.AddLine("degree 1", grid, poly1.Predict(grid), "#e4c34a")
			f.AddLine("degree 3", grid, poly3.Predict(grid), "#e4784a")
			f.AddLine("degree 8", grid, poly8.Predict(grid), "#c44ae4")
		}},
		{figure.Fig5Smoother, "weight vs time: loess smoother", func(f *figure.Figure) {
			f.AddLine(fmt.Sprintf("loess (span %.2f)", span), grid, smooth, "#4a90e4")
		}},
	}

	for _, fg := range figures {
		f := figure.New(fg.title)
		f.AddPoints(tbl.Unix, tbl.Weight)
		fg.build(f)
		path := filepath.Join(figDir, fg.file)
		if err := f.WriteFile(path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
	}

	fmt.Println()
	fmt.Println(figure.Terminal(smooth, "loess smooth on the evaluation grid"))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nFIT\tR2")
	fmt.Fprintf(w, "degree 1\t%.4f\n", poly1.R2)
	fmt.Fprintf(w, "degree 3\t%.4f\n", poly3.R2)
	fmt.Fprintf(w, "degree 8\t%.4f\n", poly8.R2)
	return w.Flush()
}

func fitData(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	tbl, err := dataset.Load(args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Printf("fitting %s smooth (%s basis, k=%d)...\n", cfg.Family, cfg.Basis.Type, cfg.Basis.K)
	start := time.Now()

	m, err := gam.Fit(tbl, cfg.FitConfig())
	if err != nil {
		return err
	}

	runID, err := st.SaveFit(args[0], tbl, m)
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n", time.Since(start))
	fmt.Printf("run id: %s\n\n", runID)

	kc := diagnostics.BasisDimension(tbl.Unix, m.Residuals, m.Config.Basis.K, m.SmoothEDF)
	rs := diagnostics.Residuals(tbl.Unix, m.Residuals)
	return diagnostics.Write(os.Stdout, fitSummary(runID, m), kc, rs)
}

func fitSummary(runID string, m *gam.Model) diagnostics.FitSummary {
	return diagnostics.FitSummary{
		RunID:   runID,
		Family:  string(m.Config.Family),
		Basis:   string(m.Config.Basis.Type),
		K:       m.Config.Basis.K,
		Lambda:  m.Lambda,
		Nu:      m.Nu,
		EDF:     m.SmoothEDF,
		FStat:   m.FStat,
		PValue:  m.PValue,
		DevExpl: m.DevExpl,
		REML:    m.REML,
		Scale:   m.Scale,
		N:       m.N,
	}
}

func checkRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	if meta.Kind != "fit" {
		return fmt.Errorf("run %s is a %s run; check applies to fits", runID, meta.Kind)
	}

	series, err := st.LoadFit(runID)
	if err != nil {
		return err
	}

	s := diagnostics.FitSummary{
		RunID:   meta.ID,
		Family:  meta.Family,
		Basis:   meta.Basis,
		K:       meta.K,
		Lambda:  meta.Metrics["lambda"],
		Nu:      meta.Metrics["nu"],
		EDF:     meta.Metrics["smooth_edf"],
		FStat:   meta.Metrics["f"],
		PValue:  meta.Metrics["p"],
		DevExpl: meta.Metrics["dev_expl"],
		REML:    meta.Metrics["reml"],
		Scale:   meta.Metrics["scale"],
		N:       meta.N,
	}
	kc := diagnostics.BasisDimension(series.Unix, series.Resid, meta.K, s.EDF)
	rs := diagnostics.Residuals(series.Unix, series.Resid)
	return diagnostics.Write(os.Stdout, s, kc, rs)
}

func samplerConfig(cmd *cobra.Command) (mcmc.Config, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return mcmc.Config{}, err
	}
	sc := cfg.SamplerSetup()
	if priorFile != "" {
		prior, err := mcmc.LoadPrior(priorFile)
		if err != nil {
			return mcmc.Config{}, err
		}
		sc.Prior = prior
	}
	return sc, nil
}

func bayesData(cmd *cobra.Command, args []string) error {
	sc, err := samplerConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fp := sc.Fingerprint(args[0])
	if !force {
		if runID, ok := st.FindCheckpoint(fp); ok {
			fmt.Printf("checkpoint found, reusing run %s (use --force to resample)\n\n", runID)
			post, err := st.LoadBayes(runID)
			if err != nil {
				return err
			}
			return printSummaries(post)
		}
	}

	tbl, err := dataset.Load(args[0])
	if err != nil {
		return err
	}

	start := time.Now()
	post, err := mcmc.Fit(context.Background(), tbl, sc, nil)
	if err != nil {
		return err
	}

	runID, err := st.SaveBayes(args[0], post)
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n", time.Since(start))
	fmt.Printf("run id: %s\n\n", runID)
	return printSummaries(post)
}

func liveBayes(cmd *cobra.Command, args []string) error {
	sc, err := samplerConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	tbl, err := dataset.Load(args[0])
	if err != nil {
		return err
	}

	feed := viz.NewFeed(sc.Chains)
	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var post *mcmc.Posterior
	go func() {
		var err error
		post, err = mcmc.Fit(ctx, tbl, sc, feed)
		done <- err
	}()

	p := tea.NewProgram(viz.NewModel("posterior sampling", feed, done))
	final, err := p.Run()
	if err != nil {
		return err
	}
	m, ok := final.(viz.Model)
	if !ok {
		return fmt.Errorf("unexpected viewer model %T", final)
	}
	if m.Err() != nil {
		return m.Err()
	}

	// The viewer consumes the completion channel on its tick, so ask it
	// whether sampling finished. A quit key can still race a finishing
	// sampler, so fall back to a non-blocking read before giving up.
	finished := m.Finished()
	if !finished {
		select {
		case err := <-done:
			if err != nil {
				return err
			}
			finished = true
		default:
		}
	}
	if !finished {
		// Quitting the viewer early abandons the run; only a finished
		// posterior is worth checkpointing.
		cancel()
		fmt.Println("viewer closed before sampling finished; no run saved")
		return nil
	}

	runID, err := st.SaveBayes(args[0], post)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n\n", runID)
	return printSummaries(post)
}

func printSummaries(post *mcmc.Posterior) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PARAM\tMEAN\tSD\t2.5%\t97.5%\tRHAT\tESS")
	for _, s := range post.Summaries() {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.3f\t%.0f\n",
			s.Name, s.Mean, s.SD, s.Q025, s.Q975, s.Rhat, s.ESS)
	}
	return w.Flush()
}

func traceRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	post, err := st.LoadBayes(args[0])
	if err != nil {
		return err
	}

	for _, name := range mcmc.TrackedParams {
		var pooled []float64
		for _, c := range post.Param(name) {
			pooled = append(pooled, c...)
		}
		fmt.Println(figure.Terminal(pooled, name+" (chains end to end)"))
		fmt.Println()
	}
	return printSummaries(post)
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(figDir, 0755); err != nil {
		return err
	}

	switch meta.Kind {
	case "fit":
		series, err := st.LoadFit(runID)
		if err != nil {
			return err
		}
		lo := make([]float64, len(series.Fitted))
		hi := make([]float64, len(series.Fitted))
		for i := range series.Fitted {
			lo[i] = series.Fitted[i] - 2*series.SE[i]
			hi[i] = series.Fitted[i] + 2*series.SE[i]
		}

		f := figure.New(fmt.Sprintf("fitted smooth: %s", runID))
		f.AddPoints(series.Unix, series.Weight)
		f.AddBand(series.Unix, lo, hi, "#4a90e4")
		f.AddLine("fitted +/- 2 se", series.Unix, series.Fitted, "#e4c34a")
		path := filepath.Join(figDir, runID+".svg")
		if err := f.WriteFile(path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n\n", path)
		fmt.Println(figure.Terminal(series.Fitted, "fitted weight"))
		return nil

	case "bayes":
		post, err := st.LoadBayes(runID)
		if err != nil {
			return err
		}
		tbl, err := dataset.Load(meta.DataPath)
		if err != nil {
			return fmt.Errorf("reloading %s: %w", meta.DataPath, err)
		}
		if err := post.Rebind(tbl); err != nil {
			return err
		}

		grid := evalGrid(tbl.Unix, 200)
		mean, lo, hi, err := post.SmoothCurve(grid)
		if err != nil {
			return err
		}

		f := figure.New("posterior smooth with 95% band")
		f.AddPoints(tbl.Unix, tbl.Weight)
		f.AddBand(grid, lo, hi, "#4a90e4")
		f.AddLine("posterior mean", grid, mean, "#3ec46d")
		path := filepath.Join(figDir, figure.Fig6Bayes)
		if err := f.WriteFile(path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n\n", path)
		fmt.Println(figure.Terminal(mean, "posterior mean weight"))
		return nil

	default:
		return fmt.Errorf("run %s has unknown kind %q", runID, meta.Kind)
	}
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTIME\tFAMILY\tBASIS\tK\tN")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			run.ID,
			run.Kind,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Family,
			run.Basis,
			run.K,
			run.N,
		)
	}
	return w.Flush()
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if outFile != "" {
		return st.ExportJSON(outFile, args[0])
	}
	return st.ExportJSONStdout(args[0])
}

// evalGrid is an even grid across the covariate range, used to draw
// smooth curves without evaluating at every observation.
func evalGrid(unix []float64, n int) []float64 {
	lo, hi := unix[0], unix[0]
	for _, v := range unix {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	grid := make([]float64, n)
	for i := range grid {
		grid[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return grid
}
