package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"ldes-markets/internal/analysis"
	"ldes-markets/internal/config"
	"ldes-markets/internal/data"
	"ldes-markets/internal/experiment"
	"ldes-markets/internal/logging"
	"ldes-markets/internal/market"
	"ldes-markets/internal/model"
	"ldes-markets/internal/report"
	"ldes-markets/internal/solver"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch os.Args[1] {
	case "run":
		cmdRun(ctx, os.Args[2:])
	case "compare":
		cmdCompare(ctx, os.Args[2:])
	case "sweep":
		cmdSweep(ctx, os.Args[2:])
	case "wacc":
		cmdWACC(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli run --config examples/config.yaml --out results/")
	fmt.Println("  cli compare --configs a.yaml,b.yaml")
	fmt.Println("  cli sweep --config examples/config.yaml --deltas 1,0.75,0.5 --out results/")
	fmt.Println("  cli wacc --net 120000 --annuity 100000 --lifetime 20 --wacc 0.07")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - run solves the complete and the incomplete market and writes CSV reports")
	fmt.Println("  - the ledger reports action=CHARGING/IDLE/DISCHARGING per step and storage unit")
}

func must(err error, msg string) {
	if err != nil {
		log.Fatal().Err(err).Msg(msg)
	}
}

// setup loads the config and builds the logger, dataset and runner it describes.
func setup(cfgPath string, verbose bool) (*config.Config, *model.Dataset, *experiment.Runner) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.Setup(level, cfg.Logging.Format)
	must(err, "logging")

	ds, err := data.Load(cfg.DatasetFile, cfg.SeriesDir, cfg.Run.DataOptions())
	must(err, "load dataset")
	log.Info().
		Int("steps", ds.NT()).
		Int("scenarios", ds.NO()).
		Int("generators", ds.NG()).
		Int("storages", ds.NS()).
		Msg("dataset loaded")

	runner := experiment.NewRunner(solver.NewCVX(cfg.Solver.Options(verbose)), experiment.WithLogger(logger))
	return cfg, ds, runner
}

func cmdRun(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	outDir := fs.String("out", "results", "Output directory for CSV reports")
	delta := fs.Float64("delta", -1, "Optional: override delta (negative keeps the config value)")
	verbose := fs.Bool("v", false, "Debug logging and solver output")
	_ = fs.Parse(args)

	if *cfgPath == "" {
		fmt.Println("--config is required")
		os.Exit(2)
	}
	cfg, ds, runner := setup(*cfgPath, *verbose)
	if *delta >= 0 {
		ds = experiment.WithDelta(ds, *delta)
	}
	settings, err := cfg.Run.ADMMSettings()
	must(err, "run config")

	cmp, err := runner.Run(ctx, ds, settings)
	must(err, "run")

	must(os.MkdirAll(*outDir, 0o755), "create output dir")
	must(writeReports(*outDir, ds, cmp), "write reports")

	printSummary(os.Stdout, cmp)
	printRents(os.Stdout, cmp.Rents)
	printBinding(os.Stdout, ds, cmp.Complete.Participants)
	fmt.Printf("\nWrote reports to %s\n", *outDir)
}

func writeReports(dir string, ds *model.Dataset, cmp *experiment.Comparison) error {
	inc := cmp.Incomplete
	files := map[string]func(io.Writer) error{
		"capacities_complete.csv": func(w io.Writer) error {
			return report.WriteCapacitiesCSV(w, "complete", market.Capacities(cmp.Complete.Participants))
		},
		"capacities_incomplete.csv": func(w io.Writer) error {
			return report.WriteCapacitiesCSV(w, "incomplete", inc.Capacities())
		},
		"prices_complete.csv":   func(w io.Writer) error { return report.WritePricesCSV(w, ds, cmp.Complete.Prices) },
		"prices_incomplete.csv": func(w io.Writer) error { return report.WritePricesCSV(w, ds, inc.Prices) },
		"trace.csv":             func(w io.Writer) error { return report.WriteTraceCSV(w, inc.History) },
		"gap.csv":               func(w io.Writer) error { return report.WriteGapCSV(w, cmp.Gap) },
	}
	for _, p := range inc.Participants {
		if p.Kind != market.KindStorage {
			continue
		}
		ledger, err := report.BuildLedger(ds, inc.Prices, p)
		if err != nil {
			return err
		}
		files["dispatch_"+p.ID+".csv"] = func(w io.Writer) error { return report.WriteLedgerCSV(w, ledger) }
	}
	for name, write := range files {
		if err := report.WriteFile(filepath.Join(dir, name), write); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func printSummary(w io.Writer, cmp *experiment.Comparison) {
	fmt.Fprintf(w, "delta=%.3f psi=%.3f outcome=%s\n", cmp.Risk.Delta, cmp.Risk.Psi, cmp.Incomplete.Outcome)
	fmt.Fprintf(w, "welfare complete=$%.2f incomplete=$%.2f loss=$%.2f\n",
		cmp.CompleteWelfare, cmp.IncompleteWelfare, cmp.WelfareLoss)
	fmt.Fprintf(w, "\n%-12s %-16s %-10s %-12s %-12s %-10s\n", "kind", "id", "name", "complete", "incomplete", "rel")
	for _, g := range cmp.Gap {
		fmt.Fprintf(w, "%-12s %-16s %-10s %-12.2f %-12.2f %-10.3f\n",
			g.Kind, g.ID, g.Name, g.Complete, g.Incomplete, g.Relative)
	}
}

func printRents(w io.Writer, rents []analysis.ScarcityRent) {
	fmt.Fprintf(w, "\n%-4s %-16s %-12s %-14s %-14s\n", "rank", "id", "kind", "power $/MW", "energy $/MWh")
	for i, r := range analysis.RankByRent(rents) {
		fmt.Fprintf(w, "%-4d %-16s %-12s %-14.2f %-14.2f\n", i+1, r.ID, r.Kind, r.Power, r.Energy)
	}
}

func printBinding(w io.Writer, ds *model.Dataset, parts []*market.ParticipantResult) {
	fmt.Fprintf(w, "\n%-16s %-12s %-8s %-10s\n", "storage", "scenario", "steps", "hours")
	for _, p := range parts {
		if p.Kind != market.KindStorage {
			continue
		}
		counts := analysis.BindingHours(ds, p.CapacityDuals, market.SeriesCharge, market.SeriesDischarge)
		for _, c := range counts {
			fmt.Fprintf(w, "%-16s %-12s %-8d %-10.1f\n", p.ID, c.Scenario, c.Steps, c.Hours)
		}
	}
}

func cmdCompare(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	cfgPaths := fs.String("configs", "", "Comma-separated YAML configs")
	_ = fs.Parse(args)

	paths := splitList(*cfgPaths)
	if len(paths) == 0 {
		fmt.Println("--configs is required")
		os.Exit(2)
	}
	fmt.Printf("%-28s %-14s %-16s %-16s %-14s\n", "config", "outcome", "complete $", "incomplete $", "loss $")
	for _, p := range paths {
		cfg, ds, runner := setup(p, false)
		settings, err := cfg.Run.ADMMSettings()
		must(err, "run config")
		cmp, err := runner.Run(ctx, ds, settings)
		if err != nil {
			log.Error().Err(err).Str("config", p).Msg("run failed")
			continue
		}
		fmt.Printf("%-28s %-14s %-16.2f %-16.2f %-14.2f\n",
			filepath.Base(p), cmp.Incomplete.Outcome, cmp.CompleteWelfare, cmp.IncompleteWelfare, cmp.WelfareLoss)
	}
}

func cmdSweep(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	deltas := fs.String("deltas", "1,0.75,0.5,0.25", "Comma-separated delta values")
	outDir := fs.String("out", "", "Optional: write gap_delta_<d>.csv per delta")
	_ = fs.Parse(args)

	if *cfgPath == "" {
		fmt.Println("--config is required")
		os.Exit(2)
	}
	values, err := parseFloats(*deltas)
	must(err, "parse deltas")

	cfg, ds, runner := setup(*cfgPath, false)
	settings, err := cfg.Run.ADMMSettings()
	must(err, "run config")

	results, err := runner.Sweep(ctx, ds, settings, values)
	must(err, "sweep")

	fmt.Printf("%-8s %-14s %-16s %-16s %-14s\n", "delta", "outcome", "complete $", "incomplete $", "loss $")
	for _, cmp := range results {
		fmt.Printf("%-8.3f %-14s %-16.2f %-16.2f %-14.2f\n",
			cmp.Risk.Delta, cmp.Incomplete.Outcome, cmp.CompleteWelfare, cmp.IncompleteWelfare, cmp.WelfareLoss)
		if *outDir == "" {
			continue
		}
		must(os.MkdirAll(*outDir, 0o755), "create output dir")
		name := filepath.Join(*outDir, fmt.Sprintf("gap_delta_%s.csv", strconv.FormatFloat(cmp.Risk.Delta, 'f', -1, 64)))
		gap := cmp.Gap
		must(report.WriteFile(name, func(w io.Writer) error { return report.WriteGapCSV(w, gap) }), "write gap")
	}
}

func cmdWACC(args []string) {
	fs := flag.NewFlagSet("wacc", flag.ExitOnError)
	net := fs.Float64("net", 0, "Expected net yearly revenue under risk")
	annuity := fs.Float64("annuity", 0, "Yearly revenue of the risk-free reference")
	lifetime := fs.Int("lifetime", 20, "Asset lifetime in years")
	wacc := fs.Float64("wacc", 0.07, "Reference cost of capital")
	_ = fs.Parse(args)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	rate, err := analysis.ImpliedWACC(*net, *annuity, *lifetime, *wacc)
	must(err, "implied wacc")
	fmt.Printf("implied WACC=%.4f (reference %.4f, premium %.4f)\n", rate, *wacc, rate-*wacc)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, p := range splitList(s) {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
