package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"time"

	"ephyscli/internal/archive"
	"ephyscli/internal/blob"
	"ephyscli/internal/config"
	"ephyscli/internal/dataprocessing"
	"ephyscli/internal/exporter"
	"ephyscli/internal/infrastructure"
	"ephyscli/internal/membrane"
	"ephyscli/internal/operations"
	"ephyscli/internal/validation"
)

// Set by the build script through -ldflags
var (
	Version   = "dev"
	BuildTime = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type flags struct {
	in           string
	out          string
	configPath   string
	step         string
	unclassified string
	xlsx         bool
	version      bool
	set          map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	f := &flags{set: map[string]bool{}}
	fs := flag.NewFlagSet("membrane-props", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.in, "in", "", "input measurement table (.csv, .tsv, .txt or .xlsx)")
	fs.StringVar(&f.out, "out", "", "output directory (defaults to the input file's directory)")
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file (defaults to $MEMBRANE_CONFIG)")
	fs.StringVar(&f.step, "step", "", "voltage step in mV (default -10)")
	fs.StringVar(&f.unclassified, "unclassified", "", "policy for rows matching no group: exclude, fail or separate")
	fs.BoolVar(&f.xlsx, "xlsx", false, "also write an xlsx workbook with all four tables")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// applyFlags overrides configuration with explicitly set flags
func applyFlags(cfg *config.Config, f *flags) error {
	if f.set["in"] {
		cfg.Input.Path = f.in
	}
	if f.set["out"] {
		cfg.Output.Dir = f.out
	}
	if f.set["step"] {
		step, err := strconv.ParseFloat(f.step, 64)
		if err != nil || math.IsNaN(step) || math.IsInf(step, 0) {
			return fmt.Errorf("invalid -step %q: want a finite number of millivolts", f.step)
		}
		cfg.Pipeline.StepMV = step
	}
	if f.set["unclassified"] {
		cfg.Pipeline.Unclassified = f.unclassified
	}
	if f.set["xlsx"] {
		cfg.Output.Workbook = f.xlsx
	}
	if cfg.Input.Path == "" {
		return fmt.Errorf("no input file: pass -in or set input.path")
	}
	return cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	if f.version {
		fmt.Fprintf(stdout, "membrane-props %s %s\n", Version, BuildTime)
		return 0
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if err := applyFlags(cfg, f); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	logger, logFile, err := infrastructure.NewLogger(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}
	slog.SetDefault(logger)

	telemetry, err := infrastructure.InitializeTelemetry(cfg.Telemetry, logger)
	if err != nil {
		logger.Error("Failed to initialize telemetry", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	ctx = infrastructure.EnsureRunID(ctx)
	report, err := execute(ctx, cfg, logger, telemetry)
	if report != nil {
		printSummary(stdout, report)
	}
	if err != nil {
		logger.ErrorContext(ctx, "Membrane property analysis failed", "error", err)
		return 1
	}
	return 0
}

// execute wires the pipeline from cfg and runs it once
func execute(ctx context.Context, cfg *config.Config, logger *slog.Logger, telemetry *infrastructure.Telemetry) (*operations.Report, error) {
	input := cfg.Input.Path
	validator := validation.NewFileValidator(logger)
	if err := validator.ValidateInputFile(input); err != nil {
		return nil, err
	}
	if cfg.Output.Driver == string(blob.DriverFilesystem) {
		if err := validator.ValidateOutputDirectory(cfg.Output.ResolveDir(input)); err != nil {
			return nil, err
		}
	}

	delimiter, err := dataprocessing.ParseDelimiter(cfg.Input.Delimiter)
	if err != nil {
		return nil, err
	}

	store, err := blob.Open(ctx, cfg.Output, input)
	if err != nil {
		return nil, err
	}

	opts := []operations.Option{
		operations.WithLogger(logger),
		operations.WithTelemetry(telemetry),
	}
	if cfg.Archive.Driver != "" {
		runs, err := archive.Open(ctx, cfg.Archive.Driver, cfg.Archive.DSN)
		if err != nil {
			return nil, err
		}
		defer runs.Close()
		opts = append(opts, operations.WithArchive(runs))
	}

	reader := dataprocessing.NewReader(dataprocessing.ReadOptions{Delimiter: delimiter, Sheet: cfg.Input.Sheet}, logger)
	writer := exporter.NewWriter(store, exporter.WriteOptions{Delimiter: ','}, cfg.Output.Workbook, logger)
	pipeline := operations.NewPipeline(reader, writer, opts...)

	return pipeline.Run(ctx, operations.OptionsFromConfig(cfg, input))
}

func printSummary(w io.Writer, r *operations.Report) {
	fmt.Fprintf(w, "\n=== MEMBRANE PROPERTIES: %s ===\n", r.InputPath)
	fmt.Fprintf(w, "Run %s %s in %s, %d rows\n", r.RunID, r.Status, r.Duration.Round(time.Millisecond), r.Rows)

	fmt.Fprintln(w, "\nStep      | Status    | Duration")
	fmt.Fprintln(w, "----------|-----------|---------")
	for _, s := range r.Steps {
		fmt.Fprintf(w, "%-9s | %-9s | %s\n", s.ID, s.Status, s.Duration.Round(time.Microsecond))
	}

	if len(r.PerMouse) > 0 {
		fmt.Fprintln(w, "\nGroup | Genotype | Treatment | n  | Mice | InputR (MOhm)     | Capacitance (nF)")
		fmt.Fprintln(w, "------|----------|-----------|----|------|-------------------|-----------------")
		for _, a := range r.PerMouse {
			fmt.Fprintf(w, "%5d | %-8s | %-9s | %2d | %4d | %8.2f ± %-6.2f | %.4f ± %.4f\n",
				int(a.Group), a.Genotype, a.Treatment, a.N, a.Members,
				a.InputResistance.Mean, a.InputResistance.STE,
				a.Capacitance.Mean, a.Capacitance.STE)
		}
	}

	if n := len(r.Unclassified); n > 0 {
		fmt.Fprintf(w, "\nUnclassified rows (%d): %v\n", n, r.Unclassified)
	}
	if counts := r.GroupCounts; len(counts) > 0 {
		fmt.Fprint(w, "\nCells per group:")
		for _, g := range append([]membrane.Group{membrane.GroupUnassigned}, membrane.Groups...) {
			if n, ok := counts[g]; ok {
				fmt.Fprintf(w, " %d=%d", int(g), n)
			}
		}
		fmt.Fprintln(w)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "WARNING: %s\n", warning)
	}
	for _, a := range r.Artifacts {
		fmt.Fprintf(w, "Wrote %s (%d bytes)\n", a.Info.Location, a.Info.Size)
	}
}
