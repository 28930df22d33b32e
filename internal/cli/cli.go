package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/logpulse/internal/application"
	"github.com/felixgeelhaar/logpulse/internal/domain"
	"github.com/felixgeelhaar/logpulse/internal/infrastructure/config"
	"github.com/felixgeelhaar/logpulse/internal/infrastructure/watcher"
	"github.com/felixgeelhaar/logpulse/internal/infrastructure/wizard"
)

type Service interface {
	Analyze(ctx context.Context, opts application.AnalyzeOptions) (*domain.Analysis, error)
	Show(ctx context.Context, opts application.ShowOptions) (*domain.Analysis, error)
	Compare(ctx context.Context, opts application.CompareOptions) (*domain.Analysis, error)
	History(ctx context.Context, opts application.HistoryOptions) (application.HistoryResult, error)
	Badge(ctx context.Context, opts application.BadgeOptions) error
	Watch(ctx context.Context, opts application.WatchOptions, watcher application.FileWatcher, callback application.WatchCallback) error
	ConfigureLogging(format, level string) error
	SetExportFormat(format string) error
	WriteMetrics(path string) error
}

var (
	initWizard = wizard.Run
	newWatcher = func(svc Service) (application.FileWatcher, error) {
		opts := []watcher.Option{watcher.WithDebounce(500 * time.Millisecond)}
		if app, ok := svc.(*App); ok {
			opts = append(opts, watcher.WithLogger(app.Logger))
		}
		return watcher.New(opts...)
	}
)

// Exit codes.
const (
	exitOK       = 0
	exitCritical = 1 // analysis found critical endpoints and --fail-on-critical was set
	exitUsage    = 2
	exitFailure  = 3
	exitWizard   = 5
)

func Run(args []string, stdout, stderr io.Writer, svc Service) int {
	if len(args) < 2 {
		usage(stderr)
		return exitUsage
	}

	ctx := context.Background()

	switch args[1] {
	case "analyze":
		fs := newFlagSet("analyze", stderr)
		common := commonFlags(fs)
		a := analyzeFlags(fs)
		output := outputFlags(fs, application.OutputText)
		failOnCritical := fs.Bool("fail-on-critical", false, "Exit 1 when critical endpoints are found")
		positional, err := parseArgs(fs, args[2:])
		if err != nil {
			return exitUsage
		}
		if len(positional) != 1 {
			fmt.Fprintln(stderr, "analyze requires exactly one export file")
			return exitUsage
		}
		if code := setup(svc, common, a, stderr); code != exitOK {
			return code
		}
		opts := a.options(common.configPath, *output)
		opts.ExportPath = positional[0]
		analysis, err := svc.Analyze(ctx, opts)
		if err != nil {
			return exitCode(err, exitFailure, stderr)
		}
		if code := writeMetrics(svc, a.metricsOut, stderr); code != exitOK {
			return code
		}
		if *failOnCritical && len(analysis.Snapshot.Critical) > 0 {
			fmt.Fprintf(stderr, "%d critical endpoint(s)\n", len(analysis.Snapshot.Critical))
			return exitCritical
		}
		return exitOK
	case "show":
		fs := newFlagSet("show", stderr)
		common := commonFlags(fs)
		output := outputFlags(fs, application.OutputText)
		inventoryPath := fs.String("inventory", "", "Test inventory for coverage gaps (overrides config)")
		overrides := thresholdFlags(fs)
		positional, err := parseArgs(fs, args[2:])
		if err != nil || len(positional) > 1 {
			return exitUsage
		}
		if code := setup(svc, common, nil, stderr); code != exitOK {
			return code
		}
		opts := application.ShowOptions{
			ConfigPath:    common.configPath,
			Overrides:     *overrides,
			InventoryPath: *inventoryPath,
			Output:        *output,
		}
		if len(positional) == 1 {
			opts.SnapshotID = positional[0]
		}
		_, err = svc.Show(ctx, opts)
		return exitCode(err, exitFailure, stderr)
	case "compare":
		fs := newFlagSet("compare", stderr)
		common := commonFlags(fs)
		output := outputFlags(fs, application.OutputText)
		overrides := thresholdFlags(fs)
		positional, err := parseArgs(fs, args[2:])
		if err != nil {
			return exitUsage
		}
		if len(positional) != 2 {
			fmt.Fprintln(stderr, "compare requires <base-id> <head-id>")
			return exitUsage
		}
		if code := setup(svc, common, nil, stderr); code != exitOK {
			return code
		}
		_, err = svc.Compare(ctx, application.CompareOptions{
			ConfigPath: common.configPath,
			BaseID:     positional[0],
			HeadID:     positional[1],
			Overrides:  *overrides,
			Output:     *output,
		})
		return exitCode(err, exitFailure, stderr)
	case "history":
		fs := newFlagSet("history", stderr)
		common := commonFlags(fs)
		output := outputFlags(fs, application.OutputText)
		days := fs.Int("days", 30, "Days of history to show (0 = all)")
		overrides := thresholdFlags(fs)
		if _, err := parseArgs(fs, args[2:]); err != nil {
			return exitUsage
		}
		if *days < 0 {
			fmt.Fprintln(stderr, "--days must not be negative")
			return exitUsage
		}
		if code := setup(svc, common, nil, stderr); code != exitOK {
			return code
		}
		_, err := svc.History(ctx, application.HistoryOptions{
			ConfigPath: common.configPath,
			Days:       *days,
			Overrides:  *overrides,
			Output:     *output,
		})
		return exitCode(err, exitFailure, stderr)
	case "watch":
		fs := newFlagSet("watch", stderr)
		common := commonFlags(fs)
		a := analyzeFlags(fs)
		output := outputFlags(fs, application.OutputBrief)
		dir := fs.String("dir", "", "Directory to watch (default: exports_dir from config)")
		positional, err := parseArgs(fs, args[2:])
		if err != nil || len(positional) > 1 {
			return exitUsage
		}
		if code := setup(svc, common, a, stderr); code != exitOK {
			return code
		}
		opts := application.WatchOptions{Analyze: a.options(common.configPath, *output), Dir: *dir}
		if len(positional) == 1 {
			opts.Analyze.ExportPath = positional[0]
		}
		return runWatch(ctx, stdout, stderr, svc, opts, a.metricsOut)
	case "init":
		fs := newFlagSet("init", stderr)
		configPath := fs.String("config", application.DefaultConfigPath, "Config file path")
		force := fs.Bool("force", false, "Overwrite existing config file")
		noInteractive := fs.Bool("no-interactive", false, "Skip the interactive init wizard")
		storeDir := fs.String("store-dir", "", "Snapshot directory")
		exportsDir := fs.String("exports-dir", "", "Directory watched for new exports")
		inventoryPath := fs.String("inventory", "", "Test inventory file")
		if _, err := parseArgs(fs, args[2:]); err != nil {
			return exitUsage
		}
		cfg := application.DefaultConfig()
		if *storeDir != "" {
			cfg.Storage.Dir = *storeDir
		}
		if *exportsDir != "" {
			cfg.ExportsDir = *exportsDir
		}
		cfg.Inventory.Path = *inventoryPath
		if !*noInteractive {
			var confirmed bool
			var err error
			cfg, confirmed, err = initWizard(cfg, stdout, os.Stdin)
			if err != nil {
				return exitCode(err, exitWizard, stderr)
			}
			if !confirmed {
				fmt.Fprintln(stdout, "Init cancelled; no configuration written.")
				return exitOK
			}
		}
		if err := cfg.Thresholds.Validate(); err != nil {
			return exitCode(err, exitUsage, stderr)
		}
		if err := writeConfigFile(*configPath, cfg, stdout, *force); err != nil {
			return exitCode(err, exitUsage, stderr)
		}
		if *configPath != "-" {
			fmt.Fprintf(stdout, "Config written to %s\n", *configPath)
		}
		return exitOK
	case "badge":
		fs := newFlagSet("badge", stderr)
		common := commonFlags(fs)
		snapshotID := fs.String("snapshot", "", "Snapshot id (default: latest)")
		output := fs.String("output", "logpulse-badge.svg", "Output file path, - for stdout")
		label := fs.String("label", "api errors", "Badge label text")
		style := fs.String("style", "flat", "Badge style: flat|flat-square")
		if _, err := parseArgs(fs, args[2:]); err != nil {
			return exitUsage
		}
		if code := setup(svc, common, nil, stderr); code != exitOK {
			return code
		}
		opts := application.BadgeOptions{
			ConfigPath: common.configPath,
			SnapshotID: *snapshotID,
			Output:     *output,
			Label:      *label,
			Style:      *style,
		}
		if *output == "-" {
			opts.Output = ""
		}
		if err := svc.Badge(ctx, opts); err != nil {
			return exitCode(err, exitFailure, stderr)
		}
		if opts.Output != "" {
			fmt.Fprintf(stdout, "Badge written to %s\n", opts.Output)
		}
		return exitOK
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "logpulse %s (commit %s, built %s)\n", Version, Commit, Date)
		return exitOK
	case "help", "--help", "-h":
		usage(stdout)
		return exitOK
	default:
		usage(stderr)
		return exitUsage
	}
}

type analyzeOptions struct {
	window          time.Duration
	inventoryPath   string
	inventoryFormat application.InventoryFormat
	exportFormat    string
	workers         int
	metricsOut      string
	overrides       *domain.ThresholdOverrides
}

func analyzeFlags(fs *flag.FlagSet) *analyzeOptions {
	a := &analyzeOptions{}
	fs.DurationVar(&a.window, "window", 0, "Time window recorded on the snapshot (default: config time_window)")
	fs.StringVar(&a.inventoryPath, "inventory", "", "Test inventory for coverage gaps (overrides config)")
	fs.Var((*inventoryFormatValue)(&a.inventoryFormat), "inventory-format", "Inventory format: auto|yaml|json|postman")
	fs.StringVar(&a.exportFormat, "format", "auto", "Export format: auto|csv|json|ndjson")
	fs.IntVar(&a.workers, "workers", 0, "Parallel normalization workers (0 = sequential)")
	fs.StringVar(&a.metricsOut, "metrics-out", "", "Write Prometheus metrics to this textfile")
	a.overrides = thresholdFlags(fs)
	return a
}

func (a *analyzeOptions) options(configPath string, output application.OutputFormat) application.AnalyzeOptions {
	return application.AnalyzeOptions{
		ConfigPath:      configPath,
		TimeWindow:      a.window,
		Overrides:       *a.overrides,
		InventoryPath:   a.inventoryPath,
		InventoryFormat: a.inventoryFormat,
		Output:          output,
		Workers:         a.workers,
	}
}

func setup(svc Service, common *commonOptions, a *analyzeOptions, stderr io.Writer) int {
	if err := svc.ConfigureLogging(common.logFormat, common.logLevel); err != nil {
		return exitCode(err, exitUsage, stderr)
	}
	if a == nil {
		return exitOK
	}
	if a.window < 0 {
		fmt.Fprintln(stderr, "--window must not be negative")
		return exitUsage
	}
	if err := svc.SetExportFormat(a.exportFormat); err != nil {
		return exitCode(err, exitUsage, stderr)
	}
	return exitOK
}

func writeMetrics(svc Service, path string, stderr io.Writer) int {
	if path == "" {
		return exitOK
	}
	if err := svc.WriteMetrics(path); err != nil {
		return exitCode(fmt.Errorf("write metrics: %w", err), exitFailure, stderr)
	}
	return exitOK
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func writeConfigFile(path string, cfg application.Config, stdout io.Writer, force bool) error {
	if path == "-" {
		return config.Write(stdout, cfg)
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	// #nosec G304 -- config path is supplied by the operator
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return config.Write(file, cfg)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `logpulse <command>

Commands:
  analyze  Analyze an access-log export and store a snapshot
  show     Re-render a stored snapshot (default: latest)
  compare  Compare two stored snapshots
  history  Show the overall error rate across stored snapshots
  watch    Analyze every export that lands in a directory
  init     Write a config file, with an interactive threshold wizard
  badge    Generate an SVG error-rate badge
  version  Print version information`)
}

func exitCode(err error, code int, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(stderr, err)
	if errors.Is(err, domain.ErrNotFound) {
		fmt.Fprintln(stderr, "hint: run `logpulse history` to list stored snapshots")
	}
	return code
}

func runWatch(ctx context.Context, stdout, stderr io.Writer, svc Service, opts application.WatchOptions, metricsOut string) int {
	w, err := newWatcher(svc)
	if err != nil {
		fmt.Fprintf(stderr, "failed to create watcher: %v\n", err)
		return exitFailure
	}
	defer w.Close()

	// Handle Ctrl+C gracefully
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stdout, "\nStopping watch mode...")
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(stdout, "Watching for new exports... (Ctrl+C to stop)")
	fmt.Fprintln(stdout, "")

	callback := func(run int, export string, analysis *domain.Analysis, runErr error) {
		fmt.Fprintf(stdout, "\n--- Run #%d at %s: %s ---\n", run, time.Now().Format("15:04:05"), export)
		if runErr != nil {
			fmt.Fprintf(stderr, "Analysis failed: %v\n", runErr)
			return
		}
		if analysis != nil {
			fmt.Fprintf(stdout, "Snapshot %s stored\n", analysis.Snapshot.ID)
		}
		writeMetrics(svc, metricsOut, stderr)
	}

	if err := svc.Watch(ctx, opts, w, callback); err != nil {
		if errors.Is(err, context.Canceled) {
			return exitOK
		}
		fmt.Fprintf(stderr, "watch error: %v\n", err)
		return exitFailure
	}
	return exitOK
}
