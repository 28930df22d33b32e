package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/logpulse/internal/domain"
)

// timeNow is swapped in tests.
var timeNow = time.Now

type Service struct {
	ConfigLoader ConfigLoader
	RowSource    RowSource
	Stores       StoreOpener
	Inventory    InventoryLoader
	Reporter     Reporter
	Badges       BadgeWriter
	Metrics      MetricsRecorder
	Logger       *slog.Logger
	Out          io.Writer
}

// Analyze runs the full pipeline over one export and writes the report.
// Any failure is returned as a *StageError and no analysis is produced.
func (s *Service) Analyze(ctx context.Context, opts AnalyzeOptions) (*domain.Analysis, error) {
	cfg, err := loadConfig(s.ConfigLoader, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	th, err := resolveThresholds(cfg, opts.Overrides)
	if err != nil {
		return nil, err
	}
	store, err := s.Stores.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	started := timeNow()
	log := s.logger().With("export", opts.ExportPath)

	records, err := s.RowSource.Read(ctx, opts.ExportPath)
	if err != nil {
		return nil, stageErr(StageIngestion, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, stageErr(StageNormalization, err)
	}
	normalized := domain.NormalizeAll(records, opts.Workers)
	s.recordRows(len(records), normalized.Skipped)
	if normalized.Skipped > 0 {
		log.Warn("skipped malformed rows",
			"skipped", normalized.Skipped,
			"total", len(records),
			"first_error", firstError(normalized.Errors))
	}

	if err := ctx.Err(); err != nil {
		return nil, stageErr(StageAggregation, err)
	}
	window := opts.TimeWindow
	if window <= 0 {
		window = cfg.TimeWindow
	}
	aggregator := domain.NewAggregatorWithClock(timeNow)
	snap := aggregator.Aggregate(normalized.Rows, window, th)
	snap.SkippedRows = normalized.Skipped
	snap.Source = opts.ExportPath
	log.Debug("aggregated",
		"snapshot", snap.ID,
		"endpoints", snap.Overall.UniqueEndpoints,
		"requests", snap.Overall.TotalRequests)

	previous, err := previousSnapshot(ctx, store, snap)
	if err != nil {
		return nil, stageErr(StageComparison, err)
	}

	if err := store.Persist(ctx, snap); err != nil {
		return nil, stageErr(StagePersistence, err)
	}
	if s.Metrics != nil {
		s.Metrics.SnapshotPersisted()
	}

	comparator := domain.NewTrendComparator()
	trends := comparator.Compare(previous, snap, th)
	if previous == nil {
		log.Info("no previous snapshot, trends skipped")
	}

	if err := ctx.Err(); err != nil {
		return nil, stageErr(StageRecommendation, err)
	}
	lookup, lookupErr := s.loadInventory(ctx, cfg, opts.InventoryPath, opts.InventoryFormat)
	recs := domain.NewRecommendationEngine(th).Recommend(snap, trends, lookup)
	if lookupErr != nil {
		recs.PassErrors = append(recs.PassErrors, domain.PassError{Pass: domain.PassCoverage, Message: lookupErr.Error()})
	}
	for _, pe := range recs.PassErrors {
		log.Warn("recommendation pass degraded", "pass", pe.Pass, "reason", pe.Message)
	}

	events := append(append([]domain.DomainEvent{}, aggregator.Events()...), comparator.Events()...)
	analysis := domain.NewAnalysis(timeNow(), snap, previous, trends, recs, domain.AlertsFromEvents(events), th)

	if s.Metrics != nil {
		s.Metrics.AnalysisCompleted(timeNow().Sub(started), len(snap.Critical))
	}
	log.Info("analysis complete",
		"snapshot", snap.ID,
		"critical", len(snap.Critical),
		"regression_risks", len(analysis.RegressionRisks),
		"coverage_gaps", len(analysis.CoverageGaps))

	if err := s.write(analysis, opts.Output); err != nil {
		return analysis, err
	}
	return analysis, nil
}

// loadInventory returns a nil lookup when no inventory is configured.
func (s *Service) loadInventory(ctx context.Context, cfg Config, path string, format InventoryFormat) (domain.CoverageLookup, error) {
	if path == "" {
		path = cfg.Inventory.Path
	}
	if format == "" {
		format = cfg.Inventory.Format
	}
	if path == "" || s.Inventory == nil {
		return nil, nil
	}
	lookup, err := s.Inventory.Load(ctx, path, format)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	return lookup, nil
}

func (s *Service) write(analysis *domain.Analysis, format OutputFormat) error {
	if s.Reporter == nil || s.Out == nil || format == "" {
		return nil
	}
	return s.Reporter.Write(s.Out, analysis, format)
}

func (s *Service) recordRows(read, skipped int) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.RowsRead(read)
	s.Metrics.RowsSkipped(skipped)
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func firstError(errs []error) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0].Error()
}
