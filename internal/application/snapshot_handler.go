package application

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/logpulse/internal/domain"
)

// Show rebuilds the analysis of a stored snapshot against its predecessor.
func (s *Service) Show(ctx context.Context, opts ShowOptions) (*domain.Analysis, error) {
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

	snap, err := getOrLatest(ctx, store, opts.SnapshotID)
	if err != nil {
		return nil, err
	}
	previous, err := previousSnapshot(ctx, store, snap)
	if err != nil {
		return nil, stageErr(StageComparison, err)
	}

	analysis := s.rebuild(ctx, cfg, th, previous, snap, opts.InventoryPath)
	return analysis, s.write(analysis, opts.Output)
}

// Compare analyzes head against base, regardless of their age.
func (s *Service) Compare(ctx context.Context, opts CompareOptions) (*domain.Analysis, error) {
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

	base, err := store.Get(ctx, opts.BaseID)
	if err != nil {
		return nil, fmt.Errorf("base snapshot %s: %w", opts.BaseID, err)
	}
	head, err := store.Get(ctx, opts.HeadID)
	if err != nil {
		return nil, fmt.Errorf("head snapshot %s: %w", opts.HeadID, err)
	}

	analysis := s.rebuild(ctx, cfg, th, base, head, "")
	return analysis, s.write(analysis, opts.Output)
}

// History summarizes the snapshots stored over the last opts.Days days.
func (s *Service) History(ctx context.Context, opts HistoryOptions) (HistoryResult, error) {
	cfg, err := loadConfig(s.ConfigLoader, opts.ConfigPath)
	if err != nil {
		return HistoryResult{}, err
	}
	th, err := resolveThresholds(cfg, opts.Overrides)
	if err != nil {
		return HistoryResult{}, err
	}
	store, err := s.Stores.Open(ctx, cfg.Storage)
	if err != nil {
		return HistoryResult{}, fmt.Errorf("open snapshot store: %w", err)
	}

	until := timeNow().UTC()
	var since time.Time
	if opts.Days > 0 {
		since = until.AddDate(0, 0, -opts.Days)
	}
	snaps, err := store.InRange(ctx, since, until)
	if err != nil {
		return HistoryResult{}, err
	}

	result := HistoryResult{
		Since:  since,
		Until:  until,
		Series: domain.AnalyzeSeries(snaps, th),
	}
	if s.Reporter != nil && s.Out != nil && opts.Output != "" {
		if err := s.Reporter.WriteHistory(s.Out, result, opts.Output); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Badge writes an error-rate badge for a stored snapshot.
func (s *Service) Badge(ctx context.Context, opts BadgeOptions) error {
	if s.Badges == nil {
		return fmt.Errorf("badge writer not configured")
	}
	cfg, err := loadConfig(s.ConfigLoader, opts.ConfigPath)
	if err != nil {
		return err
	}
	store, err := s.Stores.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	snap, err := getOrLatest(ctx, store, opts.SnapshotID)
	if err != nil {
		return err
	}

	label := opts.Label
	if label == "" {
		label = "api errors"
	}
	if opts.Output == "" {
		return s.Badges.Write(s.Out, label, snap.Overall.OverallErrorRate, opts.Style)
	}

	if dir := filepath.Dir(opts.Output); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	// #nosec G304 -- output path is supplied by the operator
	f, err := os.Create(opts.Output)
	if err != nil {
		return err
	}
	if err := s.Badges.Write(f, label, snap.Overall.OverallErrorRate, opts.Style); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// rebuild recomputes trends, recommendations and alerts for stored snapshots.
func (s *Service) rebuild(ctx context.Context, cfg Config, th domain.Thresholds, previous, current *domain.Snapshot, inventoryPath string) *domain.Analysis {
	comparator := domain.NewTrendComparator()
	trends := comparator.Compare(previous, current, th)

	lookup, lookupErr := s.loadInventory(ctx, cfg, inventoryPath, "")
	recs := domain.NewRecommendationEngine(th).Recommend(current, trends, lookup)
	if lookupErr != nil {
		recs.PassErrors = append(recs.PassErrors, domain.PassError{Pass: domain.PassCoverage, Message: lookupErr.Error()})
	}

	events := make([]domain.DomainEvent, 0, len(current.Critical))
	for _, m := range current.Critical {
		events = append(events, domain.NewCriticalEndpointEvent(current.Timestamp, *m))
	}
	events = append(events, comparator.Events()...)

	return domain.NewAnalysis(timeNow(), current, previous, trends, recs, domain.AlertsFromEvents(events), th)
}

func getOrLatest(ctx context.Context, store SnapshotStore, id string) (*domain.Snapshot, error) {
	if id != "" {
		return store.Get(ctx, id)
	}
	snap, err := store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("no snapshots stored: %w", domain.ErrNotFound)
	}
	return snap, nil
}

// previousSnapshot returns the newest snapshot stored under an earlier id.
// Ids have second precision, so anything inside snap's own second shares its
// id. Querying before that second keeps stores that round timestamps (to
// microseconds for PostgreSQL) from handing snap back as its own predecessor.
func previousSnapshot(ctx context.Context, store SnapshotStore, snap *domain.Snapshot) (*domain.Snapshot, error) {
	cutoff := snap.Timestamp.Truncate(time.Second).Add(-time.Microsecond)
	prev, err := store.NearestBefore(ctx, cutoff)
	if err != nil || prev == nil {
		return prev, err
	}
	if prev.ID == snap.ID {
		return nil, nil
	}
	return prev, nil
}
