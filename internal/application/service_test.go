package application

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/logpulse/internal/domain"
)

type fakeConfigLoader struct {
	exists    bool
	cfg       Config
	existsErr error
	loadErr   error
}

func (f fakeConfigLoader) Exists(path string) (bool, error) {
	return f.exists, f.existsErr
}

func (f fakeConfigLoader) Load(path string) (Config, error) {
	return f.cfg, f.loadErr
}

type fakeRowSource struct {
	records []domain.RawRecord
	err     error
}

func (f fakeRowSource) Read(ctx context.Context, path string) ([]domain.RawRecord, error) {
	return f.records, f.err
}

// memStore is an in-memory SnapshotStore.
type memStore struct {
	snaps      map[string]*domain.Snapshot
	persistErr error
	nearestErr error
}

func newMemStore(snaps ...*domain.Snapshot) *memStore {
	m := &memStore{snaps: map[string]*domain.Snapshot{}}
	for _, s := range snaps {
		m.snaps[s.ID] = s
	}
	return m
}

func (m *memStore) Open(ctx context.Context, cfg StorageConfig) (SnapshotStore, error) { return m, nil }

func (m *memStore) Persist(ctx context.Context, s *domain.Snapshot) error {
	if m.persistErr != nil {
		return m.persistErr
	}
	m.snaps[s.ID] = s
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*domain.Snapshot, error) {
	s, ok := m.snaps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (m *memStore) sorted() []*domain.Snapshot {
	out := make([]*domain.Snapshot, 0, len(m.snaps))
	for _, s := range m.snaps {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (m *memStore) Latest(ctx context.Context) (*domain.Snapshot, error) {
	all := m.sorted()
	if len(all) == 0 {
		return nil, nil
	}
	return all[len(all)-1], nil
}

func (m *memStore) NearestBefore(ctx context.Context, t time.Time) (*domain.Snapshot, error) {
	if m.nearestErr != nil {
		return nil, m.nearestErr
	}
	var best *domain.Snapshot
	for _, s := range m.sorted() {
		if !s.Timestamp.After(t) {
			best = s
		}
	}
	return best, nil
}

func (m *memStore) InRange(ctx context.Context, start, end time.Time) ([]*domain.Snapshot, error) {
	var out []*domain.Snapshot
	for _, s := range m.sorted() {
		if !s.Timestamp.Before(start) && !s.Timestamp.After(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

// microStore drops sub-microsecond precision on writes and queries, like a
// timestamptz column.
type microStore struct{ *memStore }

func (m microStore) Open(ctx context.Context, cfg StorageConfig) (SnapshotStore, error) {
	return m, nil
}

func (m microStore) Persist(ctx context.Context, s *domain.Snapshot) error {
	stored := *s
	stored.Timestamp = s.Timestamp.Truncate(time.Microsecond)
	return m.memStore.Persist(ctx, &stored)
}

func (m microStore) NearestBefore(ctx context.Context, t time.Time) (*domain.Snapshot, error) {
	return m.memStore.NearestBefore(ctx, t.Truncate(time.Microsecond))
}

type fakeReporter struct {
	last    *domain.Analysis
	history *HistoryResult
	err     error
}

func (f *fakeReporter) Write(w io.Writer, analysis *domain.Analysis, format OutputFormat) error {
	f.last = analysis
	return f.err
}

func (f *fakeReporter) WriteHistory(w io.Writer, history HistoryResult, format OutputFormat) error {
	f.history = &history
	return f.err
}

type fakeInventory struct {
	statuses map[string]domain.CoverageStatus
	err      error
}

func (f fakeInventory) Load(ctx context.Context, path string, format InventoryFormat) (domain.CoverageLookup, error) {
	if f.err != nil {
		return nil, f.err
	}
	return domain.CoverageLookupFunc(func(endpoint, method string) domain.CoverageStatus {
		if s, ok := f.statuses[endpoint]; ok {
			return s
		}
		return domain.CoverageNotCovered
	}), nil
}

type fakeMetrics struct {
	read, skipped, persisted, completed int
}

func (f *fakeMetrics) RowsRead(n int)                               { f.read += n }
func (f *fakeMetrics) RowsSkipped(n int)                            { f.skipped += n }
func (f *fakeMetrics) SnapshotPersisted()                           { f.persisted++ }
func (f *fakeMetrics) AnalysisCompleted(d time.Duration, crit int) { f.completed++ }

var testNow = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func withClock(t *testing.T, now time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = prev })
}

func records(endpoint string, status, n int) []domain.RawRecord {
	out := make([]domain.RawRecord, n)
	for i := range out {
		out[i] = domain.RawRecord{"endpoint": endpoint, "status": status}
	}
	return out
}

func concatRecords(parts ...[]domain.RawRecord) []domain.RawRecord {
	var out []domain.RawRecord
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func snapshotAt(t *testing.T, at time.Time, recs []domain.RawRecord) *domain.Snapshot {
	t.Helper()
	res := domain.NormalizeAll(recs, 1)
	return domain.NewAggregatorWithClock(func() time.Time { return at }).
		Aggregate(res.Rows, time.Hour, domain.DefaultThresholds())
}

func TestServiceAnalyzeFirstRun(t *testing.T) {
	withClock(t, testNow)
	store := newMemStore()
	reporter := &fakeReporter{}
	metrics := &fakeMetrics{}
	svc := &Service{
		RowSource: fakeRowSource{records: concatRecords(
			records("/orders", 200, 90),
			records("/orders", 500, 10),
			[]domain.RawRecord{{"status": 200}},
		)},
		Stores:   store,
		Reporter: reporter,
		Metrics:  metrics,
		Out:      &bytes.Buffer{},
	}

	analysis, err := svc.Analyze(context.Background(), AnalyzeOptions{ExportPath: "export.csv", Output: OutputText})
	require.NoError(t, err)

	assert.Same(t, analysis, reporter.last)
	assert.False(t, analysis.HasHistory(), "first run has no trends")
	assert.Empty(t, analysis.PreviousSnapshotID)
	assert.Equal(t, 100, analysis.Snapshot.Overall.TotalRequests)
	assert.Equal(t, 1, analysis.Snapshot.SkippedRows)
	assert.Equal(t, DefaultTimeWindow, analysis.Snapshot.TimeWindow)
	assert.Equal(t, "export.csv", analysis.Snapshot.Source)
	assert.NotEmpty(t, analysis.Prioritized)
	assert.Empty(t, analysis.RegressionRisks)
	assert.Empty(t, analysis.CoverageGaps)

	_, err = store.Get(context.Background(), analysis.Snapshot.ID)
	require.NoError(t, err, "snapshot must be persisted")

	assert.Equal(t, 101, metrics.read)
	assert.Equal(t, 1, metrics.skipped)
	assert.Equal(t, 1, metrics.persisted)
	assert.Equal(t, 1, metrics.completed)

	require.NotEmpty(t, analysis.Alerts)
	assert.Equal(t, domain.AlertCritical, analysis.Alerts[0].Severity)
}

func TestServiceAnalyzeComparesWithPrevious(t *testing.T) {
	withClock(t, testNow)
	prev := snapshotAt(t, testNow.Add(-24*time.Hour), concatRecords(
		records("/orders", 200, 98), records("/orders", 500, 2),
	))
	store := newMemStore(prev)
	svc := &Service{
		RowSource: fakeRowSource{records: concatRecords(
			records("/orders", 200, 70), records("/orders", 500, 30),
			records("/new", 200, 150),
		)},
		Stores:    store,
		Inventory: fakeInventory{statuses: map[string]domain.CoverageStatus{"/orders": domain.CoverageIdentical}},
	}

	analysis, err := svc.Analyze(context.Background(), AnalyzeOptions{ExportPath: "e.json", InventoryPath: "inventory.yaml"})
	require.NoError(t, err)

	assert.Equal(t, prev.ID, analysis.PreviousSnapshotID)
	require.Len(t, analysis.Trends, 2)
	assert.True(t, analysis.Trends[0].IsDegrading)
	assert.InDelta(t, 28.0, analysis.Trends[0].ChangePercentage, 1e-9)
	assert.True(t, analysis.Trends[1].IsNew)

	require.Len(t, analysis.RegressionRisks, 1)
	assert.Equal(t, domain.PriorityCritical, analysis.RegressionRisks[0].Priority)

	require.Len(t, analysis.CoverageGaps, 1)
	assert.Equal(t, "/new", analysis.CoverageGaps[0].Endpoint)
	assert.Equal(t, 1, analysis.TrendSummary.Degrading)
}

func TestServiceAnalyzeNeverComparesSnapshotWithItself(t *testing.T) {
	store := microStore{newMemStore()}
	first := testNow.Add(123456789 * time.Nanosecond)
	withClock(t, first)
	svc := &Service{
		RowSource: fakeRowSource{records: records("/a", 200, 100)},
		Stores:    store,
	}

	analysis, err := svc.Analyze(context.Background(), AnalyzeOptions{})
	require.NoError(t, err)
	assert.Empty(t, analysis.PreviousSnapshotID)
	assert.False(t, analysis.HasHistory())

	shown, err := svc.Show(context.Background(), ShowOptions{})
	require.NoError(t, err)
	assert.Equal(t, analysis.Snapshot.ID, shown.Snapshot.ID)
	assert.Empty(t, shown.PreviousSnapshotID)

	withClock(t, first.Add(time.Hour+987*time.Nanosecond))
	svc.RowSource = fakeRowSource{records: concatRecords(records("/a", 200, 70), records("/a", 500, 30))}
	second, err := svc.Analyze(context.Background(), AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, analysis.Snapshot.ID, second.PreviousSnapshotID)
	require.Len(t, second.Trends, 1)
	assert.InDelta(t, 30.0, second.Trends[0].ChangePercentage, 1e-9)
	require.Len(t, second.RegressionRisks, 1)
}

func TestServiceAnalyzeRerunInSameSecondHasNoSelfPredecessor(t *testing.T) {
	withClock(t, testNow)
	store := newMemStore()
	svc := &Service{RowSource: fakeRowSource{records: records("/a", 200, 10)}, Stores: store}

	_, err := svc.Analyze(context.Background(), AnalyzeOptions{})
	require.NoError(t, err)

	withClock(t, testNow.Add(500*time.Millisecond))
	again, err := svc.Analyze(context.Background(), AnalyzeOptions{})
	require.NoError(t, err)
	assert.Empty(t, again.PreviousSnapshotID)
	assert.Len(t, store.snaps, 1)
}

func TestServiceAnalyzeStageErrors(t *testing.T) {
	boom := errors.New("boom")
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name  string
		ctx   context.Context
		src   fakeRowSource
		store *memStore
		stage Stage
	}{
		{"ingestion", context.Background(), fakeRowSource{err: boom}, newMemStore(), StageIngestion},
		{"normalization", canceled, fakeRowSource{}, newMemStore(), StageNormalization},
		{"persistence", context.Background(), fakeRowSource{}, &memStore{snaps: map[string]*domain.Snapshot{}, persistErr: boom}, StagePersistence},
		{"comparison", context.Background(), fakeRowSource{}, &memStore{snaps: map[string]*domain.Snapshot{}, nearestErr: boom}, StageComparison},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withClock(t, testNow)
			reporter := &fakeReporter{}
			svc := &Service{RowSource: tt.src, Stores: tt.store, Reporter: reporter, Out: io.Discard}

			analysis, err := svc.Analyze(tt.ctx, AnalyzeOptions{Output: OutputText})
			require.Error(t, err)
			assert.Nil(t, analysis, "no partial analysis on failure")
			assert.Nil(t, reporter.last)

			var se *StageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.stage, se.Stage)
			assert.Contains(t, err.Error(), string(tt.stage))
		})
	}
}

func TestServiceAnalyzeEmptyExport(t *testing.T) {
	withClock(t, testNow)
	svc := &Service{RowSource: fakeRowSource{}, Stores: newMemStore()}

	analysis, err := svc.Analyze(context.Background(), AnalyzeOptions{})
	require.NoError(t, err)
	assert.True(t, analysis.Snapshot.IsEmpty())
	assert.Empty(t, analysis.Prioritized)
}

func TestServiceAnalyzeInventoryFailureDegrades(t *testing.T) {
	withClock(t, testNow)
	svc := &Service{
		RowSource: fakeRowSource{records: records("/a", 200, 500)},
		Stores:    newMemStore(),
		Inventory: fakeInventory{err: errors.New("unreadable")},
	}

	analysis, err := svc.Analyze(context.Background(), AnalyzeOptions{InventoryPath: "missing.json"})
	require.NoError(t, err)
	assert.Empty(t, analysis.CoverageGaps)
	assert.NotEmpty(t, analysis.Prioritized)
	require.Len(t, analysis.PassErrors, 1)
	assert.Equal(t, domain.PassCoverage, analysis.PassErrors[0].Pass)
}

func TestServiceAnalyzeRejectsInvalidOverrides(t *testing.T) {
	weight := 3.0
	svc := &Service{RowSource: fakeRowSource{}, Stores: newMemStore()}
	_, err := svc.Analyze(context.Background(), AnalyzeOptions{
		Overrides: domain.ThresholdOverrides{VolumeWeight: &weight, ErrorWeight: &weight},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidWeights)
}

func TestServiceAnalyzeUsesConfigThresholds(t *testing.T) {
	withClock(t, testNow)
	cfg := DefaultConfig()
	cfg.Thresholds.CriticalMinRequests = 1000
	svc := &Service{
		ConfigLoader: fakeConfigLoader{exists: true, cfg: cfg},
		RowSource:    fakeRowSource{records: records("/a", 500, 200)},
		Stores:       newMemStore(),
	}

	analysis, err := svc.Analyze(context.Background(), AnalyzeOptions{})
	require.NoError(t, err)
	assert.Empty(t, analysis.Snapshot.Critical)
	assert.Equal(t, 1000, analysis.Thresholds.CriticalMinRequests)

	minReq := 10
	analysis, err = svc.Analyze(context.Background(), AnalyzeOptions{
		Overrides: domain.ThresholdOverrides{CriticalMinRequests: &minReq},
	})
	require.NoError(t, err)
	assert.Len(t, analysis.Snapshot.Critical, 1)
}

func TestServiceAnalyzeConfigLoadError(t *testing.T) {
	svc := &Service{ConfigLoader: fakeConfigLoader{exists: true, loadErr: errors.New("bad yaml")}}
	_, err := svc.Analyze(context.Background(), AnalyzeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad yaml")
}

func TestServiceShow(t *testing.T) {
	withClock(t, testNow)
	older := snapshotAt(t, testNow.Add(-2*time.Hour), records("/a", 200, 100))
	newer := snapshotAt(t, testNow.Add(-time.Hour), concatRecords(records("/a", 200, 80), records("/a", 500, 20)))
	svc := &Service{Stores: newMemStore(older, newer)}

	t.Run("latest", func(t *testing.T) {
		analysis, err := svc.Show(context.Background(), ShowOptions{})
		require.NoError(t, err)
		assert.Equal(t, newer.ID, analysis.Snapshot.ID)
		assert.Equal(t, older.ID, analysis.PreviousSnapshotID)
		require.Len(t, analysis.RegressionRisks, 1)
	})

	t.Run("by id", func(t *testing.T) {
		analysis, err := svc.Show(context.Background(), ShowOptions{SnapshotID: older.ID})
		require.NoError(t, err)
		assert.False(t, analysis.HasHistory())
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.Show(context.Background(), ShowOptions{SnapshotID: "1999-01-01_00-00-00"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("empty store", func(t *testing.T) {
		empty := &Service{Stores: newMemStore()}
		_, err := empty.Show(context.Background(), ShowOptions{})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestServiceCompare(t *testing.T) {
	withClock(t, testNow)
	base := snapshotAt(t, testNow.Add(-2*time.Hour), concatRecords(records("/a", 200, 50), records("/a", 500, 50)))
	head := snapshotAt(t, testNow.Add(-time.Hour), records("/a", 200, 100))
	svc := &Service{Stores: newMemStore(base, head)}

	analysis, err := svc.Compare(context.Background(), CompareOptions{BaseID: base.ID, HeadID: head.ID})
	require.NoError(t, err)
	require.Len(t, analysis.Trends, 1)
	assert.True(t, analysis.Trends[0].IsImproving)
	require.NotEmpty(t, analysis.Alerts)
	assert.Equal(t, domain.AlertInfo, analysis.Alerts[0].Severity)

	_, err = svc.Compare(context.Background(), CompareOptions{BaseID: "nope", HeadID: head.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestServiceHistory(t *testing.T) {
	withClock(t, testNow)
	store := newMemStore(
		snapshotAt(t, testNow.AddDate(0, 0, -10), records("/a", 500, 10)),
		snapshotAt(t, testNow.AddDate(0, 0, -2), records("/a", 200, 10)),
		snapshotAt(t, testNow.AddDate(0, 0, -1), concatRecords(records("/a", 200, 9), records("/a", 500, 1))),
	)
	reporter := &fakeReporter{}
	svc := &Service{Stores: store, Reporter: reporter, Out: io.Discard}

	result, err := svc.History(context.Background(), HistoryOptions{Days: 7, Output: OutputJSON})
	require.NoError(t, err)
	require.Len(t, result.Series.Points, 2)
	assert.Equal(t, 0.0, result.Series.Points[0].ErrorRate)
	assert.Equal(t, 10.0, result.Series.Points[1].ErrorRate)
	assert.Equal(t, 1, result.Series.Worse)
	require.NotNil(t, reporter.history)

	all, err := svc.History(context.Background(), HistoryOptions{})
	require.NoError(t, err)
	assert.Len(t, all.Series.Points, 3)
}

func TestServiceStoredViewsApplyOverrides(t *testing.T) {
	withClock(t, testNow)
	older := snapshotAt(t, testNow.AddDate(0, 0, -2), concatRecords(records("/a", 200, 50), records("/a", 500, 50)))
	middle := snapshotAt(t, testNow.AddDate(0, 0, -1), records("/a", 200, 100))
	newer := snapshotAt(t, testNow.Add(-time.Hour), concatRecords(records("/a", 200, 80), records("/a", 500, 20)))
	svc := &Service{Stores: newMemStore(older, middle, newer)}

	degrading := 50.0
	improving := -60.0
	weight := 2.0

	t.Run("show", func(t *testing.T) {
		base, err := svc.Show(context.Background(), ShowOptions{})
		require.NoError(t, err)
		require.Len(t, base.RegressionRisks, 1)

		tuned, err := svc.Show(context.Background(), ShowOptions{
			Overrides: domain.ThresholdOverrides{DegradingThreshold: &degrading},
		})
		require.NoError(t, err)
		assert.Empty(t, tuned.RegressionRisks)
		assert.Equal(t, degrading, tuned.Thresholds.DegradingThreshold)
	})

	t.Run("compare", func(t *testing.T) {
		base, err := svc.Compare(context.Background(), CompareOptions{BaseID: older.ID, HeadID: middle.ID})
		require.NoError(t, err)
		require.True(t, base.Trends[0].IsImproving)

		tuned, err := svc.Compare(context.Background(), CompareOptions{
			BaseID: older.ID, HeadID: middle.ID,
			Overrides: domain.ThresholdOverrides{ImprovingThreshold: &improving},
		})
		require.NoError(t, err)
		assert.False(t, tuned.Trends[0].IsImproving)
	})

	t.Run("history", func(t *testing.T) {
		base, err := svc.History(context.Background(), HistoryOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, base.Series.Worse)
		assert.Equal(t, 1, base.Series.Better)

		tuned, err := svc.History(context.Background(), HistoryOptions{
			Overrides: domain.ThresholdOverrides{DegradingThreshold: &degrading, ImprovingThreshold: &improving},
		})
		require.NoError(t, err)
		assert.Zero(t, tuned.Series.Worse)
		assert.Zero(t, tuned.Series.Better)
		assert.Equal(t, 2, tuned.Series.Flat)
	})

	t.Run("invalid overrides", func(t *testing.T) {
		bad := domain.ThresholdOverrides{VolumeWeight: &weight}
		_, err := svc.Show(context.Background(), ShowOptions{Overrides: bad})
		assert.Error(t, err)
		_, err = svc.Compare(context.Background(), CompareOptions{BaseID: older.ID, HeadID: newer.ID, Overrides: bad})
		assert.Error(t, err)
		_, err = svc.History(context.Background(), HistoryOptions{Overrides: bad})
		assert.Error(t, err)
	})
}

type fakeBadge struct {
	rate  float64
	label string
}

func (f *fakeBadge) Write(w io.Writer, label string, errorRate float64, style string) error {
	f.label, f.rate = label, errorRate
	_, err := io.WriteString(w, "<svg/>")
	return err
}

func TestServiceBadge(t *testing.T) {
	withClock(t, testNow)
	snap := snapshotAt(t, testNow, concatRecords(records("/a", 200, 3), records("/a", 500, 1)))
	badge := &fakeBadge{}
	var out bytes.Buffer
	svc := &Service{Stores: newMemStore(snap), Badges: badge, Out: &out}

	require.NoError(t, svc.Badge(context.Background(), BadgeOptions{}))
	assert.Equal(t, 25.0, badge.rate)
	assert.Equal(t, "api errors", badge.label)
	assert.Equal(t, "<svg/>", out.String())
}

type fakeWatcher struct {
	dir    string
	events chan string
}

func (f *fakeWatcher) WatchDir(root string) error { f.dir = root; return nil }

func (f *fakeWatcher) Events(ctx context.Context) <-chan string { return f.events }

func (f *fakeWatcher) Close() error { return nil }

func TestServiceWatch(t *testing.T) {
	withClock(t, testNow)
	watcher := &fakeWatcher{events: make(chan string, 2)}
	watcher.events <- "exports/b.csv"
	close(watcher.events)

	svc := &Service{RowSource: fakeRowSource{records: records("/a", 200, 5)}, Stores: newMemStore()}

	var runs []string
	err := svc.Watch(context.Background(), WatchOptions{
		Analyze: AnalyzeOptions{ExportPath: "exports/a.csv"},
	}, watcher, func(run int, export string, analysis *domain.Analysis, err error) {
		require.NoError(t, err)
		runs = append(runs, export)
	})
	require.NoError(t, err)
	assert.Equal(t, "exports", watcher.dir)
	assert.Equal(t, []string{"exports/a.csv", "exports/b.csv"}, runs)
}
