package snapshotstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/logpulse/internal/application"
	"github.com/felixgeelhaar/logpulse/internal/domain"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func snapshotAt(at time.Time) *domain.Snapshot {
	agg := domain.NewAggregatorWithClock(func() time.Time { return at })
	latency := 120.0
	rows := []domain.NormalizedRow{
		{Endpoint: "/users", Method: "GET", StatusCode: 200, ResponseTimeMs: &latency},
		{Endpoint: "/users", Method: "GET", StatusCode: 503},
		{Endpoint: "/orders", Method: "POST", StatusCode: 404},
	}
	snap := agg.Aggregate(rows, 6*time.Hour, domain.DefaultThresholds())
	snap.Source = "exports/today.csv"
	snap.SkippedRows = 2
	return snap
}

func TestFileStore_RoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir(), 0)
	ctx := context.Background()
	snap := snapshotAt(base)

	require.NoError(t, store.Persist(ctx, snap))

	got, err := store.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
	require.NotEmpty(t, got.MostUsed)
	assert.Same(t, got.Endpoint(got.MostUsed[0].Endpoint), got.MostUsed[0])
}

func TestFileStore_GetMissing(t *testing.T) {
	store := NewFileStore(t.TempDir(), 0)

	_, err := store.Get(context.Background(), "2024-03-01_12-00-00")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = store.Get(context.Background(), "../etc/passwd")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFileStore_EmptyStore(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing"), 0)
	ctx := context.Background()

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	prev, err := store.NearestBefore(ctx, base)
	require.NoError(t, err)
	assert.Nil(t, prev)

	all, err := store.InRange(ctx, time.Time{}, base)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileStore_Lookups(t *testing.T) {
	store := NewFileStore(t.TempDir(), 0)
	ctx := context.Background()

	times := []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)}
	// Persist out of order; lookups sort by time.
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, store.Persist(ctx, snapshotAt(times[i])))
	}

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, times[2], latest.Timestamp)

	prev, err := store.NearestBefore(ctx, times[2].Add(-time.Nanosecond))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, times[1], prev.Timestamp)

	exact, err := store.NearestBefore(ctx, times[1])
	require.NoError(t, err)
	assert.Equal(t, times[1], exact.Timestamp)

	none, err := store.NearestBefore(ctx, base.Add(-time.Second))
	require.NoError(t, err)
	assert.Nil(t, none)

	within, err := store.InRange(ctx, times[1], times[2])
	require.NoError(t, err)
	require.Len(t, within, 2)
	assert.Equal(t, times[1], within[0].Timestamp)
	assert.Equal(t, times[2], within[1].Timestamp)
}

func TestFileStore_SubSecondTimestamps(t *testing.T) {
	store := NewFileStore(t.TempDir(), 0)
	ctx := context.Background()
	at := base.Add(500 * time.Millisecond)
	require.NoError(t, store.Persist(ctx, snapshotAt(at)))

	before, err := store.NearestBefore(ctx, base.Add(100*time.Millisecond))
	require.NoError(t, err)
	assert.Nil(t, before)

	found, err := store.NearestBefore(ctx, at)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, at, found.Timestamp)

	inRange, err := store.InRange(ctx, base.Add(600*time.Millisecond), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, inRange)
}

func TestFileStore_OverwriteSameID(t *testing.T) {
	store := NewFileStore(t.TempDir(), 0)
	ctx := context.Background()

	first := snapshotAt(base)
	second := snapshotAt(base)
	second.Source = "exports/rerun.csv"
	require.NoError(t, store.Persist(ctx, first))
	require.NoError(t, store.Persist(ctx, second))

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "exports/rerun.csv", got.Source)
}

func TestFileStore_Retention(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, 2)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, store.Persist(ctx, snapshotAt(base.Add(time.Duration(i)*time.Hour))))
	}

	all, err := store.InRange(ctx, time.Time{}, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, base.Add(2*time.Hour), all[0].Timestamp)
	assert.Equal(t, base.Add(3*time.Hour), all[1].Timestamp)
}

func TestFileStore_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, 0)
	ctx := context.Background()
	require.NoError(t, store.Persist(ctx, snapshotAt(base)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o600))

	all, err := store.InRange(ctx, time.Time{}, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFileStore_CorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, 0)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2024-03-01_12-00-00.json"), []byte("not json"), 0o600))

	_, err := store.Get(context.Background(), "2024-03-01_12-00-00")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}

func TestFileStore_PersistValidation(t *testing.T) {
	store := NewFileStore(t.TempDir(), 0)
	ctx := context.Background()

	require.Error(t, store.Persist(ctx, nil))
	require.Error(t, store.Persist(ctx, &domain.Snapshot{ID: "latest"}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, store.Persist(cancelled, snapshotAt(base)), context.Canceled)
}

func TestFileStore_ConcurrentPersist(t *testing.T) {
	store := NewFileStore(t.TempDir(), 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Persist(ctx, snapshotAt(base.Add(time.Duration(i)*time.Minute))))
		}(i)
	}
	wg.Wait()

	all, err := store.InRange(ctx, time.Time{}, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 8)
}

func TestOpener(t *testing.T) {
	opener := Opener{}
	ctx := context.Background()

	store, err := opener.Open(ctx, application.StorageConfig{Driver: application.StorageFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = opener.Open(ctx, application.StorageConfig{Driver: application.StorageFile})
	require.Error(t, err)

	_, err = opener.Open(ctx, application.StorageConfig{Driver: application.StoragePostgres})
	require.Error(t, err)

	_, err = opener.Open(ctx, application.StorageConfig{Driver: "s3"})
	require.Error(t, err)
}
