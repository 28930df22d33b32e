package snapshotdb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/logpulse/internal/domain"
)

func buildSnapshot(t *testing.T, at time.Time) *domain.Snapshot {
	t.Helper()
	agg := domain.NewAggregatorWithClock(func() time.Time { return at })
	rows := []domain.NormalizedRow{
		{Endpoint: "/users", Method: "GET", StatusCode: 200},
		{Endpoint: "/users", Method: "GET", StatusCode: 500},
		{Endpoint: "/orders", Method: "POST", StatusCode: 201},
	}
	return agg.Aggregate(rows, time.Hour, domain.DefaultThresholds())
}

func TestOpen_RejectsInvalidDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	require.Error(t, err)

	_, err = Open(context.Background(), "mysql://localhost/db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres://")
}

func TestRecordConversion(t *testing.T) {
	snap := buildSnapshot(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	rec, err := toRecord(snap)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, rec.ID)
	assert.Equal(t, snap.Timestamp, rec.Timestamp)

	back, err := fromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, snap, back)
}

func TestRecordConversion_Errors(t *testing.T) {
	_, err := toRecord(nil)
	require.Error(t, err)

	_, err = toRecord(&domain.Snapshot{})
	require.Error(t, err)

	_, err = fromRecord(SnapshotRecord{ID: "x", Data: []byte("{")})
	require.Error(t, err)
}

// The remaining tests need a disposable PostgreSQL database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("LOGPULSE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LOGPULSE_TEST_DATABASE_URL not set")
	}
	store, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, store.db.Exec("DELETE FROM logpulse_snapshots").Error)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_Postgres(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	first := buildSnapshot(t, base)
	second := buildSnapshot(t, base.Add(time.Hour))
	require.NoError(t, store.Persist(ctx, first))
	require.NoError(t, store.Persist(ctx, second))

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	_, err = store.Get(ctx, "2000-01-01_00-00-00")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	latest, err = store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	prev, err := store.NearestBefore(ctx, second.Timestamp.Add(-time.Nanosecond))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, first.ID, prev.ID)

	all, err := store.InRange(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
}

func TestStore_PostgresRetention(t *testing.T) {
	store := openTestStore(t)
	store.MaxSnapshots = 2
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Persist(ctx, buildSnapshot(t, base.Add(time.Duration(i)*time.Hour))))
	}

	all, err := store.InRange(ctx, time.Time{}, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, base.Add(time.Hour), all[0].Timestamp)
}
