// Package snapshotdb stores snapshots in PostgreSQL through GORM.
package snapshotdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/felixgeelhaar/logpulse/internal/domain"
)

// SnapshotRecord is one persisted snapshot. Timestamp is kept as a column so
// range and nearest-before queries run in the database.
type SnapshotRecord struct {
	ID        string         `gorm:"primaryKey;size:32"`
	Timestamp time.Time      `gorm:"index;not null"`
	Source    string         `gorm:"size:1024"`
	Critical  int            `gorm:"not null"`
	Data      datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
}

func (SnapshotRecord) TableName() string { return "logpulse_snapshots" }

// Store implements the snapshot store on a *gorm.DB.
type Store struct {
	db *gorm.DB
	// MaxSnapshots keeps only the newest N rows; 0 keeps everything.
	MaxSnapshots int
}

// Open connects to PostgreSQL and migrates the snapshot table.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres storage requires a database URL")
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("database URL must be a postgres:// or postgresql:// URL")
	}

	// PrepareStmt keeps the migrator off the simple protocol path.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return New(ctx, db)
}

// New wraps an existing connection and migrates the snapshot table.
func New(ctx context.Context, db *gorm.DB) (*Store, error) {
	if err := db.WithContext(ctx).AutoMigrate(&SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("migrate snapshots: %w", err)
	}
	return &Store{db: db}, nil
}

// Persist upserts the snapshot; an existing id is overwritten.
func (s *Store) Persist(ctx context.Context, snap *domain.Snapshot) error {
	rec, err := toRecord(snap)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return err
	}
	return s.prune(ctx)
}

// Get returns the snapshot with id, or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*domain.Snapshot, error) {
	var rec SnapshotRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("snapshot %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// Latest returns the newest snapshot, or nil.
func (s *Store) Latest(ctx context.Context) (*domain.Snapshot, error) {
	return s.first(s.db.WithContext(ctx).Order("timestamp DESC"))
}

// NearestBefore returns the newest snapshot at or before t, or nil.
func (s *Store) NearestBefore(ctx context.Context, t time.Time) (*domain.Snapshot, error) {
	return s.first(s.db.WithContext(ctx).Where("timestamp <= ?", t.UTC()).Order("timestamp DESC"))
}

// InRange returns snapshots with start <= timestamp <= end, oldest first.
func (s *Store) InRange(ctx context.Context, start, end time.Time) ([]*domain.Snapshot, error) {
	var recs []SnapshotRecord
	err := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", start.UTC(), end.UTC()).
		Order("timestamp ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Snapshot, 0, len(recs))
	for _, rec := range recs {
		snap, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) first(q *gorm.DB) (*domain.Snapshot, error) {
	var recs []SnapshotRecord
	// Find with a limit so an empty table is not an error.
	if err := q.Limit(1).Find(&recs).Error; err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return fromRecord(recs[0])
}

func (s *Store) prune(ctx context.Context) error {
	if s.MaxSnapshots <= 0 {
		return nil
	}
	keep := s.db.Model(&SnapshotRecord{}).Select("id").Order("timestamp DESC").Limit(s.MaxSnapshots)
	return s.db.WithContext(ctx).Where("id NOT IN (?)", keep).Delete(&SnapshotRecord{}).Error
}

func toRecord(snap *domain.Snapshot) (SnapshotRecord, error) {
	if snap == nil {
		return SnapshotRecord{}, errors.New("persist: nil snapshot")
	}
	if snap.ID == "" {
		return SnapshotRecord{}, errors.New("persist: snapshot has no id")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return SnapshotRecord{}, err
	}
	return SnapshotRecord{
		ID:        snap.ID,
		Timestamp: snap.Timestamp.UTC(),
		Source:    snap.Source,
		Critical:  len(snap.Critical),
		Data:      datatypes.JSON(data),
	}, nil
}

func fromRecord(rec SnapshotRecord) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal(rec.Data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %q: %w", rec.ID, err)
	}
	return &snap, nil
}
