// Package snapshotstore persists snapshots as one JSON file per snapshot.
package snapshotstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/logpulse/internal/domain"
)

const fileExt = ".json"

var endOfTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// FileStore stores snapshots under Dir as <id>.json.
//
// Writes go through a temp file and a rename, so readers never observe a
// partial snapshot. Persisting an existing id overwrites it.
type FileStore struct {
	Dir string
	// MaxSnapshots keeps only the newest N snapshots; 0 keeps everything.
	MaxSnapshots int
}

// Note: fileLock and acquireLock/release are defined in platform-specific files:
// - lock_unix.go for Unix systems (Linux, macOS, BSD)
// - lock_windows.go for Windows

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string, maxSnapshots int) *FileStore {
	return &FileStore{Dir: dir, MaxSnapshots: maxSnapshots}
}

// Persist writes the snapshot, then applies retention.
func (s *FileStore) Persist(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return errors.New("persist: nil snapshot")
	}
	if _, ok := parseID(snap.ID); !ok {
		return fmt.Errorf("persist: invalid snapshot id %q", snap.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	lock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer lock.release()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(s.path(snap.ID), data); err != nil {
		return err
	}
	return s.prune()
}

// Get returns the snapshot with id, or domain.ErrNotFound.
func (s *FileStore) Get(ctx context.Context, id string) (*domain.Snapshot, error) {
	if _, ok := parseID(id); !ok {
		return nil, fmt.Errorf("snapshot %q: %w", id, domain.ErrNotFound)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load(id)
}

// Latest returns the newest snapshot, or nil when the store is empty.
func (s *FileStore) Latest(ctx context.Context) (*domain.Snapshot, error) {
	return s.NearestBefore(ctx, endOfTime)
}

// NearestBefore returns the newest snapshot taken at or before t, or nil.
func (s *FileStore) NearestBefore(ctx context.Context, t time.Time) (*domain.Snapshot, error) {
	entries, err := s.list()
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entries[i].at.After(t) {
			continue
		}
		snap, err := s.load(entries[i].id)
		if err != nil {
			return nil, err
		}
		// Ids have second precision; the stored timestamp decides.
		if !snap.Timestamp.After(t) {
			return snap, nil
		}
	}
	return nil, nil
}

// InRange returns the snapshots with start <= timestamp <= end, oldest first.
// A zero start is unbounded.
func (s *FileStore) InRange(ctx context.Context, start, end time.Time) ([]*domain.Snapshot, error) {
	entries, err := s.list()
	if err != nil {
		return nil, err
	}
	lower := start.Truncate(time.Second)
	out := make([]*domain.Snapshot, 0)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.at.Before(lower) || e.at.After(end) {
			continue
		}
		snap, err := s.load(e.id)
		if err != nil {
			return nil, err
		}
		if snap.Timestamp.Before(start) || snap.Timestamp.After(end) {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

type entry struct {
	id string
	at time.Time
}

// list returns the stored ids, oldest first. Files that are not snapshots are ignored.
func (s *FileStore) list() ([]entry, error) {
	dirEntries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	entries := make([]entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		at, ok := parseID(id)
		if !ok {
			continue
		}
		entries = append(entries, entry{id: id, at: at})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	return entries, nil
}

func (s *FileStore) load(id string) (*domain.Snapshot, error) {
	// #nosec G304 -- id is validated against the snapshot id layout
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("snapshot %q: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %q: %w", id, err)
	}
	return &snap, nil
}

func (s *FileStore) prune() error {
	if s.MaxSnapshots <= 0 {
		return nil
	}
	entries, err := s.list()
	if err != nil {
		return err
	}
	for len(entries) > s.MaxSnapshots {
		if err := os.Remove(s.path(entries[0].id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		entries = entries[1:]
	}
	return nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.Dir, id+fileExt)
}

func parseID(id string) (time.Time, bool) {
	t, err := time.Parse(domain.SnapshotIDLayout, id)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
