package snapshotstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/logpulse/internal/application"
	"github.com/felixgeelhaar/logpulse/internal/infrastructure/snapshotdb"
)

// Opener selects the snapshot backend from the storage configuration.
type Opener struct {
	Logger *slog.Logger
}

func (o Opener) Open(ctx context.Context, cfg application.StorageConfig) (application.SnapshotStore, error) {
	switch cfg.Driver {
	case "", application.StorageFile:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("file storage requires a directory")
		}
		o.logger().Debug("opening snapshot store", "driver", "file", "dir", cfg.Dir)
		return NewFileStore(cfg.Dir, cfg.MaxSnapshots), nil
	case application.StoragePostgres:
		o.logger().Debug("opening snapshot store", "driver", "postgres")
		store, err := snapshotdb.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		store.MaxSnapshots = cfg.MaxSnapshots
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func (o Opener) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}
