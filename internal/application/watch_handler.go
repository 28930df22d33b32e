package application

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/logpulse/internal/domain"
)

// WatchCallback is called after every analysis triggered by watch mode.
type WatchCallback func(run int, export string, analysis *domain.Analysis, err error)

// Watch analyzes every export that lands in the watched directory until ctx is done.
// When opts.Analyze.ExportPath is set it is analyzed once before watching.
func (s *Service) Watch(ctx context.Context, opts WatchOptions, watcher FileWatcher, callback WatchCallback) error {
	dir := opts.Dir
	if dir == "" {
		cfg, err := loadConfig(s.ConfigLoader, opts.Analyze.ConfigPath)
		if err != nil {
			return err
		}
		dir = cfg.ExportsDir
	}

	if err := watcher.WatchDir(dir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	runNumber := 0
	run := func(export string) {
		runNumber++
		runOpts := opts.Analyze
		runOpts.ExportPath = export
		analysis, err := s.Analyze(ctx, runOpts)
		if callback != nil {
			callback(runNumber, export, analysis, err)
		}
	}

	if opts.Analyze.ExportPath != "" {
		run(opts.Analyze.ExportPath)
	}

	events := watcher.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case export, ok := <-events:
			if !ok {
				return nil
			}
			run(export)
		}
	}
}
