package application

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/felixgeelhaar/logpulse/internal/domain"
)

type OutputFormat string

const (
	OutputText  OutputFormat = "text"
	OutputJSON  OutputFormat = "json"
	OutputHTML  OutputFormat = "html"
	OutputBrief OutputFormat = "brief"
)

// StorageDriver selects the snapshot store backend.
type StorageDriver string

const (
	StorageFile     StorageDriver = "file"
	StoragePostgres StorageDriver = "postgres"
)

// InventoryFormat selects how a test inventory file is read.
type InventoryFormat string

const (
	InventoryAuto    InventoryFormat = "auto"
	InventoryYAML    InventoryFormat = "yaml"
	InventoryJSON    InventoryFormat = "json"
	InventoryPostman InventoryFormat = "postman"
)

// DefaultConfigPath is where analyze, show and init look for configuration.
const DefaultConfigPath = ".logpulse.yaml"

// DefaultTimeWindow is the window recorded on snapshots when none is given.
const DefaultTimeWindow = 6 * time.Hour

var ErrConfigNotFound = errors.New("config not found")

// Config represents validated, application-ready configuration.
type Config struct {
	Version    int
	Thresholds domain.Thresholds
	Storage    StorageConfig
	Inventory  InventoryConfig
	ExportsDir string        // Directory watched for new exports
	TimeWindow time.Duration // Window recorded on snapshots
}

// StorageConfig configures where snapshots live.
type StorageConfig struct {
	Driver       StorageDriver
	Dir          string // file driver
	DSN          string // postgres driver
	MaxSnapshots int    // file driver retention, 0 keeps everything
}

// InventoryConfig points at the external test inventory.
type InventoryConfig struct {
	Path   string
	Format InventoryFormat
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Version:    1,
		Thresholds: domain.DefaultThresholds(),
		Storage: StorageConfig{
			Driver: StorageFile,
			Dir:    ".logpulse/snapshots",
		},
		Inventory:  InventoryConfig{Format: InventoryAuto},
		ExportsDir: "exports",
		TimeWindow: DefaultTimeWindow,
	}
}

type ConfigLoader interface {
	Load(path string) (Config, error)
	Exists(path string) (bool, error)
}

// ConfigOverlay is implemented by loaders that layer environment settings
// over file or default configuration.
type ConfigOverlay interface {
	Overlay(cfg Config) Config
}

// RowSource reads raw records from an access-log export.
type RowSource interface {
	Read(ctx context.Context, path string) ([]domain.RawRecord, error)
}

// SnapshotStore persists snapshots keyed by id.
// Get returns domain.ErrNotFound for unknown ids; Latest and NearestBefore
// return (nil, nil) when nothing matches.
type SnapshotStore interface {
	Persist(ctx context.Context, s *domain.Snapshot) error
	Get(ctx context.Context, id string) (*domain.Snapshot, error)
	Latest(ctx context.Context) (*domain.Snapshot, error)
	NearestBefore(ctx context.Context, t time.Time) (*domain.Snapshot, error)
	InRange(ctx context.Context, start, end time.Time) ([]*domain.Snapshot, error)
}

// StoreOpener opens the snapshot store described by cfg.
type StoreOpener interface {
	Open(ctx context.Context, cfg StorageConfig) (SnapshotStore, error)
}

// InventoryLoader loads a test inventory as a coverage lookup.
type InventoryLoader interface {
	Load(ctx context.Context, path string, format InventoryFormat) (domain.CoverageLookup, error)
}

// Reporter renders results.
type Reporter interface {
	Write(w io.Writer, analysis *domain.Analysis, format OutputFormat) error
	WriteHistory(w io.Writer, history HistoryResult, format OutputFormat) error
}

// MetricsRecorder receives pipeline counters. A nil recorder is allowed.
type MetricsRecorder interface {
	RowsRead(n int)
	RowsSkipped(n int)
	SnapshotPersisted()
	AnalysisCompleted(d time.Duration, critical int)
}

// FileWatcher provides file change notifications.
type FileWatcher interface {
	WatchDir(root string) error
	Events(ctx context.Context) <-chan string
	Close() error
}

// BadgeWriter renders a health badge.
type BadgeWriter interface {
	Write(w io.Writer, label string, errorRate float64, style string) error
}

// AnalyzeOptions configures one analysis run.
type AnalyzeOptions struct {
	ConfigPath      string
	ExportPath      string
	TimeWindow      time.Duration // zero uses the configured window
	Overrides       domain.ThresholdOverrides
	InventoryPath   string // overrides the configured inventory
	InventoryFormat InventoryFormat
	Output          OutputFormat
	Workers         int // parallel normalization workers
}

// ShowOptions re-renders a stored snapshot.
type ShowOptions struct {
	ConfigPath    string
	SnapshotID    string // empty selects the latest
	Overrides     domain.ThresholdOverrides
	InventoryPath string
	Output        OutputFormat
}

// CompareOptions compares two stored snapshots.
type CompareOptions struct {
	ConfigPath string
	BaseID     string
	HeadID     string
	Overrides  domain.ThresholdOverrides
	Output     OutputFormat
}

// HistoryOptions lists stored snapshots.
type HistoryOptions struct {
	ConfigPath string
	Days       int // 0 = all
	Overrides  domain.ThresholdOverrides
	Output     OutputFormat
}

// HistoryResult is the rendered history of snapshots, oldest first.
type HistoryResult struct {
	Since  time.Time             `json:"since"`
	Until  time.Time             `json:"until"`
	Series domain.SeriesAnalysis `json:"series"`
}

// WatchOptions configures watch mode behavior.
type WatchOptions struct {
	Analyze AnalyzeOptions
	Dir     string // empty uses the configured exports directory
}

// BadgeOptions configures the health badge.
type BadgeOptions struct {
	ConfigPath string
	SnapshotID string
	Output     string
	Label      string
	Style      string
}
