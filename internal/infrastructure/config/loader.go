package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/logpulse/internal/application"
	"github.com/felixgeelhaar/logpulse/internal/domain"
)

// Environment variables layered over the file.
const (
	EnvDatabaseURL = "LOGPULSE_DATABASE_URL"
	EnvStorageDir  = "LOGPULSE_STORAGE_DIR"
)

// Loader reads .logpulse.yaml. Getenv defaults to os.Getenv.
type Loader struct {
	Getenv func(string) string
}

type fileConfig struct {
	Version    int               `yaml:"version"`
	Thresholds domain.Thresholds `yaml:"thresholds"`
	Storage    fileStorage       `yaml:"storage"`
	Inventory  fileInventory     `yaml:"inventory,omitempty"`
	ExportsDir string            `yaml:"exports_dir"`
	TimeWindow string            `yaml:"time_window"`
}

type fileStorage struct {
	Driver       string `yaml:"driver"`
	Dir          string `yaml:"dir,omitempty"`
	DSN          string `yaml:"dsn,omitempty"`
	MaxSnapshots int    `yaml:"max_snapshots,omitempty"`
}

type fileInventory struct {
	Path   string `yaml:"path,omitempty"`
	Format string `yaml:"format,omitempty"`
}

func (l Loader) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Load reads the file on top of the defaults, so omitted keys keep their default.
func (l Loader) Load(path string) (application.Config, error) {
	// #nosec G304 -- config path is supplied by the operator
	raw, err := os.ReadFile(path)
	if err != nil {
		return application.Config{}, err
	}
	return Parse(raw)
}

// Parse decodes YAML configuration over the defaults.
func Parse(raw []byte) (application.Config, error) {
	fc := toFile(application.DefaultConfig())
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return application.Config{}, err
	}
	cfg, err := fromFile(fc)
	if err != nil {
		return application.Config{}, err
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return application.Config{}, err
	}
	return cfg, nil
}

// Overlay applies environment settings. A database URL switches an
// unconfigured store to postgres.
func (l Loader) Overlay(cfg application.Config) application.Config {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if dsn := strings.TrimSpace(getenv(EnvDatabaseURL)); dsn != "" {
		cfg.Storage.DSN = dsn
		if cfg.Storage.Driver == "" || cfg.Storage.Driver == application.StorageFile {
			cfg.Storage.Driver = application.StoragePostgres
		}
	}
	if dir := strings.TrimSpace(getenv(EnvStorageDir)); dir != "" {
		cfg.Storage.Dir = dir
	}
	return cfg
}

func Write(w io.Writer, cfg application.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return enc.Encode(toFile(cfg))
}

func toFile(cfg application.Config) fileConfig {
	return fileConfig{
		Version:    cfg.Version,
		Thresholds: cfg.Thresholds,
		Storage: fileStorage{
			Driver:       string(cfg.Storage.Driver),
			Dir:          cfg.Storage.Dir,
			DSN:          cfg.Storage.DSN,
			MaxSnapshots: cfg.Storage.MaxSnapshots,
		},
		Inventory: fileInventory{
			Path:   cfg.Inventory.Path,
			Format: string(cfg.Inventory.Format),
		},
		ExportsDir: cfg.ExportsDir,
		TimeWindow: cfg.TimeWindow.String(),
	}
}

func fromFile(fc fileConfig) (application.Config, error) {
	window, err := time.ParseDuration(fc.TimeWindow)
	if err != nil {
		return application.Config{}, fmt.Errorf("time_window: %w", err)
	}
	if window <= 0 {
		return application.Config{}, fmt.Errorf("time_window must be positive")
	}

	driver := application.StorageDriver(strings.ToLower(fc.Storage.Driver))
	switch driver {
	case application.StorageFile, application.StoragePostgres:
	case "":
		driver = application.StorageFile
	default:
		return application.Config{}, fmt.Errorf("storage.driver: unknown driver %q", fc.Storage.Driver)
	}
	if fc.Storage.MaxSnapshots < 0 {
		return application.Config{}, fmt.Errorf("storage.max_snapshots must not be negative")
	}

	format := application.InventoryFormat(strings.ToLower(fc.Inventory.Format))
	if format == "" {
		format = application.InventoryAuto
	}

	return application.Config{
		Version:    fc.Version,
		Thresholds: fc.Thresholds,
		Storage: application.StorageConfig{
			Driver:       driver,
			Dir:          fc.Storage.Dir,
			DSN:          fc.Storage.DSN,
			MaxSnapshots: fc.Storage.MaxSnapshots,
		},
		Inventory: application.InventoryConfig{
			Path:   fc.Inventory.Path,
			Format: format,
		},
		ExportsDir: fc.ExportsDir,
		TimeWindow: window,
	}, nil
}
