package application

import (
	"fmt"

	"github.com/felixgeelhaar/logpulse/internal/domain"
)

// loadConfig loads config from path, falling back to defaults when the file does not exist.
func loadConfig(loader ConfigLoader, configPath string) (Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	if loader == nil {
		return DefaultConfig(), nil
	}

	exists, err := loader.Exists(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig()
	if exists {
		cfg, err = loader.Load(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", configPath, err)
		}
	}
	if overlay, ok := loader.(ConfigOverlay); ok {
		cfg = overlay.Overlay(cfg)
	}
	return cfg, nil
}

// resolveThresholds applies per-call overrides on top of the configured thresholds.
func resolveThresholds(cfg Config, overrides domain.ThresholdOverrides) (domain.Thresholds, error) {
	th := cfg.Thresholds.Apply(overrides)
	if err := th.Validate(); err != nil {
		return domain.Thresholds{}, err
	}
	return th, nil
}
