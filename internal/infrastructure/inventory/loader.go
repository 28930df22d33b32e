package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/logpulse/internal/application"
	"github.com/felixgeelhaar/logpulse/internal/domain"
	"github.com/felixgeelhaar/logpulse/internal/pathutil"
)

// File is the YAML/JSON inventory document.
type File struct {
	Endpoints []Entry `yaml:"endpoints" json:"endpoints"`
}

// Loader implements application.InventoryLoader.
type Loader struct{}

func (Loader) Load(ctx context.Context, path string, format application.InventoryFormat) (domain.CoverageLookup, error) {
	cleanPath, err := pathutil.ValidateInputFile(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// #nosec G304 -- path is validated above
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, err
	}
	inv, err := Parse(data, resolveFormat(cleanPath, data, format))
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Parse decodes an inventory in the given, already-resolved format.
func Parse(data []byte, format application.InventoryFormat) (*Inventory, error) {
	var entries []Entry
	switch format {
	case application.InventoryPostman:
		var err error
		if entries, err = parsePostman(data); err != nil {
			return nil, err
		}
	case application.InventoryJSON:
		var f File
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode inventory: %w", err)
		}
		entries = f.Endpoints
	case application.InventoryYAML:
		var f File
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode inventory: %w", err)
		}
		entries = f.Endpoints
	default:
		return nil, fmt.Errorf("unsupported inventory format %q", format)
	}
	for i, e := range entries {
		switch e.Status {
		case "", domain.CoverageIdentical, domain.CoverageDifferent, domain.CoverageNotCovered:
		default:
			return nil, fmt.Errorf("inventory entry %d: unknown status %q", i, e.Status)
		}
	}
	return New(entries), nil
}

func resolveFormat(path string, data []byte, format application.InventoryFormat) application.InventoryFormat {
	if format != "" && format != application.InventoryAuto {
		return format
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return application.InventoryYAML
	}
	if isPostman(data) {
		return application.InventoryPostman
	}
	if json.Valid(data) {
		return application.InventoryJSON
	}
	return application.InventoryYAML
}
