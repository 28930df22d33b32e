// Package logsource reads access-log exports into raw records.
//
// The registry sniffs the export format from content and extension and
// selects the matching reader.
package logsource

import (
	"context"
	"fmt"
	"os"

	"github.com/felixgeelhaar/logpulse/internal/domain"
	"github.com/felixgeelhaar/logpulse/internal/pathutil"
)

// Format is an export file format.
type Format string

const (
	FormatAuto   Format = "auto"
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
)

// Reader decodes one export format.
type Reader interface {
	Read(ctx context.Context, path string) ([]domain.RawRecord, error)
	Format() Format
}

// Registry manages the export readers and auto-detects formats.
type Registry struct {
	// Format forces a reader; empty or FormatAuto detects it.
	Format  Format
	readers map[Format]Reader
}

// NewRegistry creates a registry with all supported readers.
func NewRegistry() *Registry {
	return &Registry{
		Format: FormatAuto,
		readers: map[Format]Reader{
			FormatCSV:    CSVReader{},
			FormatJSON:   JSONReader{},
			FormatNDJSON: JSONReader{Lines: true},
		},
	}
}

// Read reads an export, detecting its format unless one is forced.
func (r *Registry) Read(ctx context.Context, path string) ([]domain.RawRecord, error) {
	cleanPath, err := pathutil.ValidateInputFile(path)
	if err != nil {
		return nil, err
	}

	format := r.Format
	if format == "" || format == FormatAuto {
		format, err = DetectFormat(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("detect format: %w", err)
		}
	}

	reader, ok := r.readers[format]
	if !ok {
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
	return reader.Read(ctx, cleanPath)
}

// SupportedFormats returns the formats with a registered reader.
func (r *Registry) SupportedFormats() []Format {
	return []Format{FormatCSV, FormatJSON, FormatNDJSON}
}

func openExport(path string) (*os.File, error) {
	// #nosec G304 -- path is validated by the registry
	return os.Open(path)
}
