package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/logpulse/internal/application"
	"github.com/felixgeelhaar/logpulse/internal/infrastructure/badge"
	"github.com/felixgeelhaar/logpulse/internal/infrastructure/config"
	"github.com/felixgeelhaar/logpulse/internal/infrastructure/inventory"
	"github.com/felixgeelhaar/logpulse/internal/infrastructure/logsource"
	"github.com/felixgeelhaar/logpulse/internal/infrastructure/report"
	"github.com/felixgeelhaar/logpulse/internal/infrastructure/snapshotstore"
	"github.com/felixgeelhaar/logpulse/internal/infrastructure/telemetry"
)

// App is the wired application service plus the process-level settings the
// CLI controls: logging, export format and the metrics textfile.
type App struct {
	*application.Service

	Recorder *telemetry.Recorder
	Sources  *logsource.Registry

	opener *snapshotstore.Opener
	logOut io.Writer
}

// BuildService wires every adapter. Reports go to out, logs to logOut.
func BuildService(out, logOut io.Writer) *App {
	logger := newLogger(logOut, "text", slog.LevelWarn)
	opener := &snapshotstore.Opener{Logger: logger}
	recorder := telemetry.NewRecorder()
	sources := logsource.NewRegistry()

	return &App{
		Service: &application.Service{
			ConfigLoader: config.Loader{},
			RowSource:    sources,
			Stores:       opener,
			Inventory:    inventory.Loader{},
			Reporter:     report.Writer{},
			Badges:       badge.Writer{},
			Metrics:      recorder,
			Logger:       logger,
			Out:          out,
		},
		Recorder: recorder,
		Sources:  sources,
		opener:   opener,
		logOut:   logOut,
	}
}

// ConfigureLogging replaces the logger used by the service and its adapters.
func (a *App) ConfigureLogging(format, level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid log format: %s", format)
	}
	logger := newLogger(a.logOut, format, lvl)
	a.Logger = logger
	a.opener.Logger = logger
	return nil
}

// SetExportFormat forces the export reader instead of detecting it.
func (a *App) SetExportFormat(format string) error {
	f := logsource.Format(strings.ToLower(format))
	if f == "" || f == logsource.FormatAuto {
		a.Sources.Format = logsource.FormatAuto
		return nil
	}
	for _, supported := range a.Sources.SupportedFormats() {
		if f == supported {
			a.Sources.Format = f
			return nil
		}
	}
	return fmt.Errorf("invalid export format: %s", format)
}

// WriteMetrics writes the pipeline counters as a Prometheus textfile.
func (a *App) WriteMetrics(path string) error {
	return a.Recorder.WriteFile(path)
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("invalid log level: %s", level)
	}
	return lvl, nil
}
