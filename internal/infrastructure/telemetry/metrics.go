// Package telemetry counts pipeline activity on a private Prometheus registry
// and exports it in the text exposition format.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "logpulse"

// Recorder implements application.MetricsRecorder.
type Recorder struct {
	registry *prometheus.Registry

	rowsRead           prometheus.Counter
	rowsSkipped        prometheus.Counter
	snapshotsPersisted prometheus.Counter
	analyses           prometheus.Counter
	analysisDuration   prometheus.Histogram
	criticalEndpoints  prometheus.Gauge
	lastAnalysis       prometheus.Gauge

	now func() time.Time
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		rowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Raw export rows read.",
		}),
		rowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Rows rejected by the normalizer.",
		}),
		snapshotsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_persisted_total",
			Help:      "Snapshots written to the store.",
		}),
		analyses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Completed analysis runs.",
		}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of a full analysis run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		criticalEndpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "critical_endpoints",
			Help:      "Critical endpoints in the latest snapshot.",
		}),
		lastAnalysis: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_analysis_timestamp_seconds",
			Help:      "Unix time of the last completed analysis.",
		}),
		now: time.Now,
	}
	r.registry.MustRegister(
		r.rowsRead,
		r.rowsSkipped,
		r.snapshotsPersisted,
		r.analyses,
		r.analysisDuration,
		r.criticalEndpoints,
		r.lastAnalysis,
	)
	return r
}

func (r *Recorder) RowsRead(n int) {
	if n > 0 {
		r.rowsRead.Add(float64(n))
	}
}

func (r *Recorder) RowsSkipped(n int) {
	if n > 0 {
		r.rowsSkipped.Add(float64(n))
	}
}

func (r *Recorder) SnapshotPersisted() {
	r.snapshotsPersisted.Inc()
}

func (r *Recorder) AnalysisCompleted(d time.Duration, critical int) {
	r.analyses.Inc()
	r.analysisDuration.Observe(d.Seconds())
	r.criticalEndpoints.Set(float64(critical))
	r.lastAnalysis.Set(float64(r.now().Unix()))
}

// Gather returns the current metric families.
func (r *Recorder) Gather() ([]*dto.MetricFamily, error) {
	return r.registry.Gather()
}

// WriteText encodes every metric family in the text exposition format.
func (r *Recorder) WriteText(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteFile writes the metrics to path for a node-exporter textfile
// collector. The file is replaced atomically.
func (r *Recorder) WriteFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".metrics-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := r.WriteText(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
