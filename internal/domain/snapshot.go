package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotIDLayout formats snapshot ids. Ids sort lexically in time order.
const SnapshotIDLayout = "2006-01-02_15-04-05"

// EndpointMetric holds the statistics of one endpoint within a snapshot.
type EndpointMetric struct {
	Endpoint        string   `json:"endpoint"`
	Method          string   `json:"method"`
	TotalRequests   int      `json:"total_requests"`
	TotalErrors     int      `json:"total_errors"`
	ClientErrors4xx int      `json:"client_errors_4xx"`
	ServerErrors5xx int      `json:"server_errors_5xx"`
	ErrorRate       float64  `json:"error_rate"`
	AvgResponseTime *float64 `json:"avg_response_time"`
	P95ResponseTime *float64 `json:"p95_response_time"`
	UniqueClients   int      `json:"unique_clients"`
}

// ErrorPercentage returns the error rate as a Percentage.
func (m EndpointMetric) ErrorPercentage() Percentage {
	return NewPercentage(m.ErrorRate)
}

// OverallMetrics sums the snapshot across all endpoints.
type OverallMetrics struct {
	TotalRequests    int     `json:"total_requests"`
	TotalErrors      int     `json:"total_errors"`
	ClientErrors4xx  int     `json:"client_errors_4xx"`
	ServerErrors5xx  int     `json:"server_errors_5xx"`
	OverallErrorRate float64 `json:"overall_error_rate"`
	UniqueEndpoints  int     `json:"unique_endpoints"`
}

// Snapshot is an immutable, timestamped aggregation of endpoint metrics.
//
// Critical, MostUsed and MostFailed are views: their elements point into
// Endpoints. Callers must not mutate a snapshot after it is built.
type Snapshot struct {
	ID          string
	Timestamp   time.Time
	TimeWindow  time.Duration
	Source      string
	Overall     OverallMetrics
	Endpoints   []*EndpointMetric
	Critical    []*EndpointMetric
	MostUsed    []*EndpointMetric
	MostFailed  []*EndpointMetric
	SkippedRows int
}

// Endpoint returns the metric for key, or nil.
func (s *Snapshot) Endpoint(key string) *EndpointMetric {
	if s == nil {
		return nil
	}
	for _, m := range s.Endpoints {
		if m != nil && m.Endpoint == key {
			return m
		}
	}
	return nil
}

// IsCritical reports whether key is in the critical view.
func (s *Snapshot) IsCritical(key string) bool {
	if s == nil {
		return false
	}
	for _, m := range s.Critical {
		if m != nil && m.Endpoint == key {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the snapshot saw no usable rows.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || s.Overall.TotalRequests == 0
}

type snapshotJSON struct {
	ID          string           `json:"snapshot_id"`
	Timestamp   time.Time        `json:"timestamp"`
	TimeWindow  string           `json:"time_window"`
	Source      string           `json:"source,omitempty"`
	Overall     OverallMetrics   `json:"overall_metrics"`
	Endpoints   []EndpointMetric `json:"endpoints"`
	Critical    []string         `json:"critical"`
	MostUsed    []string         `json:"most_used"`
	MostFailed  []string         `json:"most_failed"`
	SkippedRows int              `json:"skipped_rows"`
}

// MarshalJSON stores the views as endpoint keys.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		ID:          s.ID,
		Timestamp:   s.Timestamp,
		TimeWindow:  s.TimeWindow.String(),
		Source:      s.Source,
		Overall:     s.Overall,
		Endpoints:   make([]EndpointMetric, 0, len(s.Endpoints)),
		Critical:    viewKeys(s.Critical),
		MostUsed:    viewKeys(s.MostUsed),
		MostFailed:  viewKeys(s.MostFailed),
		SkippedRows: s.SkippedRows,
	}
	for _, m := range s.Endpoints {
		if m != nil {
			out.Endpoints = append(out.Endpoints, *m)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the views as pointers into Endpoints.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var in snapshotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	window, err := time.ParseDuration(in.TimeWindow)
	if err != nil {
		return fmt.Errorf("time_window: %w", err)
	}

	endpoints := make([]*EndpointMetric, 0, len(in.Endpoints))
	byKey := make(map[string]*EndpointMetric, len(in.Endpoints))
	for i := range in.Endpoints {
		m := &in.Endpoints[i]
		endpoints = append(endpoints, m)
		byKey[m.Endpoint] = m
	}
	link := func(name string, keys []string) ([]*EndpointMetric, error) {
		view := make([]*EndpointMetric, 0, len(keys))
		for _, k := range keys {
			m, ok := byKey[k]
			if !ok {
				return nil, fmt.Errorf("%s view references unknown endpoint %q", name, k)
			}
			view = append(view, m)
		}
		return view, nil
	}

	out := Snapshot{
		ID:          in.ID,
		Timestamp:   in.Timestamp.UTC(),
		TimeWindow:  window,
		Source:      in.Source,
		Overall:     in.Overall,
		Endpoints:   endpoints,
		SkippedRows: in.SkippedRows,
	}
	if out.Critical, err = link("critical", in.Critical); err != nil {
		return err
	}
	if out.MostUsed, err = link("most_used", in.MostUsed); err != nil {
		return err
	}
	if out.MostFailed, err = link("most_failed", in.MostFailed); err != nil {
		return err
	}
	*s = out
	return nil
}

func viewKeys(view []*EndpointMetric) []string {
	keys := make([]string, 0, len(view))
	for _, m := range view {
		if m != nil {
			keys = append(keys, m.Endpoint)
		}
	}
	return keys
}
