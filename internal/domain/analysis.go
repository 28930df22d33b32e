package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

func (s AlertSeverity) rank() int {
	switch s {
	case AlertCritical:
		return 2
	case AlertWarning:
		return 1
	default:
		return 0
	}
}

// Alert is a short, human-facing notice derived from domain events.
type Alert struct {
	Severity AlertSeverity `json:"severity"`
	Endpoint string        `json:"endpoint"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`
}

// AlertsFromEvents maps domain events to alerts, most severe first.
// Events of unknown type are ignored.
func AlertsFromEvents(events []DomainEvent) []Alert {
	alerts := make([]Alert, 0, len(events))
	for _, ev := range events {
		switch e := ev.(type) {
		case CriticalEndpointEvent:
			alerts = append(alerts, Alert{
				Severity: AlertCritical,
				Endpoint: e.Endpoint,
				Title:    "Critical endpoint",
				Message:  fmt.Sprintf("%s: %.2f%% errors over %d requests", e.Endpoint, e.ErrorRate, e.TotalRequests),
			})
		case EndpointDegradedEvent:
			alerts = append(alerts, Alert{
				Severity: AlertWarning,
				Endpoint: e.Endpoint,
				Title:    "Error rate degraded",
				Message:  fmt.Sprintf("%s: %.2f%% -> %.2f%% (+%.2f pp)", e.Endpoint, e.Previous, e.Current, e.Delta),
			})
		case EndpointImprovedEvent:
			alerts = append(alerts, Alert{
				Severity: AlertInfo,
				Endpoint: e.Endpoint,
				Title:    "Error rate improved",
				Message:  fmt.Sprintf("%s: %.2f%% -> %.2f%% (%.2f pp)", e.Endpoint, e.Previous, e.Current, e.Delta),
			})
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Severity.rank() > alerts[j].Severity.rank()
	})
	return alerts
}

// Analysis bundles one snapshot with its trends and recommendation lists.
// It is the only value handed to renderers.
type Analysis struct {
	ID                 string           `json:"analysis_id"`
	GeneratedAt        time.Time        `json:"generated_at"`
	TimeWindow         time.Duration    `json:"-"`
	Snapshot           *Snapshot        `json:"snapshot"`
	PreviousSnapshotID string           `json:"previous_snapshot_id,omitempty"`
	Trends             []Trend          `json:"trends"`
	TrendSummary       TrendSummary     `json:"trend_summary"`
	Prioritized        []Recommendation `json:"prioritized_recommendations"`
	RegressionRisks    []RegressionRisk `json:"regression_risks"`
	CoverageGaps       []CoverageGap    `json:"coverage_gaps"`
	Alerts             []Alert          `json:"alerts"`
	PassErrors         []PassError      `json:"pass_errors,omitempty"`
	Thresholds         Thresholds       `json:"thresholds"`
}

// NewAnalysis assembles an analysis. previous may be nil on a first run.
func NewAnalysis(now time.Time, snap, previous *Snapshot, trends []Trend, recs Recommendations, alerts []Alert, th Thresholds) *Analysis {
	a := &Analysis{
		ID:              uuid.NewString(),
		GeneratedAt:     now.UTC(),
		Snapshot:        snap,
		Trends:          trends,
		TrendSummary:    SummarizeTrends(trends),
		Prioritized:     recs.Prioritized,
		RegressionRisks: recs.RegressionRisks,
		CoverageGaps:    recs.CoverageGaps,
		Alerts:          alerts,
		PassErrors:      recs.PassErrors,
		Thresholds:      th,
	}
	if snap != nil {
		a.TimeWindow = snap.TimeWindow
	}
	if previous != nil {
		a.PreviousSnapshotID = previous.ID
	}
	return a
}

// HasHistory reports whether a previous snapshot was compared against.
// An empty trend list with history means nothing changed; nil means first run.
func (a *Analysis) HasHistory() bool {
	return a.Trends != nil
}
