package domain

import "time"

// Trend is the change in error rate of one endpoint between two snapshots.
// ChangePercentage is in percentage points (current - previous), not a ratio.
type Trend struct {
	Endpoint          string  `json:"endpoint"`
	PreviousErrorRate float64 `json:"previous_error_rate"`
	CurrentErrorRate  float64 `json:"current_error_rate"`
	ChangePercentage  float64 `json:"change_percentage"`
	IsDegrading       bool    `json:"is_degrading"`
	IsImproving       bool    `json:"is_improving"`
	IsNew             bool    `json:"is_new"`

	// Deltas in 4xx/5xx share of requests, used to pick regression actions.
	ClientErrorDelta float64 `json:"client_error_delta"`
	ServerErrorDelta float64 `json:"server_error_delta"`
}

// TrendDirection classifies a trend.
type TrendDirection string

const (
	TrendDegrading TrendDirection = "degrading"
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendNew       TrendDirection = "new"
)

// Direction returns the classification of t.
func (t Trend) Direction() TrendDirection {
	switch {
	case t.IsNew:
		return TrendNew
	case t.IsDegrading:
		return TrendDegrading
	case t.IsImproving:
		return TrendImproving
	default:
		return TrendStable
	}
}

// TrendComparator compares two snapshots and raises events for significant changes.
type TrendComparator struct {
	events *EventCollector
}

// NewTrendComparator creates a new TrendComparator.
func NewTrendComparator() *TrendComparator {
	return &TrendComparator{events: NewEventCollector()}
}

// Compare returns one trend per endpoint of current, in current's order.
// It returns nil when previous is nil: no history is not the same as no change.
// Endpoints only present in previous are not reported.
func (c *TrendComparator) Compare(previous, current *Snapshot, th Thresholds) []Trend {
	if previous == nil || current == nil {
		return nil
	}

	prev := make(map[string]*EndpointMetric, len(previous.Endpoints))
	for _, m := range previous.Endpoints {
		if m != nil {
			prev[m.Endpoint] = m
		}
	}

	trends := make([]Trend, 0, len(current.Endpoints))
	for _, cur := range current.Endpoints {
		if cur == nil {
			continue
		}
		p, ok := prev[cur.Endpoint]
		if !ok {
			trends = append(trends, Trend{
				Endpoint:         cur.Endpoint,
				CurrentErrorRate: cur.ErrorRate,
				ChangePercentage: cur.ErrorRate,
				IsNew:            true,
				ClientErrorDelta: shareOf(cur.ClientErrors4xx, cur.TotalRequests),
				ServerErrorDelta: shareOf(cur.ServerErrors5xx, cur.TotalRequests),
			})
			continue
		}

		change := cur.ErrorRate - p.ErrorRate
		t := Trend{
			Endpoint:          cur.Endpoint,
			PreviousErrorRate: p.ErrorRate,
			CurrentErrorRate:  cur.ErrorRate,
			ChangePercentage:  change,
			IsDegrading:       change > th.DegradingThreshold,
			IsImproving:       change < th.ImprovingThreshold,
			ClientErrorDelta:  shareOf(cur.ClientErrors4xx, cur.TotalRequests) - shareOf(p.ClientErrors4xx, p.TotalRequests),
			ServerErrorDelta:  shareOf(cur.ServerErrors5xx, cur.TotalRequests) - shareOf(p.ServerErrors5xx, p.TotalRequests),
		}
		trends = append(trends, t)
		c.recordTrendEvent(current.Timestamp, t)
	}
	return trends
}

func (c *TrendComparator) recordTrendEvent(at time.Time, t Trend) {
	switch {
	case t.IsDegrading:
		c.events.Record(NewEndpointDegradedEvent(at, t.Endpoint, t.PreviousErrorRate, t.CurrentErrorRate))
	case t.IsImproving:
		c.events.Record(NewEndpointImprovedEvent(at, t.Endpoint, t.PreviousErrorRate, t.CurrentErrorRate))
	}
}

// Events returns all domain events recorded during comparison.
func (c *TrendComparator) Events() []DomainEvent {
	return c.events.Events()
}

// ClearEvents clears all recorded events.
func (c *TrendComparator) ClearEvents() {
	c.events.Clear()
}

func shareOf(part, total int) float64 {
	return PercentageFromRatio(part, total).Value()
}

// TrendSummary counts trends by direction.
type TrendSummary struct {
	Degrading int `json:"degrading"`
	Improving int `json:"improving"`
	Stable    int `json:"stable"`
	New       int `json:"new"`
}

// SummarizeTrends counts trends by direction.
func SummarizeTrends(trends []Trend) TrendSummary {
	var s TrendSummary
	for _, t := range trends {
		switch t.Direction() {
		case TrendDegrading:
			s.Degrading++
		case TrendImproving:
			s.Improving++
		case TrendNew:
			s.New++
		default:
			s.Stable++
		}
	}
	return s
}

// SeriesPoint is one snapshot's overall figures in a history series.
type SeriesPoint struct {
	SnapshotID    string    `json:"snapshot_id"`
	Timestamp     time.Time `json:"timestamp"`
	TotalRequests int       `json:"total_requests"`
	ErrorRate     float64   `json:"error_rate"`
	Critical      int       `json:"critical"`
}

// SeriesAnalysis summarizes the overall error rate across a run of snapshots.
type SeriesAnalysis struct {
	Points  []SeriesPoint `json:"points"`
	Highest float64       `json:"highest"`
	Lowest  float64       `json:"lowest"`
	Average float64       `json:"average"`
	// Step counts between consecutive snapshots.
	Worse  int `json:"worse"`
	Better int `json:"better"`
	Flat   int `json:"flat"`
}

// AnalyzeSeries summarizes snapshots ordered oldest first. A step counts as
// worse or better when the overall error rate moves past the trend thresholds.
func AnalyzeSeries(snaps []*Snapshot, th Thresholds) SeriesAnalysis {
	var out SeriesAnalysis
	var sum, prev float64
	for _, s := range snaps {
		if s == nil {
			continue
		}
		rate := s.Overall.OverallErrorRate
		out.Points = append(out.Points, SeriesPoint{
			SnapshotID:    s.ID,
			Timestamp:     s.Timestamp,
			TotalRequests: s.Overall.TotalRequests,
			ErrorRate:     rate,
			Critical:      len(s.Critical),
		})
		if len(out.Points) == 1 || rate > out.Highest {
			out.Highest = rate
		}
		if len(out.Points) == 1 || rate < out.Lowest {
			out.Lowest = rate
		}
		sum += rate
		if len(out.Points) > 1 {
			delta := rate - prev
			switch {
			case delta > th.DegradingThreshold:
				out.Worse++
			case delta < th.ImprovingThreshold:
				out.Better++
			default:
				out.Flat++
			}
		}
		prev = rate
	}
	if len(out.Points) > 0 {
		out.Average = sum / float64(len(out.Points))
	}
	return out
}
