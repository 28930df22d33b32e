package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Priority ranks a recommendation.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities, low = 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Recommendation suggests additional tests for an endpoint.
type Recommendation struct {
	Endpoint        string   `json:"endpoint"`
	Method          string   `json:"method"`
	Priority        Priority `json:"priority"`
	PriorityScore   float64  `json:"priority_score"`
	Description     string   `json:"description"`
	SuggestedAction string   `json:"suggested_action"`
	SuggestedTests  []string `json:"suggested_tests"`
}

// RegressionRisk flags an endpoint whose error rate degraded since the previous snapshot.
type RegressionRisk struct {
	Endpoint         string   `json:"endpoint"`
	Priority         Priority `json:"priority"`
	PriorityScore    float64  `json:"priority_score"`
	Description      string   `json:"description"`
	SuggestedAction  string   `json:"suggested_action"`
	ChangePercentage float64  `json:"change_percentage"`
}

// CoverageStatus is what a test inventory reports for one endpoint.
type CoverageStatus string

const (
	// CoverageNotCovered: no inventory entry exercises the endpoint.
	CoverageNotCovered CoverageStatus = "not_covered"
	// CoverageIdentical: an inventory entry matches endpoint and method.
	CoverageIdentical CoverageStatus = "identical"
	// CoverageDifferent: an inventory entry targets the path with a different method or shape.
	CoverageDifferent CoverageStatus = "different"
)

// CoverageLookup answers whether an endpoint is covered by a known test.
type CoverageLookup interface {
	IsCovered(endpoint, method string) CoverageStatus
}

// CoverageLookupFunc adapts a function to CoverageLookup.
type CoverageLookupFunc func(endpoint, method string) CoverageStatus

// IsCovered implements CoverageLookup.
func (f CoverageLookupFunc) IsCovered(endpoint, method string) CoverageStatus {
	return f(endpoint, method)
}

// CoverageGap flags a visible endpoint missing from the test inventory.
type CoverageGap struct {
	Endpoint        string         `json:"endpoint"`
	Method          string         `json:"method"`
	Status          CoverageStatus `json:"status"`
	Priority        Priority       `json:"priority"`
	PriorityScore   float64        `json:"priority_score"`
	Description     string         `json:"description"`
	SuggestedAction string         `json:"suggested_action"`
}

// PassError records why a recommendation pass produced no output.
type PassError struct {
	Pass    string `json:"pass"`
	Message string `json:"message"`
}

// Recommendation pass names.
const (
	PassPrioritized = "prioritized"
	PassRegression  = "regression_risks"
	PassCoverage    = "coverage_gaps"
)

// Recommendations is the output of the three engine passes.
type Recommendations struct {
	Prioritized     []Recommendation
	RegressionRisks []RegressionRisk
	CoverageGaps    []CoverageGap
	PassErrors      []PassError
}

var (
	errMissingSnapshot      = errors.New("snapshot is missing")
	errInconsistentSnapshot = errors.New("snapshot endpoint data is inconsistent")
)

// partialDiffMultiplier discounts gaps where a test exists with a different shape.
const partialDiffMultiplier = 0.5

// RecommendationEngine scores endpoints into ranked recommendation lists.
type RecommendationEngine struct {
	th Thresholds
}

// NewRecommendationEngine creates an engine using th.
func NewRecommendationEngine(th Thresholds) *RecommendationEngine {
	return &RecommendationEngine{th: th}
}

// Recommend runs all three passes. A failing pass yields an empty list and a
// PassError; the other passes still run.
func (e *RecommendationEngine) Recommend(snap *Snapshot, trends []Trend, lookup CoverageLookup) Recommendations {
	out := Recommendations{}
	var err error

	if out.Prioritized, err = e.Prioritize(snap, trends); err != nil {
		out.PassErrors = append(out.PassErrors, PassError{Pass: PassPrioritized, Message: err.Error()})
	}
	if out.RegressionRisks, err = e.RegressionRisks(snap, trends); err != nil {
		out.PassErrors = append(out.PassErrors, PassError{Pass: PassRegression, Message: err.Error()})
	}
	if out.CoverageGaps, err = e.CoverageGaps(snap, lookup); err != nil {
		out.PassErrors = append(out.PassErrors, PassError{Pass: PassCoverage, Message: err.Error()})
	}
	return out
}

// Prioritize ranks every endpoint by a weighted volume/error score.
// Endpoints at or above the severity floor error rate are forced to critical
// and scored above every endpoint that is not.
func (e *RecommendationEngine) Prioritize(snap *Snapshot, trends []Trend) (recs []Recommendation, err error) {
	recs = []Recommendation{}
	defer recoverPass(&err, func() { recs = []Recommendation{} })
	if err := checkSnapshot(snap); err != nil {
		return recs, err
	}

	degrading := make(map[string]bool, len(trends))
	for _, t := range trends {
		if t.IsDegrading {
			degrading[t.Endpoint] = true
		}
	}

	var maxReq int
	var maxRate float64
	for _, m := range snap.Endpoints {
		maxReq = max(maxReq, m.TotalRequests)
		maxRate = math.Max(maxRate, m.ErrorRate)
	}

	th := e.th
	for _, m := range snap.Endpoints {
		if m.TotalRequests == 0 {
			continue
		}
		volume := ratio(float64(m.TotalRequests), float64(maxReq))
		severity := ratio(m.ErrorRate, maxRate)
		score := 100 * (th.VolumeWeight*volume + th.ErrorWeight*severity)
		if degrading[m.Endpoint] {
			score += th.DegradingBoost
		}

		var priority Priority
		if m.ErrorRate >= th.SeverityFloorErrorRate {
			priority = PriorityCritical
			score += th.SeverityFloorScore
		} else {
			score = math.Min(score, th.SeverityFloorScore)
			priority = e.scoreBand(score)
		}

		recs = append(recs, Recommendation{
			Endpoint:        m.Endpoint,
			Method:          m.Method,
			Priority:        priority,
			PriorityScore:   Round2(score),
			Description:     describeMetric(m),
			SuggestedAction: priorityAction(priority),
			SuggestedTests:  e.suggestTests(m),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].PriorityScore != recs[j].PriorityScore {
			return recs[i].PriorityScore > recs[j].PriorityScore
		}
		return recs[i].Endpoint < recs[j].Endpoint
	})
	return recs, nil
}

// RegressionRisks lists degrading endpoints scored by the size of the change.
// Without trends there is nothing to report.
func (e *RecommendationEngine) RegressionRisks(snap *Snapshot, trends []Trend) (risks []RegressionRisk, err error) {
	risks = []RegressionRisk{}
	defer recoverPass(&err, func() { risks = []RegressionRisk{} })
	if len(trends) == 0 {
		return risks, nil
	}
	if err := checkSnapshot(snap); err != nil {
		return risks, err
	}

	th := e.th
	for _, t := range trends {
		if !t.IsDegrading {
			continue
		}
		if math.IsNaN(t.ChangePercentage) {
			return []RegressionRisk{}, errInconsistentSnapshot
		}

		var priority Priority
		switch {
		case t.ChangePercentage > th.RegressionCritical:
			priority = PriorityCritical
		case t.ChangePercentage > th.RegressionHigh:
			priority = PriorityHigh
		case t.ChangePercentage > th.RegressionMedium:
			priority = PriorityMedium
		default:
			priority = PriorityLow
		}

		action := fmt.Sprintf("Review recent deploys and dependencies behind %s", t.Endpoint)
		if t.ClientErrorDelta > t.ServerErrorDelta {
			action = fmt.Sprintf("Review recent input-contract changes for %s", t.Endpoint)
		}

		risks = append(risks, RegressionRisk{
			Endpoint:      t.Endpoint,
			Priority:      priority,
			PriorityScore: Round2(t.ChangePercentage),
			Description: fmt.Sprintf("Error rate rose from %.2f%% to %.2f%% (+%.2f pp)",
				t.PreviousErrorRate, t.CurrentErrorRate, t.ChangePercentage),
			SuggestedAction:  action,
			ChangePercentage: t.ChangePercentage,
		})
	}

	sort.SliceStable(risks, func(i, j int) bool {
		if risks[i].ChangePercentage != risks[j].ChangePercentage {
			return risks[i].ChangePercentage > risks[j].ChangePercentage
		}
		return risks[i].Endpoint < risks[j].Endpoint
	})
	return risks, nil
}

// CoverageGaps lists visible endpoints the inventory does not cover.
// Score grows with log-scaled traffic and with error rate, weighted like
// Prioritize. Critical endpoints are lifted above the severity floor score,
// and the priority is banded from the final score so the list order and the
// priorities agree. Without a lookup there is nothing to report. Unknown
// statuses count as not covered.
func (e *RecommendationEngine) CoverageGaps(snap *Snapshot, lookup CoverageLookup) (gaps []CoverageGap, err error) {
	gaps = []CoverageGap{}
	defer recoverPass(&err, func() { gaps = []CoverageGap{} })
	if lookup == nil {
		return gaps, nil
	}
	if err := checkSnapshot(snap); err != nil {
		return gaps, err
	}

	var maxReq int
	var maxRate float64
	for _, m := range snap.Endpoints {
		maxReq = max(maxReq, m.TotalRequests)
		maxRate = math.Max(maxRate, m.ErrorRate)
	}
	maxVolume := math.Log10(1 + float64(maxReq))

	th := e.th
	for _, m := range snap.Endpoints {
		if m.TotalRequests < th.VisibilityThreshold || m.TotalRequests == 0 {
			continue
		}
		status := lookup.IsCovered(m.Endpoint, m.Method)
		if status == CoverageIdentical {
			continue
		}
		if status != CoverageDifferent {
			status = CoverageNotCovered
		}

		volume := ratio(math.Log10(1+float64(m.TotalRequests)), maxVolume)
		severity := ratio(m.ErrorRate, maxRate)
		score := 100 * (th.VolumeWeight*volume + th.ErrorWeight*severity)
		if status == CoverageDifferent {
			score *= partialDiffMultiplier
		}

		var priority Priority
		if snap.IsCritical(m.Endpoint) || m.ErrorRate >= th.SeverityFloorErrorRate {
			priority = PriorityCritical
			score += th.SeverityFloorScore
		} else {
			score = math.Min(score, th.SeverityFloorScore)
			priority = e.scoreBand(score)
		}

		gap := CoverageGap{
			Endpoint:      m.Endpoint,
			Method:        m.Method,
			Status:        status,
			PriorityScore: Round2(score),
			Priority:      priority,
		}
		if status == CoverageDifferent {
			gap.Description = fmt.Sprintf("Inventory has a test for %s but not for %s with this shape (%d requests)", m.Endpoint, m.Method, m.TotalRequests)
			gap.SuggestedAction = fmt.Sprintf("Update the existing test to match production traffic on %s %s", m.Method, m.Endpoint)
		} else {
			gap.Description = fmt.Sprintf("No test in the inventory exercises %s %s (%d requests, %.2f%% errors)", m.Method, m.Endpoint, m.TotalRequests, m.ErrorRate)
			gap.SuggestedAction = fmt.Sprintf("Add a test for %s %s to the inventory", m.Method, m.Endpoint)
		}
		gaps = append(gaps, gap)
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		if gaps[i].PriorityScore != gaps[j].PriorityScore {
			return gaps[i].PriorityScore > gaps[j].PriorityScore
		}
		if ri, rj := gaps[i].Priority.Rank(), gaps[j].Priority.Rank(); ri != rj {
			return ri > rj
		}
		return gaps[i].Endpoint < gaps[j].Endpoint
	})
	return gaps, nil
}

func (e *RecommendationEngine) scoreBand(score float64) Priority {
	switch {
	case score >= e.th.PriorityCriticalScore:
		return PriorityCritical
	case score >= e.th.PriorityHighScore:
		return PriorityHigh
	case score >= e.th.PriorityMediumScore:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// suggestTests applies a fixed rule table and returns one to three tests.
func (e *RecommendationEngine) suggestTests(m *EndpointMetric) []string {
	target := m.Method + " " + m.Endpoint
	var tests []string
	if m.ServerErrors5xx > 0 {
		tests = append(tests, "Server-error and retry test for "+target)
	}
	if m.ClientErrors4xx > 0 {
		tests = append(tests, "Input-validation test for "+target)
	}
	switch strings.ToUpper(m.Method) {
	case "POST", "PUT", "PATCH", "DELETE":
		tests = append(tests, "Idempotency test for "+target)
	}
	if slowest := responseTime(m); slowest != nil && *slowest > e.th.SlowResponseMs {
		tests = append(tests, fmt.Sprintf("Latency budget test for %s (p95 %.0f ms)", target, *slowest))
	}
	if m.TotalErrors == 0 && m.TotalRequests >= e.th.HighVolumeRequests {
		tests = append(tests, "Load/smoke test for "+target)
	}
	if len(tests) == 0 {
		tests = append(tests, "Happy-path contract test for "+target)
	}
	if len(tests) > 3 {
		tests = tests[:3]
	}
	return tests
}

func responseTime(m *EndpointMetric) *float64 {
	if m.P95ResponseTime != nil {
		return m.P95ResponseTime
	}
	return m.AvgResponseTime
}

func describeMetric(m *EndpointMetric) string {
	return fmt.Sprintf("%d requests, %.2f%% error rate (%d 4xx, %d 5xx)",
		m.TotalRequests, m.ErrorRate, m.ClientErrors4xx, m.ServerErrors5xx)
}

func priorityAction(p Priority) string {
	switch p {
	case PriorityCritical:
		return "Add regression tests before the next release and investigate current failures"
	case PriorityHigh:
		return "Add tests in the current iteration"
	case PriorityMedium:
		return "Schedule tests in the backlog"
	default:
		return "Monitor; existing coverage is likely sufficient"
	}
}

func ratio(v, maxV float64) float64 {
	if maxV <= 0 {
		return 0
	}
	return clamp01(v / maxV)
}

// checkSnapshot rejects snapshots whose endpoint data breaks the metric invariants.
func checkSnapshot(snap *Snapshot) error {
	if snap == nil {
		return errMissingSnapshot
	}
	for _, m := range snap.Endpoints {
		if m == nil ||
			m.TotalRequests < 0 ||
			m.ClientErrors4xx < 0 || m.ServerErrors5xx < 0 ||
			m.TotalErrors != m.ClientErrors4xx+m.ServerErrors5xx ||
			m.TotalErrors > m.TotalRequests ||
			math.IsNaN(m.ErrorRate) || m.ErrorRate < 0 || m.ErrorRate > 100 {
			return errInconsistentSnapshot
		}
	}
	return nil
}

func recoverPass(err *error, reset func()) {
	if r := recover(); r != nil {
		reset()
		*err = fmt.Errorf("recovered: %v", r)
	}
}
