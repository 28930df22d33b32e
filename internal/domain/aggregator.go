package domain

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// endpointAccumulator collects the running totals of one endpoint.
type endpointAccumulator struct {
	requests  int
	errors4xx int
	errors5xx int
	durations []float64
	clients   map[string]struct{}
	methods   map[string]int
}

func newEndpointAccumulator() *endpointAccumulator {
	return &endpointAccumulator{
		clients: make(map[string]struct{}),
		methods: make(map[string]int),
	}
}

func (e *endpointAccumulator) add(row NormalizedRow) {
	e.requests++
	switch {
	case row.IsServerError():
		e.errors5xx++
	case row.IsClientError():
		e.errors4xx++
	}
	if row.ResponseTimeMs != nil {
		e.durations = append(e.durations, *row.ResponseTimeMs)
	}
	if row.ClientID != nil {
		e.clients[*row.ClientID] = struct{}{}
	}
	e.methods[row.Method]++
}

func (e *endpointAccumulator) merge(o *endpointAccumulator) {
	e.requests += o.requests
	e.errors4xx += o.errors4xx
	e.errors5xx += o.errors5xx
	e.durations = append(e.durations, o.durations...)
	for c := range o.clients {
		e.clients[c] = struct{}{}
	}
	for m, n := range o.methods {
		e.methods[m] += n
	}
}

// dominantMethod returns the most frequent method, ties broken alphabetically.
func (e *endpointAccumulator) dominantMethod() string {
	best, bestN := "", -1
	for m, n := range e.methods {
		if n > bestN || (n == bestN && m < best) {
			best, bestN = m, n
		}
	}
	if best == "" {
		return DefaultMethod
	}
	return best
}

func (e *endpointAccumulator) metric(endpoint string) *EndpointMetric {
	errs := e.errors4xx + e.errors5xx
	m := &EndpointMetric{
		Endpoint:        endpoint,
		Method:          e.dominantMethod(),
		TotalRequests:   e.requests,
		TotalErrors:     errs,
		ClientErrors4xx: e.errors4xx,
		ServerErrors5xx: e.errors5xx,
		ErrorRate:       PercentageFromRatio(errs, e.requests).Value(),
		UniqueClients:   len(e.clients),
	}
	if len(e.durations) > 0 {
		// Sorting first keeps the float sum independent of row order.
		sorted := append([]float64(nil), e.durations...)
		sort.Float64s(sorted)
		avg := stat.Mean(sorted, nil)
		p95 := stat.Quantile(0.95, stat.Empirical, sorted, nil)
		m.AvgResponseTime = &avg
		m.P95ResponseTime = &p95
	}
	return m
}

// Accumulator is the per-endpoint fold behind aggregation. Accumulators built
// over disjoint chunks of input can be merged; merging in chunk order yields
// the same snapshot as a single pass over the whole input.
type Accumulator struct {
	byKey map[string]*endpointAccumulator
	order []string
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{byKey: make(map[string]*endpointAccumulator)}
}

// Add folds one row into the accumulator.
func (a *Accumulator) Add(row NormalizedRow) {
	acc, ok := a.byKey[row.Endpoint]
	if !ok {
		acc = newEndpointAccumulator()
		a.byKey[row.Endpoint] = acc
		a.order = append(a.order, row.Endpoint)
	}
	acc.add(row)
}

// Merge folds other into a. Endpoints first seen in other are appended
// after those already known to a.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil {
		return
	}
	for _, key := range other.order {
		src := other.byKey[key]
		if dst, ok := a.byKey[key]; ok {
			dst.merge(src)
			continue
		}
		cp := newEndpointAccumulator()
		cp.merge(src)
		a.byKey[key] = cp
		a.order = append(a.order, key)
	}
}

// Len returns the number of distinct endpoints seen.
func (a *Accumulator) Len() int {
	return len(a.order)
}

// Aggregator turns normalized rows into snapshots.
type Aggregator struct {
	now    func() time.Time
	events *EventCollector
}

// NewAggregator creates an Aggregator using the wall clock.
func NewAggregator() *Aggregator {
	return NewAggregatorWithClock(time.Now)
}

// NewAggregatorWithClock creates an Aggregator with an injected clock.
func NewAggregatorWithClock(now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{now: now, events: NewEventCollector()}
}

// Aggregate builds a snapshot from rows. Zero rows yield a valid all-zero snapshot.
func (a *Aggregator) Aggregate(rows []NormalizedRow, window time.Duration, th Thresholds) *Snapshot {
	acc := NewAccumulator()
	for _, r := range rows {
		acc.Add(r)
	}
	return a.Build(acc, window, th)
}

// Build materializes a snapshot from an accumulator.
func (a *Aggregator) Build(acc *Accumulator, window time.Duration, th Thresholds) *Snapshot {
	// Microseconds survive every store, PostgreSQL timestamptz included.
	ts := a.now().UTC().Truncate(time.Microsecond)
	snap := &Snapshot{
		ID:         ts.Format(SnapshotIDLayout),
		Timestamp:  ts,
		TimeWindow: window,
		Endpoints:  make([]*EndpointMetric, 0),
		Critical:   make([]*EndpointMetric, 0),
		MostUsed:   make([]*EndpointMetric, 0),
		MostFailed: make([]*EndpointMetric, 0),
	}
	if acc == nil {
		return snap
	}

	for _, key := range acc.order {
		m := acc.byKey[key].metric(key)
		snap.Endpoints = append(snap.Endpoints, m)
		snap.Overall.TotalRequests += m.TotalRequests
		snap.Overall.TotalErrors += m.TotalErrors
		snap.Overall.ClientErrors4xx += m.ClientErrors4xx
		snap.Overall.ServerErrors5xx += m.ServerErrors5xx
	}
	snap.Overall.UniqueEndpoints = len(snap.Endpoints)
	snap.Overall.OverallErrorRate = PercentageFromRatio(snap.Overall.TotalErrors, snap.Overall.TotalRequests).Value()

	for _, m := range snap.Endpoints {
		if m.TotalRequests >= th.CriticalMinRequests && m.ErrorRate >= th.CriticalErrorRate && m.TotalRequests > 0 {
			snap.Critical = append(snap.Critical, m)
			a.events.Record(NewCriticalEndpointEvent(ts, *m))
		}
	}
	sortView(snap.Critical, func(m *EndpointMetric) float64 { return m.ErrorRate })

	snap.MostUsed = topN(snap.Endpoints, th.TopN, func(m *EndpointMetric) float64 {
		return float64(m.TotalRequests)
	})
	failing := make([]*EndpointMetric, 0, len(snap.Endpoints))
	for _, m := range snap.Endpoints {
		if m.TotalErrors > 0 {
			failing = append(failing, m)
		}
	}
	snap.MostFailed = topN(failing, th.TopN, func(m *EndpointMetric) float64 {
		return float64(m.TotalErrors)
	})
	return snap
}

// Events returns the events recorded while building snapshots.
func (a *Aggregator) Events() []DomainEvent {
	return a.events.Events()
}

// ClearEvents clears recorded events.
func (a *Aggregator) ClearEvents() {
	a.events.Clear()
}

// sortView orders by key descending, then endpoint ascending.
func sortView(view []*EndpointMetric, key func(*EndpointMetric) float64) {
	sort.SliceStable(view, func(i, j int) bool {
		ki, kj := key(view[i]), key(view[j])
		if ki != kj {
			return ki > kj
		}
		return view[i].Endpoint < view[j].Endpoint
	})
}

func topN(src []*EndpointMetric, n int, key func(*EndpointMetric) float64) []*EndpointMetric {
	view := append(make([]*EndpointMetric, 0, len(src)), src...)
	sortView(view, key)
	if n >= 0 && len(view) > n {
		view = view[:n]
	}
	return view
}
