package domain

import "time"

// DomainEvent represents a significant occurrence in the domain.
type DomainEvent interface {
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
	// EventType returns the type of event.
	EventType() string
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	occurredAt time.Time
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}

// NewBaseEvent creates a base event stamped with at.
func NewBaseEvent(at time.Time) BaseEvent {
	return BaseEvent{occurredAt: at}
}

// CriticalEndpointEvent is raised when an endpoint crosses both critical thresholds.
type CriticalEndpointEvent struct {
	BaseEvent
	Endpoint      string
	TotalRequests int
	ErrorRate     float64
}

// EventType returns the event type identifier.
func (e CriticalEndpointEvent) EventType() string {
	return "CriticalEndpoint"
}

// NewCriticalEndpointEvent creates a new CriticalEndpointEvent.
func NewCriticalEndpointEvent(at time.Time, m EndpointMetric) CriticalEndpointEvent {
	return CriticalEndpointEvent{
		BaseEvent:     NewBaseEvent(at),
		Endpoint:      m.Endpoint,
		TotalRequests: m.TotalRequests,
		ErrorRate:     m.ErrorRate,
	}
}

// EndpointDegradedEvent is raised when an endpoint's error rate rises past the degrading threshold.
type EndpointDegradedEvent struct {
	BaseEvent
	Endpoint string
	Previous float64
	Current  float64
	Delta    float64
}

// EventType returns the event type identifier.
func (e EndpointDegradedEvent) EventType() string {
	return "EndpointDegraded"
}

// NewEndpointDegradedEvent creates a new EndpointDegradedEvent.
func NewEndpointDegradedEvent(at time.Time, endpoint string, previous, current float64) EndpointDegradedEvent {
	return EndpointDegradedEvent{
		BaseEvent: NewBaseEvent(at),
		Endpoint:  endpoint,
		Previous:  previous,
		Current:   current,
		Delta:     current - previous,
	}
}

// EndpointImprovedEvent is raised when an endpoint's error rate falls past the improving threshold.
type EndpointImprovedEvent struct {
	BaseEvent
	Endpoint string
	Previous float64
	Current  float64
	Delta    float64
}

// EventType returns the event type identifier.
func (e EndpointImprovedEvent) EventType() string {
	return "EndpointImproved"
}

// NewEndpointImprovedEvent creates a new EndpointImprovedEvent.
func NewEndpointImprovedEvent(at time.Time, endpoint string, previous, current float64) EndpointImprovedEvent {
	return EndpointImprovedEvent{
		BaseEvent: NewBaseEvent(at),
		Endpoint:  endpoint,
		Previous:  previous,
		Current:   current,
		Delta:     current - previous,
	}
}

// EventCollector collects domain events for later publishing.
type EventCollector struct {
	events []DomainEvent
}

// NewEventCollector creates a new event collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{
		events: make([]DomainEvent, 0),
	}
}

// Record adds an event to the collector.
func (c *EventCollector) Record(event DomainEvent) {
	c.events = append(c.events, event)
}

// Events returns all collected events.
func (c *EventCollector) Events() []DomainEvent {
	return c.events
}

// Clear removes all collected events.
func (c *EventCollector) Clear() {
	c.events = make([]DomainEvent, 0)
}

// HasEvents returns true if there are any collected events.
func (c *EventCollector) HasEvents() bool {
	return len(c.events) > 0
}
