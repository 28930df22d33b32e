// Package inventory loads the list of endpoints exercised by existing tests.
package inventory

import (
	"strings"

	"github.com/felixgeelhaar/logpulse/internal/domain"
)

// Entry is one tested endpoint. An empty Method matches any method.
type Entry struct {
	Path   string                `yaml:"path" json:"path"`
	Method string                `yaml:"method,omitempty" json:"method,omitempty"`
	Status domain.CoverageStatus `yaml:"status,omitempty" json:"status,omitempty"`
	Name   string                `yaml:"name,omitempty" json:"name,omitempty"`
}

// Inventory answers coverage questions for analyzed endpoints.
type Inventory struct {
	entries []Entry
}

// New normalizes entries and drops the ones without a usable path.
func New(entries []Entry) *Inventory {
	inv := &Inventory{entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		path := domain.NormalizeEndpoint(stripHostVariable(e.Path))
		if path == "" {
			continue
		}
		e.Path = path
		e.Method = strings.ToUpper(strings.TrimSpace(e.Method))
		if e.Status == "" {
			e.Status = domain.CoverageIdentical
		}
		inv.entries = append(inv.entries, e)
	}
	return inv
}

// Len returns the number of usable entries.
func (inv *Inventory) Len() int { return len(inv.entries) }

// IsCovered reports identical when an entry matches path and method,
// different when only the path matches, and not_covered otherwise.
// Path parameters such as :id, {id} or {{id}} match any single segment.
func (inv *Inventory) IsCovered(endpoint, method string) domain.CoverageStatus {
	method = strings.ToUpper(method)
	best := domain.CoverageNotCovered
	for _, e := range inv.entries {
		if !pathMatches(e.Path, endpoint) {
			continue
		}
		if e.Method != "" && e.Method != method {
			best = domain.CoverageDifferent
			continue
		}
		if e.Status == domain.CoverageIdentical {
			return domain.CoverageIdentical
		}
		best = e.Status
	}
	return best
}

func pathMatches(pattern, path string) bool {
	if pattern == path {
		return true
	}
	ps := strings.Split(pattern, "/")
	xs := strings.Split(path, "/")
	if len(ps) != len(xs) {
		return false
	}
	for i := range ps {
		if ps[i] == xs[i] || isParam(ps[i]) {
			continue
		}
		return false
	}
	return true
}

func isParam(segment string) bool {
	return strings.HasPrefix(segment, ":") ||
		(strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}"))
}

// stripHostVariable removes a leading {{baseUrl}}-style variable.
func stripHostVariable(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{{") {
		return raw
	}
	end := strings.Index(raw, "}}")
	if end < 0 {
		return raw
	}
	return raw[end+2:]
}
