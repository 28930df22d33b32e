package domain

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RawRecord is one loosely-typed record as decoded from a CSV or JSON export.
type RawRecord map[string]any

// NormalizedRow is the canonical shape of one access-log line.
// Optional fields are pointers so that "absent" is never read as zero.
type NormalizedRow struct {
	Endpoint       string
	Method         string
	StatusCode     int
	ResponseTimeMs *float64
	ClientID       *string
	Timestamp      time.Time
}

// IsError reports whether the row counts as a failed request.
func (r NormalizedRow) IsError() bool { return r.StatusCode >= 400 }

// IsClientError reports a 4xx status.
func (r NormalizedRow) IsClientError() bool { return r.StatusCode >= 400 && r.StatusCode < 500 }

// IsServerError reports a 5xx status (anything >= 500).
func (r NormalizedRow) IsServerError() bool { return r.StatusCode >= 500 }

// Field aliases, matched case-insensitively in order.
var (
	endpointKeys  = []string{"endpoint", "path", "uri", "url", "uri_path", "request_path", "route"}
	methodKeys    = []string{"method", "http_method", "verb", "request_method"}
	statusKeys    = []string{"status", "status_code", "statuscode", "http_status", "response_code"}
	durationKeys  = []string{"response_time", "response_time_ms", "duration_ms", "duration", "latency", "latency_ms", "elapsed_ms", "time_taken"}
	clientKeys    = []string{"client_id", "clientid", "client", "user_id", "consumer", "api_key_id", "client_ip", "remote_ip"}
	timestampKeys = []string{"timestamp", "_time", "time", "@timestamp", "date"}
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// DefaultMethod is used when a record carries no method.
const DefaultMethod = "GET"

// NormalizeRow converts a raw record into a NormalizedRow.
//
// The endpoint and a valid HTTP status code are required; anything else that
// is missing or unparseable is left absent. Unknown fields are ignored.
func NormalizeRow(rec RawRecord) (NormalizedRow, error) {
	fields := make(map[string]any, len(rec))
	origin := make(map[string]string, len(rec))
	for k, v := range rec {
		name := strings.ToLower(strings.TrimSpace(k))
		if current, seen := origin[name]; seen && !preferKey(k, current, name) {
			continue
		}
		fields[name] = v
		origin[name] = k
	}

	rawEndpoint, ok := lookupString(fields, endpointKeys)
	if !ok {
		return NormalizedRow{}, &MalformedRowError{Field: "endpoint", Reason: "missing or empty"}
	}
	endpoint := NormalizeEndpoint(rawEndpoint)
	if endpoint == "" {
		return NormalizedRow{}, &MalformedRowError{Field: "endpoint", Reason: "not a path: " + rawEndpoint}
	}

	status, ok := lookupStatus(fields)
	if !ok {
		return NormalizedRow{}, &MalformedRowError{Field: "status_code", Reason: "missing or not an HTTP status"}
	}

	row := NormalizedRow{
		Endpoint:   endpoint,
		Method:     DefaultMethod,
		StatusCode: status,
	}
	if m, ok := lookupString(fields, methodKeys); ok {
		row.Method = strings.ToUpper(m)
	}
	if v, ok := lookup(fields, durationKeys); ok {
		if f, ok := toFloat(v); ok && f >= 0 {
			row.ResponseTimeMs = &f
		}
	}
	if c, ok := lookupString(fields, clientKeys); ok {
		row.ClientID = &c
	}
	if v, ok := lookup(fields, timestampKeys); ok {
		row.Timestamp = parseTimestamp(v)
	}
	return row, nil
}

// preferKey picks between two keys that fold to the same field name. The
// spelling that is already normalized wins, then the lexically smaller one.
func preferKey(candidate, current, name string) bool {
	if (candidate == name) != (current == name) {
		return candidate == name
	}
	return candidate < current
}

// NormalizeEndpoint returns the aggregation key for a raw path or URL.
//
// The rule: trim whitespace; keep only the path of absolute URLs; drop the
// query string and fragment; collapse repeated slashes; ensure a leading
// slash; strip a trailing slash except for the root. Case is preserved.
// It returns "" when nothing path-like remains.
func NormalizeEndpoint(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "://"); i >= 0 {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			s = u.EscapedPath()
		} else {
			rest := s[i+3:]
			if j := strings.IndexByte(rest, '/'); j >= 0 {
				s = rest[j:]
			} else {
				s = "/"
			}
		}
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	if len(s) > 1 {
		s = strings.TrimRight(s, "/")
		if s == "" {
			s = "/"
		}
	}
	return s
}

// NormalizeResult is the outcome of normalizing a batch.
type NormalizeResult struct {
	Rows    []NormalizedRow
	Skipped int
	// Errors holds up to MaxReportedRowErrors examples for diagnostics.
	Errors []error
}

// MaxReportedRowErrors caps NormalizeResult.Errors.
const MaxReportedRowErrors = 10

// NormalizeAll normalizes records, skipping and counting malformed ones.
// With workers > 1 the records are split into contiguous chunks processed
// concurrently; output order always matches input order.
func NormalizeAll(records []RawRecord, workers int) NormalizeResult {
	if workers < 1 {
		workers = 1
	}
	if workers > len(records) {
		workers = len(records)
	}
	if workers <= 1 {
		return normalizeChunk(records)
	}

	chunk := (len(records) + workers - 1) / workers
	parts := make([]NormalizeResult, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, len(records))
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(idx int, recs []RawRecord) {
			defer wg.Done()
			parts[idx] = normalizeChunk(recs)
		}(w, records[start:end])
	}
	wg.Wait()

	out := NormalizeResult{Rows: make([]NormalizedRow, 0, len(records))}
	for _, p := range parts {
		out.Rows = append(out.Rows, p.Rows...)
		out.Skipped += p.Skipped
		for _, err := range p.Errors {
			if len(out.Errors) < MaxReportedRowErrors {
				out.Errors = append(out.Errors, err)
			}
		}
	}
	return out
}

func normalizeChunk(records []RawRecord) NormalizeResult {
	res := NormalizeResult{Rows: make([]NormalizedRow, 0, len(records))}
	for _, rec := range records {
		row, err := NormalizeRow(rec)
		if err != nil {
			res.Skipped++
			if len(res.Errors) < MaxReportedRowErrors {
				res.Errors = append(res.Errors, err)
			}
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

func lookup(fields map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func lookupString(fields map[string]any, keys []string) (string, bool) {
	v, ok := lookup(fields, keys)
	if !ok {
		return "", false
	}
	s, ok := toString(v)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func lookupStatus(fields map[string]any) (int, bool) {
	v, ok := lookup(fields, statusKeys)
	if !ok {
		return 0, false
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || f < 100 || f > 599 {
		return 0, false
	}
	return int(f), true
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseTimestamp(v any) time.Time {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	if f, ok := toFloat(v); ok && f > 0 {
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return time.Time{}
}
