package logsource

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/felixgeelhaar/logpulse/internal/domain"
)

// JSONReader reads JSON exports.
//
// A document is either an array of objects or an object wrapping one under
// "results", "rows", "data" or "hits". With Lines set, each line is one
// object (NDJSON). Search-export envelopes such as {"result": {...}} are
// unwrapped in both modes.
type JSONReader struct {
	Lines bool
}

func (j JSONReader) Format() Format {
	if j.Lines {
		return FormatNDJSON
	}
	return FormatJSON
}

func (j JSONReader) Read(ctx context.Context, path string) ([]domain.RawRecord, error) {
	file, err := openExport(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return j.Decode(ctx, file)
}

// Decode reads JSON records from r.
func (j JSONReader) Decode(ctx context.Context, r io.Reader) ([]domain.RawRecord, error) {
	if j.Lines {
		return decodeLines(ctx, r)
	}
	return decodeDocument(ctx, r)
}

var wrapperKeys = []string{"results", "rows", "data", "hits"}

var envelopeKeys = []string{"result", "_source"}

// decodeDocument reads every top-level value in r. Line-oriented exports
// that were not detected as NDJSON (long first lines, a .json name) arrive
// here as a stream of objects, so nothing after the first value is dropped.
func decodeDocument(ctx context.Context, r io.Reader) ([]domain.RawRecord, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	dec.UseNumber()

	var records []domain.RawRecord
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var doc any
		if err := dec.Decode(&doc); err != nil {
			if err == io.EOF {
				return records, nil
			}
			return nil, fmt.Errorf("decode json export: value %d: %w", n+1, err)
		}

		items, err := recordItems(doc)
		if err != nil {
			return nil, err
		}
		for i, item := range items {
			rec, ok := toRecord(item)
			if !ok {
				return nil, fmt.Errorf("decode json export: element %d is not an object", i)
			}
			records = append(records, rec)
		}
	}
}

func recordItems(doc any) ([]any, error) {
	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range wrapperKeys {
			inner, ok := v[key]
			if !ok {
				continue
			}
			// Elasticsearch nests hits one level deeper.
			if m, isMap := inner.(map[string]any); isMap {
				return recordItems(m)
			}
			if arr, isArr := inner.([]any); isArr {
				return arr, nil
			}
		}
		return []any{v}, nil
	default:
		return nil, fmt.Errorf("decode json export: unexpected top-level %T", doc)
	}
}

func decodeLines(ctx context.Context, r io.Reader) ([]domain.RawRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var records []domain.RawRecord
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if lineNo == 1 {
			line = bytes.TrimPrefix(line, utf8BOM)
		}
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var item any
		if err := dec.Decode(&item); err != nil {
			return nil, fmt.Errorf("decode ndjson line %d: %w", lineNo, err)
		}
		rec, ok := toRecord(item)
		if !ok {
			return nil, fmt.Errorf("decode ndjson line %d: not an object", lineNo)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func toRecord(item any) (domain.RawRecord, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, key := range envelopeKeys {
		if inner, ok := m[key].(map[string]any); ok {
			m = inner
			break
		}
	}
	return domain.RawRecord(m), true
}
