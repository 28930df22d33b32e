package logsource

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/logpulse/internal/domain"
)

// CSVReader reads delimited exports with a header row.
// The delimiter is sniffed from the header among comma, tab, semicolon and pipe.
type CSVReader struct{}

func (CSVReader) Format() Format { return FormatCSV }

func (c CSVReader) Read(ctx context.Context, path string) ([]domain.RawRecord, error) {
	file, err := openExport(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return c.Decode(ctx, file)
}

// Decode reads CSV records from r.
func (CSVReader) Decode(ctx context.Context, r io.Reader) ([]domain.RawRecord, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(len(utf8BOM)); err == nil && string(bom) == string(utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	headerLine, err := br.Peek(peekSize(br))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(firstLine(headerLine))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	// Columns whose names differ only in case collapse to the first one.
	seen := make(map[string]bool, len(header))
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		folded := strings.ToLower(header[i])
		if seen[folded] {
			header[i] = ""
			continue
		}
		seen[folded] = true
	}

	var records []domain.RawRecord
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		rec := make(domain.RawRecord, len(header))
		for i, name := range header {
			if name == "" || i >= len(row) {
				continue
			}
			rec[name] = row[i]
		}
		records = append(records, rec)
	}
	return records, nil
}

func peekSize(br *bufio.Reader) int {
	if n := br.Buffered(); n > 0 {
		return n
	}
	// Force a fill, then peek whatever arrived.
	_, _ = br.Peek(1)
	return br.Buffered()
}

func firstLine(b []byte) string {
	s := string(b)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

func sniffDelimiter(header string) rune {
	best, bestCount := ',', 0
	for _, d := range []rune{',', '\t', ';', '|'} {
		if n := strings.Count(header, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
