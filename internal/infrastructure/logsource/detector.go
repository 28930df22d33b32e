package logsource

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// DetectFormat examines file content to determine the export format.
// Content sniffing wins; the extension is used when content is ambiguous.
func DetectFormat(path string) (Format, error) {
	head, err := readHead(path, 4096)
	if err != nil {
		return FormatAuto, err
	}
	byExt := detectFromExtension(path)
	format := detectFromContent(head)
	switch {
	case format == FormatJSON && byExt == FormatNDJSON:
		// A single long line may hide the second object from the sniffer.
		return FormatNDJSON, nil
	case format != FormatAuto:
		return format, nil
	case byExt != FormatAuto:
		return byExt, nil
	}
	// Plain text with a header row is the common case for search exports.
	return FormatCSV, nil
}

func detectFromContent(content []byte) Format {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(content, utf8BOM))
	switch {
	case len(trimmed) == 0:
		return FormatAuto
	case trimmed[0] == '[':
		return FormatJSON
	case trimmed[0] == '{':
		if isNDJSON(trimmed) {
			return FormatNDJSON
		}
		return FormatJSON
	}
	return FormatAuto
}

func detectFromExtension(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return FormatCSV
	case ".json":
		return FormatJSON
	case ".ndjson", ".jsonl":
		return FormatNDJSON
	}
	return FormatAuto
}

// isNDJSON reports whether the first two non-empty lines each start an object.
func isNDJSON(content []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 4096), len(content)+1)
	var objects int
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			return false
		}
		objects++
		if objects == 2 {
			return true
		}
	}
	return false
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readHead(path string, n int) ([]byte, error) {
	file, err := openExport(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, n)
	nRead, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:nRead], nil
}
