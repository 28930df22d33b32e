package logsource

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVReader_Delimiters(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"comma", "uri,status\n/a,200\n"},
		{"tab", "uri\tstatus\n/a\t200\n"},
		{"semicolon", "uri;status\n/a;200\n"},
		{"pipe", "uri|status\n/a|200\n"},
		{"bom and crlf", "\xEF\xBB\xBFuri,status\r\n/a,200\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := CSVReader{}.Decode(context.Background(), strings.NewReader(tt.content))
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "/a", records[0]["uri"])
			assert.Equal(t, "200", records[0]["status"])
		})
	}
}

func TestCSVReader_ShortRowsAndQuotes(t *testing.T) {
	content := "uri,status,client_id\n\"/a,b\",200\n/c,404,abc\n"
	records, err := CSVReader{}.Decode(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "/a,b", records[0]["uri"])
	_, hasClient := records[0]["client_id"]
	assert.False(t, hasClient)
	assert.Equal(t, "abc", records[1]["client_id"])
}

func TestCSVReader_DuplicateHeadersKeepFirstColumn(t *testing.T) {
	content := "uri,Status,status,STATUS\n/a,500,200,404\n"
	records, err := CSVReader{}.Decode(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "500", records[0]["Status"])
	assert.Len(t, records[0], 2)
}

func TestCSVReader_Empty(t *testing.T) {
	records, err := CSVReader{}.Decode(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCSVReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CSVReader{}.Decode(ctx, strings.NewReader("uri,status\n/a,200\n"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestJSONReader_Document(t *testing.T) {
	tests := []struct {
		name    string
		content string
		count   int
	}{
		{"array", `[{"uri":"/a"},{"uri":"/b"}]`, 2},
		{"results wrapper", `{"results":[{"uri":"/a"}]}`, 1},
		{"rows wrapper", `{"rows":[{"uri":"/a"},{"uri":"/b"},{"uri":"/c"}]}`, 3},
		{"elasticsearch hits", `{"hits":{"hits":[{"_source":{"uri":"/a"}}]}}`, 1},
		{"single object", `{"uri":"/a"}`, 1},
		{"empty", ``, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := JSONReader{}.Decode(context.Background(), strings.NewReader(tt.content))
			require.NoError(t, err)
			require.Len(t, records, tt.count)
			if tt.count > 0 {
				assert.Equal(t, "/a", records[0]["uri"])
			}
		})
	}
}

func TestJSONReader_DocumentReadsEveryTopLevelValue(t *testing.T) {
	content := "{\"uri\":\"/a\"}\n{\"result\":{\"uri\":\"/b\"}}\n[{\"uri\":\"/c\"},{\"uri\":\"/d\"}]\n"
	records, err := JSONReader{}.Decode(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "/a", records[0]["uri"])
	assert.Equal(t, "/b", records[1]["uri"])
	assert.Equal(t, "/d", records[3]["uri"])
}

func TestJSONReader_DocumentRejectsTrailingGarbage(t *testing.T) {
	_, err := JSONReader{}.Decode(context.Background(), strings.NewReader(`[{"uri":"/a"}] trailing`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value 2")
}

func TestJSONReader_PreservesNumbers(t *testing.T) {
	records, err := JSONReader{}.Decode(context.Background(), strings.NewReader(`[{"status":503,"latency":12.25}]`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, json.Number("503"), records[0]["status"])
	assert.Equal(t, json.Number("12.25"), records[0]["latency"])
}

func TestJSONReader_Errors(t *testing.T) {
	_, err := JSONReader{}.Decode(context.Background(), strings.NewReader(`[1, 2]`))
	require.Error(t, err)

	_, err = JSONReader{}.Decode(context.Background(), strings.NewReader(`"text"`))
	require.Error(t, err)

	_, err = JSONReader{}.Decode(context.Background(), strings.NewReader(`[{"uri":`))
	require.Error(t, err)
}

func TestJSONReader_Lines(t *testing.T) {
	content := "{\"uri\":\"/a\"}\n\n{\"result\":{\"uri\":\"/b\"}}\n"
	records, err := JSONReader{Lines: true}.Decode(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "/a", records[0]["uri"])
	assert.Equal(t, "/b", records[1]["uri"])
}

func TestJSONReader_LinesReportsLineNumber(t *testing.T) {
	content := "{\"uri\":\"/a\"}\nnot json\n"
	_, err := JSONReader{Lines: true}.Decode(context.Background(), strings.NewReader(content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReaderFormats(t *testing.T) {
	assert.Equal(t, FormatCSV, CSVReader{}.Format())
	assert.Equal(t, FormatJSON, JSONReader{}.Format())
	assert.Equal(t, FormatNDJSON, JSONReader{Lines: true}.Format())
}
