package inventory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Postman collection v2.1, only the parts needed to list requests.
type postmanCollection struct {
	Info struct {
		Name   string `json:"name"`
		Schema string `json:"schema"`
	} `json:"info"`
	Item []postmanItem `json:"item"`
}

type postmanItem struct {
	Name    string          `json:"name"`
	Item    []postmanItem   `json:"item"`
	Request *postmanRequest `json:"request"`
}

type postmanRequest struct {
	Method string          `json:"method"`
	URL    json.RawMessage `json:"url"`
}

type postmanURL struct {
	Raw  string   `json:"raw"`
	Path []string `json:"path"`
}

func parsePostman(data []byte) ([]Entry, error) {
	var col postmanCollection
	if err := json.Unmarshal(data, &col); err != nil {
		return nil, fmt.Errorf("decode postman collection: %w", err)
	}
	var entries []Entry
	walkPostman(col.Item, "", &entries)
	return entries, nil
}

func walkPostman(items []postmanItem, folder string, out *[]Entry) {
	for _, item := range items {
		name := item.Name
		if folder != "" {
			name = folder + " / " + item.Name
		}
		if len(item.Item) > 0 {
			walkPostman(item.Item, name, out)
			continue
		}
		if item.Request == nil {
			continue
		}
		path := postmanPath(item.Request.URL)
		if path == "" {
			continue
		}
		*out = append(*out, Entry{
			Path:   path,
			Method: item.Request.Method,
			Name:   name,
		})
	}
}

// postmanPath accepts the url as a plain string or as an object; the
// structured path wins over raw because raw embeds host variables.
func postmanPath(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var u postmanURL
	if err := json.Unmarshal(raw, &u); err != nil {
		return ""
	}
	if len(u.Path) > 0 {
		return "/" + strings.Join(u.Path, "/")
	}
	return u.Raw
}

// isPostman reports whether a JSON document looks like a Postman collection.
func isPostman(data []byte) bool {
	var probe struct {
		Info *struct {
			Schema string `json:"schema"`
		} `json:"info"`
		Item json.RawMessage `json:"item"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	if probe.Info != nil && strings.Contains(probe.Info.Schema, "getpostman.com") {
		return true
	}
	return probe.Info != nil && len(probe.Item) > 0
}
