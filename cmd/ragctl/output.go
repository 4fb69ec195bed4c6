package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bull/statute-rag/internal/api"
	"github.com/bull/statute-rag/internal/storage"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func statsJSON(s *storage.Stats) api.StatsResponse {
	return api.StatsResponse{
		RecordCount:    s.RecordCount,
		Dimension:      s.Dimension,
		DistanceMetric: string(s.Distance),
		CollectionName: s.Collection,
	}
}

// parseFilterFlags turns repeated --filter values into an exact-match filter.
// Each value is either a JSON object or a key=value pair; key=value values
// that parse as integers or booleans are matched as such.
func parseFilterFlags(pairs []string) (*storage.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	raw := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		if strings.HasPrefix(strings.TrimSpace(pair), "{") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(pair), &obj); err != nil {
				return nil, fmt.Errorf("%w: %v", storage.ErrInvalidFilter, err)
			}
			for k, v := range obj {
				raw[k] = v
			}
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: expected key=value or a JSON object, got %q", storage.ErrInvalidFilter, pair)
		}
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			raw[key] = i
		} else if b, err := strconv.ParseBool(value); err == nil {
			raw[key] = b
		} else {
			raw[key] = value
		}
	}
	return storage.ParseFilter(raw)
}

// preview shortens text to n runes on one line.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}
