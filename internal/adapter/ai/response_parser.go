// Package ai holds the provider-independent pieces of talking to an LLM:
// parsing free-text replies, retrying calls, and gating them through a rate limiter.
package ai

import (
	"encoding/json"
	"strings"
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// ExtractArray decodes the JSON array embedded in a model reply. It takes the
// text between the first '[' and the last ']' and decodes it strictly. Any
// failure yields an empty, non-nil slice; malformed JSON is never repaired.
func ExtractArray[T any](text string) []T {
	text = lineBreaks.Replace(text)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return []T{}
	}
	var out []T
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil || out == nil {
		return []T{}
	}
	return out
}

// ExtractTag returns the trimmed text between the first <tag> and the first
// </tag>, or "" when either is missing or they are out of order.
func ExtractTag(text, tag string) string {
	open, closing := "<"+tag+">", "</"+tag+">"
	start := strings.Index(text, open)
	end := strings.Index(text, closing)
	if start == -1 || end == -1 {
		return ""
	}
	start += len(open)
	if end < start {
		return ""
	}
	return strings.TrimSpace(text[start:end])
}

// FilterComplete keeps the records that carry a non-null value for every
// required key. Order is preserved and the filter is idempotent.
func FilterComplete(records []map[string]any, required ...string) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		if complete(r, required) {
			out = append(out, r)
		}
	}
	return out
}

func complete(r map[string]any, required []string) bool {
	if r == nil {
		return false
	}
	for _, k := range required {
		if v, ok := r[k]; !ok || v == nil {
			return false
		}
	}
	return true
}

// DecodeRecords converts generic records into T through a JSON round trip.
// Records that do not fit T are dropped.
func DecodeRecords[T any](records []map[string]any) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			continue
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
