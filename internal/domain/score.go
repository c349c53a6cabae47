package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Grade is an ordinal 1..5. Zero is the sentinel for "no usable grade".
// It decodes from JSON numbers and numeric strings; anything else decodes to zero.
type Grade int

const (
	MinGrade Grade = 1
	MaxGrade Grade = 5
)

// Usable reports whether g is inside the rubric range.
func (g Grade) Usable() bool { return g >= MinGrade && g <= MaxGrade }

// UnmarshalJSON implements json.Unmarshaler.
func (g *Grade) UnmarshalJSON(b []byte) error {
	*g = SentinelGrade
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	*g = ParseGrade(raw)
	return nil
}

// ParseGrade coerces a decoded JSON value into a grade. Non-integral values
// yield the sentinel.
func ParseGrade(v any) Grade {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return SentinelGrade
		}
		return Grade(int(t))
	case int:
		return Grade(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return SentinelGrade
		}
		return Grade(n)
	case json.Number:
		n, err := strconv.Atoi(t.String())
		if err != nil {
			return SentinelGrade
		}
		return Grade(n)
	default:
		return SentinelGrade
	}
}

// QualityScore returns sum(grade) / (5 * N) where N counts only records with
// a usable grade. It is 0 when nothing is gradable.
func QualityScore(records []GradedRecord) float64 {
	var points, n int
	for _, r := range records {
		if !r.Grade.Usable() {
			continue
		}
		points += int(r.Grade)
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(points) / float64(int(MaxGrade)*n)
}

// Percent renders a score in [0,1] as a percentage with one decimal.
func Percent(score float64) float64 {
	return math.Round(score*1000) / 10
}
