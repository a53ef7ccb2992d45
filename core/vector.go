package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseVector parses the stringified form of a vector, "[0.1, -0.2, ...]",
// as written by the corpus CSV and by pgvector's text output.
// An empty string yields a nil vector.
func ParseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var values []float32
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		return nil, fmt.Errorf("parse vector: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

// FormatVector renders a vector in the bracketed form accepted by ParseVector.
func FormatVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
