// Package embedding defines the fixed-length face embedding vector and the
// distance functions used to compare them.
package embedding

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Vector is a face embedding produced by the external feature extractor.
// All vectors in one gallery share the same length (commonly 128 or 512).
type Vector []float32

// Dim returns the dimensionality of the vector.
func (v Vector) Dim() int {
	return len(v)
}

// Clone returns a copy that does not share the backing array.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Validate checks that the vector is non-empty and every element is finite.
func Validate(v Vector) error {
	if len(v) == 0 {
		return &ValidationError{Reason: "embedding is empty"}
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &ValidationError{Reason: fmt.Sprintf("element %d is not finite (%v)", i, x)}
		}
	}
	return nil
}

// ValidateDim runs Validate and additionally requires len(v) == dim when dim > 0.
func ValidateDim(v Vector, dim int) error {
	if err := Validate(v); err != nil {
		return err
	}
	if dim > 0 && len(v) != dim {
		return &ValidationError{
			Reason: fmt.Sprintf("embedding has %d dimensions, gallery is locked to %d", len(v), dim),
		}
	}
	return nil
}

// Parse reads a comma-separated list of numbers, e.g. "0.1, 0.2, -0.3".
func Parse(s string) (Vector, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if strings.TrimSpace(s) == "" {
		return nil, &ValidationError{Reason: "embedding is empty"}
	}

	parts := strings.Split(s, ",")
	v := make(Vector, 0, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("element %d: %v", i, err)}
		}
		v = append(v, float32(f))
	}
	return v, nil
}

// Format renders the vector in the form accepted by Parse.
func Format(v Vector) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(float64(x), 'g', -1, 32)
	}
	return strings.Join(parts, ",")
}
