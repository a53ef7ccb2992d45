package similarity

import (
	"fmt"
	"math"

	"github.com/poiesic/etoile/core"
)

// Cosine returns dot(a,b) / (|a| * |b|), clamped to [-1, 1].
//
// Vectors of different length fail with core.ErrMissingVectorDimension and
// a zero-magnitude operand fails with ErrZeroMagnitude; callers exclude
// such records from candidacy.
func Cosine(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", core.ErrMissingVectorDimension, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, ErrZeroMagnitude
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return float32(sim), nil
}

// Magnitude returns the Euclidean norm of v.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. The zero vector is returned
// as a zero vector of the same length.
func Normalize(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}
	result := make([]float32, len(v))
	magnitude := Magnitude(v)
	if magnitude == 0 {
		return result
	}
	for i, x := range v {
		result[i] = float32(float64(x) / magnitude)
	}
	return result
}
