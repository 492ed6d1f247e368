// Package vector provides the vector math behind embeddings: normalization,
// modality fusion and the distance metrics used for nearest-neighbour search.
package vector

import (
	"errors"
	"fmt"
	"math"
)

// ZeroNormEpsilon is the norm below which a vector is treated as having no direction.
const ZeroNormEpsilon = 1e-6

var (
	ErrZeroNorm          = errors.New("vector has zero norm")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Dot returns the inner product of a and b computed in float64.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

// Normalize returns v scaled to unit length. The input is not modified.
func Normalize(v []float32) ([]float32, error) {
	norm := Norm(v)
	if norm < ZeroNormEpsilon || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, ErrZeroNorm
	}

	result := make([]float32, len(v))
	for i, x := range v {
		result[i] = float32(float64(x) / norm)
	}
	return result, nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// Fuse linearly interpolates two modality vectors and re-normalizes:
// normalize(alpha*text + (1-alpha)*image). Both inputs are expected to be
// unit length already.
func Fuse(text, image []float32, alpha float64) ([]float32, error) {
	if len(text) != len(image) {
		return nil, fmt.Errorf("%w: text %d, image %d", ErrDimensionMismatch, len(text), len(image))
	}
	if alpha < 0 || alpha > 1 || math.IsNaN(alpha) {
		return nil, fmt.Errorf("fusion weight %v outside [0,1]", alpha)
	}

	mixed := make([]float64, len(text))
	var sq float64
	for i := range text {
		mixed[i] = alpha*float64(text[i]) + (1-alpha)*float64(image[i])
		sq += mixed[i] * mixed[i]
	}

	norm := math.Sqrt(sq)
	if norm < ZeroNormEpsilon {
		return nil, ErrZeroNorm
	}

	result := make([]float32, len(mixed))
	for i, x := range mixed {
		result[i] = float32(x / norm)
	}
	return result, nil
}
