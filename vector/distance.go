package vector

import (
	"fmt"
	"math"
	"strings"
)

// Metric selects the geometry used to order nearest neighbours.
type Metric string

const (
	Cosine    Metric = "cosine"
	Euclidean Metric = "euclidean"
)

// ParseMetric accepts "cosine" or "euclidean" (also "l2"), case-insensitively.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return Cosine, nil
	case "euclidean", "l2":
		return Euclidean, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q (supported: cosine, euclidean)", s)
	}
}

// CosineDistance is 1 - cosine similarity, matching pgvector's <=> operator.
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// EuclideanDistance matches pgvector's <-> operator.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Distance dispatches on the metric.
func (m Metric) Distance(a, b []float32) float64 {
	if m == Euclidean {
		return EuclideanDistance(a, b)
	}
	return CosineDistance(a, b)
}
