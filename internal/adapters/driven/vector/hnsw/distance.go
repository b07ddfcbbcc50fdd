package hnsw

import (
	"fmt"
	"math"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// DistanceFunc returns the distance between two equal-length vectors.
// Smaller is closer.
type DistanceFunc func(a, b []float32) float64

// Distance returns the distance function for metric.
func Distance(metric domain.DistanceMetric) (DistanceFunc, error) {
	switch metric {
	case domain.DistanceL2:
		return SquaredL2, nil
	case domain.DistanceDot:
		return NegativeDot, nil
	case domain.DistanceCosine:
		return Cosine, nil
	default:
		return nil, fmt.Errorf("hnsw: unsupported metric %q", metric)
	}
}

// SquaredL2 is the squared Euclidean distance.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// NegativeDot is the negated inner product.
func NegativeDot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return -sum
}

// Cosine is one minus cosine similarity. Zero vectors are at distance 1
// from everything.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
