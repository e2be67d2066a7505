package utils

import (
	"math"
)

// dotProduct calculates the dot product of two vectors of equal length.
func dotProduct(vec1, vec2 []float32) float64 {
	var product float64
	for i := range vec1 {
		product += float64(vec1[i]) * float64(vec2[i])
	}
	return product
}

// magnitude calculates the L2 norm (magnitude) of a vector.
func magnitude(vec []float32) float64 {
	var sumOfSquares float64
	for _, val := range vec {
		sumOfSquares += float64(val) * float64(val)
	}
	return math.Sqrt(sumOfSquares)
}

// CosineDistance returns 1 - cos(a, b) clamped to [0, 2].
// Empty, mismatched or zero-norm inputs are maximally dissimilar (1.0), not an error.
func CosineDistance(vec1, vec2 []float32) float64 {
	if len(vec1) == 0 || len(vec1) != len(vec2) {
		return 1.0
	}

	mag1 := magnitude(vec1)
	mag2 := magnitude(vec2)
	if mag1 == 0 || mag2 == 0 {
		return 1.0
	}

	return ClampDistance(1.0 - dotProduct(vec1, vec2)/(mag1*mag2))
}

// ClampDistance keeps a cosine distance inside [0, 2].
func ClampDistance(d float64) float64 {
	if math.IsNaN(d) {
		return 1.0
	}
	return math.Max(0, math.Min(2, d))
}
