package match

import "math"

// CosineSimilarity returns dot(a,b)/(|a||b|) clamped to [-1,1]. Vectors of
// different length, empty vectors and zero vectors all yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, mag1, mag2 float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		mag1 += x * x
		mag2 += y * y
	}
	if mag1 == 0 || mag2 == 0 {
		return 0
	}
	// rounding can push parallel vectors just past 1
	return math.Max(-1, math.Min(1, dot/(math.Sqrt(mag1)*math.Sqrt(mag2))))
}

// Confidence converts a raw similarity to a percentage in [0,100].
func Confidence(similarity float64) float64 {
	return math.Min(100, math.Max(0, similarity)*100)
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
