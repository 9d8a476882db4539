package memory

import "math"

const similarityEpsilon = 1e-10

// CosineSimilarity between two equal-length vectors. The epsilon in the
// denominator keeps zero-magnitude vectors at score 0 instead of dividing by
// zero. Mismatched lengths score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + similarityEpsilon)
}
