package vector

import (
	"fmt"
	"math"

	"github.com/viant/vec/search"
)

// NormKind selects how vector magnitudes are computed.
type NormKind string

const (
	// NormSumAbs sums sqrt(x*x) over the components, i.e. the sum of absolute values.
	// This is the convention the stored embedding files were produced with.
	NormSumAbs NormKind = "sumabs"
	// NormEuclidean is the conventional sqrt(sum(x*x)).
	NormEuclidean NormKind = "euclidean"
)

// ParseNormKind maps a config value to a NormKind. Empty means NormSumAbs.
func ParseNormKind(s string) (NormKind, error) {
	switch NormKind(s) {
	case NormSumAbs, "":
		return NormSumAbs, nil
	case NormEuclidean:
		return NormEuclidean, nil
	default:
		return "", fmt.Errorf("unknown norm: %s (supported: sumabs, euclidean)", s)
	}
}

// Norm returns the magnitude of x under kind.
func Norm(x []float32, kind NormKind) float32 {
	if len(x) == 0 {
		return 0
	}
	if kind == NormEuclidean {
		return search.Float32s(x).Magnitude()
	}
	var sum float32
	for _, v := range x {
		sum += float32(math.Sqrt(float64(v * v)))
	}
	return sum
}

// Dot returns the inner product of a and b, accumulated in float32 in index order.
// Both backends rely on this accumulation order to produce identical scores.
func Dot(a, b []float32) float32 {
	var acc float32
	for i := range a {
		acc += a[i] * b[i]
	}
	return acc
}

// Similarity returns dot(query, candidate) / (queryNorm * candidateNorm).
// A zero denominator yields 0 rather than NaN so that rankings stay total.
func Similarity(query []float32, queryNorm float32, candidate []float32, candidateNorm float32) float32 {
	denom := queryNorm * candidateNorm
	if denom == 0 {
		return 0
	}
	return Dot(query, candidate) / denom
}
