// Package distance provides public API for vector similarity calculations.
package distance

import (
	"slices"

	"github.com/hupe1980/isdgo/internal/math32"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	return math32.Dot(a, b)
}

// DotBatch calculates dot products of query against a flattened bank of
// vectors. bank holds len(out) vectors of dimension dim, back to back.
// For unit-norm inputs this is the cosine similarity.
func DotBatch(query []float32, bank []float32, dim int, out []float32) {
	math32.DotBatch(query, bank, dim, out)
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := math32.Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := 1 / math32.Sqrt(norm2)
	math32.ScaleInPlace(v, inv)
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// NormalizeL2Rows L2-normalizes every row of a flattened n x dim batch in
// place. Zero rows are left untouched and reported via the return value.
func NormalizeL2Rows(batch []float32, dim int) bool {
	if dim <= 0 || len(batch)%dim != 0 {
		return false
	}
	ok := true
	for off := 0; off < len(batch); off += dim {
		if !NormalizeL2InPlace(batch[off : off+dim]) {
			ok = false
		}
	}
	return ok
}
