package distance

import "math"

// dotKernel ranks by inner product using Bachrach's reduction to angular
// distance: every stored vector is augmented with one extra coordinate so
// that all augmented vectors share a common norm M, after which comparing
// augmented vectors by cosine preserves the original dot-product order.
// Queries get a trailing zero instead, since only the relative order across
// items matters.
type dotKernel struct{}

func (dotKernel) Metric() Metric             { return Dot }
func (dotKernel) WorkingDimension(d int) int { return d + 1 }
func (dotKernel) Norm(v []float32) float32   { return l2Norm(v) }
func (dotKernel) UsesTwoMeans() bool         { return false }

func (dotKernel) PrepareItem(stored []float32, norm float32, bachrachM float32) []float32 {
	out := make([]float32, len(stored)+1)
	copy(out, stored)
	extra := bachrachM*bachrachM - norm*norm
	if extra < 0 {
		extra = 0
	}
	out[len(stored)] = float32(math.Sqrt(float64(extra)))
	return out
}

func (dotKernel) PrepareQuery(stored []float32, _ float32) []float32 {
	out := make([]float32, len(stored)+1)
	copy(out, stored)
	return out
}

// Distance returns the negated inner product of the stored (unaugmented)
// coordinates of a and b: the augmented trailing coordinate carries no
// information once both vectors are fixed, and callers compare a query
// (trailing zero) against items (trailing sqrt term) under a single
// consistent ranking, so plain dot product over the shared prefix suffices
// and avoids reintroducing the augmentation asymmetry into the exact score.
func (dotKernel) Distance(a, b []float32) float32 {
	return -Dot(a[:len(a)-1], b[:len(b)-1])
}

func (dotKernel) PQDistance(margin float32) float32 {
	return absf32(margin)
}

// HyperplaneFromPoints and Margin/Side operate on the augmented working
// vectors, which Bachrach's construction makes comparable by the same
// origin-through hyperplane formula angular distance uses.
func (dotKernel) HyperplaneFromPoints(p, q []float32) ([]float32, float32) {
	return hyperplaneFromPoints(p, q, false)
}

func (dotKernel) Margin(normal []float32, bias float32, v []float32) float32 {
	return marginOf(normal, bias, v)
}

func (k dotKernel) Side(normal []float32, bias float32, v []float32) Side {
	return sideFromMargin(k.Margin(normal, bias, v))
}

// BachrachM computes the Bachrach constant M = max norm over a set of item
// norms. Builders recompute it from the active set before each build;
// readers load the persisted value from the metadata record.
func BachrachM(norms []float32) float32 {
	var m float32
	for _, n := range norms {
		if n > m {
			m = n
		}
	}
	return m
}
