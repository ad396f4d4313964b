package distance

import "math"

type euclideanKernel struct{}

func (euclideanKernel) Metric() Metric                    { return Euclidean }
func (euclideanKernel) WorkingDimension(d int) int        { return d }
func (euclideanKernel) Norm(v []float32) float32          { return l2Norm(v) }
func (euclideanKernel) UsesTwoMeans() bool                { return true }

func (euclideanKernel) PrepareItem(stored []float32, _ float32, _ float32) []float32 {
	return stored
}

func (euclideanKernel) PrepareQuery(stored []float32, _ float32) []float32 {
	return stored
}

func (euclideanKernel) Distance(a, b []float32) float32 {
	return L2(a, b)
}

// PQDistance for Euclidean/Manhattan is the absolute margin itself: the
// margin is already a lower bound on the distance to anything strictly on
// the far side of the split.
func (euclideanKernel) PQDistance(margin float32) float32 {
	return absf32(margin)
}

func (euclideanKernel) HyperplaneFromPoints(p, q []float32) ([]float32, float32) {
	return hyperplaneFromPoints(p, q, true)
}

func (euclideanKernel) Margin(normal []float32, bias float32, v []float32) float32 {
	return marginOf(normal, bias, v)
}

func (k euclideanKernel) Side(normal []float32, bias float32, v []float32) Side {
	return sideFromMargin(k.Margin(normal, bias, v))
}

func absf32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func l2Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}
