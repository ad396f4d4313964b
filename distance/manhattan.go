package distance

type manhattanKernel struct{}

func (manhattanKernel) Metric() Metric             { return Manhattan }
func (manhattanKernel) WorkingDimension(d int) int { return d }
func (manhattanKernel) Norm(v []float32) float32   { return l2Norm(v) }
func (manhattanKernel) UsesTwoMeans() bool         { return false }

func (manhattanKernel) PrepareItem(stored []float32, _ float32, _ float32) []float32 {
	return stored
}

func (manhattanKernel) PrepareQuery(stored []float32, _ float32) []float32 {
	return stored
}

func (manhattanKernel) Distance(a, b []float32) float32 {
	return L1(a, b)
}

func (manhattanKernel) PQDistance(margin float32) float32 {
	return absf32(margin)
}

func (manhattanKernel) HyperplaneFromPoints(p, q []float32) ([]float32, float32) {
	return hyperplaneFromPoints(p, q, true)
}

func (manhattanKernel) Margin(normal []float32, bias float32, v []float32) float32 {
	return marginOf(normal, bias, v)
}

func (k manhattanKernel) Side(normal []float32, bias float32, v []float32) Side {
	return sideFromMargin(k.Margin(normal, bias, v))
}
