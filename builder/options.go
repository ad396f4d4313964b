package builder

import "log/slog"

// Options configures a forest build. The zero value is invalid; start from
// DefaultOptions.
type Options struct {
	// K is the descendants threshold: a subtree with at most K items
	// becomes a leaf rather than splitting further. Zero selects
	// DefaultK(dimension) at build time.
	K int

	// NTrees is the number of trees to build. Zero selects
	// DefaultNTrees(dimension).
	NTrees int

	// MaxAttempts bounds how many times make_tree resamples a hyperplane
	// before accepting whatever split it has, per spec §4.4 step 4.
	MaxAttempts int

	// ImbalanceAccept is the split-imbalance threshold below which a
	// sampled hyperplane is accepted immediately.
	ImbalanceAccept float64

	// ImbalanceRandomFallback is the split-imbalance threshold above which,
	// after MaxAttempts resamples, the split is abandoned in favor of a
	// uniformly random bisection.
	ImbalanceRandomFallback float64

	// TwoMeansIterations caps the two-means refinement's iteration count
	// (it also exits early once the two centers stop moving appreciably).
	TwoMeansIterations int

	// TwoMeansSubsampleSize bounds how many items two-means reassigns per
	// iteration; larger subtrees sample this many items rather than
	// reassigning every member.
	TwoMeansSubsampleSize int

	// Concurrency bounds how many trees build in parallel, and doubles as
	// the two-means scratch-buffer concurrency limit. Zero selects
	// runtime.GOMAXPROCS(0).
	Concurrency int

	// IOWriteBytesPerSec throttles how fast encoded node bytes accumulate
	// during a build, bounding the unflushed write backlog a caller must
	// hold in memory until the writer commits it (spec §4.4's "bounded
	// memory", §4.3's "builder batches writes"). If 0, unlimited.
	IOWriteBytesPerSec int64

	Logger *slog.Logger
}

// DefaultOptions picks concrete values where spec.md leaves one
// implementation-chosen: three resample attempts, the 0.95/0.99 imbalance
// thresholds, and three two-means iterations (capped, not run to
// convergence).
var DefaultOptions = Options{
	MaxAttempts:             3,
	ImbalanceAccept:         0.95,
	ImbalanceRandomFallback: 0.99,
	TwoMeansIterations:      3,
	TwoMeansSubsampleSize:   256,
	Logger:                  slog.New(slog.DiscardHandler),
}

// DefaultK returns the descendants threshold for a given vector dimension:
// max(D, 2*branching) with branching=2 for a binary forest, per SUPPLEMENTED
// FEATURES.
func DefaultK(dimension int) int {
	const minLeafSize = 2 * 2
	if dimension > minLeafSize {
		return dimension
	}
	return minLeafSize
}

// DefaultNTrees returns the default tree count when the caller requests 0,
// proportional to dimension with a floor of 8.
func DefaultNTrees(dimension int) int {
	if dimension > 8 {
		return dimension
	}
	return 8
}

func (o Options) withDefaults(dimension int) Options {
	if o.K == 0 {
		o.K = DefaultK(dimension)
	}
	if o.NTrees == 0 {
		o.NTrees = DefaultNTrees(dimension)
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = DefaultOptions.MaxAttempts
	}
	if o.ImbalanceAccept == 0 {
		o.ImbalanceAccept = DefaultOptions.ImbalanceAccept
	}
	if o.ImbalanceRandomFallback == 0 {
		o.ImbalanceRandomFallback = DefaultOptions.ImbalanceRandomFallback
	}
	if o.TwoMeansIterations == 0 {
		o.TwoMeansIterations = DefaultOptions.TwoMeansIterations
	}
	if o.TwoMeansSubsampleSize == 0 {
		o.TwoMeansSubsampleSize = DefaultOptions.TwoMeansSubsampleSize
	}
	if o.Logger == nil {
		o.Logger = DefaultOptions.Logger
	}
	return o
}
