// Package extent widens numeric ranges so a quantised colour or projection
// scale has headroom on both sides of the observed values.
package extent

import "math"

const (
	// Epsilon pads each side of a degenerate (zero-width) range.
	Epsilon = 1e-3

	// DefaultLevels is used when Expand receives a non-positive level count.
	DefaultLevels = 31
)

// Expand returns [lo, hi] widened symmetrically for a scale of the given
// number of discrete levels.
//
// An odd level count keeps one neutral level at the centre. The remaining
// levels are split into a lower headroom band, a core band holding the
// observed range, and an upper headroom band of the same size as the lower.
// Each level is delta/core wide, so each side grows by delta*side/core.
// With 31 levels the bands are 10/10/10 and the range grows by one delta on
// each side: [0,10] becomes [-10,20].
func Expand(lo, hi float64, levels int) (float64, float64) {
	delta := hi - lo
	if delta == 0 {
		return lo - Epsilon, hi + Epsilon
	}
	if levels <= 0 {
		levels = DefaultLevels
	}

	usable := levels
	if usable%2 == 1 {
		usable--
	}
	side := usable / 3
	core := usable - 2*side
	if side < 1 || core < 1 {
		side, core = 1, 1
	}

	pad := delta * float64(side) / float64(core)
	return lo - pad, hi + pad
}

// Level maps value onto one of levels buckets spanning [lo, hi], clamping
// out-of-range values to the first or last bucket.
func Level(value, lo, hi float64, levels int) int {
	if levels <= 1 || hi <= lo || math.IsNaN(value) {
		return 0
	}
	if value <= lo {
		return 0
	}
	if value >= hi {
		return levels - 1
	}
	idx := int(math.Floor((value - lo) / (hi - lo) * float64(levels)))
	if idx >= levels {
		idx = levels - 1
	}
	return idx
}
