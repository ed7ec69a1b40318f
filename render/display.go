package render

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// epsilon used to widen a degenerate normalization range
const rangeEpsilon = 1e-6

// lower gain bound is pinned to the 5th percentile when dynamic gain is on
const lowGainPercentile = 5.0

// displayScale holds the resolved normalization bounds and gamma for one
// render. Computed once per window, applied per sample.
type displayScale struct {
	smin  float64
	smax  float64
	gamma float64
}

// computeScale resolves normalization bounds and gamma from the window's mel
// values. NaN and infinite values are ignored throughout. With dynamic gain
// the bounds come from percentiles of the sorted finite values, otherwise
// from the finite min/max.
func computeScale(values []float32, dp DisplayParams) displayScale {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		f := float64(v)
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			finite = append(finite, f)
		}
	}

	if len(finite) == 0 {
		return displayScale{smin: 0, smax: 1, gamma: 1}
	}

	sort.Float64s(finite)

	var smin, smax float64
	if dp.DynamicGain {
		high := clampFloat(dp.GainPercentile, 0, 100)
		smin = stat.Quantile(lowGainPercentile/100.0, stat.Empirical, finite, nil)
		smax = stat.Quantile(high/100.0, stat.Empirical, finite, nil)
	} else {
		smin = finite[0]
		smax = finite[len(finite)-1]
	}

	if smax <= smin {
		smax = smin + rangeEpsilon
	}

	gamma := dp.Gamma
	if dp.AutoGamma {
		median := stat.Quantile(0.5, stat.Empirical, finite, nil)
		normMedian := clampFloat((median-smin)/(smax-smin), 0, 1)
		switch {
		case normMedian < 0.3:
			gamma = 0.6
		case normMedian > 0.7:
			gamma = 1.4
		default:
			gamma = 1.0
		}
	}
	if gamma <= 0 {
		gamma = 1.0
	}

	return displayScale{smin: smin, smax: smax, gamma: gamma}
}

// intensity maps one mel value to a display intensity in [0,1]
func (s displayScale) intensity(v float32, dp DisplayParams) float64 {
	norm := clampFloat((float64(v)-s.smin)/(s.smax-s.smin), 0, 1)
	g := math.Pow(norm, s.gamma)
	return clampFloat((g-0.5)*dp.Contrast+0.5+dp.Brightness, 0, 1)
}

// index maps one mel value to a colormap index in [0,255]
func (s displayScale) index(v float32, dp DisplayParams) uint8 {
	return uint8(math.Round(s.intensity(v, dp) * 255.0))
}

// clampFloat limits v to [lo, hi]; NaN clamps to lo so a stray non-finite
// sample still maps to a valid intensity
func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
