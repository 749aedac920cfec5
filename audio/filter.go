package audio

import "math"

// FilterMode selects which output of the state-variable topology is used.
type FilterMode int

const (
	FilterLowPass FilterMode = iota
	FilterHighPass
	FilterBandPass
	FilterNotch
)

type FilterSettings struct {
	Mode      FilterMode
	CutoffHz  float64
	Resonance float64 // 0..1
	Enabled   bool
}

const (
	minCutoffHz = 20.0

	// maxCutoffFraction caps the cutoff relative to the sample rate; the
	// Chamberlin integrators go unstable above roughly fs/6.
	maxCutoffFraction = 1.0 / 6.0

	// minDamp stops the resonance short of self-oscillation.
	minDamp = 0.1
)

// svf is a Chamberlin state-variable filter: one coefficient pair yields
// low, high, band and notch outputs from the same two integrator states.
type svf struct {
	mode FilterMode

	f    float64
	damp float64

	low  float64
	band float64

	// params the current coefficients were computed for
	cutoff float64
	res    float64
}

// set recomputes coefficients when cutoff or resonance changed, clamping
// both into the stable range.
func (f *svf) set(cutoffHz, res, sampleRate float64) {
	if cutoffHz == f.cutoff && res == f.res {
		return
	}
	f.cutoff = cutoffHz
	f.res = res

	max := sampleRate * maxCutoffFraction
	if cutoffHz < minCutoffHz {
		cutoffHz = minCutoffHz
	}
	if cutoffHz > max {
		cutoffHz = max
	}
	if res < 0 {
		res = 0
	}
	if res > 1 {
		res = 1
	}

	f.f = 2 * math.Sin(math.Pi*cutoffHz/sampleRate)
	f.damp = 2 * (1 - res)
	if f.damp < minDamp {
		f.damp = minDamp
	}
	if f.damp > 2 {
		f.damp = 2
	}
}

func (f *svf) next(in float64) float64 {
	f.low += f.f * f.band
	high := in - f.low - f.damp*f.band
	f.band += f.f * high

	switch f.mode {
	case FilterHighPass:
		return high
	case FilterBandPass:
		return f.band
	case FilterNotch:
		return high + f.low
	default:
		return f.low
	}
}

func (f *svf) reset() {
	f.low = 0
	f.band = 0
	f.cutoff = 0
	f.res = 0
}
