package audio

import "math"

type envStage int

const (
	envIdle envStage = iota
	envAttack
	envHold
	envDecay
	envSustain
	envRelease
	envFinished
)

// EnvelopeSettings describe an ADSR shape. They are copied by value into a
// voice at trigger time, so concurrent edits never affect sounding voices.
type EnvelopeSettings struct {
	Attack  float64 // seconds
	Hold    float64 // seconds, optional plateau between attack and decay
	Decay   float64 // seconds
	Sustain float64 // level, 0..1
	Release float64 // seconds

	// Exponential selects exponential segment curves instead of linear.
	Exponential bool
}

// minStageTime guards rate computations against zero-length stages.
const minStageTime = 0.0005

// expSettle makes exponential segments settle within 0.1% of their target
// over the nominal stage time (ln 1000).
const expSettle = 6.9

type envelope struct {
	EnvelopeSettings

	stage      envStage
	val        float64
	rate       float64 // linear increment per sample
	coeff      float64 // exponential approach factor per sample
	target     float64
	holdLeft   int
	sampleRate float64
}

func (e *envelope) trigger(s EnvelopeSettings, sampleRate float64) {
	e.EnvelopeSettings = s
	if e.Sustain < 0 {
		e.Sustain = 0
	}
	if e.Sustain > 1 {
		e.Sustain = 1
	}
	e.sampleRate = sampleRate
	e.val = 0
	e.enter(envAttack)
}

func (e *envelope) stageSamples(seconds float64) float64 {
	if seconds < minStageTime {
		seconds = minStageTime
	}
	return seconds * e.sampleRate
}

func (e *envelope) enter(stage envStage) {
	e.stage = stage
	switch stage {
	case envAttack:
		n := e.stageSamples(e.Attack)
		e.target = 1
		e.rate = (1 - e.val) / n
		e.coeff = 1 - math.Exp(-expSettle/n)
	case envHold:
		e.holdLeft = int(e.Hold * e.sampleRate)
	case envDecay:
		n := e.stageSamples(e.Decay)
		e.target = e.Sustain
		e.rate = (e.val - e.Sustain) / n
		e.coeff = 1 - math.Exp(-expSettle/n)
	case envRelease:
		n := e.stageSamples(e.Release)
		e.target = 0
		e.rate = e.val / n
		e.coeff = 1 - math.Exp(-expSettle/n)
	case envFinished:
		e.val = 0
	}
}

// next advances the envelope by one frame and returns its level.
func (e *envelope) next() float64 {
	switch e.stage {
	case envIdle, envFinished:
		return 0
	case envAttack:
		if e.step(1) {
			if e.Hold > 0 {
				e.enter(envHold)
			} else {
				e.enter(envDecay)
			}
		}
	case envHold:
		e.holdLeft--
		if e.holdLeft <= 0 {
			e.enter(envDecay)
		}
		return 1
	case envDecay:
		if e.step(-1) {
			if e.Sustain <= 0 {
				e.enter(envFinished)
			} else {
				e.enter(envSustain)
			}
		}
	case envSustain:
		e.val = e.Sustain
	case envRelease:
		if e.step(-1) {
			e.enter(envFinished)
		}
	}
	return e.val
}

// step moves val toward target and reports whether the segment is done.
// dir is 1 for rising segments and -1 for falling ones.
func (e *envelope) step(dir float64) bool {
	if e.Exponential {
		e.val += (e.target - e.val) * e.coeff
		if math.Abs(e.target-e.val) < 0.001 {
			e.val = e.target
			return true
		}
		return false
	}
	e.val += dir * e.rate
	if dir > 0 && e.val >= e.target {
		e.val = e.target
		return true
	}
	if dir < 0 && e.val <= e.target {
		e.val = e.target
		return true
	}
	return false
}

// noteOff moves the envelope into release from its current level,
// preserving continuity regardless of the current stage. A positive
// releaseOverride replaces the configured release time.
func (e *envelope) noteOff(releaseOverride float64) {
	switch e.stage {
	case envIdle, envFinished:
		return
	}
	if releaseOverride > 0 {
		e.Release = releaseOverride
	}
	e.enter(envRelease)
}

func (e *envelope) finished() bool  { return e.stage == envFinished }
func (e *envelope) releasing() bool { return e.stage == envRelease }

// advance runs the envelope for n frames and returns the final level.
// Used for block-rate modulation sources (filter and pitch envelopes).
func (e *envelope) advance(n int) float64 {
	v := e.val
	for i := 0; i < n; i++ {
		v = e.next()
	}
	return v
}
