// Package seq implements the precision step-sequencer clock: pure timing
// calculators, a priority-ordered step-callback registry with failure
// isolation, and a transport engine that schedules steps against the wall
// clock or an external pulse stream.
package seq

import "time"

const (
	// MinTempo and MaxTempo bound the usable tempo range.
	MinTempo = 20.0
	MaxTempo = 300.0

	// maxSwing bounds the swing amount.
	maxSwing = 0.75

	// swingFraction scales the swing amount into a step-duration fraction.
	// At the maximum amount the offset is half a step, so a swung step can
	// never reach its neighbour's deadline.
	swingFraction = 2.0 / 3.0
)

// ClampTempo pins bpm into the valid range.
func ClampTempo(bpm float64) float64 {
	if bpm < MinTempo {
		return MinTempo
	}
	if bpm > MaxTempo {
		return MaxTempo
	}
	return bpm
}

// ClampSwing pins a swing amount into [0, maxSwing].
func ClampSwing(amount float64) float64 {
	if amount < 0 {
		return 0
	}
	if amount > maxSwing {
		return maxSwing
	}
	return amount
}

// StepDuration returns the duration of one step at the given tempo.
// stepsPerBeat is the pattern subdivision: 4 means sixteenth notes against
// a quarter-note beat.
func StepDuration(bpm float64, stepsPerBeat int) time.Duration {
	bpm = ClampTempo(bpm)
	if stepsPerBeat <= 0 {
		stepsPerBeat = 4
	}
	beat := float64(time.Minute) / bpm
	return time.Duration(beat / float64(stepsPerBeat))
}

// SwingOffset returns the timing offset for a step. Only off-beat (odd)
// steps are delayed; the magnitude is bounded to a fraction of the step
// duration so swung steps never reorder against their neighbours.
func SwingOffset(step int, amount float64, stepDur time.Duration) time.Duration {
	if step%2 == 0 {
		return 0
	}
	amount = ClampSwing(amount)
	return time.Duration(amount * swingFraction * float64(stepDur))
}
