package seq

import "time"

// PulsesPerQuarter is the MIDI clock resolution: 24 pulses per quarter
// note.
const PulsesPerQuarter = 24

// ClockPulse is one tick of an external clock. Pulses are consumed
// immediately by the engine and not retained.
type ClockPulse struct {
	Timestamp time.Time
	Pulse     uint64

	// Tempo is an optional upstream estimate in BPM; zero when unknown.
	Tempo float64
}

// tempoWindow is the number of pulse intervals averaged for inference.
// 16 intervals at 120 BPM is a third of a second of clock.
const tempoWindow = 16

// minInferPulses is how many intervals are needed before an estimate is
// considered valid.
const minInferPulses = 4

// tempoEstimator infers a tempo from the spacing of incoming pulses over a
// rolling window. Owned by the engine's run loop; not safe for concurrent
// use.
type tempoEstimator struct {
	intervals [tempoWindow]time.Duration
	idx       int
	count     int
	last      time.Time
	haveLast  bool
}

func (e *tempoEstimator) observe(ts time.Time) {
	if e.haveLast {
		d := ts.Sub(e.last)
		if d > 0 {
			e.intervals[e.idx] = d
			e.idx = (e.idx + 1) % tempoWindow
			if e.count < tempoWindow {
				e.count++
			}
		}
	}
	e.last = ts
	e.haveLast = true
}

// tempo returns the inferred BPM, or 0 if not enough pulses have been
// seen.
func (e *tempoEstimator) tempo() float64 {
	if e.count < minInferPulses {
		return 0
	}
	var sum time.Duration
	for i := 0; i < e.count; i++ {
		sum += e.intervals[i]
	}
	mean := sum / time.Duration(e.count)
	if mean <= 0 {
		return 0
	}
	return float64(time.Minute) / (float64(mean) * PulsesPerQuarter)
}

func (e *tempoEstimator) reset() {
	e.idx = 0
	e.count = 0
	e.haveLast = false
}
