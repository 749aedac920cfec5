package audio

import "math"

// LFOWave selects the oscillator shape.
type LFOWave int

const (
	WaveSine LFOWave = iota
	WaveTriangle
	WaveSquare
	WaveSawUp
	WaveSawDown
	WaveRandom // stepped sample-and-hold
)

// LFODest routes an LFO's output to a voice parameter.
type LFODest int

const (
	DestPitch  LFODest = iota // semitones
	DestAmp                   // gain offset
	DestCutoff                // octaves around the base cutoff
	DestPan                   // pan offset
)

// MaxVoiceLFOs is the number of LFO slots per voice.
const MaxVoiceLFOs = 3

type LFOSettings struct {
	Wave LFOWave
	Dest LFODest

	// RateHz is the free-running rate. Ignored when SyncBeats is set.
	RateHz float64

	// SyncBeats is the cycle length in beats for tempo-synced operation;
	// zero means free-running.
	SyncBeats float64

	Depth   float64 // 0..1
	Enabled bool
}

type lfo struct {
	LFOSettings

	phase float64 // 0..1
	held  float64
	rng   uint32
}

func (l *lfo) init(s LFOSettings) {
	l.LFOSettings = s
	l.phase = 0
	l.rng = 0x9e3779b9
	l.held = l.rand()
}

// next advances the LFO by n frames and returns its value scaled by depth,
// in [-Depth, Depth]. bpm is only consulted for tempo-synced rates.
func (l *lfo) next(sampleRate, bpm float64, n int) float64 {
	if !l.Enabled || l.Depth == 0 {
		return 0
	}
	rate := l.RateHz
	if l.SyncBeats > 0 && bpm > 0 {
		rate = (bpm / 60.0) / l.SyncBeats
	}
	if rate <= 0 || sampleRate <= 0 {
		return 0
	}

	var v float64
	switch l.Wave {
	case WaveSine:
		v = math.Sin(2 * math.Pi * l.phase)
	case WaveTriangle:
		if l.phase < 0.5 {
			v = 4*l.phase - 1
		} else {
			v = 3 - 4*l.phase
		}
	case WaveSquare:
		if l.phase < 0.5 {
			v = 1
		} else {
			v = -1
		}
	case WaveSawUp:
		v = 2*l.phase - 1
	case WaveSawDown:
		v = 1 - 2*l.phase
	case WaveRandom:
		v = l.held
	}

	l.phase += rate * float64(n) / sampleRate
	if l.phase >= 1 {
		l.phase -= math.Floor(l.phase)
		if l.Wave == WaveRandom {
			l.held = l.rand()
		}
	}
	return v * l.Depth
}

// rand returns a value in [-1, 1) from an xorshift32 state. The render
// path cannot take math/rand's source lock.
func (l *lfo) rand() float64 {
	l.rng ^= l.rng << 13
	l.rng ^= l.rng >> 17
	l.rng ^= l.rng << 5
	return float64(l.rng)/float64(math.MaxUint32)*2 - 1
}
