package audio

import (
	"math"
	"testing"
)

const testRate = 1000.0 // small sample rate keeps stage counts readable

func runEnv(e *envelope, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = e.next()
	}
	return out
}

func TestEnvelopeAttackDecaySustain(t *testing.T) {
	var e envelope
	e.trigger(EnvelopeSettings{
		Attack:  0.01, // 10 samples
		Decay:   0.01,
		Sustain: 0.5,
		Release: 0.01,
	}, testRate)

	out := runEnv(&e, 50)
	if out[0] <= 0 {
		t.Fatal("attack should rise above zero on the first sample")
	}
	peak := 0.0
	for _, v := range out {
		if v > peak {
			peak = v
		}
	}
	if math.Abs(peak-1) > 1e-9 {
		t.Fatalf("attack should reach 1, peaked at %v", peak)
	}
	// well past attack+decay the envelope sits at the sustain level
	if got := out[len(out)-1]; math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("want sustain level 0.5, got %v", got)
	}
	if e.finished() {
		t.Fatal("envelope should sustain, not finish")
	}
}

func TestEnvelopeHold(t *testing.T) {
	var e envelope
	e.trigger(EnvelopeSettings{
		Attack:  0.001, // 1 sample
		Hold:    0.02,  // 20 samples
		Decay:   0.01,
		Sustain: 0,
		Release: 0.01,
	}, testRate)

	out := runEnv(&e, 15)
	for i := 2; i < len(out); i++ {
		if out[i] != 1 {
			t.Fatalf("sample %d should hold at 1, got %v", i, out[i])
		}
	}
}

func TestEnvelopeZeroSustainFinishes(t *testing.T) {
	var e envelope
	e.trigger(EnvelopeSettings{
		Attack:  0.001,
		Decay:   0.005,
		Sustain: 0,
		Release: 0.01,
	}, testRate)

	for i := 0; i < 100 && !e.finished(); i++ {
		e.next()
	}
	if !e.finished() {
		t.Fatal("envelope with zero sustain should finish after decay")
	}
	if got := e.next(); got != 0 {
		t.Fatalf("finished envelope should output 0, got %v", got)
	}
}

func TestEnvelopeNoteOffFromAttack(t *testing.T) {
	var e envelope
	e.trigger(EnvelopeSettings{
		Attack:  0.1, // long attack, note off lands mid-rise
		Decay:   0.01,
		Sustain: 1,
		Release: 0.01,
	}, testRate)

	runEnv(&e, 10)
	level := e.val
	if level <= 0 || level >= 1 {
		t.Fatalf("expected a mid-attack level, got %v", level)
	}
	e.noteOff(0)
	if !e.releasing() {
		t.Fatal("noteOff should enter release")
	}
	// release starts from the current level, no jump upward
	if got := e.next(); got > level {
		t.Fatalf("release should fall from %v, got %v", level, got)
	}
	for i := 0; i < 100 && !e.finished(); i++ {
		e.next()
	}
	if !e.finished() {
		t.Fatal("release should reach finished")
	}
}

func TestEnvelopeReleaseOverride(t *testing.T) {
	var e envelope
	e.trigger(EnvelopeSettings{
		Attack:  0.001,
		Decay:   0.01,
		Sustain: 1,
		Release: 1, // long configured release
	}, testRate)
	runEnv(&e, 20)

	e.noteOff(0.005) // override with 5 samples
	steps := 0
	for !e.finished() && steps < 1000 {
		e.next()
		steps++
	}
	if steps > 20 {
		t.Fatalf("override release should finish within ~5 samples, took %d", steps)
	}
}

func TestEnvelopeExponential(t *testing.T) {
	var e envelope
	e.trigger(EnvelopeSettings{
		Attack:      0.02,
		Decay:       0.02,
		Sustain:     0.5,
		Release:     0.02,
		Exponential: true,
	}, testRate)

	out := runEnv(&e, 10)
	// exponential attack decelerates: later increments are smaller
	first := out[1] - out[0]
	last := out[9] - out[8]
	if last >= first {
		t.Fatalf("exponential attack should decelerate: first step %v, last step %v", first, last)
	}
	for !e.finished() && e.stage != envSustain {
		e.next()
	}
	if e.stage != envSustain {
		t.Fatal("exponential envelope should settle on sustain")
	}
}

func TestEnvelopeAdvance(t *testing.T) {
	var a, b envelope
	settings := EnvelopeSettings{Attack: 0.05, Decay: 0.05, Sustain: 0.3, Release: 0.05}
	a.trigger(settings, testRate)
	b.trigger(settings, testRate)

	var last float64
	for i := 0; i < 32; i++ {
		last = a.next()
	}
	if got := b.advance(32); math.Abs(got-last) > 1e-9 {
		t.Fatalf("advance(32) should equal 32 next() calls: want %v, got %v", last, got)
	}
}
