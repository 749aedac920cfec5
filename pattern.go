package main

import (
	"fmt"

	"padkit/audio"
)

// Step is one pattern position for a single pad.
type Step struct {
	Active      bool
	Velocity    float64 // 0..1
	Probability float64 // 0..1, chance the step fires
	Ratchet     int     // extra retriggers within the step
}

// pattern is the step grid for all pads. It lives in the control domain,
// guarded by the session mutex; the step callback only ever consumes a
// per-step snapshot.
type pattern struct {
	length int
	steps  [audio.NumTracks][]Step
}

func newPattern(length int) *pattern {
	p := &pattern{length: length}
	for i := range p.steps {
		p.steps[i] = emptyRow(length)
	}
	return p
}

func emptyRow(length int) []Step {
	row := make([]Step, length)
	for i := range row {
		row[i] = Step{Velocity: 1, Probability: 1}
	}
	return row
}

func (p *pattern) clear(pad int) {
	p.steps[pad] = emptyRow(p.length)
}

func (p *pattern) toggle(pad, step int) error {
	if step < 0 || step >= p.length {
		return fmt.Errorf("step out of range 1-%d: %d", p.length, step+1)
	}
	p.steps[pad][step].Active = !p.steps[pad][step].Active
	return nil
}

// setMask replaces a pad's row from a mask string: 'x' marks an active
// step, '.' or '-' an inactive one. Shorter masks leave trailing steps
// untouched.
func (p *pattern) setMask(pad int, mask string) error {
	if len(mask) > p.length {
		return fmt.Errorf("mask longer than pattern (%d steps): %q", p.length, mask)
	}
	for i, c := range mask {
		switch c {
		case 'x', 'X':
			p.steps[pad][i].Active = true
		case '.', '-':
			p.steps[pad][i].Active = false
		default:
			return fmt.Errorf("bad mask char %q, want x or .", c)
		}
	}
	return nil
}

func (p *pattern) setVelocity(pad, step int, v float64) error {
	if step < 0 || step >= p.length {
		return fmt.Errorf("step out of range 1-%d: %d", p.length, step+1)
	}
	if v < 0 || v > 1 {
		return fmt.Errorf("velocity out of range 0-1: %v", v)
	}
	p.steps[pad][step].Velocity = v
	return nil
}

func (p *pattern) setProbability(pad, step int, prob float64) error {
	if step < 0 || step >= p.length {
		return fmt.Errorf("step out of range 1-%d: %d", p.length, step+1)
	}
	if prob < 0 || prob > 1 {
		return fmt.Errorf("probability out of range 0-1: %v", prob)
	}
	p.steps[pad][step].Probability = prob
	return nil
}

func (p *pattern) setRatchet(pad, step, count int) error {
	if step < 0 || step >= p.length {
		return fmt.Errorf("step out of range 1-%d: %d", p.length, step+1)
	}
	if count < 0 || count > 8 {
		return fmt.Errorf("ratchet count out of range 0-8: %d", count)
	}
	p.steps[pad][step].Ratchet = count
	return nil
}

// snapshot copies one step column for all pads.
func (p *pattern) snapshot(step int) [audio.NumTracks]Step {
	var out [audio.NumTracks]Step
	if step < 0 || step >= p.length {
		return out
	}
	for pad := range p.steps {
		out[pad] = p.steps[pad][step]
	}
	return out
}
