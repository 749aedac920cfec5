package main

import (
	"reflect"
	"testing"

	"padkit/audio"
)

func activeRow(p *pattern, pad int) []int {
	row := make([]int, p.length)
	for i, st := range p.steps[pad] {
		if st.Active {
			row[i] = 1
		}
	}
	return row
}

func TestSetMask(t *testing.T) {
	tests := []struct {
		mask string
		want []int
	}{
		{"x...x...x...x...", []int{1, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0}},
		{"x-x-x-x-x-x-x-x-", []int{1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0}},
		{"X..X", []int{1, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
	}
	for _, test := range tests {
		p := newPattern(16)
		if err := p.setMask(0, test.mask); err != nil {
			t.Fatalf("setMask(%q): %v", test.mask, err)
		}
		got := activeRow(p, 0)
		if !reflect.DeepEqual(test.want, got) {
			t.Fatalf("wrong steps for mask %q:\nwant: %v\ngot:  %v", test.mask, test.want, got)
		}
	}
}

func TestSetMaskPartial(t *testing.T) {
	p := newPattern(16)
	if err := p.setMask(0, "xxxxxxxxxxxxxxxx"); err != nil {
		t.Fatal(err)
	}
	// a short mask only overwrites the steps it covers
	if err := p.setMask(0, "...."); err != nil {
		t.Fatal(err)
	}
	want := []int{0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	if got := activeRow(p, 0); !reflect.DeepEqual(want, got) {
		t.Fatalf("wrong steps:\nwant: %v\ngot:  %v", want, got)
	}
}

func TestSetMaskErrors(t *testing.T) {
	p := newPattern(4)
	if err := p.setMask(0, "x.o."); err == nil {
		t.Fatal("expected an error for a bad mask char")
	}
	if err := p.setMask(0, "x.x.x"); err == nil {
		t.Fatal("expected an error for a mask longer than the pattern")
	}
}

func TestToggle(t *testing.T) {
	p := newPattern(8)
	if err := p.toggle(2, 3); err != nil {
		t.Fatal(err)
	}
	if !p.steps[2][3].Active {
		t.Fatal("step should be active after toggle")
	}
	if err := p.toggle(2, 3); err != nil {
		t.Fatal(err)
	}
	if p.steps[2][3].Active {
		t.Fatal("step should be inactive after second toggle")
	}
	if err := p.toggle(2, 8); err == nil {
		t.Fatal("expected an error for an out of range step")
	}
}

func TestStepDefaults(t *testing.T) {
	p := newPattern(4)
	want := Step{Velocity: 1, Probability: 1}
	if got := p.steps[0][0]; got != want {
		t.Fatalf("wrong defaults: want %+v, got %+v", want, got)
	}
}

func TestStepParamRanges(t *testing.T) {
	p := newPattern(8)
	if err := p.setVelocity(0, 0, 1.5); err == nil {
		t.Fatal("expected an error for velocity > 1")
	}
	if err := p.setProbability(0, 0, -0.1); err == nil {
		t.Fatal("expected an error for probability < 0")
	}
	if err := p.setRatchet(0, 0, 9); err == nil {
		t.Fatal("expected an error for ratchet > 8")
	}
	if err := p.setVelocity(0, 0, 0.5); err != nil {
		t.Fatal(err)
	}
	if err := p.setProbability(0, 0, 0.25); err != nil {
		t.Fatal(err)
	}
	if err := p.setRatchet(0, 0, 3); err != nil {
		t.Fatal(err)
	}
	want := Step{Velocity: 0.5, Probability: 0.25, Ratchet: 3}
	if got := p.steps[0][0]; got != want {
		t.Fatalf("wrong step: want %+v, got %+v", want, got)
	}
}

func TestSnapshot(t *testing.T) {
	p := newPattern(8)
	if err := p.toggle(1, 5); err != nil {
		t.Fatal(err)
	}
	if err := p.setVelocity(1, 5, 0.7); err != nil {
		t.Fatal(err)
	}
	snap := p.snapshot(5)
	want := Step{Active: true, Velocity: 0.7, Probability: 1}
	if snap[1] != want {
		t.Fatalf("wrong snapshot: want %+v, got %+v", want, snap[1])
	}
	for pad := 0; pad < audio.NumTracks; pad++ {
		if pad != 1 && snap[pad].Active {
			t.Fatalf("pad %d should be inactive", pad)
		}
	}
	// out of range steps return an all-zero column
	empty := p.snapshot(8)
	if empty != [audio.NumTracks]Step{} {
		t.Fatal("out of range snapshot should be empty")
	}
}
