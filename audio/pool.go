package audio

import "sync/atomic"

// minStealAgeMS is the age below which a voice is never stolen, so
// fast-repeat triggers don't cut themselves off. Tunable.
const minStealAgeMS = 5

// pool owns the fixed voice slots. All methods run on the render thread
// only; the control domain observes it through the atomic counters.
type pool struct {
	voices [numVoices]voice
	clock  uint64 // frames rendered since engine start

	steals  atomic.Uint64
	drops   atomic.Uint64
	active  atomic.Int64
	started atomic.Uint64
}

// allocate returns a slot for a new trigger. Policy: a free slot first,
// then the oldest releasing voice, then the oldest voice overall, skipping
// voices younger than minStealAgeMS. Returns nil only when every slot is
// inside the steal-age guard.
func (p *pool) allocate() *voice {
	minAge := uint64(minStealAgeMS * SampleRate / 1000)
	var oldestRel, oldest *voice
	for i := range p.voices {
		v := &p.voices[i]
		if v.state == stateFree {
			return v
		}
		if p.clock-v.born < minAge {
			continue
		}
		if v.state == stateReleased && (oldestRel == nil || v.born < oldestRel.born) {
			oldestRel = v
		}
		if oldest == nil || v.born < oldest.born {
			oldest = v
		}
	}
	if oldestRel != nil {
		p.steals.Add(1)
		return oldestRel
	}
	if oldest != nil {
		p.steals.Add(1)
		return oldest
	}
	p.drops.Add(1)
	return nil
}

func (p *pool) trigger(params TriggerParams) {
	if params.MuteGroup != 0 {
		p.chokeGroup(params.MuteGroup)
	}
	v := p.allocate()
	if v == nil {
		// The trigger is dropped; the render path never fails loudly.
		return
	}
	v.start(params, p.clock)
	p.started.Add(1)
}

// chokeGroup forces every sounding voice in the mute group into a short
// release.
func (p *pool) chokeGroup(group int) {
	for i := range p.voices {
		v := &p.voices[i]
		if v.state != stateFree && v.group == group {
			v.choke()
		}
	}
}

func (p *pool) noteOff(id int64, release float64) {
	for i := range p.voices {
		v := &p.voices[i]
		if v.state == stateActive && v.id == id {
			v.noteOff(release)
		}
	}
}

// stopAll releases every voice, optionally restricted to one track.
// track -1 means all tracks. Immediate stops use the forced short release
// rather than a hard cut, to avoid clicks.
func (p *pool) stopAll(track int, immediate bool) {
	for i := range p.voices {
		v := &p.voices[i]
		if v.state == stateFree {
			continue
		}
		if track >= 0 && v.track != track {
			continue
		}
		if immediate {
			v.choke()
		} else if v.state == stateActive {
			v.noteOff(0)
		}
	}
}

// render sums all sounding voices into their tracks' block buses and
// advances the frame clock.
func (p *pool) render(busL, busR *[NumTracks][]float64, bpm float64, n int) {
	for i := range p.voices {
		v := &p.voices[i]
		if v.state == stateFree {
			continue
		}
		v.render(busL[v.track][:n], busR[v.track][:n], bpm)
	}
	p.clock += uint64(n)

	var count int64
	for i := range p.voices {
		if p.voices[i].state != stateFree {
			count++
		}
	}
	p.active.Store(count)
}
