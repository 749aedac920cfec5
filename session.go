package main

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"padkit/audio"
	"padkit/seq"
)

// pad holds the control-domain settings for one pad. They are copied by
// value into TriggerParams on every hit, so edits never affect voices that
// are already sounding.
type pad struct {
	sampleID    string
	gainDB      float64
	pan         float64
	pitchCoarse int
	pitchFine   float64
	muteGroup   int
	mode        audio.PlaybackMode

	ampEnv audio.EnvelopeSettings

	filter         audio.FilterSettings
	filterEnvOn    bool
	filterEnv      audio.EnvelopeSettings
	filterEnvDepth float64

	pitchEnvOn    bool
	pitchEnv      audio.EnvelopeSettings
	pitchEnvDepth float64

	lfos [audio.MaxVoiceLFOs]audio.LFOSettings
}

func defaultPad() pad {
	return pad{
		ampEnv: audio.EnvelopeSettings{
			Attack:  0.002,
			Decay:   0.1,
			Sustain: 1,
			Release: 0.2,
		},
		filter: audio.FilterSettings{
			Mode:      audio.FilterLowPass,
			CutoffHz:  8000,
			Resonance: 0.2,
		},
	}
}

type session struct {
	engine *audio.Engine
	clock  *seq.Engine
	store  *audio.Store

	mu      sync.Mutex
	pads    [audio.NumTracks]pad
	pattern *pattern

	voiceSeq atomic.Int64
}

func newSession(engine *audio.Engine, clock *seq.Engine, store *audio.Store, patternLen int) *session {
	s := &session{
		engine:  engine,
		clock:   clock,
		store:   store,
		pattern: newPattern(patternLen),
	}
	for i := range s.pads {
		s.pads[i] = defaultPad()
	}
	return s
}

func (s *session) update(f func()) {
	s.mu.Lock()
	f()
	s.mu.Unlock()
}

// triggerPad fires one pad with the given velocity and returns the voice
// id it was started with.
func (s *session) triggerPad(padID int, velocity float64) int64 {
	s.mu.Lock()
	p := s.pads[padID]
	s.mu.Unlock()

	smp, ok := s.store.Get(p.sampleID)
	if !ok {
		return 0
	}
	id := s.voiceSeq.Add(1)
	err := s.engine.Trigger(audio.TriggerParams{
		VoiceID:        id,
		Track:          padID,
		Sample:         smp,
		Velocity:       velocity,
		Mode:           p.mode,
		PitchCoarse:    p.pitchCoarse,
		PitchFine:      p.pitchFine,
		GainDB:         p.gainDB,
		Pan:            p.pan,
		MuteGroup:      p.muteGroup,
		AmpEnv:         p.ampEnv,
		Filter:         p.filter,
		FilterEnvOn:    p.filterEnvOn,
		FilterEnv:      p.filterEnv,
		FilterEnvDepth: p.filterEnvDepth,
		PitchEnvOn:     p.pitchEnvOn,
		PitchEnv:       p.pitchEnv,
		PitchEnvDepth:  p.pitchEnvDepth,
		LFOs:           p.lfos,
	})
	if err != nil {
		log.Printf("pad %d: %v", padID+1, err)
		return 0
	}
	return id
}

// onStep is the step callback registered with the timing engine. It reads
// a snapshot of the pattern column and turns active steps into triggers;
// ratchets are scheduled as evenly spaced retriggers within the step.
func (s *session) onStep(step int, ts time.Time) {
	s.mu.Lock()
	snap := s.pattern.snapshot(step)
	s.mu.Unlock()

	tempo := s.clock.Tempo()
	s.engine.SetTempo(tempo)
	if step%4 == 0 {
		s.engine.MetronomeTick(step == 0)
	}

	stepDur := seq.StepDuration(tempo, 4)
	for padID, st := range snap {
		if !st.Active {
			continue
		}
		if st.Probability < 1 && rand.Float64() > st.Probability {
			continue
		}
		padID := padID
		vel := st.Velocity
		s.triggerPad(padID, vel)
		for r := 1; r <= st.Ratchet; r++ {
			delay := stepDur * time.Duration(r) / time.Duration(st.Ratchet+1)
			time.AfterFunc(delay, func() {
				// Stopping or pausing the transport cancels pending
				// retriggers.
				if s.clock.State() != seq.StatePlaying {
					return
				}
				s.triggerPad(padID, vel)
			})
		}
	}
}

func (s *session) loadSample(padID int, file string) error {
	id := fmt.Sprintf("pad%d", padID+1)
	if _, err := s.store.Load(id, file); err != nil {
		return err
	}
	s.update(func() { s.pads[padID].sampleID = id })
	return nil
}
