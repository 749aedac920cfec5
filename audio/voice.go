package audio

import "math"

// PlaybackMode controls what happens when the cursor passes the end of the
// sample.
type PlaybackMode int

const (
	OneShot PlaybackMode = iota
	LoopForward
)

// TriggerParams is the full by-value description of one pad hit. It is
// assembled in the control domain, including copies of the pad's envelope,
// filter and LFO settings, and crosses to the render thread inside a queue
// command, so later edits to pad settings never reach sounding voices.
type TriggerParams struct {
	VoiceID     int64 // caller-chosen id for StopNote; 0 = anonymous
	Track       int
	Sample      *Sample
	Velocity    float64 // 0..1
	Mode        PlaybackMode
	PitchCoarse int     // semitones
	PitchFine   float64 // cents, -100..100
	GainDB      float64
	Pan         float64 // -1..1
	MuteGroup   int     // 0 = none

	AmpEnv EnvelopeSettings

	Filter         FilterSettings
	FilterEnvOn    bool
	FilterEnv      EnvelopeSettings
	FilterEnvDepth float64 // octaves at full envelope level

	PitchEnvOn    bool
	PitchEnv      EnvelopeSettings
	PitchEnvDepth float64 // semitones at full envelope level

	LFOs [MaxVoiceLFOs]LFOSettings
}

type voiceState int

const (
	stateFree voiceState = iota
	stateActive
	stateReleased
)

// chokeRelease is the forced release time used for mute-group chokes and
// immediate stops.
const chokeRelease = 0.005

type voice struct {
	state voiceState
	id    int64
	track int
	group int
	born  uint64 // pool frame clock at trigger time

	sample *Sample
	pos    float64
	ratio  float64 // source frames per output frame, before pitch modulation
	mode   PlaybackMode
	gain   float64
	pan    float64

	ampEnv envelope

	filterOn       bool
	filter         svf
	baseCutoff     float64
	baseRes        float64
	filterEnvOn    bool
	filterEnv      envelope
	filterEnvDepth float64

	pitchEnvOn    bool
	pitchEnv      envelope
	pitchEnvDepth float64

	lfos [MaxVoiceLFOs]lfo
}

func (v *voice) start(p TriggerParams, now uint64) {
	v.state = stateActive
	v.id = p.VoiceID
	v.track = p.Track
	if v.track < 0 || v.track >= NumTracks {
		v.track = 0
	}
	v.group = p.MuteGroup
	v.born = now

	v.sample = p.Sample
	v.pos = 0
	semis := float64(p.PitchCoarse) + p.PitchFine/100
	v.ratio = math.Pow(2, semis/12) * p.Sample.rate / SampleRate
	v.mode = p.Mode

	vel := p.Velocity
	if vel < 0 {
		vel = 0
	}
	if vel > 1 {
		vel = 1
	}
	v.gain = math.Pow(10, p.GainDB/20) * vel
	v.pan = p.Pan
	if v.pan < -1 {
		v.pan = -1
	}
	if v.pan > 1 {
		v.pan = 1
	}

	v.ampEnv.trigger(p.AmpEnv, SampleRate)

	v.filterOn = p.Filter.Enabled
	v.filter.reset()
	v.filter.mode = p.Filter.Mode
	v.baseCutoff = p.Filter.CutoffHz
	v.baseRes = p.Filter.Resonance
	v.filterEnvOn = p.FilterEnvOn
	v.filterEnvDepth = p.FilterEnvDepth
	if v.filterEnvOn {
		v.filterEnv.trigger(p.FilterEnv, SampleRate)
	}

	v.pitchEnvOn = p.PitchEnvOn
	v.pitchEnvDepth = p.PitchEnvDepth
	if v.pitchEnvOn {
		v.pitchEnv.trigger(p.PitchEnv, SampleRate)
	}

	for i := range v.lfos {
		v.lfos[i].init(p.LFOs[i])
	}
}

// render adds one block of the voice's output into the left/right bus
// slices. Stereo samples are channel-averaged before the filter; the pan
// stage re-spreads the result with an equal-power law. Modulation sources
// (LFOs, filter and pitch envelopes) run at block rate, the amp envelope
// per frame. The voice retires itself when the sample or amp envelope ends.
func (v *voice) render(left, right []float64, bpm float64) {
	if v.state == stateFree || v.sample == nil {
		return
	}
	n := len(left)

	var pitchMod, ampMod, cutMod, panMod float64
	for i := range v.lfos {
		val := v.lfos[i].next(SampleRate, bpm, n)
		switch v.lfos[i].Dest {
		case DestPitch:
			pitchMod += val * 12 // up to an octave at full depth
		case DestAmp:
			ampMod += val
		case DestCutoff:
			cutMod += val * 4 // up to four octaves at full depth
		case DestPan:
			panMod += val
		}
	}
	if v.pitchEnvOn {
		pitchMod += v.pitchEnv.advance(n) * v.pitchEnvDepth
	}

	ratio := v.ratio * math.Pow(2, pitchMod/12)

	pan := v.pan + panMod
	if pan < -1 {
		pan = -1
	}
	if pan > 1 {
		pan = 1
	}
	gl := math.Cos((pan + 1) * math.Pi / 4)
	gr := math.Sin((pan + 1) * math.Pi / 4)

	if v.filterOn {
		oct := cutMod
		if v.filterEnvOn {
			oct += v.filterEnv.advance(n) * v.filterEnvDepth
		}
		v.filter.set(v.baseCutoff*math.Pow(2, oct), v.baseRes, SampleRate)
	}

	frames := float64(v.sample.Frames())
	stereo := v.sample.channels == 2
	for i := 0; i < n; i++ {
		amp := v.ampEnv.next() * v.gain * (1 + ampMod)
		if amp < 0 {
			amp = 0
		}
		s := v.sample.at(v.pos, 0)
		if stereo {
			s = (s + v.sample.at(v.pos, 1)) * 0.5
		}
		if v.filterOn {
			s = v.filter.next(s)
		}
		left[i] += s * amp * gl
		right[i] += s * amp * gr

		v.pos += ratio
		if v.pos >= frames {
			if v.mode == LoopForward && frames > 0 {
				v.pos = math.Mod(v.pos, frames)
			} else {
				v.free()
				return
			}
		}
	}
	if v.ampEnv.finished() {
		v.free()
		return
	}
	if v.ampEnv.releasing() {
		v.state = stateReleased
	}
}

// noteOff starts the release stage from the current level. A positive
// release overrides the voice's configured release time (seconds).
func (v *voice) noteOff(release float64) {
	if v.state != stateActive {
		return
	}
	v.ampEnv.noteOff(release)
	if v.filterEnvOn {
		v.filterEnv.noteOff(release)
	}
	if v.pitchEnvOn {
		v.pitchEnv.noteOff(release)
	}
	v.state = stateReleased
}

// choke forces a short release, regardless of the current stage. Used for
// mute groups, immediate stops and voice stealing hand-off.
func (v *voice) choke() {
	if v.state == stateFree {
		return
	}
	v.ampEnv.noteOff(chokeRelease)
	v.state = stateReleased
}

func (v *voice) free() {
	v.state = stateFree
	v.sample = nil
	v.id = 0
	v.group = 0
}
