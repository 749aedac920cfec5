package audio

import (
	"errors"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// RenderStats is a diagnostic snapshot of the render core.
type RenderStats struct {
	ActiveVoices    int64
	VoicesStarted   uint64
	Steals          uint64
	DroppedTriggers uint64
	DroppedCommands uint64
	CPULoad         float64 // render time / buffer duration
}

// Engine is the mixer and render callback. One instance owns the voice
// pool, the pad track strips and the command queue; it is handed by
// reference to every collaborator, there is no ambient global.
//
// Process runs on the audio thread; every other method runs in the control
// domain and communicates with Process through the command queue and the
// Props atomics only.
type Engine struct {
	*Props

	store  *Store
	queue  *commandQueue
	pushMu sync.Mutex // serializes producers onto the spsc queue
	pool   pool

	tracks   [NumTracks]trackStrip
	master   *atomic.Value
	metroOn  *atomic.Value
	metroVol *atomic.Value

	click       *Sample
	clickAccent *Sample
	metroVoice  voice

	bpmBits atomic.Uint64 // for tempo-synced LFOs

	busL, busR [NumTracks][]float64
	mixL, mixR [blockSize]float64

	levels  [NumTracks + 1]atomic.Uint64 // Float64bits of per-buffer RMS
	cpuLoad atomic.Uint64
	dropped atomic.Uint64
}

func NewEngine(store *Store) *Engine {
	e := &Engine{
		Props: NewProps(),
		store: store,
		queue: newCommandQueue(256),
	}
	for n := range e.tracks {
		e.tracks[n] = newTrackStrip(e.Props, n)
	}
	e.master = e.Props.MustRegister("master.volume", setFloat64(-60, 6), 0.0)
	e.metroOn = e.Props.MustRegister("metro.enabled", setBool, false)
	e.metroVol = e.Props.MustRegister("metro.volume", setFloat64(-60, 6), -6.0)
	e.click = clickSample(false)
	e.clickAccent = clickSample(true)
	for n := 0; n < NumTracks; n++ {
		e.busL[n] = make([]float64, blockSize)
		e.busR[n] = make([]float64, blockSize)
	}
	e.bpmBits.Store(math.Float64bits(120))
	return e
}

// Store returns the sample store the engine was built with.
func (e *Engine) SampleStore() *Store { return e.store }

// enqueue serializes concurrent callers onto the single-producer ring:
// triggers arrive from the step callback, ratchet timers and the REPL at
// once. The render side drains lock-free, unaffected.
func (e *Engine) enqueue(c command) bool {
	e.pushMu.Lock()
	ok := e.queue.push(c)
	e.pushMu.Unlock()
	return ok
}

// Trigger schedules a pad hit on the render thread. The settings inside
// params are copied by value; edits made after Trigger returns never reach
// the voice. A full command queue drops the trigger.
func (e *Engine) Trigger(params TriggerParams) error {
	if params.Sample == nil {
		return errors.New("trigger without sample")
	}
	if !e.enqueue(command{kind: cmdTrigger, trigger: params}) {
		e.dropped.Add(1)
		log.Printf("engine: command queue full, trigger dropped")
		return errors.New("command queue full")
	}
	return nil
}

// StopNote releases all voices started with voiceID. A positive releaseMs
// overrides their configured release time.
func (e *Engine) StopNote(voiceID int64, releaseMs float64) {
	ok := e.enqueue(command{
		kind:    cmdNoteOff,
		voiceID: voiceID,
		release: releaseMs / 1000,
	})
	if !ok {
		e.dropped.Add(1)
		log.Printf("engine: command queue full, note-off dropped")
	}
}

// StopAll releases every voice, optionally restricted to one track
// (track -1 means all).
func (e *Engine) StopAll(track int, immediate bool) {
	ok := e.enqueue(command{kind: cmdStopAll, track: track, immediate: immediate})
	if !ok {
		e.dropped.Add(1)
		log.Printf("engine: command queue full, stop-all dropped")
	}
}

// MetronomeTick schedules a click when the metronome is enabled.
func (e *Engine) MetronomeTick(accent bool) {
	if !e.metroOn.Load().(bool) {
		return
	}
	if !e.enqueue(command{kind: cmdClick, accent: accent}) {
		e.dropped.Add(1)
	}
}

// SetTempo informs the render core of the current tempo. Only tempo-synced
// LFO rates depend on it; scheduling lives in the seq package.
func (e *Engine) SetTempo(bpm float64) {
	if bpm <= 0 {
		return
	}
	e.bpmBits.Store(math.Float64bits(bpm))
}

func (e *Engine) Stats() RenderStats {
	return RenderStats{
		ActiveVoices:    e.pool.active.Load(),
		VoicesStarted:   e.pool.started.Load(),
		Steals:          e.pool.steals.Load(),
		DroppedTriggers: e.pool.drops.Load(),
		DroppedCommands: e.dropped.Load(),
		CPULoad:         math.Float64frombits(e.cpuLoad.Load()),
	}
}

// Levels returns the per-track RMS levels of the last buffer; the final
// element is the master bus.
func (e *Engine) Levels() [NumTracks + 1]float64 {
	var out [NumTracks + 1]float64
	for i := range out {
		out[i] = math.Float64frombits(e.levels[i].Load())
	}
	return out
}

// Process fills one hardware buffer. It is the real-time entry point: no
// allocation, no locks, no I/O.
func (e *Engine) Process(out [][]float32) {
	start := time.Now()
	left, right := out[0], out[1]
	frames := len(left)

	bpm := math.Float64frombits(e.bpmBits.Load())
	masterGain := math.Pow(10, e.master.Load().(float64)/20)

	anySolo := false
	for n := range e.tracks {
		if e.tracks[n].solo.Load().(bool) {
			anySolo = true
			break
		}
	}

	var sq [NumTracks + 1]float64

	for off := 0; off < frames; off += blockSize {
		n := blockSize
		if frames-off < n {
			n = frames - off
		}

		e.queue.drain(e.apply)

		for t := 0; t < NumTracks; t++ {
			for i := 0; i < n; i++ {
				e.busL[t][i] = 0
				e.busR[t][i] = 0
			}
		}
		e.pool.render(&e.busL, &e.busR, bpm, n)

		for t := 0; t < NumTracks; t++ {
			strip := &e.tracks[t]
			gain := 0.0
			if !strip.mute.Load().(bool) && !(anySolo && !strip.solo.Load().(bool)) {
				gain = math.Pow(10, strip.volume.Load().(float64)/20)
			}
			pan := strip.pan.Load().(float64)
			gl := gain * math.Cos((pan+1)*math.Pi/4)
			gr := gain * math.Sin((pan+1)*math.Pi/4)
			for i := 0; i < n; i++ {
				l := e.busL[t][i]
				r := e.busR[t][i]
				sq[t] += l*l + r*r
				e.mixL[i] += l * gl
				e.mixR[i] += r * gr
			}
		}

		e.metroVoice.render(e.mixL[:n], e.mixR[:n], bpm)

		for i := 0; i < n; i++ {
			l := e.mixL[i] * masterGain
			r := e.mixR[i] * masterGain
			sq[NumTracks] += l*l + r*r
			left[off+i] = float32(l)
			right[off+i] = float32(r)
			e.mixL[i] = 0
			e.mixR[i] = 0
		}
	}

	if frames > 0 {
		for t := range sq {
			e.levels[t].Store(math.Float64bits(math.Sqrt(sq[t] / float64(2*frames))))
		}
		load := time.Since(start).Seconds() / (float64(frames) / SampleRate)
		e.cpuLoad.Store(math.Float64bits(load))
	}
}

// apply executes one queued command on the render thread.
func (e *Engine) apply(c command) {
	switch c.kind {
	case cmdTrigger:
		e.pool.trigger(c.trigger)
	case cmdNoteOff:
		e.pool.noteOff(c.voiceID, c.release)
	case cmdStopAll:
		e.pool.stopAll(c.track, c.immediate)
	case cmdClick:
		smp := e.click
		if c.accent {
			smp = e.clickAccent
		}
		var p TriggerParams
		p.Sample = smp
		p.Velocity = 1
		p.GainDB = e.metroVol.Load().(float64)
		p.AmpEnv = EnvelopeSettings{Attack: 0.001, Decay: 0.05, Sustain: 0, Release: 0.01}
		e.metroVoice.start(p, e.pool.clock)
	}
}
