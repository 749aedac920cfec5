package seq

import (
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// TransportState is the engine's transport position in its state machine:
// Stopped -> Playing <-> Paused -> Stopped.
type TransportState int32

const (
	StateStopped TransportState = iota
	StatePlaying
	StatePaused
)

func (s TransportState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// ClockSource selects what advances the step counter.
type ClockSource int32

const (
	// SourceInternal derives step deadlines from the tempo and the wall
	// clock.
	SourceInternal ClockSource = iota

	// SourceExternal advances on incoming ClockPulses; the set tempo is
	// accepted but ignored for scheduling.
	SourceExternal
)

func (s ClockSource) String() string {
	if s == SourceExternal {
		return "external"
	}
	return "internal"
}

// StallPolicy decides what happens when external pulses stop arriving for
// longer than the stall timeout.
type StallPolicy int

const (
	// StallHold keeps the step position and waits for pulses, surfacing
	// the stall diagnostically.
	StallHold StallPolicy = iota

	// StallRevert switches to the internal clock at the last inferred
	// tempo.
	StallRevert
)

type Config struct {
	// StepsPerBeat is the pattern subdivision (4 = sixteenth notes).
	StepsPerBeat int

	// PatternLength is the number of steps before the reported step index
	// wraps.
	PatternLength int

	// Latency is subtracted from dispatch timestamps: device output
	// latency plus measured processing latency.
	Latency time.Duration

	// CallbackTimeout is the per-subscriber dispatch budget.
	CallbackTimeout time.Duration

	// PulsesPerStep is the number of external pulses per step. The MIDI
	// clock default is 24 PPQN / 4 steps per beat.
	PulsesPerStep int

	// StallTimeout is how long the engine waits for an external pulse
	// before declaring a stall.
	StallTimeout time.Duration

	OnStall StallPolicy

	// CPULoad, when set, feeds the render core's load estimate into
	// TimingStats.
	CPULoad func() float64
}

// TimingStats is a rolling diagnostic snapshot of the scheduler.
type TimingStats struct {
	AverageJitter time.Duration
	MaxJitter     time.Duration
	MissedSteps   uint64
	DroppedPulses uint64
	CPULoad       float64
	InferredTempo float64
	Synced        bool
	Stalled       bool
}

var nanBits = math.Float64bits(math.NaN())

// Engine is the precision timing engine. One goroutine per Start owns the
// schedule; everything shared with callers is behind atomics or the
// transport mutex. Step N's callbacks are always dispatched before step
// N+1's deadline is computed, and a late tick catches up immediately
// rather than skipping a step.
type Engine struct {
	cfg       Config
	callbacks *Callbacks

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	resumeCh chan struct{}
	kickCh   chan struct{}
	pulseCh  chan ClockPulse

	state  atomic.Int32
	source atomic.Int32
	step   atomic.Int64 // monotonic since Start

	tempoBits    atomic.Uint64
	swingBits    atomic.Uint64
	pendingTempo atomic.Uint64 // NaN = none
	pendingSwing atomic.Uint64

	synced   atomic.Bool
	stalled  atomic.Bool
	inferred atomic.Uint64

	jitterSum     atomic.Int64
	jitterMax     atomic.Int64
	jitterN       atomic.Uint64
	missed        atomic.Uint64
	droppedPulses atomic.Uint64
}

func New(cfg Config) *Engine {
	if cfg.StepsPerBeat <= 0 {
		cfg.StepsPerBeat = 4
	}
	if cfg.PatternLength <= 0 {
		cfg.PatternLength = 16
	}
	if cfg.PulsesPerStep <= 0 {
		cfg.PulsesPerStep = PulsesPerQuarter / cfg.StepsPerBeat
		if cfg.PulsesPerStep <= 0 {
			cfg.PulsesPerStep = 1
		}
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = 2 * time.Second
	}
	e := &Engine{
		cfg:       cfg,
		callbacks: newCallbacks(cfg.CallbackTimeout, cfg.Latency),
	}
	e.tempoBits.Store(math.Float64bits(120))
	e.pendingTempo.Store(nanBits)
	e.pendingSwing.Store(nanBits)
	return e
}

// Callbacks exposes the step-callback registry.
func (e *Engine) Callbacks() *Callbacks { return e.callbacks }

func (e *Engine) Tempo() float64 {
	return math.Float64frombits(e.tempoBits.Load())
}

func (e *Engine) Swing() float64 {
	return math.Float64frombits(e.swingBits.Load())
}

// CurrentStep returns the step index within the pattern.
func (e *Engine) CurrentStep() int {
	return int(e.step.Load() % int64(e.cfg.PatternLength))
}

func (e *Engine) State() TransportState {
	return TransportState(e.state.Load())
}

func (e *Engine) Source() ClockSource {
	return ClockSource(e.source.Load())
}

// Synced reports whether an external tempo has been inferred from live
// pulses.
func (e *Engine) Synced() bool { return e.synced.Load() }

// Stalled reports whether the external clock has gone quiet past the
// stall timeout.
func (e *Engine) Stalled() bool { return e.stalled.Load() }

// Start resets the step counter to zero and begins playing.
func (e *Engine) Start(bpm, swing float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.tempoBits.Store(math.Float64bits(ClampTempo(bpm)))
	e.swingBits.Store(math.Float64bits(ClampSwing(swing)))
	e.pendingTempo.Store(nanBits)
	e.pendingSwing.Store(nanBits)
	e.step.Store(0)
	e.jitterSum.Store(0)
	e.jitterMax.Store(0)
	e.jitterN.Store(0)
	e.missed.Store(0)
	e.droppedPulses.Store(0)
	e.synced.Store(false)
	e.stalled.Store(false)

	e.stopCh = make(chan struct{})
	e.resumeCh = make(chan struct{}, 1)
	e.kickCh = make(chan struct{}, 1)
	e.pulseCh = make(chan ClockPulse, 64)
	e.running = true
	e.state.Store(int32(StatePlaying))
	go e.run(e.stopCh, e.resumeCh, e.kickCh, e.pulseCh)
}

// Stop resets the step counter and invalidates any pending deadline: the
// run loop checks for the stop before every dispatch.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	close(e.stopCh)
	e.running = false
	e.state.Store(int32(StateStopped))
	e.step.Store(0)
	e.synced.Store(false)
	e.stalled.Store(false)
	e.pendingTempo.Store(nanBits)
	e.pendingSwing.Store(nanBits)
}

// Pause holds the step position. The pending step fires one full step
// after Resume.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running && e.State() == StatePlaying {
		e.state.Store(int32(StatePaused))
	}
}

func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.State() != StatePaused {
		return
	}
	e.state.Store(int32(StatePlaying))
	select {
	case e.resumeCh <- struct{}{}:
	default:
	}
}

// SetTempo changes the tempo. While playing it takes effect on the next
// step boundary, never retroactively. While the clock source is external
// the value is stored but ignored for scheduling.
func (e *Engine) SetTempo(bpm float64) {
	bpm = ClampTempo(bpm)
	if e.State() == StatePlaying {
		e.pendingTempo.Store(math.Float64bits(bpm))
	} else {
		e.tempoBits.Store(math.Float64bits(bpm))
	}
}

// SetSwing changes the swing amount, latched at the next step boundary
// while playing.
func (e *Engine) SetSwing(amount float64) {
	amount = ClampSwing(amount)
	if e.State() == StatePlaying {
		e.pendingSwing.Store(math.Float64bits(amount))
	} else {
		e.swingBits.Store(math.Float64bits(amount))
	}
}

// SetClockSource switches between the internal clock and external pulses.
func (e *Engine) SetClockSource(src ClockSource) {
	if e.source.Swap(int32(src)) == int32(src) {
		return
	}
	e.synced.Store(false)
	e.stalled.Store(false)
	e.mu.Lock()
	if e.running {
		select {
		case e.kickCh <- struct{}{}:
		default:
		}
	}
	e.mu.Unlock()
}

// ProcessClockPulse feeds one external pulse. Only consulted when the
// clock source is external; never blocks the caller.
func (e *Engine) ProcessClockPulse(p ClockPulse) {
	if e.Source() != SourceExternal {
		return
	}
	e.mu.Lock()
	ch := e.pulseCh
	running := e.running
	e.mu.Unlock()
	if !running {
		return
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	select {
	case ch <- p:
	default:
		e.droppedPulses.Add(1)
	}
}

// InferredTempo returns the tempo derived from external pulse spacing, or
// zero when none has been inferred.
func (e *Engine) InferredTempo() float64 {
	return math.Float64frombits(e.inferred.Load())
}

func (e *Engine) Stats() TimingStats {
	var avg time.Duration
	if n := e.jitterN.Load(); n > 0 {
		avg = time.Duration(e.jitterSum.Load() / int64(n))
	}
	st := TimingStats{
		AverageJitter: avg,
		MaxJitter:     time.Duration(e.jitterMax.Load()),
		MissedSteps:   e.missed.Load(),
		DroppedPulses: e.droppedPulses.Load(),
		InferredTempo: e.InferredTempo(),
		Synced:        e.synced.Load(),
		Stalled:       e.stalled.Load(),
	}
	if e.cfg.CPULoad != nil {
		st.CPULoad = e.cfg.CPULoad()
	}
	return st
}

// run owns the schedule. grid tracks the unswung step grid; the actual
// deadline adds the swing offset of the pending step.
func (e *Engine) run(stop, resume, kick chan struct{}, pulses chan ClockPulse) {
	external := e.Source() == SourceExternal
	initial := time.Duration(0)
	if external {
		initial = e.cfg.StallTimeout
	}
	timer := time.NewTimer(initial)
	defer timer.Stop()

	var est tempoEstimator
	grid := time.Now()
	deadline := grid
	var pulseCount uint64

	for {
		select {
		case <-stop:
			return

		case <-resume:
			// Stray resume while already playing; nothing to do.

		case <-kick:
			// Clock source changed; rebase the schedule.
			if e.Source() == SourceExternal {
				est.reset()
				pulseCount = 0
				resetTimer(timer, e.cfg.StallTimeout)
			} else {
				grid = time.Now()
				deadline = grid
				resetTimer(timer, 0)
			}

		case p := <-pulses:
			if e.Source() != SourceExternal {
				continue
			}
			e.stalled.Store(false)
			est.observe(p.Timestamp)
			if t := est.tempo(); t > 0 {
				e.inferred.Store(math.Float64bits(t))
				e.synced.Store(true)
			}
			if e.State() == StatePlaying {
				pulseCount++
				if (pulseCount-1)%uint64(e.cfg.PulsesPerStep) == 0 {
					if stopped(stop) {
						return
					}
					e.dispatch(p.Timestamp)
				}
			}
			resetTimer(timer, e.cfg.StallTimeout)

		case now := <-timer.C:
			if e.Source() == SourceExternal {
				// Stall watchdog.
				if e.State() == StatePlaying {
					e.stall(now, &grid, &deadline, timer)
				} else {
					timer.Reset(e.cfg.StallTimeout)
				}
				continue
			}

			if e.State() == StatePaused {
				select {
				case <-stop:
					return
				case <-resume:
					dur := StepDuration(e.Tempo(), e.cfg.StepsPerBeat)
					grid = time.Now().Add(dur)
					deadline = grid.Add(e.swingAt(e.step.Load(), dur))
					timer.Reset(time.Until(deadline))
				case <-kick:
					if e.Source() == SourceExternal {
						est.reset()
						pulseCount = 0
						timer.Reset(e.cfg.StallTimeout)
					} else {
						grid = time.Now()
						deadline = grid
						timer.Reset(0)
					}
				}
				continue
			}

			if stopped(stop) {
				return
			}
			dur := StepDuration(e.Tempo(), e.cfg.StepsPerBeat)
			e.recordJitter(now.Sub(deadline), dur)
			e.dispatch(deadline)

			// Pending tempo/swing latch at the boundary just dispatched.
			e.applyPending()
			dur = StepDuration(e.Tempo(), e.cfg.StepsPerBeat)
			grid = grid.Add(dur)
			deadline = grid.Add(e.swingAt(e.step.Load(), dur))
			wait := time.Until(deadline)
			if wait < 0 {
				// Late: catch up immediately, never skip a step.
				wait = 0
			}
			timer.Reset(wait)
		}
	}
}

// stall handles a quiet external clock according to the configured policy.
func (e *Engine) stall(now time.Time, grid, deadline *time.Time, timer *time.Timer) {
	e.synced.Store(false)
	e.stalled.Store(true)
	if e.cfg.OnStall == StallRevert {
		if t := e.InferredTempo(); t > 0 {
			e.tempoBits.Store(math.Float64bits(ClampTempo(t)))
		}
		e.source.Store(int32(SourceInternal))
		log.Printf("seq: external clock stalled, reverting to internal at %.1f bpm", e.Tempo())
		*grid = now
		*deadline = now
		timer.Reset(0)
		return
	}
	log.Printf("seq: external clock stalled, holding at step %d", e.CurrentStep())
	timer.Reset(e.cfg.StallTimeout)
}

func (e *Engine) dispatch(ts time.Time) {
	step := e.step.Load()
	idx := int(step % int64(e.cfg.PatternLength))
	e.callbacks.Dispatch(idx, ts)
	e.step.Store(step + 1)
}

func (e *Engine) applyPending() {
	if t := math.Float64frombits(e.pendingTempo.Swap(nanBits)); !math.IsNaN(t) {
		e.tempoBits.Store(math.Float64bits(t))
	}
	if s := math.Float64frombits(e.pendingSwing.Swap(nanBits)); !math.IsNaN(s) {
		e.swingBits.Store(math.Float64bits(s))
	}
}

// swingAt returns the swing offset for the pattern position of absolute
// step n.
func (e *Engine) swingAt(n int64, dur time.Duration) time.Duration {
	return SwingOffset(int(n%int64(e.cfg.PatternLength)), e.Swing(), dur)
}

func (e *Engine) recordJitter(late, dur time.Duration) {
	if late < 0 {
		late = 0
	}
	e.jitterSum.Add(int64(late))
	e.jitterN.Add(1)
	for {
		max := e.jitterMax.Load()
		if int64(late) <= max || e.jitterMax.CompareAndSwap(max, int64(late)) {
			break
		}
	}
	if late > dur {
		e.missed.Add(1)
	}
}

func stopped(stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
