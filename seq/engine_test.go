package seq

import (
	"math"
	"sync"
	"testing"
	"time"
)

type stepRecorder struct {
	mu    sync.Mutex
	steps []int
	times []time.Time
}

func (r *stepRecorder) record(step int, ts time.Time) {
	r.mu.Lock()
	r.steps = append(r.steps, step)
	r.times = append(r.times, ts)
	r.mu.Unlock()
}

func (r *stepRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}

func (r *stepRecorder) snapshot() ([]int, []time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.steps...), append([]time.Time(nil), r.times...)
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEngineDispatchesSequence(t *testing.T) {
	e := New(Config{StepsPerBeat: 4, PatternLength: 4})
	var rec stepRecorder
	if err := e.Callbacks().Register("rec", 0, rec.record); err != nil {
		t.Fatal(err)
	}

	e.Start(240, 0) // 62.5 ms per step
	defer e.Stop()
	waitFor(t, 2*time.Second, "9 steps", func() bool { return rec.count() >= 9 })
	e.Stop()

	steps, _ := rec.snapshot()
	for i := 0; i < 9; i++ {
		if steps[i] != i%4 {
			t.Fatalf("step %d: want %d, got %d (steps %v)", i, i%4, steps[i], steps[:9])
		}
	}
}

func TestEngineSwingOnScheduledTimestamps(t *testing.T) {
	e := New(Config{StepsPerBeat: 4, PatternLength: 16})
	var rec stepRecorder
	e.Callbacks().Register("rec", 0, rec.record)

	e.Start(120, 0.6) // 125 ms steps, odd steps delayed 50 ms
	defer e.Stop()
	waitFor(t, 3*time.Second, "5 steps", func() bool { return rec.count() >= 5 })
	e.Stop()

	_, times := rec.snapshot()
	dur := StepDuration(120, 4)
	off := SwingOffset(1, 0.6, dur)
	const tol = 2 * time.Millisecond

	for i := 1; i < 5; i++ {
		want := dur + off // into an odd step
		if i%2 == 0 {
			want = dur - off // back onto the even grid
		}
		got := times[i].Sub(times[i-1])
		if got < want-tol || got > want+tol {
			t.Fatalf("interval %d: want %v, got %v", i, want, got)
		}
	}
}

func TestEngineTempoChangesAtStepBoundary(t *testing.T) {
	e := New(Config{StepsPerBeat: 4, PatternLength: 16})
	var rec stepRecorder
	e.Callbacks().Register("rec", 0, rec.record)

	e.Start(120, 0)
	defer e.Stop()
	e.SetTempo(240)
	if got := e.Tempo(); got != 120 {
		t.Fatalf("tempo must not change mid-step: want 120, got %v", got)
	}
	waitFor(t, 2*time.Second, "tempo latch", func() bool { return e.Tempo() == 240 })
}

func TestEngineSetTempoWhileStopped(t *testing.T) {
	e := New(Config{})
	e.SetTempo(90)
	if got := e.Tempo(); got != 90 {
		t.Fatalf("stopped engine should take tempo immediately, got %v", got)
	}
	e.SetTempo(5)
	if got := e.Tempo(); got != MinTempo {
		t.Fatalf("tempo should clamp: want %v, got %v", MinTempo, got)
	}
}

func TestEnginePauseResume(t *testing.T) {
	e := New(Config{StepsPerBeat: 4, PatternLength: 8})
	var rec stepRecorder
	e.Callbacks().Register("rec", 0, rec.record)

	e.Start(240, 0)
	defer e.Stop()
	waitFor(t, 2*time.Second, "2 steps", func() bool { return rec.count() >= 2 })

	e.Pause()
	if got := e.State(); got != StatePaused {
		t.Fatalf("want paused, got %v", got)
	}
	paused := rec.count()
	time.Sleep(250 * time.Millisecond) // several step durations
	if got := rec.count(); got != paused {
		t.Fatalf("paused engine must not dispatch: had %d, got %d", paused, got)
	}

	e.Resume()
	waitFor(t, 2*time.Second, "resume", func() bool { return rec.count() > paused })
	steps, _ := rec.snapshot()
	// the position survives the pause: indices stay consecutive
	for i := range steps {
		if steps[i] != i%8 {
			t.Fatalf("step %d: want %d, got %d", i, i%8, steps[i])
		}
	}
}

func TestEngineStopResets(t *testing.T) {
	e := New(Config{StepsPerBeat: 4, PatternLength: 8})
	var rec stepRecorder
	e.Callbacks().Register("rec", 0, rec.record)

	e.Start(240, 0)
	waitFor(t, 2*time.Second, "3 steps", func() bool { return rec.count() >= 3 })
	e.Stop()

	if got := e.State(); got != StateStopped {
		t.Fatalf("want stopped, got %v", got)
	}
	if got := e.CurrentStep(); got != 0 {
		t.Fatalf("stop should rewind to step 0, got %d", got)
	}

	// a fresh start begins at step 0 again
	time.Sleep(20 * time.Millisecond) // let any in-flight dispatch land
	before := rec.count()
	e.Start(240, 0)
	defer e.Stop()
	waitFor(t, 2*time.Second, "restart", func() bool { return rec.count() > before })
	steps, _ := rec.snapshot()
	if steps[before] != 0 {
		t.Fatalf("restart should dispatch step 0, got %d", steps[before])
	}
}

func TestEngineExternalPulsesDriveSteps(t *testing.T) {
	e := New(Config{StepsPerBeat: 4, PatternLength: 16, PulsesPerStep: 2, StallTimeout: 5 * time.Second})
	var rec stepRecorder
	e.Callbacks().Register("rec", 0, rec.record)

	e.SetClockSource(SourceExternal)
	e.Start(120, 0)
	defer e.Stop()

	ts := time.Now()
	step := pulseInterval(120)
	for i := 0; i < 10; i++ {
		e.ProcessClockPulse(ClockPulse{Timestamp: ts})
		ts = ts.Add(step)
	}
	// 10 pulses at 2 pulses per step dispatch 5 steps
	waitFor(t, 2*time.Second, "5 steps", func() bool { return rec.count() >= 5 })
	time.Sleep(20 * time.Millisecond)
	if got := rec.count(); got != 5 {
		t.Fatalf("want exactly 5 steps from 10 pulses, got %d", got)
	}

	if !e.Synced() {
		t.Fatal("engine should report synced after live pulses")
	}
	got := e.InferredTempo()
	if math.Abs(got-120)/120 > 0.01 {
		t.Fatalf("inferred tempo off by more than 1%%: %v", got)
	}
}

func TestEngineExternalWithoutPulses(t *testing.T) {
	e := New(Config{StallTimeout: 5 * time.Second})
	var rec stepRecorder
	e.Callbacks().Register("rec", 0, rec.record)

	e.SetClockSource(SourceExternal)
	e.Start(120, 0)
	defer e.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := rec.count(); got != 0 {
		t.Fatalf("no pulses means no steps, got %d", got)
	}
	if e.Synced() {
		t.Fatal("engine must never report synced without pulses")
	}
}

func TestEngineInternalIgnoresPulses(t *testing.T) {
	e := New(Config{StepsPerBeat: 4, PatternLength: 16})
	e.Start(120, 0)
	defer e.Stop()

	for i := 0; i < 20; i++ {
		e.ProcessClockPulse(ClockPulse{Timestamp: time.Now()})
	}
	if e.Synced() {
		t.Fatal("internal clock should ignore external pulses")
	}
	if got := e.Stats().DroppedPulses; got != 0 {
		t.Fatalf("ignored pulses are not drops, got %d", got)
	}
}

func TestEngineStallHold(t *testing.T) {
	e := New(Config{PulsesPerStep: 1, StallTimeout: 40 * time.Millisecond, OnStall: StallHold})
	var rec stepRecorder
	e.Callbacks().Register("rec", 0, rec.record)

	e.SetClockSource(SourceExternal)
	e.Start(120, 0)
	defer e.Stop()

	ts := time.Now()
	step := pulseInterval(120)
	for i := 0; i < 6; i++ {
		e.ProcessClockPulse(ClockPulse{Timestamp: ts})
		ts = ts.Add(step)
	}
	waitFor(t, time.Second, "6 steps", func() bool { return rec.count() >= 6 })

	waitFor(t, time.Second, "stall", func() bool { return e.Stalled() })
	if e.Synced() {
		t.Fatal("a stalled clock is not synced")
	}
	if e.Source() != SourceExternal {
		t.Fatal("hold policy should keep the external source")
	}
	held := rec.count()
	time.Sleep(100 * time.Millisecond)
	if got := rec.count(); got != held {
		t.Fatalf("hold policy must not advance steps: had %d, got %d", held, got)
	}

	// pulses resume: the stall clears and steps continue
	e.ProcessClockPulse(ClockPulse{Timestamp: time.Now()})
	waitFor(t, time.Second, "recovery", func() bool { return rec.count() == held+1 && !e.Stalled() })
}

func TestEngineStallRevert(t *testing.T) {
	e := New(Config{PulsesPerStep: 1, StallTimeout: 40 * time.Millisecond, OnStall: StallRevert})
	var rec stepRecorder
	e.Callbacks().Register("rec", 0, rec.record)

	e.SetClockSource(SourceExternal)
	e.Start(120, 0)
	defer e.Stop()

	ts := time.Now()
	step := pulseInterval(174)
	for i := 0; i < 8; i++ {
		e.ProcessClockPulse(ClockPulse{Timestamp: ts})
		ts = ts.Add(step)
	}
	waitFor(t, time.Second, "8 steps", func() bool { return rec.count() >= 8 })

	waitFor(t, time.Second, "revert", func() bool { return e.Source() == SourceInternal })
	if got := e.Tempo(); math.Abs(got-174)/174 > 0.02 {
		t.Fatalf("revert should adopt the inferred tempo: got %v", got)
	}
	// the internal clock carries on from the held position
	held := rec.count()
	waitFor(t, 2*time.Second, "internal steps", func() bool { return rec.count() >= held+2 })
}

func TestEngineCurrentStepWraps(t *testing.T) {
	e := New(Config{StepsPerBeat: 4, PatternLength: 4})
	var rec stepRecorder
	e.Callbacks().Register("rec", 0, rec.record)
	e.Start(240, 0)
	defer e.Stop()
	waitFor(t, 2*time.Second, "wrap", func() bool { return rec.count() >= 6 })
	if got := e.CurrentStep(); got < 0 || got >= 4 {
		t.Fatalf("current step out of pattern range: %d", got)
	}
}
