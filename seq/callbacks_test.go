package seq

import (
	"testing"
	"time"
)

func TestCallbacksRegister(t *testing.T) {
	c := newCallbacks(0, 0)
	if err := c.Register("a", 0, func(int, time.Time) {}); err != nil {
		t.Fatal(err)
	}
	if err := c.Register("a", 0, func(int, time.Time) {}); err == nil {
		t.Fatal("duplicate id should be rejected")
	}
	if err := c.Register("b", 0, nil); err == nil {
		t.Fatal("nil func should be rejected")
	}
}

func TestCallbacksPriorityOrder(t *testing.T) {
	c := newCallbacks(0, 0)
	var order []string
	add := func(id string, prio int) {
		if err := c.Register(id, prio, func(int, time.Time) {
			order = append(order, id)
		}); err != nil {
			t.Fatal(err)
		}
	}
	add("low", 1)
	add("high", 100)
	add("mid-b", 50)
	add("mid-a", 50)

	c.Dispatch(0, time.Now())
	want := []string{"high", "mid-a", "mid-b", "low"}
	if len(order) != len(want) {
		t.Fatalf("want %d calls, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("wrong dispatch order: want %v, got %v", want, order)
		}
	}
}

func TestCallbacksUnregister(t *testing.T) {
	c := newCallbacks(0, 0)
	calls := 0
	c.Register("a", 0, func(int, time.Time) { calls++ })
	c.Unregister("a")
	c.Dispatch(0, time.Now())
	if calls != 0 {
		t.Fatal("unregistered callback should not run")
	}
	c.Unregister("missing") // no-op
}

func TestCallbacksDisable(t *testing.T) {
	c := newCallbacks(0, 0)
	calls := 0
	c.Register("a", 0, func(int, time.Time) { calls++ })
	c.SetEnabled("a", false)
	c.Dispatch(0, time.Now())
	if calls != 0 {
		t.Fatal("disabled callback should not run")
	}
	c.SetEnabled("a", true)
	c.Dispatch(1, time.Now())
	if calls != 1 {
		t.Fatal("re-enabled callback should run")
	}
}

func TestCallbacksLatencyCompensation(t *testing.T) {
	c := newCallbacks(0, 20*time.Millisecond)
	var got time.Time
	c.Register("a", 0, func(_ int, ts time.Time) { got = ts })
	scheduled := time.Now()
	c.Dispatch(0, scheduled)
	if want := scheduled.Add(-20 * time.Millisecond); !got.Equal(want) {
		t.Fatalf("timestamp should be latency compensated: want %v, got %v", want, got)
	}
}

func TestCallbacksPanicIsolation(t *testing.T) {
	c := newCallbacks(0, 0)
	var after int
	c.Register("bad", 100, func(int, time.Time) { panic("boom") })
	c.Register("good", 0, func(int, time.Time) { after++ })

	c.Dispatch(0, time.Now())
	if after != 1 {
		t.Fatal("a panicking subscriber must not stop the rest")
	}
	st := c.Stats()
	if st[0].ID != "bad" || st[0].Panics != 1 {
		t.Fatalf("panic not recorded: %+v", st[0])
	}
}

func TestCallbacksAutoDisable(t *testing.T) {
	c := newCallbacks(0, 0)
	calls := 0
	c.Register("bad", 0, func(int, time.Time) {
		calls++
		panic("boom")
	})

	for i := 0; i < maxFailures+3; i++ {
		c.Dispatch(i, time.Now())
	}
	if calls != maxFailures {
		t.Fatalf("subscriber should be cut off after %d failures, ran %d times", maxFailures, calls)
	}
	st := c.Stats()
	if !st[0].AutoDisabled {
		t.Fatal("subscriber should be auto-disabled")
	}

	// auto-disable is sticky until explicitly re-enabled
	c.Dispatch(0, time.Now())
	if calls != maxFailures {
		t.Fatal("auto-disabled subscriber should stay off")
	}
	c.SetEnabled("bad", true)
	c.Dispatch(0, time.Now())
	if calls != maxFailures+1 {
		t.Fatal("re-enabling should clear the auto-disable")
	}
}

func TestCallbacksTimeout(t *testing.T) {
	c := newCallbacks(time.Millisecond, 0)
	c.Register("slow", 0, func(int, time.Time) {
		time.Sleep(5 * time.Millisecond)
	})
	c.Dispatch(0, time.Now())
	st := c.Stats()
	if st[0].Timeouts != 1 {
		t.Fatalf("overrun not recorded: %+v", st[0])
	}
	if st[0].AutoDisabled {
		t.Fatal("a single overrun should not disable the subscriber")
	}
}

func TestCallbacksStatsOrder(t *testing.T) {
	c := newCallbacks(0, 0)
	c.Register("b", 10, func(int, time.Time) {})
	c.Register("a", 20, func(int, time.Time) {})
	st := c.Stats()
	if len(st) != 2 || st[0].ID != "a" || st[1].ID != "b" {
		t.Fatalf("stats should follow dispatch order, got %+v", st)
	}
}
