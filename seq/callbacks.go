package seq

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// StepFunc is invoked for every step the engine dispatches. ts is the
// step's scheduled time compensated for the configured output latency.
type StepFunc func(step int, ts time.Time)

const (
	// failureWindow and maxFailures drive auto-disabling: a subscriber
	// that fails maxFailures times inside one window is cut off until it
	// is explicitly re-enabled.
	failureWindow = time.Second
	maxFailures   = 5

	defaultCallbackTimeout = 5 * time.Millisecond
)

// CallbackStats is a per-subscriber diagnostic snapshot.
type CallbackStats struct {
	ID           string
	Priority     int
	Enabled      bool
	AutoDisabled bool
	Calls        uint64
	Timeouts     uint64
	Panics       uint64
}

type subscriber struct {
	id           string
	priority     int
	fn           StepFunc
	enabled      bool
	autoDisabled bool
	failures     []time.Time
	calls        uint64
	timeouts     uint64
	panics       uint64
}

// Callbacks is the priority-ordered registry of step subscribers.
// Dispatch isolates failures: a panicking subscriber is recovered, an
// overrunning one recorded, and repeat offenders are auto-disabled so one
// misbehaving subscriber cannot hurt the schedule for the rest.
type Callbacks struct {
	mu      sync.Mutex
	subs    []*subscriber
	latency time.Duration
	timeout time.Duration
}

func newCallbacks(timeout, latency time.Duration) *Callbacks {
	if timeout <= 0 {
		timeout = defaultCallbackTimeout
	}
	return &Callbacks{timeout: timeout, latency: latency}
}

// Register adds a subscriber. Higher priority runs first; ties break on
// id for a stable order.
func (c *Callbacks) Register(id string, priority int, fn StepFunc) error {
	if fn == nil {
		return fmt.Errorf("callback %s: nil func", id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subs {
		if s.id == id {
			return fmt.Errorf("callback %s already registered", id)
		}
	}
	c.subs = append(c.subs, &subscriber{
		id:       id,
		priority: priority,
		fn:       fn,
		enabled:  true,
	})
	sort.SliceStable(c.subs, func(i, j int) bool {
		if c.subs[i].priority != c.subs[j].priority {
			return c.subs[i].priority > c.subs[j].priority
		}
		return c.subs[i].id < c.subs[j].id
	})
	return nil
}

func (c *Callbacks) Unregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s.id == id {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

// SetEnabled flips a subscriber on or off. Enabling clears an
// auto-disable and its failure history.
func (c *Callbacks) SetEnabled(id string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subs {
		if s.id != id {
			continue
		}
		s.enabled = enabled
		if enabled {
			s.autoDisabled = false
			s.failures = s.failures[:0]
		}
		return
	}
}

// SetLatency sets the dispatch timestamp compensation: device output
// latency plus measured processing latency.
func (c *Callbacks) SetLatency(d time.Duration) {
	c.mu.Lock()
	c.latency = d
	c.mu.Unlock()
}

// Dispatch invokes all live subscribers for one step, highest priority
// first. The timestamp handed to subscribers is compensated by the
// configured latency.
func (c *Callbacks) Dispatch(step int, ts time.Time) {
	c.mu.Lock()
	live := make([]*subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		if s.enabled && !s.autoDisabled {
			live = append(live, s)
		}
	}
	timeout := c.timeout
	compensated := ts.Add(-c.latency)
	c.mu.Unlock()

	for _, s := range live {
		c.invoke(s, step, compensated, timeout)
	}
}

func (c *Callbacks) invoke(s *subscriber, step int, ts time.Time, timeout time.Duration) {
	start := time.Now()
	panicked := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				log.Printf("callback %s: panic on step %d: %v", s.id, step, r)
			}
		}()
		s.fn(step, ts)
	}()
	elapsed := time.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	s.calls++
	if panicked {
		s.panics++
	}
	overran := elapsed > timeout
	if overran {
		s.timeouts++
		log.Printf("callback %s: step %d took %v (budget %v)", s.id, step, elapsed, timeout)
	}
	if panicked || overran {
		c.fail(s, start)
	}
}

// fail records one failure and auto-disables the subscriber when it has
// failed maxFailures times within failureWindow. Auto-disabled subscribers
// stay registered; re-enabling is an explicit external action.
func (c *Callbacks) fail(s *subscriber, now time.Time) {
	s.failures = append(s.failures, now)
	cutoff := now.Add(-failureWindow)
	keep := s.failures[:0]
	for _, t := range s.failures {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	s.failures = keep
	if len(s.failures) >= maxFailures {
		s.autoDisabled = true
		s.failures = s.failures[:0]
		log.Printf("callback %s: disabled after repeated failures", s.id)
	}
}

// Stats returns a snapshot for every registered subscriber, in dispatch
// order.
func (c *Callbacks) Stats() []CallbackStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CallbackStats, len(c.subs))
	for i, s := range c.subs {
		out[i] = CallbackStats{
			ID:           s.id,
			Priority:     s.priority,
			Enabled:      s.enabled,
			AutoDisabled: s.autoDisabled,
			Calls:        s.calls,
			Timeouts:     s.timeouts,
			Panics:       s.panics,
		}
	}
	return out
}
