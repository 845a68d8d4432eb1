// Package internal implements the asynchronous inference scheduler.
//
// This package is INTERNAL - clients MUST use the public API in the parent
// package. Reason: allows internal refactoring without breaking changes.
package internal

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Scheduler reassembles out-of-order completions into in-order results
// while reusing a bounded set of execution slots.
//
// Goroutine topology:
//   - 0 fixed: the scheduler owns no loop goroutine of its own
//   - 1 per in-flight submission: transient worker goroutine running
//     ExecContext.Infer, terminating in the completion sink (sink.go)
//   - 1 transient per mode switch: drain goroutine (modes.go)
//
// Concurrency model: the idle slot sets, the pending-result map, the
// in-flight counters, the active policy, and the captured fault form one
// critical section guarded by mu. cond is the single shared wait
// condition; every completion, emission, slot release, and switch
// completion broadcasts it. No nested locking; nothing long-running ever
// holds mu.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	extract func(raw any) (any, error)

	// --- Slot ownership (slot_pool.go) ---

	slots    map[Policy][]*slot // full ownership set, fixed at construction
	idle     map[Policy][]*slot // idle subset, FIFO
	inFlight map[Policy]int

	// --- Mode state (modes.go) ---

	active    Policy
	switching bool

	// --- Sequencing state (sink.go, sequencer.go) ---

	nextSeq  uint64            // next sequence number to assign
	expected uint64            // next sequence number to emit
	pending  map[uint64]Result // completed, not yet emitted

	// fault is the first captured worker failure (first-failure-wins).
	fault error

	// events counts state changes (completion, release, switch). Lets
	// WaitForEvent distinguish a real wake-up from a spurious one.
	events uint64

	windows map[Policy]*modeWindow
}

// NewScheduler builds a scheduler with its two slot pools pre-populated:
// ThroughputSlots idle slots for Throughput, exactly one for LowLatency.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.NewContext == nil {
		return nil, fmt.Errorf("infersched: Config.NewContext is required")
	}
	n := cfg.ThroughputSlots
	if n == 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n < 1 {
		return nil, fmt.Errorf("infersched: ThroughputSlots must be >= 1, got %d", n)
	}

	s := &Scheduler{
		extract:  cfg.Extract,
		slots:    make(map[Policy][]*slot, 2),
		idle:     make(map[Policy][]*slot, 2),
		inFlight: map[Policy]int{Throughput: 0, LowLatency: 0},
		active:   cfg.InitialPolicy,
		pending:  make(map[uint64]Result),
		windows: map[Policy]*modeWindow{
			Throughput: newModeWindow(),
			LowLatency: newModeWindow(),
		},
	}
	s.cond = sync.NewCond(&s.mu)
	if s.extract == nil {
		s.extract = func(raw any) (any, error) { return raw, nil }
	}

	for p, capacity := range map[Policy]int{Throughput: n, LowLatency: 1} {
		for i := 0; i < capacity; i++ {
			sl, err := newSlot(p, cfg.NewContext)
			if err != nil {
				return nil, fmt.Errorf("infersched: building %s slot %d: %w", p, i, err)
			}
			s.slots[p] = append(s.slots[p], sl)
		}
		s.repopulateLocked(p)
	}
	s.windows[s.active].restart(time.Now())

	return s, nil
}

// Submit accepts one unit of work under the active policy and returns its
// sequence number.
//
// Must be called from a single control goroutine. Returns
// ErrCapacityExhausted when no idle slot is available (or a mode switch is
// draining); a previously captured worker fault is returned as-is.
//
// The worker goroutine receives an immutable snapshot of {sequence,
// policy-at-submission, payload} by value; it never aliases control-loop
// state.
func (s *Scheduler) Submit(payload any) (uint64, error) {
	s.mu.Lock()
	if s.fault != nil {
		err := s.fault
		s.mu.Unlock()
		return 0, err
	}
	sl, ok := s.acquireLocked()
	if !ok {
		s.mu.Unlock()
		return 0, ErrCapacityExhausted
	}
	seq := s.nextSeq
	s.nextSeq++
	pol := s.active
	s.inFlight[pol]++
	s.mu.Unlock()

	submittedAt := time.Now()
	go s.runSlot(sl, seq, pol, payload, submittedAt)

	return seq, nil
}

// runSlot executes one submission on its worker goroutine and terminates
// in the completion sink. Extraction happens here too, outside the lock.
func (s *Scheduler) runSlot(sl *slot, seq uint64, pol Policy, payload any, submittedAt time.Time) {
	raw, err := sl.exec.Infer(context.Background(), payload)
	var out any
	if err == nil {
		out, err = s.extract(raw)
	}
	s.onComplete(sl, seq, pol, out, submittedAt, err)
}

// IsReadyToSubmit reports whether the active policy currently has an idle
// slot. False while a mode switch is draining.
func (s *Scheduler) IsReadyToSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.switching && len(s.idle[s.active]) > 0
}

// WaitForEvent blocks until the next in-order result is available, a
// captured fault exists, any slot frees or completion lands, or the
// timeout elapses.
//
// This is the single suspension point of a driver loop: callers poll,
// try to submit, and fall back here when neither makes progress.
func (s *Scheduler) WaitForEvent(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, s.cond.Broadcast)
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.events
	for s.fault == nil && !s.emittableLocked() && s.events == start {
		if !time.Now().Before(deadline) {
			return
		}
		s.cond.Wait()
	}
}

// emittableLocked reports whether PollResult would yield a result.
func (s *Scheduler) emittableLocked() bool {
	_, ok := s.pending[s.expected]
	return ok
}

// Err returns the captured worker fault, if any. Driver loops inspect it
// once per iteration and terminate the run on the first fault.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// Drained reports whether no work is in flight under either policy and
// the sequencer buffer is empty.
func (s *Scheduler) Drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlightTotalLocked() == 0 && len(s.pending) == 0
}

// WaitForAllCompletion blocks until every accepted submission has been
// emitted by the sequencer and every in-flight callback has landed, then
// returns the captured fault, if any.
//
// On a fault the run is abandoned: emission of the remaining buffer is
// not awaited, but in-flight slots are still drained - a slot is never
// abandoned with a pending callback.
//
// The caller owns draining: results are emitted through PollResult, so a
// host that stops polling before calling this must not hold unconsumed
// results. Idempotent; a second call after the stream is flushed returns
// immediately.
func (s *Scheduler) WaitForAllCompletion() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.fault == nil && s.expected < s.nextSeq {
		s.cond.Wait()
	}
	for s.inFlightTotalLocked() > 0 {
		s.cond.Wait()
	}
	return s.fault
}

func (s *Scheduler) inFlightTotalLocked() int {
	total := 0
	for _, n := range s.inFlight {
		total += n
	}
	return total
}

// Stats returns an internally consistent snapshot of scheduler state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	st := Stats{
		ActivePolicy: s.active,
		Switching:    s.switching,
		Submitted:    s.nextSeq,
		Emitted:      s.expected,
		Buffered:     len(s.pending),
		InFlight:     make(map[Policy]int, len(s.inFlight)),
		IdleSlots:    make(map[Policy]int, len(s.idle)),
		Modes:        make(map[Policy]ModeStats, len(s.windows)),
	}
	for p, n := range s.inFlight {
		st.InFlight[p] = n
	}
	for p, q := range s.idle {
		st.IdleSlots[p] = len(q)
	}
	for p, w := range s.windows {
		st.Modes[p] = w.snapshot(now)
	}
	return st
}
