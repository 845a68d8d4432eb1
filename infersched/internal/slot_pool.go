package internal

import (
	"fmt"

	"github.com/google/uuid"
)

// slot is an opaque handle to one reusable execution context.
//
// Ownership walks a fixed path: idle set -> in-flight (held by the worker
// goroutine until its completion lands) -> back to the idle set if the
// submission's policy is still active, or parked until the next
// activation of its policy repopulates the idle set.
//
// A slot is never submitted twice concurrently: acquisition removes it
// from the idle set until the sink or the mode controller puts it back.
type slot struct {
	id     string
	policy Policy
	exec   ExecContext
}

func newSlot(p Policy, build func(Policy) (ExecContext, error)) (*slot, error) {
	exec, err := build(p)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, fmt.Errorf("NewContext returned a nil context for %s", p)
	}
	return &slot{
		id:     uuid.NewString(),
		policy: p,
		exec:   exec,
	}, nil
}

// acquireLocked pops an idle slot of the active policy, oldest first.
// Fails while a mode switch is draining: the old policy no longer accepts
// submissions and the new one is not active yet.
func (s *Scheduler) acquireLocked() (*slot, bool) {
	if s.switching {
		return nil, false
	}
	q := s.idle[s.active]
	if len(q) == 0 {
		return nil, false
	}
	sl := q[0]
	s.idle[s.active] = q[1:]
	return sl, true
}

// releaseLocked returns a slot to its owning policy's idle set. Called
// exactly once per submission cycle, by the completion sink when the
// submission's policy is still active.
func (s *Scheduler) releaseLocked(sl *slot) {
	s.idle[sl.policy] = append(s.idle[sl.policy], sl)
}

// repopulateLocked resets a policy's idle set to its full slot capacity.
// Used at construction and when the mode controller activates a policy
// whose slots are all idle after the drain.
func (s *Scheduler) repopulateLocked(p Policy) {
	s.idle[p] = append(make([]*slot, 0, len(s.slots[p])), s.slots[p]...)
}
