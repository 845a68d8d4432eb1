package internal

import "time"

// ActivePolicy returns the policy currently accepting submissions.
func (s *Scheduler) ActivePolicy() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// RequestModeSwitch initiates a switch of the active policy and returns
// immediately; the switch completes asynchronously.
//
// Semantics:
//   - target == current active policy: no-op, nil
//   - a switch already draining: ErrSwitchInProgress (rejected, never
//     interleaved)
//   - otherwise: submission is paused at once (IsReadyToSubmit goes
//     false), the old policy's in-flight work drains, then the new policy
//     activates with a full idle set and a fresh metrics window
//
// Results keep flowing through the sequencer during the drain; only
// submission pauses. A switch requested with nothing in flight completes
// immediately.
func (s *Scheduler) RequestModeSwitch(target Policy) error {
	s.mu.Lock()
	if s.switching {
		s.mu.Unlock()
		return ErrSwitchInProgress
	}
	if target == s.active {
		s.mu.Unlock()
		return nil
	}
	s.switching = true
	s.windows[s.active].stop(time.Now())
	s.mu.Unlock()

	go s.drainAndActivate(target)
	return nil
}

// drainAndActivate performs the switch-over on its own goroutine:
//
//  1. wait under the shared condition until every slot of the old policy
//     is idle again (completions release them or park them; either way
//     the in-flight count reaches zero)
//  2. flip the active policy
//  3. repopulate the new policy's idle set to full capacity - its slots
//     were untouched while inactive, or parked by the sink during a
//     previous switch away from it
//  4. restart the new policy's statistics window
//
// The drain waits on the aggregate in-flight counter, not on individual
// slots, so completion order is irrelevant.
func (s *Scheduler) drainAndActivate(target Policy) {
	s.mu.Lock()

	old := s.active
	for s.inFlight[old] > 0 {
		s.cond.Wait()
	}

	s.active = target
	s.repopulateLocked(target)
	s.windows[target].restart(time.Now())
	s.switching = false
	s.events++

	s.mu.Unlock()
	s.cond.Broadcast()
}
