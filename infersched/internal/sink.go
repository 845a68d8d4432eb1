package internal

import "time"

// onComplete is the completion sink: the single point where worker
// goroutines mutate shared state. Invoked exactly once per submission, at
// an unspecified time after Submit and in unspecified order relative to
// other completions.
//
// Under the shared lock it:
//  1. captures the first fault, if this completion failed
//     (first-failure-wins; later faults are dropped)
//  2. stores the result keyed by sequence number, stamped with whether the
//     submission's policy is still the active one
//  3. decrements the policy's in-flight count
//  4. releases the slot back to its pool only if the policy is still
//     active; a stale-policy slot stays parked until its policy's next
//     activation repopulates the idle set
//
// then broadcasts the shared condition so a blocked driver loop, drain, or
// shutdown wait wakes. Nothing long-running happens under the lock.
func (s *Scheduler) onComplete(sl *slot, seq uint64, pol Policy, out any, submittedAt time.Time, err error) {
	s.mu.Lock()

	if err != nil {
		if s.fault == nil {
			s.fault = &WorkerFaultError{Seq: seq, Err: err}
		}
	} else {
		s.pending[seq] = Result{
			Seq:         seq,
			Payload:     out,
			SubmittedAt: submittedAt,
			Policy:      pol,
			SameMode:    pol == s.active,
		}
	}

	s.inFlight[pol]--
	if pol == s.active {
		s.releaseLocked(sl)
	}
	s.events++

	s.mu.Unlock()
	s.cond.Broadcast()
}
