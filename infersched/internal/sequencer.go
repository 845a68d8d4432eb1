package internal

import "time"

// PollResult pops the next in-order result without blocking.
//
// Results are handed out in strictly increasing, gap-free sequence order
// regardless of the order completions arrived in: if the expected
// sequence number is not buffered yet, nothing is returned even when
// later numbers are. This is the central correctness property of the
// scheduler; blocking is deliberately left to WaitForEvent so the
// reordering logic stays trivial.
//
// A successful pop feeds the submitting policy's performance window,
// unless the result straddled a mode switch (either completed under a
// different policy, or its policy was deactivated before emission).
func (s *Scheduler) PollResult() (Result, bool) {
	s.mu.Lock()

	r, ok := s.pending[s.expected]
	if !ok {
		s.mu.Unlock()
		return Result{}, false
	}
	delete(s.pending, s.expected)
	s.expected++

	if r.SameMode && r.Policy == s.active {
		s.windows[r.Policy].observe(time.Since(r.SubmittedAt))
	}

	s.mu.Unlock()
	s.cond.Broadcast()
	return r, true
}
