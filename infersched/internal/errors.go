package internal

import (
	"errors"
	"fmt"
)

// ErrCapacityExhausted is returned by Submit when the active policy has no
// idle slot (including while a mode switch is draining). Callers should
// gate submissions on IsReadyToSubmit or treat this as a signal to block
// in WaitForEvent.
var ErrCapacityExhausted = errors.New("infersched: no idle slot under the active policy")

// ErrSwitchInProgress is returned by RequestModeSwitch while a previous
// switch is still draining. Overlapping switches are rejected, never
// interleaved.
var ErrSwitchInProgress = errors.New("infersched: mode switch already in progress")

// WorkerFaultError wraps the first execution or extraction failure.
//
// Faults are never propagated across goroutine boundaries directly: the
// first one is captured under the scheduler lock and re-surfaced on the
// control goroutine via Err, WaitForAllCompletion, and the Runner.
// Subsequent faults are dropped so the original cause is not masked.
type WorkerFaultError struct {
	// Seq is the sequence number of the failed submission.
	Seq uint64

	// Err is the underlying failure.
	Err error
}

func (e *WorkerFaultError) Error() string {
	return fmt.Sprintf("infersched: worker fault on seq %d: %v", e.Seq, e.Err)
}

func (e *WorkerFaultError) Unwrap() error { return e.Err }
