package infersched

import (
	"time"

	"github.com/forky-mcforkface/open-model-zoo/infersched/internal"
)

// Policy is re-exported from the internal package to avoid import cycles.
// See internal/types.go for full documentation.
type Policy = internal.Policy

// The two execution policies. Exactly one is active at any time.
const (
	Throughput = internal.Throughput
	LowLatency = internal.LowLatency
)

// ExecContext is re-exported from the internal package.
// See internal/types.go for full documentation.
type ExecContext = internal.ExecContext

// Config is re-exported from the internal package.
// See internal/types.go for full documentation.
type Config = internal.Config

// Result is re-exported from the internal package.
// See internal/types.go for full documentation.
type Result = internal.Result

// Stats is re-exported from the internal package.
// See internal/types.go for full documentation.
type Stats = internal.Stats

// ModeStats is re-exported from the internal package.
// See internal/types.go for full documentation.
type ModeStats = internal.ModeStats

// WorkerFaultError is re-exported from the internal package.
// See internal/errors.go for full documentation.
type WorkerFaultError = internal.WorkerFaultError

// Sentinel errors, re-exported so errors.Is works against the public
// package. See internal/errors.go.
var (
	ErrCapacityExhausted = internal.ErrCapacityExhausted
	ErrSwitchInProgress  = internal.ErrSwitchInProgress
)

// Scheduler is the public interface of the inference scheduler.
//
// Design:
//   - Interface (not concrete type) for future extensibility
//   - Submit/PollResult/WaitForEvent belong to a single control
//     goroutine; everything else is safe from any goroutine
//   - Implementation is in internal/ (hidden from clients)
type Scheduler interface {
	// Submit accepts one unit of work under the active policy and
	// returns its sequence number. Fails with ErrCapacityExhausted when
	// no idle slot is available; gate calls on IsReadyToSubmit or treat
	// the failure as a blocking point via WaitForEvent.
	Submit(payload any) (uint64, error)

	// IsReadyToSubmit reports whether the active policy has an idle slot.
	IsReadyToSubmit() bool

	// WaitForEvent blocks until a result is available, a slot frees, a
	// fault is captured, or the timeout elapses.
	WaitForEvent(timeout time.Duration)

	// PollResult pops the next in-order result without blocking.
	// Sequence numbers come out strictly increasing and gap-free.
	PollResult() (Result, bool)

	// RequestModeSwitch initiates a policy switch and returns
	// immediately; the switch completes asynchronously while submission
	// is paused. Switching to the active policy is a no-op; a second
	// switch while one is draining returns ErrSwitchInProgress.
	RequestModeSwitch(target Policy) error

	// ActivePolicy returns the policy currently accepting submissions.
	ActivePolicy() Policy

	// Drained reports whether nothing is in flight and the result
	// buffer is empty.
	Drained() bool

	// Err returns the first captured worker fault, if any.
	Err() error

	// WaitForAllCompletion blocks until every submitted item has been
	// emitted and every in-flight callback has landed, then returns the
	// captured fault, if any. Idempotent.
	WaitForAllCompletion() error

	// Stats returns a consistent snapshot of scheduler state.
	Stats() Stats
}

// New creates a Scheduler with both slot pools pre-populated: one
// execution context per Throughput slot plus one for LowLatency, all
// built through cfg.NewContext.
//
// Returns: Scheduler interface (implementation is internal).
func New(cfg Config) (Scheduler, error) {
	return internal.NewScheduler(cfg)
}
