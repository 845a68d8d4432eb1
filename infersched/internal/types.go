package internal

import (
	"context"
	"time"
)

// Policy names a slot-capacity / latency trade-off for submissions.
//
// Exactly one policy is active at any time. Throughput owns a fixed set of
// N slots; LowLatency owns exactly one. The sets are disjoint, but both may
// have in-flight work simultaneously while a mode switch drains.
type Policy int

const (
	// Throughput keeps many submissions in flight for maximum frames/sec.
	Throughput Policy = iota

	// LowLatency keeps a single submission in flight for minimum
	// per-frame latency.
	LowLatency
)

// String returns a human-readable policy name.
func (p Policy) String() string {
	switch p {
	case Throughput:
		return "throughput"
	case LowLatency:
		return "low-latency"
	default:
		return "unknown"
	}
}

// ExecContext is a reusable execution context bound to exactly one slot.
//
// Infer runs one unit of work to completion and returns its raw output.
// The scheduler guarantees a context is never executing two payloads
// concurrently; implementations need no internal locking for that.
//
// Infer runs on a worker goroutine, never on the control goroutine. It
// must not call back into the scheduler.
type ExecContext interface {
	Infer(ctx context.Context, payload any) (raw any, err error)
}

// Config configures a scheduler instance.
type Config struct {
	// ThroughputSlots is the slot capacity of the Throughput policy.
	// Zero means runtime.GOMAXPROCS(0). Must be >= 1 if set.
	ThroughputSlots int

	// InitialPolicy is the policy active at construction.
	// Defaults to Throughput.
	InitialPolicy Policy

	// NewContext builds one execution context per slot. Called
	// ThroughputSlots times with Throughput and once with LowLatency
	// during construction, so hosts can configure each context for its
	// policy's trade-off. Required.
	NewContext func(p Policy) (ExecContext, error)

	// Extract turns a context's raw output into the result payload
	// emitted to the consumer. Runs on the worker goroutine right after
	// Infer; an error here is a worker fault like any execution error.
	// Nil means identity.
	Extract func(raw any) (any, error)
}

// Result is one unit of finished work, emitted strictly in submission
// order.
type Result struct {
	// Seq is the submission-order sequence number (0-based, gap-free).
	Seq uint64

	// Payload is the extracted result, opaque to the scheduler.
	Payload any

	// SubmittedAt is the wall-clock submission time, for latency
	// accounting.
	SubmittedAt time.Time

	// Policy is the policy that was active when the work was submitted.
	Policy Policy

	// SameMode reports whether Policy was still the active policy when
	// the work completed. Results straddling a mode switch are excluded
	// from per-mode metrics.
	SameMode bool
}

// Stats is a snapshot of scheduler state. All counts are taken under the
// scheduler's single lock, so the snapshot is internally consistent.
type Stats struct {
	// ActivePolicy is the policy currently accepting submissions.
	ActivePolicy Policy

	// Switching is true while a mode switch is draining the old policy.
	Switching bool

	// Submitted is the total number of accepted submissions (== the next
	// sequence number to assign).
	Submitted uint64

	// Emitted is the total number of results handed out in order (== the
	// next sequence number to emit).
	Emitted uint64

	// Buffered is the number of completed results waiting for their turn
	// in the sequencer.
	Buffered int

	// InFlight maps each policy to its number of running submissions.
	InFlight map[Policy]int

	// IdleSlots maps each policy to its number of idle slots.
	IdleSlots map[Policy]int

	// Modes maps each policy to its performance window.
	Modes map[Policy]ModeStats
}

// ModeStats is the performance window of one policy. The window resets
// every time the policy is activated.
type ModeStats struct {
	// Started is true once the window has observed at least one result.
	Started bool

	// Frames is the number of results observed in the current window.
	Frames uint64

	// FPS is Frames divided by the window's active wall-clock time.
	FPS float64

	// AvgLatency is the mean submit-to-emit latency in the window.
	AvgLatency time.Duration
}
