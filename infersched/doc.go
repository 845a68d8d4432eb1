// Package infersched schedules asynchronous inference requests over a
// bounded pool of execution slots and reassembles their out-of-order
// completions into strict submission order.
//
// # Philosophy
//
// "Reuse slots the instant they free, emit results in the order they were
// submitted."
//
// A frame source produces work faster than any single inference request
// finishes it. The scheduler keeps N requests in flight at once and hides
// the resulting completion disorder behind a sequencer, so the consumer
// sees frames exactly as the camera produced them.
//
// # Design Principles
//
//  1. One critical section: idle slots, pending results, active policy
//     and the captured fault live under a single mutex with one shared
//     condition variable. No nested locking, nothing slow under the lock.
//  2. Non-blocking sequencer: PollResult never waits; blocking is the
//     driver loop's job via WaitForEvent. Reordering stays testable in
//     isolation from concurrency.
//  3. Immutable submission snapshots: each worker goroutine captures
//     {sequence, policy, payload} by value. No aliasing of control-loop
//     state across goroutines.
//  4. First-failure-wins faults: worker errors are captured once and
//     re-surfaced on the control goroutine, never thrown across
//     goroutine boundaries.
//
// # Execution Policies
//
// Two policies coexist and exactly one is active:
//
//	Throughput:  N slots, maximum frames/sec (N from configuration,
//	             default GOMAXPROCS)
//	LowLatency:  1 slot, minimum per-frame latency
//
// RequestModeSwitch pauses submission, drains the old policy's in-flight
// work (results keep flowing), then activates the other policy with a
// full idle set and a fresh metrics window. No submission is ever lost
// across a switch.
//
// # Basic Usage
//
//	sched, err := infersched.New(infersched.Config{
//	    ThroughputSlots: 4,
//	    NewContext: func(p infersched.Policy) (infersched.ExecContext, error) {
//	        return engine.NewContext(p)
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	runner := infersched.NewRunner(sched, source, consumer)
//	if err := runner.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Hosts that need finer control drive the scheduler directly: Submit when
// IsReadyToSubmit, PollResult until it misses, WaitForEvent otherwise,
// WaitForAllCompletion to flush the tail at shutdown.
//
// # Monitoring
//
// Stats() returns a consistent snapshot: submitted/emitted counters,
// per-policy in-flight and idle counts, and per-mode FPS/latency windows
// that reset on every mode activation.
package infersched
