package infersched

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// defaultWaitTimeout bounds each suspension of the driver loop so context
// cancellation is noticed even when no completion arrives.
const defaultWaitTimeout = 100 * time.Millisecond

// Source supplies units of work to the driver loop.
//
// Next returns the next payload, or ok=false once the stream is
// exhausted. A non-nil error aborts intake; already-submitted work still
// drains. Called only from the driver goroutine.
type Source interface {
	Next(ctx context.Context) (payload any, ok bool, err error)
}

// Consumer receives results strictly in submission order.
//
// A non-nil error stops the run after the in-flight tail drains. Called
// only from the driver goroutine.
type Consumer interface {
	Consume(res Result) error
}

// Runner is the driver loop: the single control goroutine that pulls
// input, submits to idle slots, advances the sequencer, and suspends on
// the scheduler's shared wait condition when neither is possible.
//
// Not re-entrant; one Run per Runner.
type Runner struct {
	sched    Scheduler
	source   Source
	consumer Consumer

	// WaitTimeout bounds each WaitForEvent suspension.
	// Zero means a 100ms default.
	WaitTimeout time.Duration
}

// NewRunner wires a scheduler between a source and a consumer.
func NewRunner(sched Scheduler, source Source, consumer Consumer) *Runner {
	return &Runner{sched: sched, source: source, consumer: consumer}
}

// Run drives the loop until the source is exhausted and every submission
// has been emitted, or a worker fault / consumer error stops the run.
//
// Per iteration, in priority order:
//  1. a captured worker fault surfaces and stops the run (fatal)
//  2. an emittable result is popped and handed to the consumer
//  3. termination, once intake is done and everything drained
//  4. input is read and submitted if an idle slot exists
//  5. otherwise the loop blocks on the shared wait condition
//
// Context cancellation stops intake only: in-flight work is never
// abandoned, the tail drains through the consumer, and Run returns
// ctx.Err(). Mode switches requested concurrently (RequestModeSwitch is
// safe from any goroutine) pause intake via the scheduler itself; the
// loop just keeps polling results while the old policy drains.
func (r *Runner) Run(ctx context.Context) error {
	wait := r.WaitTimeout
	if wait <= 0 {
		wait = defaultWaitTimeout
	}

	intakeDone := false
	var intakeErr error

	// One read-but-not-yet-submitted payload. A mode switch can start
	// between IsReadyToSubmit and Submit; the payload is held and
	// retried after the drain instead of being dropped.
	var held any
	var haveHeld bool

	for {
		if err := r.sched.Err(); err != nil {
			// Fatal: abandon the un-sequenced remainder, but never a
			// pending callback.
			return r.sched.WaitForAllCompletion()
		}

		if !intakeDone && ctx.Err() != nil {
			intakeDone = true
			intakeErr = ctx.Err()
		}

		if res, ok := r.sched.PollResult(); ok {
			if err := r.consumer.Consume(res); err != nil && intakeErr == nil {
				intakeDone = true
				intakeErr = fmt.Errorf("infersched: consumer: %w", err)
			}
			continue
		}

		if intakeDone && !haveHeld && r.sched.Drained() {
			break
		}

		if r.sched.IsReadyToSubmit() && (haveHeld || !intakeDone) {
			if !haveHeld {
				payload, ok, err := r.source.Next(ctx)
				if err != nil {
					intakeDone = true
					if intakeErr == nil && !errors.Is(err, context.Canceled) {
						intakeErr = fmt.Errorf("infersched: source: %w", err)
					}
					continue
				}
				if !ok {
					intakeDone = true
					continue
				}
				held, haveHeld = payload, true
			}
			if _, err := r.sched.Submit(held); err != nil {
				if errors.Is(err, ErrCapacityExhausted) {
					// Lost the race against a switch; wait it out.
					r.sched.WaitForEvent(wait)
					continue
				}
				// Only a captured fault reaches here; the check at the
				// top of the loop drains and surfaces it.
				continue
			}
			held, haveHeld = nil, false
			continue
		}

		r.sched.WaitForEvent(wait)
	}

	if err := r.sched.WaitForAllCompletion(); err != nil {
		return err
	}
	return intakeErr
}
