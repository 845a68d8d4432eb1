package infersched_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forky-mcforkface/open-model-zoo/infersched"
)

// --- Test doubles ---

// sleepExec completes each payload after a per-item latency. Payloads are
// int indexes into the latency table (wrapping), results are index*10.
type sleepExec struct {
	latencies []time.Duration
}

func (e *sleepExec) Infer(_ context.Context, payload any) (any, error) {
	i := payload.(int)
	if len(e.latencies) > 0 {
		time.Sleep(e.latencies[i%len(e.latencies)])
	}
	return i * 10, nil
}

// gatedExec blocks each payload until the test releases it, giving full
// control over completion order.
type gatedExec struct {
	mu    sync.Mutex
	gates map[int]chan struct{}
}

func newGatedExec() *gatedExec {
	return &gatedExec{gates: make(map[int]chan struct{})}
}

func (e *gatedExec) gate(i int) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.gates[i]
	if !ok {
		g = make(chan struct{})
		e.gates[i] = g
	}
	return g
}

func (e *gatedExec) release(i int) { close(e.gate(i)) }

func (e *gatedExec) Infer(_ context.Context, payload any) (any, error) {
	i := payload.(int)
	<-e.gate(i)
	return i, nil
}

func newScheduler(t *testing.T, slots int, exec infersched.ExecContext) infersched.Scheduler {
	t.Helper()
	sched, err := infersched.New(infersched.Config{
		ThroughputSlots: slots,
		NewContext: func(infersched.Policy) (infersched.ExecContext, error) {
			return exec, nil
		},
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return sched
}

// drive runs a minimal driver loop: submit payloads 0..n-1 when a slot is
// free, poll results as they sequence, and return the emitted results.
func drive(t *testing.T, sched infersched.Scheduler, n int) []infersched.Result {
	t.Helper()
	var got []infersched.Result
	submitted := 0
	deadline := time.Now().Add(10 * time.Second)
	for len(got) < n {
		if time.Now().After(deadline) {
			t.Fatalf("drive stalled: submitted=%d emitted=%d", submitted, len(got))
		}
		if err := sched.Err(); err != nil {
			t.Fatalf("unexpected worker fault: %v", err)
		}
		if res, ok := sched.PollResult(); ok {
			got = append(got, res)
			continue
		}
		if submitted < n && sched.IsReadyToSubmit() {
			if _, err := sched.Submit(submitted); err != nil {
				t.Fatalf("Submit(%d) failed: %v", submitted, err)
			}
			submitted++
			continue
		}
		sched.WaitForEvent(time.Second)
	}
	return got
}

// --- Test 1: In-order emission under out-of-order completion ---

// TestInOrderEmission validates the central ordering property with the
// concrete latency scenario: Throughput capacity 3, six items with
// completion latencies [50,10,30,5,20,15]ms. Item 0 is the slowest of the
// first wave, so completions arrive heavily out of order, yet emission
// must be exactly 0,1,2,3,4,5.
func TestInOrderEmission(t *testing.T) {
	exec := &sleepExec{latencies: []time.Duration{
		50 * time.Millisecond,
		10 * time.Millisecond,
		30 * time.Millisecond,
		5 * time.Millisecond,
		20 * time.Millisecond,
		15 * time.Millisecond,
	}}
	sched := newScheduler(t, 3, exec)

	got := drive(t, sched, 6)

	for i, res := range got {
		if res.Seq != uint64(i) {
			t.Fatalf("emission[%d].Seq = %d, want %d (order: %v)", i, res.Seq, i, seqs(got))
		}
		if res.Payload.(int) != i*10 {
			t.Errorf("emission[%d].Payload = %v, want %d", i, res.Payload, i*10)
		}
	}

	if err := sched.WaitForAllCompletion(); err != nil {
		t.Fatalf("WaitForAllCompletion() = %v", err)
	}
	t.Logf("✅ 6 items emitted in order despite out-of-order completion")
}

// TestInOrderEmissionControlled repeats the ordering check with exact
// control over completion order: completions arrive in fully reversed
// order and emission must still be gap-free ascending.
func TestInOrderEmissionControlled(t *testing.T) {
	exec := newGatedExec()
	sched := newScheduler(t, 4, exec)

	for i := 0; i < 4; i++ {
		if _, err := sched.Submit(i); err != nil {
			t.Fatalf("Submit(%d) failed: %v", i, err)
		}
	}

	// Complete in reverse: 3, 2, 1, 0.
	for i := 3; i >= 0; i-- {
		exec.release(i)
	}

	// Nothing is emittable until seq 0 lands; after that all four pop.
	var got []uint64
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < 4 && time.Now().Before(deadline) {
		if res, ok := sched.PollResult(); ok {
			got = append(got, res.Seq)
			continue
		}
		sched.WaitForEvent(100 * time.Millisecond)
	}

	want := []uint64{0, 1, 2, 3}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("emission order = %v, want %v", got, want)
		}
	}

	if err := sched.WaitForAllCompletion(); err != nil {
		t.Fatalf("WaitForAllCompletion() = %v", err)
	}
}

// --- Test 2: Bounded in-flight ---

// TestBoundedInFlight validates that concurrency never exceeds the active
// policy's slot capacity: with Throughput=3, at most 3 Infer calls may
// run at once no matter how fast the driver submits.
func TestBoundedInFlight(t *testing.T) {
	var cur, peak atomic.Int64
	exec := &countingExec{cur: &cur, peak: &peak, latency: 3 * time.Millisecond}
	sched := newScheduler(t, 3, exec)

	drive(t, sched, 30)

	if err := sched.WaitForAllCompletion(); err != nil {
		t.Fatalf("WaitForAllCompletion() = %v", err)
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrent executions = %d, exceeds capacity 3", p)
	}
	t.Logf("✅ peak concurrency %d within capacity 3", peak.Load())
}

type countingExec struct {
	cur, peak *atomic.Int64
	latency   time.Duration
}

func (e *countingExec) Infer(_ context.Context, payload any) (any, error) {
	n := e.cur.Add(1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(e.latency)
	e.cur.Add(-1)
	return payload, nil
}

// --- Test 3: Capacity rejection ---

// TestSubmitCapacityExhausted validates the SubmissionRejected contract:
// with a single Throughput slot occupied, Submit fails with
// ErrCapacityExhausted and IsReadyToSubmit reports false until the slot
// frees.
func TestSubmitCapacityExhausted(t *testing.T) {
	exec := newGatedExec()
	sched := newScheduler(t, 1, exec)

	if !sched.IsReadyToSubmit() {
		t.Fatal("IsReadyToSubmit() = false on a fresh scheduler")
	}
	if _, err := sched.Submit(0); err != nil {
		t.Fatalf("Submit(0) failed: %v", err)
	}

	if sched.IsReadyToSubmit() {
		t.Error("IsReadyToSubmit() = true while the only slot is in flight")
	}
	if _, err := sched.Submit(1); !errors.Is(err, infersched.ErrCapacityExhausted) {
		t.Fatalf("Submit(1) = %v, want ErrCapacityExhausted", err)
	}

	exec.release(0)

	// The completion both frees the slot and buffers the result.
	waitUntil(t, time.Second, sched.IsReadyToSubmit)
	if _, err := sched.Submit(1); err != nil {
		t.Fatalf("Submit(1) after release failed: %v", err)
	}
	exec.release(1)

	// Drain before waiting: WaitForAllCompletion blocks until emission,
	// and emission is the caller's job via PollResult.
	for want := uint64(0); want < 2; want++ {
		res, ok := pollWithin(sched, time.Second)
		if !ok || res.Seq != want {
			t.Fatalf("drain: got (%v,%v), want seq %d", res, ok, want)
		}
	}
	if err := sched.WaitForAllCompletion(); err != nil {
		t.Fatalf("WaitForAllCompletion() = %v", err)
	}
}

// --- Test 4: Shutdown flush ---

// TestWaitForAllCompletionIdempotent validates the shutdown contract:
// after the stream is exhausted and drained, WaitForAllCompletion returns
// immediately, and calling it twice is a no-op the second time - no new
// emissions, no error.
func TestWaitForAllCompletionIdempotent(t *testing.T) {
	sched := newScheduler(t, 2, &sleepExec{latencies: []time.Duration{time.Millisecond}})

	drive(t, sched, 5)

	if err := sched.WaitForAllCompletion(); err != nil {
		t.Fatalf("first WaitForAllCompletion() = %v", err)
	}

	start := time.Now()
	if err := sched.WaitForAllCompletion(); err != nil {
		t.Fatalf("second WaitForAllCompletion() = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("second WaitForAllCompletion blocked for %v, want immediate return", elapsed)
	}
	if _, ok := sched.PollResult(); ok {
		t.Error("PollResult() produced a result after full drain")
	}
	t.Logf("✅ shutdown flush is idempotent")
}

// --- Test 5: Worker faults ---

// faultExec fails a chosen payload; everything else completes instantly.
type faultExec struct {
	failOn int
}

func (e *faultExec) Infer(_ context.Context, payload any) (any, error) {
	i := payload.(int)
	if i == e.failOn {
		return nil, fmt.Errorf("simulated device fault on item %d", i)
	}
	return i, nil
}

// TestWorkerFaultCaptured validates first-failure-wins propagation: the
// fault is captured on the worker goroutine, surfaced via Err() on the
// control goroutine, returned by WaitForAllCompletion, and poisons
// further Submit calls. Output emitted before the fault remains valid.
func TestWorkerFaultCaptured(t *testing.T) {
	sched := newScheduler(t, 2, &faultExec{failOn: 3})

	for i := 0; i < 4; i++ {
		for !sched.IsReadyToSubmit() {
			sched.WaitForEvent(100 * time.Millisecond)
		}
		if _, err := sched.Submit(i); err != nil {
			t.Fatalf("Submit(%d) failed: %v", i, err)
		}
	}

	waitUntil(t, time.Second, func() bool { return sched.Err() != nil })

	var fault *infersched.WorkerFaultError
	if !errors.As(sched.Err(), &fault) {
		t.Fatalf("Err() = %v, want *WorkerFaultError", sched.Err())
	}
	if fault.Seq != 3 {
		t.Errorf("fault.Seq = %d, want 3", fault.Seq)
	}

	// Items 0..2 completed cleanly; the partial prefix stays emittable.
	for want := uint64(0); want < 3; want++ {
		res, ok := pollWithin(sched, time.Second)
		if !ok || res.Seq != want {
			t.Fatalf("partial output: got (%v,%v), want seq %d", res, ok, want)
		}
	}

	if err := sched.WaitForAllCompletion(); !errors.As(err, &fault) {
		t.Errorf("WaitForAllCompletion() = %v, want the captured fault", err)
	}
	if _, err := sched.Submit(99); !errors.As(err, &fault) {
		t.Errorf("Submit after fault = %v, want the captured fault", err)
	}
	t.Logf("✅ fault captured once and re-surfaced on the control goroutine")
}

// TestExtractFault validates that a failing extraction function is a
// worker fault like any execution error.
func TestExtractFault(t *testing.T) {
	sched, err := infersched.New(infersched.Config{
		ThroughputSlots: 1,
		NewContext: func(infersched.Policy) (infersched.ExecContext, error) {
			return &sleepExec{}, nil
		},
		Extract: func(raw any) (any, error) {
			return nil, errors.New("malformed output blob")
		},
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := sched.Submit(0); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitUntil(t, time.Second, func() bool { return sched.Err() != nil })

	var fault *infersched.WorkerFaultError
	if !errors.As(sched.Err(), &fault) {
		t.Fatalf("Err() = %v, want *WorkerFaultError", sched.Err())
	}
}

// --- Test 6: Extraction adapter ---

// TestExtractTransformsPayload validates that Config.Extract shapes the
// emitted payload.
func TestExtractTransformsPayload(t *testing.T) {
	sched, err := infersched.New(infersched.Config{
		ThroughputSlots: 2,
		NewContext: func(infersched.Policy) (infersched.ExecContext, error) {
			return &sleepExec{}, nil
		},
		Extract: func(raw any) (any, error) {
			return fmt.Sprintf("det:%d", raw.(int)), nil
		},
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	got := drive(t, sched, 3)
	for i, res := range got {
		want := fmt.Sprintf("det:%d", i*10)
		if res.Payload != want {
			t.Errorf("payload[%d] = %v, want %q", i, res.Payload, want)
		}
	}
	if err := sched.WaitForAllCompletion(); err != nil {
		t.Fatalf("WaitForAllCompletion() = %v", err)
	}
}

// --- Test 7: Stats snapshot ---

// TestStatsSnapshot validates the counters of the operational snapshot.
func TestStatsSnapshot(t *testing.T) {
	exec := newGatedExec()
	sched := newScheduler(t, 3, exec)

	st := sched.Stats()
	if st.ActivePolicy != infersched.Throughput {
		t.Errorf("ActivePolicy = %v, want Throughput", st.ActivePolicy)
	}
	if st.IdleSlots[infersched.Throughput] != 3 || st.IdleSlots[infersched.LowLatency] != 1 {
		t.Errorf("idle slots = %v, want 3 Throughput / 1 LowLatency", st.IdleSlots)
	}

	for i := 0; i < 2; i++ {
		if _, err := sched.Submit(i); err != nil {
			t.Fatalf("Submit(%d) failed: %v", i, err)
		}
	}
	st = sched.Stats()
	if st.Submitted != 2 || st.Emitted != 0 {
		t.Errorf("Submitted/Emitted = %d/%d, want 2/0", st.Submitted, st.Emitted)
	}
	if st.InFlight[infersched.Throughput] != 2 || st.IdleSlots[infersched.Throughput] != 1 {
		t.Errorf("in-flight/idle = %d/%d, want 2/1",
			st.InFlight[infersched.Throughput], st.IdleSlots[infersched.Throughput])
	}

	exec.release(0)
	exec.release(1)
	waitUntil(t, time.Second, func() bool {
		s := sched.Stats()
		return s.InFlight[infersched.Throughput] == 0 && s.Buffered == 2
	})

	if res, ok := sched.PollResult(); !ok || res.Seq != 0 {
		t.Fatalf("PollResult() = (%v,%v), want seq 0", res, ok)
	}
	st = sched.Stats()
	if st.Emitted != 1 || st.Buffered != 1 {
		t.Errorf("Emitted/Buffered = %d/%d, want 1/1", st.Emitted, st.Buffered)
	}

	if _, ok := pollWithin(sched, time.Second); !ok {
		t.Fatal("failed to drain final result")
	}
	if err := sched.WaitForAllCompletion(); err != nil {
		t.Fatalf("WaitForAllCompletion() = %v", err)
	}
}

// --- Helpers ---

func seqs(rs []infersched.Result) []uint64 {
	out := make([]uint64, len(rs))
	for i, r := range rs {
		out[i] = r.Seq
	}
	return out
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached within timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

func pollWithin(sched infersched.Scheduler, timeout time.Duration) (infersched.Result, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if res, ok := sched.PollResult(); ok {
			return res, true
		}
		sched.WaitForEvent(10 * time.Millisecond)
	}
	return infersched.Result{}, false
}
