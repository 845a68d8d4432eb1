package internal

import "time"

// modeWindow accumulates the throughput/latency figures of one policy
// while it is active. The window restarts from zero on every activation,
// so the numbers always describe the current stint, not the lifetime.
//
// Guarded by the scheduler's lock; no locking of its own.
type modeWindow struct {
	started    bool          // observed at least one result, ever
	running    bool          // policy currently active
	startedAt  time.Time     // start of the current stint
	activeFor  time.Duration // closed stints of the current window
	frames     uint64
	latencySum time.Duration
}

func newModeWindow() *modeWindow {
	return &modeWindow{}
}

// restart clears the window and starts timing. Called when the policy
// becomes active.
func (w *modeWindow) restart(now time.Time) {
	w.running = true
	w.startedAt = now
	w.activeFor = 0
	w.frames = 0
	w.latencySum = 0
}

// stop closes the current stint. Called when a switch away from the
// policy begins; observations between stop and the next restart would be
// cross-mode noise and are filtered out by the sequencer anyway.
func (w *modeWindow) stop(now time.Time) {
	if !w.running {
		return
	}
	w.activeFor += now.Sub(w.startedAt)
	w.running = false
}

// observe records one emitted result and its submit-to-emit latency.
func (w *modeWindow) observe(latency time.Duration) {
	w.started = true
	w.frames++
	w.latencySum += latency
}

// snapshot derives the externally visible figures at the given instant.
func (w *modeWindow) snapshot(now time.Time) ModeStats {
	elapsed := w.activeFor
	if w.running {
		elapsed += now.Sub(w.startedAt)
	}

	st := ModeStats{
		Started: w.started,
		Frames:  w.frames,
	}
	if elapsed > 0 {
		st.FPS = float64(w.frames) / elapsed.Seconds()
	}
	if w.frames > 0 {
		st.AvgLatency = w.latencySum / time.Duration(w.frames)
	}
	return st
}
