package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/forky-mcforkface/open-model-zoo/infersched"
	"github.com/forky-mcforkface/open-model-zoo/internal/detector"
	"github.com/forky-mcforkface/open-model-zoo/internal/emitter"
)

// detectionConsumer receives sequenced results from the driver loop,
// logs them, and optionally publishes an envelope per result. Runs on
// the driver goroutine only; no locking needed.
type detectionConsumer struct {
	instanceID string
	emitter    *emitter.MQTTEmitter // nil when MQTT is disabled

	startedAt time.Time
	emitted   uint64
	detected  uint64
}

func newDetectionConsumer(instanceID string, em *emitter.MQTTEmitter) *detectionConsumer {
	return &detectionConsumer{
		instanceID: instanceID,
		emitter:    em,
		startedAt:  time.Now(),
	}
}

// Consume implements infersched.Consumer.
func (c *detectionConsumer) Consume(res infersched.Result) error {
	det, ok := res.Payload.(*detector.Result)
	if !ok {
		return fmt.Errorf("unexpected result payload type %T", res.Payload)
	}

	latency := time.Since(res.SubmittedAt)
	c.emitted++
	c.detected += uint64(len(det.Detections))

	slog.Debug("result emitted",
		"seq", res.Seq,
		"mode", res.Policy.String(),
		"latency_ms", latency.Milliseconds(),
		"detections", len(det.Detections),
	)

	if c.emitter == nil {
		return nil
	}
	env := &emitter.Envelope{
		InstanceID: c.instanceID,
		Seq:        res.Seq,
		Mode:       res.Policy.String(),
		LatencyMS:  latency.Milliseconds(),
		EmittedAt:  time.Now(),
		Result:     det,
	}
	if err := c.emitter.Publish(env); err != nil {
		// Emission is best-effort; a flaky broker must not stall the
		// driver loop.
		slog.Warn("publish failed", "seq", res.Seq, "error", err)
	}
	return nil
}

// report logs the end-of-run summary: totals plus the per-mode windows
// that were active when the run finished.
func (c *detectionConsumer) report(stats infersched.Stats) {
	elapsed := time.Since(c.startedAt)

	slog.Info("run complete",
		"frames", c.emitted,
		"detections", c.detected,
		"total_time", elapsed.Round(time.Millisecond),
	)
	for _, p := range []infersched.Policy{infersched.Throughput, infersched.LowLatency} {
		m := stats.Modes[p]
		if !m.Started {
			continue
		}
		slog.Info("mode window",
			"mode", p.String(),
			"frames", m.Frames,
			"fps", fmt.Sprintf("%.1f", m.FPS),
			"avg_latency_ms", m.AvgLatency.Milliseconds(),
		)
	}
}
