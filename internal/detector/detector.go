// Package detector provides the SSD-style detection engine the daemon
// schedules work on.
//
// The engine here is a mock: it simulates inference latency and derives
// deterministic detections from frame content. It exists so the scheduler
// and driver loop can be exercised end to end without an accelerator;
// a real backend plugs in at the same two seams the scheduler exposes
// (ExecContext per slot, Extract for the raw output).
package detector

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forky-mcforkface/open-model-zoo/infersched"
	"github.com/forky-mcforkface/open-model-zoo/internal/source"
)

// Detection is one detected object, coordinates normalized to [0,1].
type Detection struct {
	LabelID    int     `msgpack:"label_id" json:"label_id"`
	Label      string  `msgpack:"label" json:"label"`
	Confidence float64 `msgpack:"confidence" json:"confidence"`
	XMin       float64 `msgpack:"xmin" json:"xmin"`
	YMin       float64 `msgpack:"ymin" json:"ymin"`
	XMax       float64 `msgpack:"xmax" json:"xmax"`
	YMax       float64 `msgpack:"ymax" json:"ymax"`
}

// Result is the extracted output for one frame: the detections that
// survived the confidence threshold, plus frame identity for tracing.
type Result struct {
	TraceID    string      `msgpack:"trace_id" json:"trace_id"`
	FrameSeq   uint64      `msgpack:"frame_seq" json:"frame_seq"`
	Width      int         `msgpack:"width" json:"width"`
	Height     int         `msgpack:"height" json:"height"`
	Detections []Detection `msgpack:"detections" json:"detections"`
}

// rawOutput mimics a raw SSD output blob: a fixed-size proposal list
// including sub-threshold noise. Extract filters it.
type rawOutput struct {
	frame     *source.Frame
	proposals []Detection
}

// Options configures an Engine.
type Options struct {
	// Latency is the simulated per-inference execution time.
	Latency time.Duration
	// Jitter spreads Latency by +/- Jitter uniformly.
	Jitter time.Duration
	// Confidence is the extraction threshold; proposals below it are
	// discarded, mirroring a -t flag on a detection demo.
	Confidence float64
	// Labels maps label ids to names. Optional; unnamed ids render as
	// "label #N".
	Labels []string
}

// Engine builds per-slot execution contexts and extracts their raw
// outputs. Safe for concurrent use by multiple slot contexts.
type Engine struct {
	opts Options
}

// NewEngine creates a detection engine.
func NewEngine(opts Options) *Engine {
	if opts.Latency <= 0 {
		opts.Latency = 25 * time.Millisecond
	}
	return &Engine{opts: opts}
}

// NewContext builds one execution context for a slot. LowLatency
// contexts run the single-stream configuration, which completes a single
// inference slightly faster than a throughput-tuned stream.
func (e *Engine) NewContext(p infersched.Policy) (infersched.ExecContext, error) {
	latency := e.opts.Latency
	if p == infersched.LowLatency {
		// Single-stream config trades parallelism for per-request speed.
		latency = latency * 4 / 5
	}
	return &execContext{
		id:      uuid.NewString(),
		latency: latency,
		jitter:  e.opts.Jitter,
		rng:     rand.New(rand.NewSource(int64(fnv32(uuid.NewString())))),
	}, nil
}

// Extract filters the raw proposal list down to detections above the
// confidence threshold and resolves label names. This is the scheduler's
// result-extraction seam; it runs on the worker goroutine.
func (e *Engine) Extract(raw any) (any, error) {
	out, ok := raw.(*rawOutput)
	if !ok {
		return nil, fmt.Errorf("detector: unexpected raw output type %T", raw)
	}

	res := &Result{
		TraceID:  out.frame.TraceID,
		FrameSeq: out.frame.Seq,
		Width:    out.frame.Width,
		Height:   out.frame.Height,
	}
	for _, d := range out.proposals {
		if d.Confidence <= e.opts.Confidence {
			continue
		}
		d.Label = e.labelName(d.LabelID)
		res.Detections = append(res.Detections, d)
	}
	return res, nil
}

func (e *Engine) labelName(id int) string {
	if id >= 0 && id < len(e.opts.Labels) {
		return e.opts.Labels[id]
	}
	return fmt.Sprintf("label #%d", id)
}

// execContext is one slot's reusable execution context. The scheduler
// guarantees single-payload-at-a-time execution per context, so the rng
// needs no lock against itself - the mutex only guards against a future
// caller violating that contract in tests.
type execContext struct {
	id      string
	latency time.Duration
	jitter  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// Infer simulates one SSD forward pass: sleep for the configured
// latency, then emit proposals derived from a content hash of the frame
// so identical frames always produce identical proposals.
func (c *execContext) Infer(ctx context.Context, payload any) (any, error) {
	frame, ok := payload.(*source.Frame)
	if !ok {
		return nil, fmt.Errorf("detector: unexpected payload type %T", payload)
	}
	if len(frame.Data) != frame.Width*frame.Height*3 {
		return nil, fmt.Errorf("detector: invalid RGB data size: got %d bytes, expected %d (%dx%d*3)",
			len(frame.Data), frame.Width*frame.Height*3, frame.Width, frame.Height)
	}

	c.mu.Lock()
	delay := c.latency
	if c.jitter > 0 {
		delay += time.Duration(c.rng.Int63n(int64(2*c.jitter))) - c.jitter
	}
	c.mu.Unlock()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &rawOutput{
		frame:     frame,
		proposals: proposalsFor(frame),
	}, nil
}

// proposalsFor derives a deterministic proposal list from frame content.
// Sampling the buffer keeps it cheap on large frames.
func proposalsFor(frame *source.Frame) []Detection {
	h := fnv.New32a()
	stride := len(frame.Data)/256 + 1
	for i := 0; i < len(frame.Data); i += stride {
		h.Write(frame.Data[i : i+1])
	}
	seed := h.Sum32()

	n := int(seed%4) + 1
	proposals := make([]Detection, 0, n)
	for i := 0; i < n; i++ {
		v := seed>>uint(i*7) | 1
		x := float64(v%97) / 97
		y := float64(v%89) / 89
		proposals = append(proposals, Detection{
			LabelID:    int(v % 16),
			Confidence: float64(v%100) / 100,
			XMin:       x * 0.8,
			YMin:       y * 0.8,
			XMax:       x*0.8 + 0.2,
			YMax:       y*0.8 + 0.2,
		})
	}
	return proposals
}

func fnv32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
