package source

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Synthetic generates RGB frames at a paced rate, looping the stream a
// configured number of times. It implements the driver loop's Source
// contract: Next is called from a single control goroutine.
//
// Pacing uses a token bucket so a burst after a slow stretch cannot
// exceed the configured FPS on average.
type Synthetic struct {
	width, height int
	perLoop       int // frames per loop, 0 = unbounded
	loops         int
	limiter       *rate.Limiter

	seq  uint64 // frames produced so far, across loops
	loop int    // completed loops
}

// SyntheticOptions configures a Synthetic source.
type SyntheticOptions struct {
	// Resolution of the generated frames.
	Resolution Resolution
	// FPS is the target production rate. Must be > 0.
	FPS float64
	// FramesPerLoop bounds each loop; 0 means an unbounded stream
	// (Loops is then ignored).
	FramesPerLoop int
	// Loops repeats the stream; <= 0 means 1.
	Loops int
}

// NewSynthetic builds a synthetic frame source.
func NewSynthetic(opts SyntheticOptions) (*Synthetic, error) {
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("source: fps must be > 0, got %v", opts.FPS)
	}
	loops := opts.Loops
	if loops <= 0 {
		loops = 1
	}
	w, h := opts.Resolution.Dimensions()
	return &Synthetic{
		width:   w,
		height:  h,
		perLoop: opts.FramesPerLoop,
		loops:   loops,
		limiter: rate.NewLimiter(rate.Limit(opts.FPS), 1),
	}, nil
}

// Next blocks until the rate limiter releases the next frame slot, then
// returns a freshly generated frame. Returns ok=false once every loop is
// exhausted, and the context error if cancelled while pacing.
func (s *Synthetic) Next(ctx context.Context) (any, bool, error) {
	if s.perLoop > 0 {
		for int(s.seq)-s.loop*s.perLoop >= s.perLoop {
			s.loop++
			if s.loop >= s.loops {
				return nil, false, nil
			}
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	f := s.generate()
	s.seq++
	return f, true, nil
}

// generate builds one RGB frame whose content is derived from its
// sequence number, so detectors downstream produce varied but
// reproducible outputs.
func (s *Synthetic) generate() *Frame {
	data := make([]byte, s.width*s.height*3)
	// Horizontal gradient shifted by frame number; cheap but unique
	// enough per frame for the mock detector's content hash.
	shift := byte(s.seq)
	for y := 0; y < s.height; y++ {
		row := y * s.width * 3
		for x := 0; x < s.width; x++ {
			px := row + x*3
			data[px] = byte(x) + shift
			data[px+1] = byte(y) ^ shift
			data[px+2] = shift
		}
	}
	return &Frame{
		Seq:       s.seq,
		Timestamp: time.Now(),
		Width:     s.width,
		Height:    s.height,
		Data:      data,
		TraceID:   uuid.NewString(),
	}
}

// Produced returns the number of frames generated so far.
func (s *Synthetic) Produced() uint64 { return s.seq }
