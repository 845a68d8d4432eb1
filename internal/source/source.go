// Package source produces video frames for the scheduler's driver loop.
//
// The real deployment captures from a camera; this package provides the
// synthetic generator the daemon and tests run against. Capture backends
// are external collaborators: anything that can hand the driver loop a
// *Frame fits.
package source

import "time"

// Frame represents a single video frame with metadata
type Frame struct {
	// Seq is the monotonic sequence number within the stream
	Seq uint64
	// Timestamp is when the frame was generated/decoded
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Data contains the raw RGB frame bytes (3 bytes per pixel).
	// MUST NOT be modified after the frame leaves the source; it is
	// shared by reference with worker goroutines.
	Data []byte
	// TraceID is a unique identifier for distributed tracing
	TraceID string
}

// Resolution represents supported video resolutions
type Resolution int

const (
	// Res512p represents 910x512 resolution
	Res512p Resolution = iota
	// Res720p represents 1280x720 resolution (HD)
	Res720p
	// Res1080p represents 1920x1080 resolution (Full HD)
	Res1080p
)

// ParseResolution maps a config string to a Resolution. Unknown strings
// fall back to 720p.
func ParseResolution(s string) Resolution {
	switch s {
	case "512p":
		return Res512p
	case "1080p":
		return Res1080p
	default:
		return Res720p
	}
}

// Dimensions returns the width and height for the resolution
func (r Resolution) Dimensions() (width, height int) {
	switch r {
	case Res512p:
		return 910, 512
	case Res1080p:
		return 1920, 1080
	default:
		return 1280, 720
	}
}

// String returns a human-readable string representation of the resolution
func (r Resolution) String() string {
	switch r {
	case Res512p:
		return "512p"
	case Res1080p:
		return "1080p"
	default:
		return "720p"
	}
}
