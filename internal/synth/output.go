package synth

import "io"

// Output is the platform audio backend. Open starts pulling interleaved
// stereo float32 frames from src; Close stops and releases the device.
// A failed Open is retried by the engine while it runs.
type Output interface {
	Open(src io.Reader) error
	Close() error
}
