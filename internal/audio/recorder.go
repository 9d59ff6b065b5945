package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	recordBitDepth = 16
	frameBytes     = 8 // stereo float32
)

// pcmEncoder is the part of the WAV and AIFF encoders the recorder uses.
type pcmEncoder interface {
	Write(buf *audio.IntBuffer) error
	Close() error
}

// Recorder captures the float32 stereo stream as a 16-bit PCM WAV or AIFF
// file.
// It is an io.Writer so it can sit behind io.TeeReader on the playback
// path. Encoding errors never interrupt playback: the first one is kept
// and returned by Close.
type Recorder struct {
	mu     sync.Mutex
	f      *os.File
	enc    pcmEncoder
	buf    *audio.IntBuffer
	rest   []byte
	frames int
	err    error
	closed bool
}

// NewRecorder creates path and prepares a stereo encoder at sampleRate.
// Paths ending in .aif or .aiff are written as AIFF, anything else as WAV.
func NewRecorder(path string, sampleRate int) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	var enc pcmEncoder
	if IsAIFF(path) {
		enc = aiff.NewEncoder(f, sampleRate, recordBitDepth, 2)
	} else {
		w := wav.NewEncoder(f, sampleRate, recordBitDepth, 2, 1)
		w.Metadata = &wav.Metadata{Software: "driftsynth"}
		enc = w
	}
	return &Recorder{
		f:   f,
		enc: enc,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
			SourceBitDepth: recordBitDepth,
		},
	}, nil
}

// Write encodes whole frames from p and keeps any trailing partial frame
// for the next call. It always reports len(p).
func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.err != nil {
		return len(p), nil
	}

	data := p
	if len(r.rest) > 0 {
		data = append(r.rest, p...)
		r.rest = nil
	}
	n := len(data) / frameBytes
	if tail := data[n*frameBytes:]; len(tail) > 0 {
		r.rest = append([]byte(nil), tail...)
	}
	if n == 0 {
		return len(p), nil
	}

	samples := r.buf.Data[:0]
	for i := 0; i < n*2; i++ {
		s := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		samples = append(samples, int(clamp16(float64(s))))
	}
	r.buf.Data = samples
	if err := r.enc.Write(r.buf); err != nil {
		r.err = fmt.Errorf("record: %w", err)
		fmt.Fprintf(os.Stderr, "record: %v\n", err)
		return len(p), nil
	}
	r.frames += n
	return len(p), nil
}

// Frames reports how many stereo frames were written.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close finalizes the WAV headers and closes the file. Safe to call twice.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.err
	}
	r.closed = true
	if err := r.enc.Close(); err != nil && r.err == nil {
		r.err = fmt.Errorf("record: finalizing: %w", err)
	}
	if err := r.f.Close(); err != nil && r.err == nil {
		r.err = fmt.Errorf("record: %w", err)
	}
	return r.err
}

// Tap wraps an Output so everything it plays is also recorded.
type Tap struct {
	Out Output
	Rec *Recorder
}

// Open opens the wrapped output on a reader that copies into the recorder.
func (t Tap) Open(src io.Reader) error {
	return t.Out.Open(io.TeeReader(src, t.Rec))
}

// Close closes the wrapped output. The recorder stays open until the
// caller closes it.
func (t Tap) Close() error {
	return t.Out.Close()
}

// clamp16 converts a float64 in [-1, 1] to int16, clamping to avoid overflow.
func clamp16(f float64) int16 {
	s := f * 32767.0
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return int16(s)
}
