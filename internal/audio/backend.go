package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/Mavwarf/driftsynth/internal/synth"
)

// SampleRate is the device rate; the engine renders at the same rate.
const SampleRate = synth.DefaultSampleRate

// Output is the engine-facing device interface.
type Output = synth.Output

// playerBuffer keeps latency low enough for live parameter changes.
const playerBuffer = 100 * time.Millisecond

var (
	otoCtx     *oto.Context
	otoOnce    sync.Once
	otoInitErr error
)

// getContext creates the process-wide oto context. oto allows only one, so
// an initialization failure is permanent for the process.
func getContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
		}
		var readyChan chan struct{}
		otoCtx, readyChan, otoInitErr = oto.NewContext(op)
		if otoInitErr == nil {
			<-readyChan
		}
	})
	return otoCtx, otoInitErr
}

// Backend plays the engine's stream through the platform audio device.
type Backend struct {
	mu     sync.Mutex
	volume float64
	player *oto.Player
}

// NewBackend returns a closed backend. volume is a multiplier from 0.0
// (silent) to 1.0 (full volume).
func NewBackend(volume float64) *Backend {
	return &Backend{volume: clampVolume(volume)}
}

// Open starts a player pulling from src. A suspended device is resumed
// first; if it stays suspended the error is returned so the caller can
// retry.
func (b *Backend) Open(src io.Reader) error {
	ctx, err := getContext()
	if err != nil {
		return fmt.Errorf("audio: failed to initialize: %w", err)
	}
	if ctx.Err() != nil {
		if err := ctx.Resume(); err != nil {
			return fmt.Errorf("audio: resuming device: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("audio: device suspended: %w", err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.player != nil {
		return errors.New("audio: backend already open")
	}
	p := ctx.NewPlayer(src)
	p.SetBufferSize(int(playerBuffer.Seconds()*SampleRate) * frameBytes)
	p.SetVolume(b.volume)
	p.Play()
	b.player = p
	return nil
}

// Close stops playback and releases the player. Closing a closed backend
// is a no-op.
func (b *Backend) Close() error {
	b.mu.Lock()
	p := b.player
	b.player = nil
	b.mu.Unlock()
	if p == nil {
		return nil
	}
	p.Pause()
	if err := p.Close(); err != nil {
		return fmt.Errorf("audio: closing player: %w", err)
	}
	return nil
}

// SetVolume changes the output level, live if playing.
func (b *Backend) SetVolume(v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volume = clampVolume(v)
	if b.player != nil {
		b.player.SetVolume(b.volume)
	}
}

// Volume returns the configured output level.
func (b *Backend) Volume() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.volume
}

func clampVolume(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Drain is an Output with no device: it pulls the stream at real-time pace
// and discards it. Paired with a Tap it records without playing.
type Drain struct {
	Period time.Duration // pull interval; zero means 50ms

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// Open starts the pull loop.
func (d *Drain) Open(src io.Reader) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return errors.New("audio: drain already open")
	}
	period := d.Period
	if period <= 0 {
		period = 50 * time.Millisecond
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(src, period, d.stop, d.done)
	return nil
}

func (d *Drain) run(src io.Reader, period time.Duration, stop, done chan struct{}) {
	defer close(done)
	buf := make([]byte, int(period.Seconds()*SampleRate)*frameBytes)
	tick := time.NewTicker(period)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			if _, err := io.ReadFull(src, buf); err != nil {
				fmt.Fprintf(os.Stderr, "audio: drain: %v\n", err)
				return
			}
		}
	}
}

// Close stops the pull loop and waits for it to exit.
func (d *Drain) Close() error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}
