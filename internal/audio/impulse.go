package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/aiff"
	"github.com/go-audio/wav"
)

const (
	// maxWAVSize is the maximum impulse file size we'll load (50 MB).
	maxWAVSize = 50 * 1024 * 1024
	// MaxImpulse bounds the reverb tail; longer impulses are truncated.
	MaxImpulse = 10 * time.Second
)

// LoadImpulse reads a PCM WAV or AIFF file as a reverb impulse response. It returns
// one slice per channel (one or two), resampled to sampleRate, truncated to
// MaxImpulse and normalized to unit energy per channel. Extra channels
// beyond the second are ignored.
func LoadImpulse(path string, sampleRate int) ([][]float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("impulse: %w", err)
	}
	if info.Size() > maxWAVSize {
		return nil, fmt.Errorf("impulse: file too large (%d bytes, max %d)", info.Size(), maxWAVSize)
	}

	channels, srcRate, err := decodeChannels(path)
	if err != nil {
		return nil, err
	}

	limit := int(MaxImpulse.Seconds() * float64(sampleRate))
	for i, ch := range channels {
		if srcRate != sampleRate {
			ch = resampleLinear(ch, srcRate, sampleRate)
		}
		if len(ch) > limit {
			ch = ch[:limit]
		}
		if !normalizeEnergy(ch) {
			return nil, fmt.Errorf("impulse: channel %d is silent", i)
		}
		channels[i] = ch
	}
	return channels, nil
}

// decodeChannels decodes a PCM WAV or AIFF file into per-channel samples
// in [-1, 1]. The format is chosen by extension.
func decodeChannels(path string) ([][]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("impulse: %w", err)
	}
	defer f.Close()

	if IsAIFF(path) {
		return decodeAIFF(f, path)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("impulse: %s: not a WAV file", path)
	}
	if dec.WavAudioFormat != 1 {
		return nil, 0, fmt.Errorf("impulse: unsupported format %d (only PCM supported)", dec.WavAudioFormat)
	}
	if err := checkBitDepth(int(dec.BitDepth)); err != nil {
		return nil, 0, err
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("impulse: decoding %s: %w", path, err)
	}
	// 8-bit WAV is unsigned (0-255, 128 = silence)
	out, err := splitChannels(buf.Data, int(dec.NumChans), int(dec.BitDepth), true)
	return out, int(dec.SampleRate), err
}

func decodeAIFF(f *os.File, path string) ([][]float64, int, error) {
	dec := aiff.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("impulse: %s: not an AIFF file", path)
	}
	if err := checkBitDepth(int(dec.BitDepth)); err != nil {
		return nil, 0, err
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("impulse: decoding %s: %w", path, err)
	}
	out, err := splitChannels(buf.Data, int(dec.NumChans), int(dec.BitDepth), false)
	return out, int(dec.SampleRate), err
}

func checkBitDepth(bits int) error {
	switch bits {
	case 8, 16, 24, 32:
		return nil
	}
	return fmt.Errorf("impulse: unsupported bit depth %d", bits)
}

// splitChannels deinterleaves data, keeping at most two channels.
func splitChannels(data []int, numChans, bitDepth int, unsigned8 bool) ([][]float64, error) {
	if numChans <= 0 {
		return nil, fmt.Errorf("impulse: no channels")
	}
	frames := len(data) / numChans
	if frames == 0 {
		return nil, fmt.Errorf("impulse: no audio data")
	}
	keep := min(numChans, 2)
	out := make([][]float64, keep)
	for c := range out {
		out[c] = make([]float64, frames)
		for i := 0; i < frames; i++ {
			out[c][i] = sampleToFloat(data[i*numChans+c], bitDepth, unsigned8)
		}
	}
	return out, nil
}

// sampleToFloat scales a decoded integer sample to [-1, 1].
func sampleToFloat(v, bitDepth int, unsigned8 bool) float64 {
	if bitDepth == 8 && unsigned8 {
		return (float64(v) - 128.0) / 128.0
	}
	return float64(v) / float64(int64(1)<<(bitDepth-1))
}

// IsAIFF reports whether path has an AIFF extension.
func IsAIFF(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".aif", ".aiff":
		return true
	}
	return false
}

// resampleLinear resamples one channel from srcRate to dstRate using linear
// interpolation.
func resampleLinear(samples []float64, srcRate, dstRate int) []float64 {
	srcFrames := len(samples)
	ratio := float64(srcRate) / float64(dstRate)
	dstFrames := int(math.Ceil(float64(srcFrames) / ratio))
	out := make([]float64, dstFrames)

	for i := 0; i < dstFrames; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		if idx+1 < srcFrames {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		} else if idx < srcFrames {
			out[i] = samples[idx]
		}
	}
	return out
}

// normalizeEnergy scales samples to unit energy. It reports false for a
// silent signal.
func normalizeEnergy(samples []float64) bool {
	e := 0.0
	for _, v := range samples {
		e += v * v
	}
	if e == 0 {
		return false
	}
	scale := 1 / math.Sqrt(e)
	for i := range samples {
		samples[i] *= scale
	}
	return true
}
