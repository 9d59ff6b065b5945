package ffmpeg

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// codecs maps a target extension to the ffmpeg audio encoder.
var codecs = map[string]string{
	".ogg":  "libopus",
	".opus": "libopus",
	".flac": "flac",
	".mp3":  "libmp3lame",
}

// native formats are written directly by the recorder.
var native = map[string]bool{".wav": true, ".aif": true, ".aiff": true}

// NeedsConversion reports whether path names a format that is produced by
// converting a WAV capture. WAV and AIFF need none.
func NeedsConversion(path string) bool {
	_, ok := codecs[strings.ToLower(filepath.Ext(path))]
	return ok
}

// CheckTarget rejects extensions that are neither native nor convertible.
func CheckTarget(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if native[ext] || NeedsConversion(path) {
		return nil
	}
	return fmt.Errorf("unsupported recording format %q (want .wav, .aiff, .ogg, .opus, .flac or .mp3)", ext)
}

// Convert encodes a WAV file into the format implied by outPath's extension
// using ffmpeg. Returns an error if ffmpeg is not found on PATH.
func Convert(wavPath, outPath string) error {
	codec, ok := codecs[strings.ToLower(filepath.Ext(outPath))]
	if !ok {
		return CheckTarget(outPath)
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found on PATH (required for %s recordings): %w", filepath.Ext(outPath), err)
	}
	cmd := exec.Command("ffmpeg", "-i", wavPath, "-c:a", codec, outPath, "-y")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg convert: %w\n%s", err, out)
	}
	return nil
}
