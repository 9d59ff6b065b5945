package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// buildWAV constructs a minimal valid WAV file in memory.
func buildWAV(sampleRate uint32, bitsPerSample, channels uint16, pcmData []byte) []byte {
	dataSize := len(pcmData)
	fmtSize := 16
	fileSize := 4 + (8 + fmtSize) + (8 + dataSize) // WAVE + fmt chunk + data chunk

	buf := make([]byte, 12+8+fmtSize+8+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(fileSize))
	copy(buf[8:12], "WAVE")

	// fmt chunk
	off := 12
	copy(buf[off:off+4], "fmt ")
	binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(fmtSize))
	binary.LittleEndian.PutUint16(buf[off+8:off+10], 1) // PCM
	binary.LittleEndian.PutUint16(buf[off+10:off+12], channels)
	binary.LittleEndian.PutUint32(buf[off+12:off+16], sampleRate)
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * uint32(blockAlign)
	binary.LittleEndian.PutUint32(buf[off+16:off+20], byteRate)
	binary.LittleEndian.PutUint16(buf[off+20:off+22], blockAlign)
	binary.LittleEndian.PutUint16(buf[off+22:off+24], bitsPerSample)

	// data chunk
	off += 8 + fmtSize
	copy(buf[off:off+4], "data")
	binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(dataSize))
	copy(buf[off+8:], pcmData)

	return buf
}

func putInt16LE(b []byte, v int16) {
	binary.LittleEndian.PutUint16(b, uint16(v))
}

func writeTempWAV(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDecodeChannelsStereo16(t *testing.T) {
	pcm := make([]byte, 4*4) // 4 frames * 4 bytes (2ch * 2bytes)
	// Frame 0: L=1000, R=2000
	putInt16LE(pcm[0:2], 1000)
	putInt16LE(pcm[2:4], 2000)
	// Frame 1: L=-1000, R=-2000
	putInt16LE(pcm[4:6], -1000)
	putInt16LE(pcm[6:8], -2000)
	// Frame 2: L=0, R=0
	// Frame 3: L=32767, R=-32768
	putInt16LE(pcm[12:14], 32767)
	putInt16LE(pcm[14:16], -32768)

	path := writeTempWAV(t, buildWAV(44100, 16, 2, pcm))
	chans, rate, err := decodeChannels(path)
	if err != nil {
		t.Fatalf("decodeChannels: %v", err)
	}
	if rate != 44100 {
		t.Errorf("rate = %d, want 44100", rate)
	}
	if len(chans) != 2 || len(chans[0]) != 4 || len(chans[1]) != 4 {
		t.Fatalf("shape = %d channels", len(chans))
	}
	want := [][]float64{
		{1000.0 / 32768, -1000.0 / 32768, 0, 32767.0 / 32768},
		{2000.0 / 32768, -2000.0 / 32768, 0, -1},
	}
	for c := range want {
		for i := range want[c] {
			if math.Abs(chans[c][i]-want[c][i]) > 1e-9 {
				t.Errorf("ch %d sample %d = %v, want %v", c, i, chans[c][i], want[c][i])
			}
		}
	}
}

func TestLoadImpulseMono(t *testing.T) {
	pcm := make([]byte, 4*2)
	putInt16LE(pcm[0:2], 5000)
	putInt16LE(pcm[2:4], -5000)
	putInt16LE(pcm[4:6], 10000)
	putInt16LE(pcm[6:8], -10000)

	path := writeTempWAV(t, buildWAV(44100, 16, 1, pcm))
	got, err := LoadImpulse(path, SampleRate)
	if err != nil {
		t.Fatalf("LoadImpulse: %v", err)
	}
	if len(got) != 1 || len(got[0]) != 4 {
		t.Fatalf("shape = %v", got)
	}
	energy := 0.0
	for _, v := range got[0] {
		energy += v * v
	}
	if math.Abs(energy-1) > 1e-9 {
		t.Errorf("energy = %v, want 1", energy)
	}
	// Ratios survive normalization.
	if math.Abs(got[0][2]/got[0][0]-2) > 1e-9 {
		t.Errorf("ratio = %v, want 2", got[0][2]/got[0][0])
	}
}

func TestLoadImpulseResample(t *testing.T) {
	// 100 mono frames at 22050 Hz → ~200 frames at 44100 Hz
	srcFrames := 100
	pcm := make([]byte, srcFrames*2)
	for i := 0; i < srcFrames; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:(i+1)*2], uint16(int16(i*100+1)))
	}

	path := writeTempWAV(t, buildWAV(22050, 16, 1, pcm))
	got, err := LoadImpulse(path, SampleRate)
	if err != nil {
		t.Fatalf("LoadImpulse: %v", err)
	}
	if n := len(got[0]); n < 190 || n > 210 {
		t.Errorf("expected ~200 output frames, got %d", n)
	}
}

func TestDecodeChannels8Bit(t *testing.T) {
	pcm := []byte{
		128, // silence (0)
		255, // max positive
		0,   // max negative
		192, // mid positive
	}

	path := writeTempWAV(t, buildWAV(44100, 8, 1, pcm))
	chans, _, err := decodeChannels(path)
	if err != nil {
		t.Fatalf("decodeChannels: %v", err)
	}
	got := chans[0]
	if len(got) != 4 {
		t.Fatalf("length: got %d, want 4", len(got))
	}
	if got[0] != 0 {
		t.Errorf("sample 0 (silence): got %v, want 0", got[0])
	}
	if got[1] < 0.95 {
		t.Errorf("sample 1 (max positive): got %v", got[1])
	}
	if got[2] != -1 {
		t.Errorf("sample 2 (max negative): got %v, want -1", got[2])
	}
	if got[3] != 0.5 {
		t.Errorf("sample 3: got %v, want 0.5", got[3])
	}
}

func TestLoadImpulseSilentFails(t *testing.T) {
	path := writeTempWAV(t, buildWAV(44100, 16, 1, make([]byte, 64)))
	if _, err := LoadImpulse(path, SampleRate); err == nil {
		t.Fatal("expected error for silent impulse")
	}
}

func TestLoadImpulseInvalidFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notawav.wav")
	if err := os.WriteFile(path, []byte("this is not a wav file, it's just some random text"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadImpulse(path, SampleRate); err == nil {
		t.Fatal("expected error for non-WAV file")
	}

	// Compressed WAV (format code 6 = A-law)
	compressed := buildWAV(44100, 8, 1, []byte{128, 200})
	compressed[20] = 6 // overwrite format code
	path2 := filepath.Join(t.TempDir(), "compressed.wav")
	if err := os.WriteFile(path2, compressed, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadImpulse(path2, SampleRate); err == nil {
		t.Fatal("expected error for compressed WAV")
	}

	if _, err := LoadImpulse(filepath.Join(t.TempDir(), "missing.wav"), SampleRate); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResampleLinearEndpoints(t *testing.T) {
	in := []float64{0, 1, 2, 3}
	out := resampleLinear(in, 2, 4)
	if len(out) != 8 {
		t.Fatalf("len = %d, want 8", len(out))
	}
	if out[0] != 0 || out[1] != 0.5 || out[2] != 1 {
		t.Errorf("out = %v", out)
	}
	if out[7] != 3 {
		t.Errorf("tail = %v, want 3", out[7])
	}
}

func TestIsAIFF(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"room.aif", true},
		{"room.AIFF", true},
		{"room.wav", false},
		{"aiff", false},
	}
	for _, tt := range tests {
		if got := IsAIFF(tt.path); got != tt.want {
			t.Errorf("IsAIFF(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLoadImpulseNotAIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.aiff")
	if err := os.WriteFile(path, buildWAV(44100, 16, 1, make([]byte, 8)), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadImpulse(path, 44100); err == nil {
		t.Fatal("expected error for WAV data behind an .aiff name")
	}
}

func TestSampleToFloat8Bit(t *testing.T) {
	if got := sampleToFloat(128, 8, true); got != 0 {
		t.Errorf("unsigned 128 = %v, want 0", got)
	}
	if got := sampleToFloat(64, 8, false); got != 0.5 {
		t.Errorf("signed 64 = %v, want 0.5", got)
	}
}
