package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDataDirUsesAPPDATA(t *testing.T) {
	orig := os.Getenv("APPDATA")
	t.Cleanup(func() { os.Setenv("APPDATA", orig) })

	os.Setenv("APPDATA", "/fake/appdata")
	got := DataDir()
	want := filepath.Join("/fake/appdata", AppDirName)
	if got != want {
		t.Errorf("DataDir() = %q, want %q", got, want)
	}
}

func TestDataDirFallsBackWithoutAPPDATA(t *testing.T) {
	orig := os.Getenv("APPDATA")
	t.Cleanup(func() { os.Setenv("APPDATA", orig) })

	os.Unsetenv("APPDATA")
	got := DataDir()

	// Should use ~/.config/driftsynth or temp dir; either way the base is the app dir.
	if filepath.Base(got) != AppDirName {
		t.Errorf("DataDir() = %q, expected base dir %q", got, AppDirName)
	}
}

func TestFilePathsLiveInDataDir(t *testing.T) {
	t.Setenv("APPDATA", "/fake/appdata")
	dir := DataDir()
	if got := ConfigPath(); got != filepath.Join(dir, ConfigFileName) {
		t.Errorf("ConfigPath() = %q", got)
	}
	if got := DBPath(); got != filepath.Join(dir, DBFileName) {
		t.Errorf("DBPath() = %q", got)
	}
	rec := RecordPath("20260501-120000")
	if filepath.Dir(rec) != filepath.Join(dir, RecordDirName) {
		t.Errorf("RecordPath() dir = %q", filepath.Dir(rec))
	}
	if !strings.HasSuffix(rec, "drift-20260501-120000.wav") {
		t.Errorf("RecordPath() = %q", rec)
	}
}

func TestAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	if err := AtomicWrite(path, []byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("content = %q", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	if err := AtomicWrite(path, []byte(`{"a":2}`)); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != `{"a":2}` {
		t.Errorf("overwrite content = %q", data)
	}
}
