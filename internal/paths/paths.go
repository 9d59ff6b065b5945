package paths

import (
	"os"
	"path/filepath"
)

const (
	AppDirName     = "driftsynth"
	ConfigFileName = "driftsynth-config.json"
	DBFileName     = "driftsynth.db"
	RecordDirName  = "recordings"
	DirPerm        = 0755
	FilePerm       = 0644
)

// AtomicWrite writes data to path via a temporary file + rename to avoid
// partial writes. The parent directory is created if needed.
func AtomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), DirPerm); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, FilePerm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// DataDir returns the platform-specific data directory for driftsynth:
//   - Windows: %APPDATA%\driftsynth
//   - Unix:    ~/.config/driftsynth
//
// Falls back to os.TempDir()/driftsynth if neither is available.
func DataDir() string {
	if appdata := os.Getenv("APPDATA"); appdata != "" {
		return filepath.Join(appdata, AppDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppDirName)
	}
	return filepath.Join(home, ".config", AppDirName)
}

// ConfigPath returns the user-level config file location.
func ConfigPath() string {
	return filepath.Join(DataDir(), ConfigFileName)
}

// DBPath returns the session log database location.
func DBPath() string {
	return filepath.Join(DataDir(), DBFileName)
}

// RecordPath returns a timestamped WAV path under the recordings directory.
func RecordPath(stamp string) string {
	return filepath.Join(DataDir(), RecordDirName, "drift-"+stamp+".wav")
}
