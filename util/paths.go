package util

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DataDirEnv overrides the data directory
const DataDirEnv = "ANCS_BLUE_DIR"

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv(DataDirEnv); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ancs-blue")
	}
	return filepath.Join(home, ".ancs-blue")
}

// GetConfigPath returns the default config file location
func GetConfigPath() string {
	return filepath.Join(GetDataDir(), "config.yaml")
}

// GetEventLogDir returns the directory for recorded event logs, creating it
func GetEventLogDir() (string, error) {
	dir := filepath.Join(GetDataDir(), "events")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// NewEventLogPath returns a fresh timestamped event log path for a device
func NewEventLogPath(device string, now time.Time) (string, error) {
	dir, err := GetEventLogDir()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s.cbor", SanitizeName(device), now.UTC().Format("20060102-150405"))
	return filepath.Join(dir, name), nil
}

// SanitizeName makes s safe to use as a file name
func SanitizeName(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "device"
	}
	return string(out)
}
