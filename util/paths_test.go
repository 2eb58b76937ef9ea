package util

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(DataDirEnv, dir)

	assert.Equal(t, dir, GetDataDir())
	assert.Equal(t, filepath.Join(dir, "config.yaml"), GetConfigPath())

	path, err := NewEventLogPath("AA:BB:CC:DD:EE:FF", time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "events", "AA_BB_CC_DD_EE_FF-20240506-070809.cbor"), path)
	assert.DirExists(t, filepath.Join(dir, "events"))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "sim", SanitizeName("sim"))
	assert.Equal(t, "a_b_c", SanitizeName("a/b c"))
	assert.Equal(t, "device", SanitizeName(""))
}
