package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFlags_Defaults(t *testing.T) {
	cfg := ParseFlags(nil)
	assert.False(t, cfg.Reset)
	assert.Equal(t, "./data", cfg.PersistenceStorageDir)
	assert.Equal(t, 100, cfg.PersistenceSnapshotInterval)
}

func TestParseFlags_Reset(t *testing.T) {
	cfg := ParseFlags([]string{"--reset"})
	assert.True(t, cfg.Reset)
}

func TestParseFlags_StorageDirAndInterval(t *testing.T) {
	cfg := ParseFlags([]string{"--storage-dir", "/tmp/kernel-data", "--snapshot-interval", "50"})
	assert.Equal(t, "/tmp/kernel-data", cfg.PersistenceStorageDir)
	assert.Equal(t, 50, cfg.PersistenceSnapshotInterval)
}

func TestEnvOverride_StorageDir(t *testing.T) {
	t.Setenv("KERNEL_STORAGE_DIR", "/var/lib/kernel")
	cfg := ParseFlags(nil)
	assert.Equal(t, "/var/lib/kernel", cfg.PersistenceStorageDir)
}
