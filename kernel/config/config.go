// Package config defines the kernel's runtime configuration surface
// (§6): a plain struct populated from CLI flags and environment
// overrides, no configuration library.
package config

import (
	"flag"
	"os"
	"strconv"
)

// Config is the host configuration surface of §6.
type Config struct {
	PersistenceEnabled          bool
	PersistenceStorageDir       string
	PersistenceSnapshotInterval int

	DebugEnabled bool
	DebugPort    int

	Providers map[string]string
	Secrets   map[string]string

	Reset bool
}

// Default returns the out-of-the-box configuration.
func Default() Config {
	return Config{
		PersistenceEnabled:          true,
		PersistenceStorageDir:       "./data",
		PersistenceSnapshotInterval: 100,
		DebugEnabled:                false,
		DebugPort:                   8090,
		Providers:                   map[string]string{},
		Secrets:                     map[string]string{},
	}
}

// ParseFlags builds a Config from the stdlib flag package plus
// environment overrides. The flags are --reset, --storage-dir,
// --snapshot-interval, --debug and --debug-port; the KERNEL_*
// environment variables are applied after the flags and take
// precedence over them. Persistence can be switched off only through
// KERNEL_PERSISTENCE_ENABLED, and --reset has no environment variable.
func ParseFlags(args []string) Config {
	cfg := Default()

	fs := flag.NewFlagSet("kerneld", flag.ContinueOnError)
	reset := fs.Bool("reset", false, "wipe the storage directory and start a fresh lifecycle")
	storageDir := fs.String("storage-dir", cfg.PersistenceStorageDir, "persistence storage directory")
	snapshotInterval := fs.Int("snapshot-interval", cfg.PersistenceSnapshotInterval, "frames between snapshots")
	debugEnabled := fs.Bool("debug", cfg.DebugEnabled, "enable the debug observer port")
	debugPort := fs.Int("debug-port", cfg.DebugPort, "debug observer port")

	_ = fs.Parse(args)

	cfg.Reset = *reset
	cfg.PersistenceStorageDir = *storageDir
	cfg.PersistenceSnapshotInterval = *snapshotInterval
	cfg.DebugEnabled = *debugEnabled
	cfg.DebugPort = *debugPort

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v, ok := os.LookupEnv("KERNEL_PERSISTENCE_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.PersistenceEnabled = b
		}
	}
	if v, ok := os.LookupEnv("KERNEL_STORAGE_DIR"); ok && v != "" {
		c.PersistenceStorageDir = v
	}
	if v, ok := os.LookupEnv("KERNEL_SNAPSHOT_INTERVAL"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.PersistenceSnapshotInterval = n
		}
	}
	if v, ok := os.LookupEnv("KERNEL_DEBUG_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DebugEnabled = b
		}
	}
	if v, ok := os.LookupEnv("KERNEL_DEBUG_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.DebugPort = n
		}
	}
}
