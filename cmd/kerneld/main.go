// Command kerneld runs the deterministic agent-runtime kernel as a
// standalone process: it wires the VEIL store, the element tree, the
// frame engine and persistence together, restores the prior lifecycle
// if one exists, then ticks the frame engine until told to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/veilspace/kernel/kernel/config"
	"github.com/veilspace/kernel/kernel/debug"
	"github.com/veilspace/kernel/kernel/element"
	"github.com/veilspace/kernel/kernel/klog"
	"github.com/veilspace/kernel/kernel/persistence"
	"github.com/veilspace/kernel/kernel/queue"
	"github.com/veilspace/kernel/kernel/registry"
	"github.com/veilspace/kernel/kernel/space"
	"github.com/veilspace/kernel/kernel/veil"
)

// frameInterval is the scheduler tick: the cadence at which ProcessFrame
// is offered a chance to run when the queue has anything queued.
const frameInterval = 16 * time.Millisecond

func main() {
	cfg := config.ParseFlags(os.Args[1:])
	log := klog.For("kerneld")

	lifecycleID, err := loadOrInitLifecycle(cfg.PersistenceStorageDir, cfg.Reset)
	if err != nil {
		log.Error("failed to resolve lifecycle tag", klog.Err(err))
		os.Exit(1)
	}

	store := veil.New(lifecycleID)
	tree := element.NewTree(element.New("root", "space"))
	q := queue.New()
	dbg := debug.NewPort()
	sp := space.New(lifecycleID, store, tree, q, dbg)

	refs := registry.New()
	refs.RegisterReference("space", sp)
	refs.RegisterReference("veilState", store)
	for name, val := range cfg.Providers {
		refs.RegisterProvider(name, val)
	}
	for name, val := range cfg.Secrets {
		refs.RegisterSecret(name, val)
	}

	componentRegistry := persistence.NewComponentRegistry()

	var maintainer *persistence.Maintainer
	if cfg.PersistenceEnabled {
		adapter, err := persistence.NewFileAdapter(cfg.PersistenceStorageDir)
		if err != nil {
			log.Error("failed to open persistence storage", klog.Err(err))
			os.Exit(1)
		}

		result, err := persistence.Restore(context.Background(), adapter, store, tree, componentRegistry)
		if err != nil {
			log.Error("restoration failed", klog.Err(err))
			os.Exit(1)
		}
		if result.Restored {
			log.Info("restored prior lifecycle",
				klog.String("lifecycle_id", result.LifecycleID),
				klog.Uint64("restored_through", result.RestoredThrough))
		} else {
			log.Info("starting fresh lifecycle", klog.String("lifecycle_id", lifecycleID))
		}

		maintainer = persistence.NewMaintainer(adapter, store, tree, lifecycleID, "default", cfg.PersistenceSnapshotInterval)
	}

	etm := space.NewElementTreeMaintainer(tree, store, componentRegistry)
	sp.RegisterReceptor(etm)
	sp.RegisterMaintainer(etm)
	// Persistence is registered last so its delta-log write for a tick
	// includes the element-tree maintainer's commits.
	if maintainer != nil {
		sp.RegisterMaintainer(maintainer)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	log.Info("kernel started", klog.String("lifecycle_id", lifecycleID))
	runLoop(ctx, sp)

	if maintainer != nil {
		if err := maintainer.ForceSnapshot(veil.Now()); err != nil {
			log.Warn("final snapshot failed", klog.Err(err))
		}
	}
	log.Info("kernel stopped")
}

func runLoop(ctx context.Context, sp *space.Space) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sp.Pending() {
				sp.ProcessFrame(ctx)
			}
		}
	}
}

// loadOrInitLifecycle reads the storage directory's lifecycle tag, or
// creates tag 0 if absent. --reset wipes the directory and bumps the
// tag, so restoration never mistakes deltas from a prior lifecycle for
// the current one (§4.7).
func loadOrInitLifecycle(storageDir string, reset bool) (string, error) {
	path := filepath.Join(storageDir, "LIFECYCLE")

	tag := 0
	if data, err := os.ReadFile(path); err == nil {
		tag, _ = strconv.Atoi(strings.TrimSpace(string(data)))
	}
	if reset {
		if err := os.RemoveAll(storageDir); err != nil {
			return "", err
		}
		tag++
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(tag)), 0o644); err != nil {
		return "", err
	}

	return fmt.Sprintf("lifecycle-%d", tag), nil
}
