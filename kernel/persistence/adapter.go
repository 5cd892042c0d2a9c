package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/veilspace/kernel/kernel/errs"
	"github.com/veilspace/kernel/kernel/klog"
)

// FileAdapter is the file-backed persistence collaborator (§4.7, §6):
// on-disk layout under storageDir/{snapshots,deltas}, tmp-file+rename
// atomicity, and per-path write locks serializing concurrent writers to
// the same file, the same per-resource locking shape as the mesh's
// per-region/peer guards.
type FileAdapter struct {
	storageDir string
	locks      sync.Map // path -> *sync.Mutex
	log        *klog.Logger
}

// NewFileAdapter creates an adapter rooted at storageDir, creating the
// snapshots/ and deltas/ subdirectories if absent.
func NewFileAdapter(storageDir string) (*FileAdapter, error) {
	a := &FileAdapter{storageDir: storageDir, log: klog.For("persistence")}
	for _, sub := range []string{"snapshots", "deltas"} {
		if err := os.MkdirAll(filepath.Join(storageDir, sub), 0o755); err != nil {
			return nil, errs.PersistWriteFailed(storageDir, err)
		}
	}
	return a, nil
}

func (a *FileAdapter) lockFor(path string) *sync.Mutex {
	v, _ := a.locks.LoadOrStore(path, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// writeAtomic serializes v as JSON and writes it to path via a
// tmp-file-then-rename, under the path's write lock.
func (a *FileAdapter) writeAtomic(path string, v any) error {
	mu := a.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errs.PersistWriteFailed(path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.PersistWriteFailed(path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.PersistWriteFailed(path, err)
	}
	return nil
}

func (a *FileAdapter) deltaPath(sequence uint64) string {
	return filepath.Join(a.storageDir, "deltas", fmt.Sprintf("delta-%020d.json", sequence))
}

func (a *FileAdapter) snapshotPath(sequence uint64, timestamp string) string {
	safe := strings.NewReplacer(":", "-", ".", "-").Replace(timestamp)
	return filepath.Join(a.storageDir, "snapshots", fmt.Sprintf("snapshot-%020d-%s.json", sequence, safe))
}

// WriteDelta appends one frame's delta-log entry.
func (a *FileAdapter) WriteDelta(d FrameDelta) error {
	return a.writeAtomic(a.deltaPath(d.Sequence), d)
}

// WriteSnapshot writes a new snapshot file.
func (a *FileAdapter) WriteSnapshot(s Snapshot) error {
	return a.writeAtomic(a.snapshotPath(s.Sequence, s.Timestamp), s)
}

var snapshotNameRE = regexp.MustCompile(`^snapshot-(\d+)-(.+)\.json$`)

// LatestSnapshot finds the newest snapshot by sequence, ties broken by
// the timestamp embedded in the filename (§4.7).
func (a *FileAdapter) LatestSnapshot() (*Snapshot, error) {
	dir := filepath.Join(a.storageDir, "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.PersistLoadFailed(dir, err)
	}

	var bestName string
	var bestSeq uint64
	for _, e := range entries {
		m := snapshotNameRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		seq, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		if seq > bestSeq || (seq == bestSeq && e.Name() > bestName) {
			bestSeq = seq
			bestName = e.Name()
		}
	}
	if bestName == "" {
		return nil, nil
	}

	path := filepath.Join(dir, bestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.PersistLoadFailed(path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errs.PersistLoadFailed(path, err)
	}
	return &snap, nil
}

// DeltasSince returns every delta with sequence strictly greater than
// after, ordered by sequence, for restoration replay.
func (a *FileAdapter) DeltasSince(after uint64) ([]FrameDelta, error) {
	dir := filepath.Join(a.storageDir, "deltas")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.PersistLoadFailed(dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []FrameDelta
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.PersistLoadFailed(path, err)
		}
		var d FrameDelta
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, errs.PersistLoadFailed(path, err)
		}
		if d.Sequence > after {
			out = append(out, d)
		}
	}
	return out, nil
}

// DeleteDeltasInRange removes delta files for sequences in [from, to],
// used by the "delete recent frames" recovery operation.
func (a *FileAdapter) DeleteDeltasInRange(from, to uint64) error {
	for seq := from; seq <= to; seq++ {
		path := a.deltaPath(seq)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errs.PersistWriteFailed(path, err)
		}
	}
	return nil
}

// WriteDeletionRecord appends an audit entry for a "delete recent
// frames" recovery operation.
func (a *FileAdapter) WriteDeletionRecord(r DeletionRecord) error {
	path := filepath.Join(a.storageDir, fmt.Sprintf("deletion-%020d-%020d.json", r.From, r.To))
	return a.writeAtomic(path, r)
}

// Reset wipes the entire storage directory (--reset, §4.7).
func (a *FileAdapter) Reset() error {
	if err := os.RemoveAll(a.storageDir); err != nil {
		return errs.PersistWriteFailed(a.storageDir, err)
	}
	for _, sub := range []string{"snapshots", "deltas"} {
		if err := os.MkdirAll(filepath.Join(a.storageDir, sub), 0o755); err != nil {
			return errs.PersistWriteFailed(a.storageDir, err)
		}
	}
	a.locks = sync.Map{}
	return nil
}
