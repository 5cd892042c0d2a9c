package persistence

import (
	"github.com/veilspace/kernel/kernel/veil"
)

// DeleteRecentFrames implements the "delete recent frames" recovery
// operation of §7: take a pre-snapshot, truncate both frameHistory and
// the on-disk delta files for sequences >= from, take a post-snapshot,
// and leave a DeletionRecord audit entry. Idempotent: deleting an
// already-empty range is a no-op beyond the snapshot pair.
func DeleteRecentFrames(adapter *FileAdapter, maintainer *Maintainer, store *veil.Store, from uint64) (DeletionRecord, error) {
	preSeq := store.CurrentSequence()
	if err := maintainer.ForceSnapshot(veil.Now()); err != nil {
		return DeletionRecord{}, err
	}

	removed := store.DeleteRecentFrames(from - 1)

	to := preSeq
	if len(removed) > 0 {
		to = removed[len(removed)-1].Sequence
	}

	if err := adapter.DeleteDeltasInRange(from, to); err != nil {
		return DeletionRecord{}, err
	}

	postSeq := store.CurrentSequence()
	if err := maintainer.ForceSnapshot(veil.Now()); err != nil {
		return DeletionRecord{}, err
	}

	record := DeletionRecord{
		From:            from,
		To:              to,
		PreSnapshotSeq:  preSeq,
		PostSnapshotSeq: postSeq,
		Timestamp:       veil.Now(),
	}
	if err := adapter.WriteDeletionRecord(record); err != nil {
		return DeletionRecord{}, err
	}
	return record, nil
}
