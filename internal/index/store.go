package index

import (
	"context"
	"slices"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Store persists index entries. Implementations must accept SaveEntries for
// entries that already exist.
type Store interface {
	SaveEntries(ctx context.Context, entries []Entry) error
	DeleteByDocument(ctx context.Context, documentIDs []string) error
	LoadEntries(ctx context.Context) ([]Entry, error)
}

type journal struct {
	adds    []Entry
	deletes []string
}

func (j *journal) empty() bool {
	return len(j.adds) == 0 && len(j.deletes) == 0
}

func (j *journal) recordRemove(documentID string) {
	j.adds = slices.DeleteFunc(j.adds, func(e Entry) bool {
		return e.Scope.DocumentID == documentID
	})
	if !slices.Contains(j.deletes, documentID) {
		j.deletes = append(j.deletes, documentID)
	}
}

// Flush writes pending additions and removals to the store. Work that fails
// is queued again for the next flush.
func (idx *Index) Flush(ctx context.Context) error {
	if idx.store == nil {
		return nil
	}
	idx.flushMu.Lock()
	defer idx.flushMu.Unlock()

	idx.mu.Lock()
	taken := idx.pending
	idx.pending = journal{}
	idx.mu.Unlock()
	if taken.empty() {
		return nil
	}
	logger := logutil.GetLogger(ctx).With(zap.Int("adds", len(taken.adds)), zap.Int("deletes", len(taken.deletes)))
	if len(taken.deletes) > 0 {
		if err := idx.store.DeleteByDocument(ctx, taken.deletes); err != nil {
			idx.requeue(taken)
			logger.Error("flush index removals failed", zap.Error(err))
			return err
		}
	}
	if len(taken.adds) > 0 {
		if err := idx.store.SaveEntries(ctx, taken.adds); err != nil {
			idx.requeue(journal{adds: taken.adds})
			logger.Error("flush index entries failed", zap.Error(err))
			return err
		}
	}
	logger.Debug("index flushed")
	return nil
}

func (idx *Index) requeue(j journal) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	adds := slices.DeleteFunc(slices.Clone(j.adds), func(e Entry) bool {
		return slices.Contains(idx.pending.deletes, e.Scope.DocumentID)
	})
	idx.pending.adds = append(adds, idx.pending.adds...)
	for _, id := range j.deletes {
		if !slices.Contains(idx.pending.deletes, id) {
			idx.pending.deletes = append(idx.pending.deletes, id)
		}
	}
}

// Restore loads persisted entries into an empty index. Entries whose vector
// length does not match the index dimension are skipped.
func (idx *Index) Restore(ctx context.Context) (int, error) {
	if idx.store == nil {
		return 0, nil
	}
	entries, err := idx.store.LoadEntries(ctx)
	if err != nil {
		return 0, err
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	loaded := make([]Entry, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		if len(e.Vector) != idx.dim {
			skipped++
			continue
		}
		loaded = append(loaded, e)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if len(*idx.snap.Load()) > 0 {
		return 0, ErrNotEmpty
	}
	idx.snap.Store(&loaded)
	if n := len(loaded); n > 0 {
		idx.seq = loaded[n-1].Seq
	}
	logutil.GetLogger(ctx).Info("index restored", zap.Int("entries", len(loaded)), zap.Int("skipped", skipped))
	return len(loaded), nil
}

// Close writes any pending changes.
func (idx *Index) Close(ctx context.Context) error {
	return idx.Flush(ctx)
}
