package engine

import (
	"path/filepath"
	"time"

	"github.com/eacopy/eacopy/internal/ioprim"
	"github.com/eacopy/eacopy/internal/obs"
)

// BatchConfig controls small-file batching behavior: files at or below
// SizeLimit are coalesced into a single group instead of being handed
// to a worker one at a time, cutting per-file overhead when the tree
// holds millions of small files.
type BatchConfig struct {
	MaxBytes  int64 // max total bytes per batch (default 4MB)
	MaxWait   int64 // max wait time in milliseconds before flushing a partial batch (default 50)
	SizeLimit int64 // max size of a single file eligible for batching (default 64KB)
	MaxCount  int   // max files per batch (default 100)
}

// DefaultBatchConfig returns the default batching configuration.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxCount:  100,
		MaxBytes:  4 * 1024 * 1024, // 4 MB
		MaxWait:   50,              // 50 ms
		SizeLimit: 64 * 1024,       // 64 KB
	}
}

// batcher accumulates small WorkItems into batches the walk emits as a
// single group, so batchLocalCopy can create a whole batch's destination
// directories once instead of once per file. Each file in the batch
// still gets its own tmp-file-plus-rename in the worker.
type batcher struct {
	pending  []WorkItem
	cfg      BatchConfig
	curBytes int64
}

func newBatcher(cfg BatchConfig) *batcher {
	return &batcher{
		cfg:     cfg,
		pending: make([]WorkItem, 0, cfg.MaxCount),
	}
}

// add attempts to add item to the current batch. Returns true if it was
// accepted (small regular file within limits), false if it should be
// processed individually.
func (b *batcher) add(item WorkItem) bool {
	if item.IsDir {
		return false
	}
	if item.Size > b.cfg.SizeLimit || item.Size < 0 {
		return false
	}
	if b.curBytes+item.Size > b.cfg.MaxBytes && len(b.pending) > 0 {
		return false
	}
	b.pending = append(b.pending, item)
	b.curBytes += item.Size
	return true
}

// ready returns true if the batch should be flushed (full count or full bytes).
func (b *batcher) ready() bool {
	return len(b.pending) >= b.cfg.MaxCount || b.curBytes >= b.cfg.MaxBytes
}

// len returns the number of pending items.
func (b *batcher) len() int {
	return len(b.pending)
}

// flush returns the pending items as a batch and resets the batcher.
func (b *batcher) flush() []WorkItem {
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = make([]WorkItem, 0, b.cfg.MaxCount)
	b.curBytes = 0
	return batch
}

// batchLocalCopy regroups items into batches with a batcher and, for
// each ready batch (flushed on count/bytes or on a MaxWait-bounded
// ticker), ensures
// every distinct destination directory the batch touches exists exactly
// once before forwarding the batch's items one by one to out — instead
// of one EnsureDirectory call (and its lock/stat) per tiny file.
// Non-batchable items (directories, oversized files) pass straight
// through. Used only for the no-server local copy path: a server
// session still negotiates one file at a time over FILE_SEND.
func batchLocalCopy(items <-chan WorkItem, cfg BatchConfig, stats *obs.Aggregate) <-chan WorkItem {
	out := make(chan WorkItem, cfg.MaxCount)
	go func() {
		defer close(out)
		b := newBatcher(cfg)
		ticker := time.NewTicker(time.Duration(cfg.MaxWait) * time.Millisecond)
		defer ticker.Stop()

		flush := func() {
			for _, item := range b.flush() {
				out <- item
			}
		}

		for {
			select {
			case item, ok := <-items:
				if !ok {
					flush()
					return
				}
				if !b.add(item) {
					flush()
					out <- item
					continue
				}
				if b.ready() {
					ensureBatchDirs(b.pending, stats)
					flush()
				}
			case <-ticker.C:
				if b.len() > 0 {
					ensureBatchDirs(b.pending, stats)
					flush()
				}
			}
		}
	}()
	return out
}

func ensureBatchDirs(batch []WorkItem, stats *obs.Aggregate) {
	seen := make(map[string]struct{}, len(batch))
	for _, item := range batch {
		dir := filepath.Dir(item.DstPath)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		_, _ = ioprim.EnsureDirectory(dir, true, true, stats)
	}
}
