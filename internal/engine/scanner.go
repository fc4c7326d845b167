package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// WalkConfig controls the source tree walk.
type WalkConfig struct {
	SrcRoot string
	DstRoot string
	Workers int
	// Include, if non-nil, filters which files are considered; a file
	// is walked only if Include(relName, info) is true.
	Include func(relName string, info os.FileInfo) bool
}

// Walker traverses SrcRoot in parallel and emits WorkItems: a shared
// directory queue drained by a small pool of scan goroutines, so deep
// trees don't serialize on one readdir at a time.
type Walker struct {
	cfg   WalkConfig
	items chan WorkItem
	errs  chan error
}

// NewWalker returns a Walker ready to Walk.
func NewWalker(cfg WalkConfig) *Walker {
	if cfg.Workers <= 0 {
		cfg.Workers = min(runtime.NumCPU(), 8)
	}
	return &Walker{
		cfg:   cfg,
		items: make(chan WorkItem, cfg.Workers*4), // enough depth to keep workers fed, bounded for backpressure
		errs:  make(chan error, cfg.Workers*4),
	}
}

// Walk starts the traversal and returns channels of WorkItems and
// errors; both close once the walk completes.
func (w *Walker) Walk(ctx context.Context) (<-chan WorkItem, <-chan error) {
	go func() {
		defer close(w.items)
		defer close(w.errs)
		w.walkTree(ctx)
	}()
	return w.items, w.errs
}

func (w *Walker) walkTree(ctx context.Context) {
	workQueue := make(chan string, w.cfg.Workers*2)
	var outstanding sync.WaitGroup

	var workerWg sync.WaitGroup
	for range w.cfg.Workers {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for dir := range workQueue {
				w.scanDir(ctx, dir, workQueue, &outstanding)
				outstanding.Done()
			}
		}()
	}

	outstanding.Add(1)
	workQueue <- w.cfg.SrcRoot

	outstanding.Wait()
	close(workQueue)
	workerWg.Wait()
}

func (w *Walker) scanDir(ctx context.Context, dir string, workQueue chan<- string, outstanding *sync.WaitGroup) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.sendErr(fmt.Errorf("readdir %s: %w", dir, err))
		return
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}

		srcPath := filepath.Join(dir, entry.Name())
		rel, err := filepath.Rel(w.cfg.SrcRoot, srcPath)
		if err != nil {
			w.sendErr(fmt.Errorf("rel %s: %w", srcPath, err))
			continue
		}

		if entry.IsDir() {
			if w.cfg.Include != nil {
				if info, ierr := entry.Info(); ierr == nil && !w.cfg.Include(rel, info) {
					continue // prune the whole subtree
				}
			}
			outstanding.Add(1)
			select {
			case workQueue <- srcPath:
			case <-ctx.Done():
				outstanding.Done()
			}
			continue
		}

		if !entry.Type().IsRegular() {
			continue // symlinks, devices, etc. are not replicated
		}

		info, err := entry.Info()
		if err != nil {
			w.sendErr(fmt.Errorf("stat %s: %w", srcPath, err))
			continue
		}

		if w.cfg.Include != nil && !w.cfg.Include(rel, info) {
			continue
		}

		item := WorkItem{
			SrcPath: srcPath,
			DstPath: filepath.Join(w.cfg.DstRoot, rel),
			RelName: rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		select {
		case w.items <- item:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Walker) sendErr(err error) {
	select {
	case w.errs <- err:
	default:
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// IndexDestination walks an existing destination tree (typically a
// previous generation) and builds an index keyed by (relative name,
// mtime, size), so the hardlink pre-pass can satisfy unchanged files
// without touching the source.
func IndexDestination(root string) (map[DestKey]string, error) {
	index := make(map[DestKey]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort pre-pass; one unreadable entry shouldn't abort it
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr // see above
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil //nolint:nilerr // see above
		}
		index[DestKey{Name: rel, ModTime: info.ModTime().UnixNano(), Size: info.Size()}] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index destination %s: %w", root, err)
	}
	return index, nil
}

// DestKey mirrors contentdb.Key's shape without importing contentdb, so
// the hardlink pre-pass index can be built and consulted without the
// engine depending on the server-side database package for a purely
// client-local optimization.
type DestKey struct {
	Name    string
	ModTime int64
	Size    int64
}
