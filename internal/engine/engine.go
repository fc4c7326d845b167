// Package engine implements the Copy Engine (client): walking a source
// tree, deciding per file whether to skip, hardlink, or transfer it
// (locally or through a Copy Server session), and aggregating the
// result.
package engine

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/eacopy/eacopy/internal/filter"
	"github.com/eacopy/eacopy/internal/fingerprint"
	"github.com/eacopy/eacopy/internal/obs"
)

// Job describes one copy run end to end.
type Job struct {
	ID      string
	SrcRoot string
	DstRoot string

	// PrevDstRoot, if set, is a previous generation's destination used
	// for the hardlink pre-pass's key->path index.
	PrevDstRoot string

	Workers           int
	ServerAddr        string // empty means copy locally, no server session
	ClientID          string
	SecretFingerprint fingerprint.Fingerprint

	// BWLimit caps each session's outbound bytes per second; 0 means
	// unlimited.
	BWLimit int64

	UseHardlinks  bool
	SkipIfSameKey bool
	// Delta and Compression are requested in the session handshake;
	// the server may grant less. Raw copy is always available.
	Delta       bool
	Compression bool
	RetryPolicy RetryPolicy

	// Filter, if non-nil and non-empty, is the file-inclusion predicate:
	// only files it matches are walked.
	Filter *filter.Chain

	JournalPath string // empty disables the resume journal

	Log *obs.LogContext
}

// Result summarizes one RunCopy call.
type Result struct {
	Stats    obs.Aggregate
	Errors   []error
	Duration time.Duration
}

// RunCopy walks job.SrcRoot, resolves every file through the decision
// tree, and returns once every file has been processed or ctx is
// cancelled. No background goroutines remain running once RunCopy
// returns.
func RunCopy(ctx context.Context, job Job) (Result, error) {
	start := time.Now()
	// Job-fatal failures (disk full) cancel this context so every worker
	// drains promptly instead of grinding through a doomed queue.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if job.Workers <= 0 {
		job.Workers = runtime.GOMAXPROCS(0)
	}
	if job.RetryPolicy.MaxAttempts == 0 {
		job.RetryPolicy = DefaultRetryPolicy()
	}
	if job.Log == nil {
		job.Log = obs.New(nil, 0).Scope()
	}

	var journal *Journal
	if job.JournalPath != "" {
		j, err := OpenJournal(job.JournalPath, job.ID)
		if err != nil {
			return Result{}, err
		}
		journal = j
		defer journal.Close()
	}

	var destIdx map[DestKey]string
	if job.UseHardlinks && job.PrevDstRoot != "" {
		idx, err := IndexDestination(job.PrevDstRoot)
		if err != nil {
			job.Log.Warn("hardlink pre-pass index failed", "error", err)
		} else {
			destIdx = idx
		}
	}

	walkCfg := WalkConfig{SrcRoot: job.SrcRoot, DstRoot: job.DstRoot, Workers: job.Workers}
	if job.Filter != nil && !job.Filter.Empty() {
		chain := job.Filter
		walkCfg.Include = func(relName string, info os.FileInfo) bool {
			return chain.Match(relName, info.IsDir(), info.Size())
		}
	}
	walker := NewWalker(walkCfg)
	items, walkErrs := walker.Walk(ctx)

	batchStats := &obs.Aggregate{}
	if job.ServerAddr == "" {
		items = batchLocalCopy(items, DefaultBatchConfig(), batchStats)
	}

	results := make(chan itemResult, job.Workers*4)
	var wg sync.WaitGroup
	workers := make([]*worker, job.Workers)
	for i := range workers {
		workers[i] = newWorker(&job, destIdx, journal, cancel)
	}

	for _, w := range workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			w.run(ctx, items, results)
		}(w)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	res := Result{}
	for r := range results {
		switch r.outcome {
		case OutcomeFailed:
			res.Errors = append(res.Errors, fmt.Errorf("%s: %w", r.item.RelName, r.err))
		}
	}

	for err := range walkErrs {
		res.Errors = append(res.Errors, err)
	}

	for _, w := range workers {
		res.Stats.Merge(w.stats)
	}
	res.Stats.Merge(batchStats)

	res.Duration = time.Since(start)
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}
