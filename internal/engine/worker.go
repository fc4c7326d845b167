package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/eacopy/eacopy/internal/codec"
	"github.com/eacopy/eacopy/internal/fingerprint"
	"github.com/eacopy/eacopy/internal/ioprim"
	"github.com/eacopy/eacopy/internal/obs"
	"github.com/eacopy/eacopy/internal/wireproto"
)

// Outcome classifies how processItem disposed of one WorkItem, for
// Result's tallies and for the resume journal.
type Outcome int

const (
	OutcomeCopied Outcome = iota
	OutcomeSkipped
	OutcomeHardlinked
	OutcomeFailed
)

// worker processes WorkItems off a shared channel until it closes,
// recording timing into its own *obs.Aggregate, merged into the job's
// on join — a worker never touches shared stats state mid-task. A
// ctx.Done() check runs between tasks; mutation during the task itself
// is local only.
type worker struct {
	job     *Job
	stats   *obs.Aggregate
	copyCtx *ioprim.CopyContext
	client  *ServerClient
	destIdx map[DestKey]string
	journal *Journal
	abort   context.CancelFunc

	// deltaDisabled is set after a CodecCorrupt failure: the next
	// session is negotiated without delta so the file can travel on a
	// fallback path instead of failing the same way again.
	deltaDisabled bool
}

func newWorker(job *Job, destIdx map[DestKey]string, journal *Journal, abort context.CancelFunc) *worker {
	return &worker{
		job:     job,
		stats:   &obs.Aggregate{},
		copyCtx: ioprim.NewCopyContext(),
		destIdx: destIdx,
		journal: journal,
		abort:   abort,
	}
}

func (w *worker) run(ctx context.Context, items <-chan WorkItem, results chan<- itemResult) {
	defer func() {
		if w.client != nil {
			_ = w.client.Bye()
			_ = w.client.Close()
		}
	}()

	for item := range items {
		if ctx.Err() != nil {
			results <- itemResult{item: item, outcome: OutcomeFailed, err: ctx.Err()}
			continue
		}
		outcome, err := w.processItemRetrying(ctx, item)
		switch outcome {
		case OutcomeSkipped:
			w.stats.FilesSkipped++
		case OutcomeFailed:
			w.stats.FilesFailed++
			if errors.Is(err, ioprim.ErrDiskFull) {
				w.abort()
			}
		}
		results <- itemResult{item: item, outcome: outcome, err: err}
	}
}

type itemResult struct {
	item    WorkItem
	outcome Outcome
	err     error
}

// processItemRetrying wraps processItem in the bounded-exponential-backoff
// retry policy: transient errors (sharing violations and network
// timeouts, see isTransient) are retried up to
// job.RetryPolicy.MaxAttempts times; every other error fails the file
// immediately. The final attempt's failure is tagged distinctly so
// callers can tell "still retrying" from "exhausted retries".
func (w *worker) processItemRetrying(ctx context.Context, item WorkItem) (Outcome, error) {
	policy := w.job.RetryPolicy
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		outcome, err := w.processItem(ctx, item)
		if err == nil {
			return outcome, nil
		}
		if !isTransient(err) {
			return OutcomeFailed, err
		}
		lastErr = err
		if attempt == policy.MaxAttempts-1 {
			return OutcomeFailed, fmt.Errorf("engine: %s: exhausted %d retries, last error: %w", item.RelName, policy.MaxAttempts, err)
		}
		wait := policy.backoff(attempt)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return OutcomeFailed, ctx.Err()
		}
	}
	return OutcomeFailed, lastErr
}

func isTransient(err error) bool {
	return errors.Is(err, ioprim.ErrSharingViolation) || isNetworkTransient(err)
}

func isNetworkTransient(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr)
}

// processItem implements the per-file decision tree: skip
// if an identical file identity key already exists at the destination,
// hardlink if a prior generation holds a file with the same identity
// key (relative name, mtime, size), otherwise
// either drive a server session (delta/compressed/raw per the server's
// decision) or copy raw locally when no server is configured.
func (w *worker) processItem(ctx context.Context, item WorkItem) (Outcome, error) {
	key := DestKey{Name: item.RelName, ModTime: item.ModTime.UnixNano(), Size: item.Size}

	if w.journal != nil {
		if done, err := w.journal.IsComplete(w.job.ID, item.RelName); err == nil && done {
			return OutcomeSkipped, nil
		}
	}

	if w.job.SkipIfSameKey {
		if existing, err := os.Stat(item.DstPath); err == nil && existing.Size() == item.Size && existing.ModTime().Equal(item.ModTime) {
			return OutcomeSkipped, nil
		}
	}

	if w.job.UseHardlinks && w.destIdx != nil {
		if prevPath, ok := w.destIdx[key]; ok && prevPath != item.DstPath {
			if _, err := ioprim.EnsureDirectory(filepath.Dir(item.DstPath), true, true, w.stats); err != nil {
				return OutcomeFailed, err
			}
			if err := ioprim.CreateLink(prevPath, item.DstPath, w.stats); err == nil {
				w.stats.FilesHardlinked++
				if w.journal != nil {
					w.journal.MarkComplete(item.RelName)
				}
				return OutcomeHardlinked, nil
			}
			w.stats.HardlinkFellBack++
			// fall through to a normal copy — cross-volume or link-limit
			// are expected, not fatal.
		}
	}

	if w.job.ServerAddr != "" {
		return w.processViaServer(ctx, item)
	}
	return w.processLocal(item)
}

func (w *worker) processLocal(item WorkItem) (Outcome, error) {
	if _, err := ioprim.EnsureDirectory(filepath.Dir(item.DstPath), true, true, w.stats); err != nil {
		return OutcomeFailed, err
	}

	tmpPath := item.DstPath + ".tmp-" + uuid.NewString()
	RegisterTmp(tmpPath)
	defer DeregisterTmp(tmpPath)

	// Large files overlap each buffer's read with the previous buffer's
	// write; small files move in one platform fast-path syscall.
	var n int64
	var err error
	if item.Size >= ioprim.BufferThreshold {
		n, err = ioprim.CopyFilePipelined(item.SrcPath, tmpPath, w.copyCtx, w.stats)
	} else {
		n, err = ioprim.CopyFile(item.SrcPath, tmpPath, true, true, w.copyCtx, w.stats)
	}
	if err != nil {
		_ = ioprim.DeleteFile(tmpPath, w.stats)
		return OutcomeFailed, err
	}

	if err := ioprim.MoveFile(tmpPath, item.DstPath, w.stats); err != nil {
		return OutcomeFailed, err
	}
	if err := os.Chtimes(item.DstPath, time.Time{}, item.ModTime); err != nil {
		return OutcomeFailed, fmt.Errorf("engine: set mtime %s: %w", item.DstPath, err)
	}

	w.stats.FilesCopied++
	w.stats.FilesRaw++
	w.stats.BytesWritten += n
	if w.journal != nil {
		w.journal.MarkComplete(item.RelName)
	}
	return OutcomeCopied, nil
}

func (w *worker) processViaServer(ctx context.Context, item WorkItem) (Outcome, error) {
	if w.client == nil {
		client, err := DialServer(DialOptions{
			Addr:     w.job.ServerAddr,
			ClientID: w.job.ClientID,
			Secret:   w.job.SecretFingerprint,
			Flags:    w.sessionFlags(),
			BWLimit:  w.job.BWLimit,
			Log:      w.job.Log,
		})
		if err != nil {
			return OutcomeFailed, err
		}
		w.client = client
	}

	srcFile, err := os.Open(item.SrcPath)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("engine: open %s: %w", item.SrcPath, err)
	}
	fp, err := fingerprint.Of(srcFile)
	srcFile.Close()
	if err != nil {
		return OutcomeFailed, fmt.Errorf("engine: fingerprint %s: %w", item.SrcPath, err)
	}

	var modTime [8]byte
	putModTime(&modTime, item.ModTime)

	req := wireproto.FileSend{
		Name:    item.RelName,
		Size:    uint64(item.Size),
		ModTime: modTime,
		FP:      fp,
	}

	ack, decision, err := w.client.SendFile(req, w.copyCtx,
		func() (io.ReadCloser, error) { return os.Open(item.SrcPath) },
		func(name string) (io.ReadSeekCloser, error) { return os.Open(filepath.Join(w.job.DstRoot, name)) },
	)
	if err != nil {
		_ = w.client.Close()
		w.client = nil // force reconnect on the next file
		var srvErr *ServerError
		if errors.Is(err, codec.ErrCorrupt) || (errors.As(err, &srvErr) && srvErr.Kind == wireproto.ErrKindCodecCorrupt) {
			w.deltaDisabled = true
		}
		return OutcomeFailed, err
	}
	if !ack.Verified {
		return OutcomeFailed, fmt.Errorf("engine: server could not verify %s", item.RelName)
	}
	// The server owns item.DstPath's filesystem (it wrote the bytes), so
	// it sets mtime from req.ModTime itself before sending FILE_ACK — see
	// internal/server's handleFileSend.

	if w.journal != nil {
		w.journal.MarkComplete(item.RelName)
	}

	switch decision {
	case wireproto.AlreadyHave:
		w.stats.FilesHardlinked++
		return OutcomeHardlinked, nil
	case wireproto.SendDelta:
		w.stats.FilesDelta++
	case wireproto.SendCompressed:
		w.stats.FilesCompressed++
	default:
		w.stats.FilesRaw++
	}
	w.stats.FilesCopied++
	w.stats.BytesWritten += item.Size
	return OutcomeCopied, nil
}

// sessionFlags translates the job's feature toggles into the HELLO
// request, dropping delta for the rest of this worker's life once a
// corrupt delta stream has torn a session down.
func (w *worker) sessionFlags() wireproto.Flags {
	var flags wireproto.Flags
	if w.job.Compression {
		flags |= wireproto.FlagCompression
	}
	if w.job.Delta && !w.deltaDisabled {
		flags |= wireproto.FlagDelta
	}
	if !w.job.SecretFingerprint.Zero() {
		flags |= wireproto.FlagSecureCopy
	}
	return flags
}

func putModTime(dst *[8]byte, t time.Time) {
	nanos := t.UnixNano()
	for i := 0; i < 8; i++ {
		dst[7-i] = byte(nanos >> (8 * i))
	}
}
