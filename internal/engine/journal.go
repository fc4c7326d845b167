package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Journal is the client-side resume journal: a record of which files a
// job has confirmed the destination received, so a crash-restart
// doesn't re-transfer files the server (or local copy) already
// completed. Writes are batched and flushed on a ticker so a worker is
// never blocked on a synchronous commit.
type Journal struct {
	db *sql.DB

	mu      sync.Mutex
	pending []string
	closed  chan struct{}
	done    chan struct{}
}

// OpenJournal opens (creating if absent) a resume journal at path for
// jobID, and starts its background flush loop.
func OpenJournal(path, jobID string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("engine: open journal %s: %w", path, err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS completed (
	job_id TEXT NOT NULL,
	rel_name TEXT NOT NULL,
	completed_at INTEGER NOT NULL,
	PRIMARY KEY (job_id, rel_name)
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: journal schema: %w", err)
	}

	j := &Journal{
		db:     db,
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go j.flushLoop(jobID)
	return j, nil
}

// MarkComplete records relName as confirmed-complete. Non-blocking: the
// actual write happens on the next ticker flush.
func (j *Journal) MarkComplete(relName string) {
	j.mu.Lock()
	j.pending = append(j.pending, relName)
	j.mu.Unlock()
}

// IsComplete reports whether relName was already journaled complete in
// a prior run of jobID. The engine consults it before processing each
// file and skips files already recorded.
func (j *Journal) IsComplete(jobID, relName string) (bool, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM completed WHERE job_id = ? AND rel_name = ?`, jobID, relName).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("engine: journal lookup %s: %w", relName, err)
	}
	return n > 0, nil
}

func (j *Journal) flushLoop(jobID string) {
	defer close(j.done)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.flush(jobID)
		case <-j.closed:
			j.flush(jobID)
			return
		}
	}
}

func (j *Journal) flush(jobID string) {
	j.mu.Lock()
	batch := j.pending
	j.pending = nil
	j.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	tx, err := j.db.Begin()
	if err != nil {
		return
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO completed (job_id, rel_name, completed_at) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return
	}
	now := time.Now().Unix()
	for _, name := range batch {
		if _, err := stmt.Exec(jobID, name, now); err != nil {
			break
		}
	}
	stmt.Close()
	tx.Commit()
}

// Close flushes any pending entries and releases the journal.
func (j *Journal) Close() error {
	close(j.closed)
	<-j.done
	return j.db.Close()
}

// PruneOlderThan deletes journal entries for jobID older than cutoff,
// bounding the journal's growth across many completed jobs.
func (j *Journal) PruneOlderThan(ctx context.Context, jobID string, cutoff time.Time) error {
	_, err := j.db.ExecContext(ctx, `DELETE FROM completed WHERE job_id = ? AND completed_at < ?`, jobID, cutoff.Unix())
	if err != nil {
		return fmt.Errorf("engine: journal prune: %w", err)
	}
	return nil
}
