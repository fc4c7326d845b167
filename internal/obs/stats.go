package obs

import "time"

// Class identifies one of the I/O operation classes an Aggregate
// tracks timing and counts for.
type Class int

const (
	OpenRead Class = iota
	Read
	CloseRead
	OpenWrite
	Write
	CloseWrite
	Hardlink
	DeleteFile
	MoveFile
	Rmdir
	SetMtime
	FindFile
	FileInfo
	Mkdir
	FullCopy
	numClasses
)

var className = [numClasses]string{
	OpenRead:   "open_read",
	Read:       "read",
	CloseRead:  "close_read",
	OpenWrite:  "open_write",
	Write:      "write",
	CloseWrite: "close_write",
	Hardlink:   "hardlink",
	DeleteFile: "delete_file",
	MoveFile:   "move_file",
	Rmdir:      "rmdir",
	SetMtime:   "set_mtime",
	FindFile:   "find_file",
	FileInfo:   "file_info",
	Mkdir:      "mkdir",
	FullCopy:   "full_copy",
}

func (c Class) String() string {
	if c >= 0 && c < numClasses {
		return className[c]
	}
	return "unknown"
}

// classTotal is one class's cumulative (time, count) pair.
type classTotal struct {
	Duration time.Duration
	Count    int64
}

// Aggregate is a per-operation-class cumulative (duration, count) table.
// Each worker owns a local Aggregate during a job and it is merged into
// the job-global Aggregate only on worker join — a worker never touches
// shared stats state while holding an I/O resource open. Aggregate
// itself does no locking: single ownership is the concurrency model,
// not a lock a caller could accidentally hold across a syscall.
type Aggregate struct {
	totals [numClasses]classTotal

	FilesCopied      int64
	FilesSkipped     int64
	FilesHardlinked  int64
	FilesFailed      int64
	FilesDelta       int64
	FilesCompressed  int64
	FilesRaw         int64
	BytesWritten     int64
	BytesWire        int64
	HardlinkFellBack int64
}

// Record adds one observation of duration to class.
func (a *Aggregate) Record(class Class, d time.Duration) {
	a.totals[class].Duration += d
	a.totals[class].Count++
}

// Merge folds other's totals into a, field by field. Called exactly
// once per worker, at worker join.
func (a *Aggregate) Merge(other *Aggregate) {
	if other == nil {
		return
	}
	for i := range a.totals {
		a.totals[i].Duration += other.totals[i].Duration
		a.totals[i].Count += other.totals[i].Count
	}
	a.FilesCopied += other.FilesCopied
	a.FilesSkipped += other.FilesSkipped
	a.FilesHardlinked += other.FilesHardlinked
	a.FilesFailed += other.FilesFailed
	a.FilesDelta += other.FilesDelta
	a.FilesCompressed += other.FilesCompressed
	a.FilesRaw += other.FilesRaw
	a.BytesWritten += other.BytesWritten
	a.BytesWire += other.BytesWire
	a.HardlinkFellBack += other.HardlinkFellBack
}

// ClassSnapshot is one class's totals, exported for presentation.
type ClassSnapshot struct {
	Class    Class
	Duration time.Duration
	Count    int64
}

// Snapshot returns a point-in-time copy of every class's totals,
// skipping classes with zero observations.
func (a *Aggregate) Snapshot() []ClassSnapshot {
	out := make([]ClassSnapshot, 0, numClasses)
	for i, t := range a.totals {
		if t.Count == 0 {
			continue
		}
		out = append(out, ClassSnapshot{Class: Class(i), Duration: t.Duration, Count: t.Count})
	}
	return out
}

// Timer returns a function that records the elapsed time for class when
// called. Typical use: `defer agg.Timer(obs.Read)()`.
func (a *Aggregate) Timer(class Class) func() {
	start := time.Now()
	return func() {
		a.Record(class, time.Since(start))
	}
}
