package engine

import "time"

// WorkItem describes one file the walk has discovered and a worker must
// resolve via the decision tree: skip, hardlink, delta / compressed /
// raw over a server session, or a local raw copy. Nothing beyond mtime
// is preserved, so only what the decision tree and the wire protocol
// need is carried.
type WorkItem struct {
	SrcPath string
	DstPath string
	// RelName is SrcPath relative to the job's source root — the name
	// half of the File Identity Key (contentdb.Key.Name) and the Name
	// field of a wire FILE_SEND.
	RelName string
	Size    int64
	ModTime time.Time
	IsDir   bool
}
