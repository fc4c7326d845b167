package ioprim

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/eacopy/eacopy/internal/obs"
)

// CreateLink creates a hardlink at newPath pointing at existingPath.
// Callers must fall back to a raw copy on ErrCrossVolumeLink or
// ErrLinkLimit — this function does not fall back itself, since the
// decision of whether falling back is appropriate belongs to the copy
// engine's per-file policy, not to the primitive.
func CreateLink(existingPath, newPath string, stats *obs.Aggregate) error {
	defer stats.Timer(obs.Hardlink)()

	if err := os.Link(existingPath, newPath); err != nil {
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) {
			switch linkErr.Err {
			case syscall.EXDEV:
				return fmt.Errorf("ioprim: link %s -> %s: %w", existingPath, newPath, ErrCrossVolumeLink)
			case syscall.EMLINK:
				return fmt.Errorf("ioprim: link %s -> %s: %w", existingPath, newPath, ErrLinkLimit)
			}
		}
		return fmt.Errorf("ioprim: link %s -> %s: %w", existingPath, newPath, classify(err))
	}
	return nil
}
