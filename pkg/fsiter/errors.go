package fsiter

import (
	"errors"
	"fmt"
)

// ErrSkipNotDirectory is returned by Skip when the last yielded entry
// was not a directory.
var ErrSkipNotDirectory = errors.New("skip is only valid immediately after a directory entry")

// RestoreError reports a failed position restore: a directory recorded
// in the resume snapshot was exhausted without finding the child inode
// the snapshot names at that depth. The tree changed underneath the
// snapshot; the caller should restart from the top.
type RestoreError struct {
	Depth int
	Path  string
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("failed to restore iterator position at depth %d in directory: %s", e.Depth, e.Path)
}

// DepthError reports a directory nested deeper than MaxDepth.
type DepthError struct {
	Path string
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("max depth %d exceeded at %s", MaxDepth, e.Path)
}
