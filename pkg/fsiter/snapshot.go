package fsiter

// SnapshotFrame is one directory on the saved stack: its full path and
// the inode it had when the snapshot was taken.
type SnapshotFrame struct {
	Path string
	Ino  uint64
}

// DirStackSnapshot captures the directory stack of a running iterator.
// Frame 0 is the walk root, the last frame is the directory that was
// being read. Feeding it back through Options.Resume positions a fresh
// iterator so that it resumes yielding inside the last frame.
//
// Resume matches directories by inode, so a snapshot survives renames
// of the directories on the path but not their replacement.
type DirStackSnapshot struct {
	Frames []SnapshotFrame
}

// cookies returns the inode trail the restore loop consumes. Index i
// holds the inode of the directory to descend into at depth i; index 0
// (the root, which the iterator starts in) is never consulted.
func (s *DirStackSnapshot) cookies() []uint64 {
	if s == nil || len(s.Frames) == 0 {
		return nil
	}
	out := make([]uint64, len(s.Frames))
	for i, f := range s.Frames {
		out[i] = f.Ino
	}
	return out
}
