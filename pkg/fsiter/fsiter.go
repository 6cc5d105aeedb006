// Package fsiter walks a filesystem tree depth-first without ever
// re-resolving a path.
//
// The walk root is opened once with openat2(RESOLVE_NO_SYMLINKS); every
// child is opened relative to its parent's descriptor with
// RESOLVE_NO_XDEV | RESOLVE_NO_SYMLINKS, so the iterator cannot be
// redirected by symlink swaps and never crosses a mount boundary.
// Entries that fail the resolve restrictions (ELOOP, EXDEV) are pruned
// silently.
//
// Every yielded entry carries an open descriptor and a full statx
// record. The descriptor stays valid until the next call to Next or
// Close.
//
// The iterator can snapshot its directory stack (DirStack) and later be
// rebuilt from that snapshot (Options.Resume): the restore walks the
// recorded inode trail back down without yielding the intermediate
// directories, then resumes normal yields inside the deepest recorded
// directory.
package fsiter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/truenas/osfs/internal/sysx"
	"github.com/truenas/osfs/pkg/mount"
	"github.com/truenas/osfs/pkg/statx"
)

// MaxDepth bounds the directory stack.
const MaxDepth = 2048

const (
	statxMask    = statx.BasicStats | statx.Btime | statx.MntIDUnique
	resolveFlags = unix.RESOLVE_NO_XDEV | unix.RESOLVE_NO_SYMLINKS
	dirOpenFlags = unix.O_NOFOLLOW | unix.O_DIRECTORY
)

// Kind classifies a yielded entry by its statx file type.
type Kind int

const (
	KindRegular Kind = iota
	KindDir
	KindSymlink
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindDir:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// Stats is a point-in-time view of iteration progress.
type Stats struct {
	// Count is the number of entries yielded so far, directories
	// included.
	Count uint64

	// Bytes is the total size of non-directory entries yielded.
	Bytes uint64

	// CurrentDir is the directory currently being read, empty once the
	// walk has finished.
	CurrentDir string
}

// ReportFunc receives periodic progress callbacks. Returning a non-nil
// error stops the iteration with that error.
type ReportFunc func(snapshot *DirStackSnapshot, stats Stats) error

// Options configures a walk.
type Options struct {
	// Mountpoint is the filesystem mountpoint the walk is anchored to.
	Mountpoint string

	// FilesystemName, when set, must match the superblock source of the
	// mount containing the root. The check is skipped on kernels
	// without statmount.
	FilesystemName string

	// RelativePath optionally moves the walk root below the
	// mountpoint.
	RelativePath string

	// BtimeCutoff, when non-zero, drops non-directory entries whose
	// birth time (in whole seconds) is later than the cutoff.
	BtimeCutoff int64

	// FileOpenFlags are the open flags for non-directory entries.
	// Directories always use O_NOFOLLOW|O_DIRECTORY.
	FileOpenFlags int

	// ReportingIncrement invokes Report every time Count is a multiple
	// of it. Zero disables reporting.
	ReportingIncrement uint64
	Report             ReportFunc

	// Resume restores the iterator to a previously snapshotted
	// position.
	Resume *DirStackSnapshot
}

// Entry is one yielded filesystem object.
type Entry struct {
	// Parent is the path of the containing directory, Name the entry
	// name within it.
	Parent string
	Name   string

	// Fd is an open descriptor for the entry. It is owned by the
	// iterator and closed on the next Next or Close call; dup it to
	// keep it.
	Fd int

	// Stat is the statx record collected when the entry was opened,
	// with basic stats, btime and the unique mount id requested.
	Stat *statx.Record

	Kind Kind
}

// frame is one level of the live directory stack.
type frame struct {
	path   string
	ino    uint64
	stream *sysx.DirStream
}

// Iterator is a depth-first filesystem walker. Not safe for concurrent
// use.
type Iterator struct {
	ctx  context.Context
	opts Options

	stack []frame

	// last is the entry most recently yielded; its fd is closed when
	// the iterator advances.
	last struct {
		fd    int
		isDir bool
	}

	skipNext bool

	// cookies is the inode trail being restored, nil once restore has
	// completed (or when there never was one). While restoring,
	// intermediate directory yields are suppressed.
	cookies   []uint64
	restoring bool

	count uint64
	bytes uint64

	closed bool
}

// ============================================================================
// Construction
// ============================================================================

// New opens the walk root and returns an iterator positioned before the
// first entry.
//
// The root is opened with RESOLVE_NO_SYMLINKS and must be a directory.
// When Options.FilesystemName is set, the superblock source of the
// containing mount is verified through statmount; a mismatch means the
// mountpoint is not backed by the expected filesystem and fails
// construction.
func New(ctx context.Context, opts Options) (*Iterator, error) {
	if opts.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}

	rootPath := opts.Mountpoint
	if opts.RelativePath != "" {
		rootPath = filepath.Join(opts.Mountpoint, opts.RelativePath)
	}

	how := unix.OpenHow{
		Flags:   uint64(dirOpenFlags),
		Resolve: unix.RESOLVE_NO_SYMLINKS,
	}
	rootFd, err := sysx.Openat2(ctx, unix.AT_FDCWD, rootPath, &how)
	if err != nil {
		return nil, fmt.Errorf("openat2 %q: %w", rootPath, err)
	}

	rootSt, err := statx.FStat(ctx, rootFd, statxMask)
	if err != nil {
		sysx.Close(rootFd)
		return nil, err
	}
	if !rootSt.IsDir() {
		sysx.Close(rootFd)
		return nil, fmt.Errorf("not a directory: %s: %w", rootPath, unix.ENOTDIR)
	}

	if opts.FilesystemName != "" {
		if err := verifySource(ctx, rootPath, rootSt.MntID, opts.FilesystemName); err != nil {
			sysx.Close(rootFd)
			return nil, err
		}
	}

	cookies := opts.Resume.cookies()

	it := &Iterator{
		ctx:       ctx,
		opts:      opts,
		cookies:   cookies,
		restoring: cookies != nil,
	}
	it.last.fd = -1
	it.stack = append(it.stack, frame{
		path:   rootPath,
		ino:    rootSt.Ino,
		stream: sysx.NewDirStream(rootFd),
	})

	return it, nil
}

// verifySource compares the superblock source of the mount containing
// the root against the expected filesystem name. Kernels without
// statmount, or callers not allowed to use it, pass the check.
func verifySource(ctx context.Context, rootPath string, mntID uint64, want string) error {
	rec, err := mount.Statmount(ctx, mntID, mount.SbBasic|mount.SbSource)
	if err != nil {
		if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
			return nil
		}
		return err
	}
	if rec.SbSource == nil {
		return nil
	}
	if *rec.SbSource != want {
		return fmt.Errorf("%s: filesystem source mismatch (expected %s, got %s)",
			rootPath, want, *rec.SbSource)
	}
	return nil
}

// ============================================================================
// Iteration
// ============================================================================

type action int

const (
	actionYieldFile action = iota
	actionYieldDir
	actionContinue
)

// Next advances the walk and returns the next entry, or (nil, nil)
// once the tree is exhausted. The previous entry's descriptor is
// closed on entry.
func (it *Iterator) Next() (*Entry, error) {
	if it.closed {
		return nil, fmt.Errorf("iterator is closed")
	}

	it.closeLast()

	if it.skipNext {
		it.skipNext = false
		if len(it.stack) > 0 {
			it.pop()
		}
	}

	for len(it.stack) > 0 {
		depth := len(it.stack)
		cur := &it.stack[depth-1]

		dent, err := cur.stream.Next(it.ctx)
		if err != nil {
			return nil, fmt.Errorf("readdir %s: %w", cur.path, err)
		}

		if dent == nil {
			// Directory exhausted. If a cookie for the next depth is
			// still pending, the child it names is gone and the
			// position cannot be restored.
			if it.cookies != nil && depth < len(it.cookies) && it.cookies[depth] != 0 {
				return nil, &RestoreError{Depth: depth, Path: cur.path}
			}
			it.pop()
			continue
		}

		if dent.Name == "." || dent.Name == ".." {
			continue
		}

		// While restoring, cookies[depth] names the inode of the
		// directory to descend into next; everything else at this
		// level is skipped. Index 0 is the root we started in, so at
		// read position depth-1 the pending cookie lives at index
		// depth.
		if it.cookies != nil && depth < len(it.cookies) {
			if c := it.cookies[depth]; c != 0 {
				if dent.Ino != c {
					continue
				}
				it.cookies[depth] = 0
			}
		}

		entry, act, err := it.processEntry(cur, dent)
		if err != nil {
			return nil, err
		}

		switch act {
		case actionContinue:
			continue

		case actionYieldFile:
			it.count++
			it.bytes += entry.Stat.Size
			if err := it.report(cur.path); err != nil {
				return nil, err
			}
			return entry, nil

		case actionYieldDir:
			if err := it.push(cur, entry); err != nil {
				return nil, err
			}

			if it.restoring {
				// Restore target reached for this level. The contract
				// is to resume yielding inside the snapshotted
				// directory, so the directory itself is not yielded
				// again.
				if len(it.stack) >= len(it.cookies) {
					it.restoring = false
					it.cookies = nil
				}
				it.closeLast()
				continue
			}

			it.count++
			if err := it.report(cur.path); err != nil {
				return nil, err
			}
			return entry, nil
		}
	}

	return nil, nil
}

// processEntry opens and stats one directory entry. A pruned entry
// (symlink swap or mount crossing underneath us, or a filtered btime)
// comes back as actionContinue.
func (it *Iterator) processEntry(cur *frame, dent *sysx.Dirent) (*Entry, action, error) {
	isDir := dent.Type == unix.DT_DIR

	flags := it.opts.FileOpenFlags
	if isDir {
		flags = dirOpenFlags
	}

	how := unix.OpenHow{
		Flags:   uint64(flags),
		Resolve: resolveFlags,
	}
	fd, err := sysx.Openat2(it.ctx, cur.stream.Fd(), dent.Name, &how)
	if err != nil {
		if errors.Is(err, unix.ELOOP) || errors.Is(err, unix.EXDEV) {
			return nil, actionContinue, nil
		}
		return nil, 0, fmt.Errorf("openat2 %s/%s: %w", cur.path, dent.Name, err)
	}

	st, err := statx.FStat(it.ctx, fd, statxMask)
	if err != nil {
		sysx.Close(fd)
		return nil, 0, fmt.Errorf("statx %s/%s: %w", cur.path, dent.Name, err)
	}

	if !st.IsDir() && it.opts.BtimeCutoff != 0 && st.Btime.Sec > it.opts.BtimeCutoff {
		sysx.Close(fd)
		return nil, actionContinue, nil
	}

	entry := &Entry{
		Parent: cur.path,
		Name:   dent.Name,
		Fd:     fd,
		Stat:   st,
		Kind:   kindOf(st),
	}

	it.last.fd = fd
	it.last.isDir = st.IsDir()

	if st.IsDir() {
		return entry, actionYieldDir, nil
	}
	return entry, actionYieldFile, nil
}

func kindOf(st *statx.Record) Kind {
	switch {
	case st.IsDir():
		return KindDir
	case st.IsRegular():
		return KindRegular
	case st.IsSymlink():
		return KindSymlink
	default:
		return KindOther
	}
}

// push descends into the directory just yielded. The entry's fd is
// dup'd so the caller-visible descriptor and the stream's descriptor
// have independent lifetimes.
func (it *Iterator) push(cur *frame, entry *Entry) error {
	fullPath := filepath.Join(cur.path, entry.Name)

	if len(it.stack) >= MaxDepth {
		return &DepthError{Path: fullPath}
	}

	dupFd, err := sysx.Dup(entry.Fd)
	if err != nil {
		return fmt.Errorf("dup %s: %w", fullPath, err)
	}

	it.stack = append(it.stack, frame{
		path:   fullPath,
		ino:    entry.Stat.Ino,
		stream: sysx.NewDirStream(dupFd),
	})
	return nil
}

// pop leaves the current directory. Close errors are ignored; there is
// nothing useful to do about a failed close of a read-only directory
// stream mid-walk.
func (it *Iterator) pop() {
	top := len(it.stack) - 1
	it.stack[top].stream.Close()
	it.stack = it.stack[:top]
}

func (it *Iterator) closeLast() {
	if it.last.fd >= 0 {
		sysx.Close(it.last.fd)
		it.last.fd = -1
	}
}

// report invokes the progress callback when the yield count hits the
// configured increment.
func (it *Iterator) report(currentDir string) error {
	if it.opts.Report == nil || it.opts.ReportingIncrement == 0 {
		return nil
	}
	if it.count%it.opts.ReportingIncrement != 0 {
		return nil
	}

	stats := Stats{Count: it.count, Bytes: it.bytes, CurrentDir: currentDir}
	if err := it.opts.Report(it.DirStack(), stats); err != nil {
		return fmt.Errorf("reporting callback: %w", err)
	}
	return nil
}

// ============================================================================
// Control surface
// ============================================================================

// Skip prevents the iterator from descending into the directory it
// just yielded. It must be called before the next Next call; calling
// it after a non-directory entry fails with ErrSkipNotDirectory.
func (it *Iterator) Skip() error {
	if !it.last.isDir {
		return ErrSkipNotDirectory
	}
	it.skipNext = true
	return nil
}

// Stats returns current progress counters.
func (it *Iterator) Stats() Stats {
	s := Stats{Count: it.count, Bytes: it.bytes}
	if len(it.stack) > 0 {
		s.CurrentDir = it.stack[len(it.stack)-1].path
	}
	return s
}

// DirStack snapshots the live directory stack for later resumption.
// The first frame is the walk root, the last is the directory being
// read. An exhausted iterator returns an empty snapshot.
func (it *Iterator) DirStack() *DirStackSnapshot {
	frames := make([]SnapshotFrame, len(it.stack))
	for i, f := range it.stack {
		frames[i] = SnapshotFrame{Path: f.path, Ino: f.ino}
	}
	return &DirStackSnapshot{Frames: frames}
}

// Close releases the yielded entry's descriptor and every directory on
// the stack. The iterator is unusable afterwards.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true

	it.closeLast()
	for i := range it.stack {
		it.stack[i].stream.Close()
	}
	it.stack = nil
	return nil
}
