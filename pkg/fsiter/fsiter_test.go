package fsiter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/truenas/osfs/pkg/mount"
	"github.com/truenas/osfs/pkg/statx"
)

// buildTree creates a small fixture:
//
//	root/f1
//	root/sub/f2
//	root/sub/deep/f3
func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "f1"), []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "f2"), []byte("two!"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "deep", "f3"), []byte("three"), 0o644))

	return root
}

func collect(t *testing.T, it *Iterator) []string {
	t.Helper()
	var names []string
	for {
		e, err := it.Next()
		require.NoError(t, err)
		if e == nil {
			return names
		}
		names = append(names, e.Name)
	}
}

func TestWalkYieldsWholeTree(t *testing.T) {
	root := buildTree(t)

	it, err := New(context.Background(), Options{Mountpoint: root})
	require.NoError(t, err)
	defer it.Close()

	seen := map[string]*Entry{}
	for {
		e, err := it.Next()
		require.NoError(t, err)
		if e == nil {
			break
		}
		require.GreaterOrEqual(t, e.Fd, 0)
		require.NotNil(t, e.Stat)
		assert.True(t, e.Stat.Has(statx.Ino))
		seen[e.Name] = &Entry{Parent: e.Parent, Name: e.Name, Kind: e.Kind}

		if e.Name == "f3" {
			buf := make([]byte, 16)
			n, err := unix.Read(e.Fd, buf)
			require.NoError(t, err)
			assert.Equal(t, "three", string(buf[:n]))
		}
	}

	require.Len(t, seen, 5)
	assert.Equal(t, KindDir, seen["sub"].Kind)
	assert.Equal(t, KindDir, seen["deep"].Kind)
	assert.Equal(t, KindRegular, seen["f1"].Kind)
	assert.Equal(t, root, seen["f1"].Parent)
	assert.Equal(t, filepath.Join(root, "sub"), seen["f2"].Parent)
	assert.Equal(t, filepath.Join(root, "sub", "deep"), seen["f3"].Parent)

	stats := it.Stats()
	assert.Equal(t, uint64(5), stats.Count)
	assert.Equal(t, uint64(len("one")+len("two!")+len("three")), stats.Bytes)
	assert.Empty(t, stats.CurrentDir)
	assert.Empty(t, it.DirStack().Frames)
}

func TestSymlinksArePrunedSilently(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, os.Mkdir(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "x"), []byte("xx"), 0o644))
	require.NoError(t, os.Symlink("/etc", filepath.Join(root, "b")))
	require.NoError(t, os.Symlink("/etc/passwd", filepath.Join(root, "a", "y")))

	it, err := New(context.Background(), Options{Mountpoint: root})
	require.NoError(t, err)
	defer it.Close()

	names := collect(t, it)
	assert.ElementsMatch(t, []string{"a", "x"}, names)

	// Pruned symlinks leave no trace in the counters either.
	stats := it.Stats()
	assert.Equal(t, uint64(2), stats.Count)
	assert.Equal(t, uint64(len("xx")), stats.Bytes)
}

func TestNewRejectsNonDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := New(context.Background(), Options{Mountpoint: file})
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.ENOTDIR)
}

func TestRelativePathRoot(t *testing.T) {
	root := buildTree(t)

	it, err := New(context.Background(), Options{
		Mountpoint:   root,
		RelativePath: "sub",
	})
	require.NoError(t, err)
	defer it.Close()

	names := collect(t, it)
	assert.ElementsMatch(t, []string{"f2", "deep", "f3"}, names)
}

func TestSkip(t *testing.T) {
	root := buildTree(t)

	it, err := New(context.Background(), Options{Mountpoint: root})
	require.NoError(t, err)
	defer it.Close()

	var names []string
	for {
		e, err := it.Next()
		require.NoError(t, err)
		if e == nil {
			break
		}
		names = append(names, e.Name)
		if e.Name == "sub" {
			require.NoError(t, it.Skip())
		}
	}

	assert.ElementsMatch(t, []string{"f1", "sub"}, names)
}

func TestSkipAfterFileFails(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f"), nil, 0o644))

	it, err := New(context.Background(), Options{Mountpoint: root})
	require.NoError(t, err)
	defer it.Close()

	// Before the first yield there is no directory to skip.
	assert.ErrorIs(t, it.Skip(), ErrSkipNotDirectory)

	e, err := it.Next()
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, KindRegular, e.Kind)

	assert.ErrorIs(t, it.Skip(), ErrSkipNotDirectory)
}

func TestBtimeCutoff(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "fresh")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))

	rec, err := statx.Stat(context.Background(), unix.AT_FDCWD, file, 0, statx.Btime)
	require.NoError(t, err)
	if !rec.Has(statx.Btime) {
		t.Skip("filesystem does not report btime")
	}

	t.Run("FilesNewerThanCutoffDropped", func(t *testing.T) {
		it, err := New(context.Background(), Options{
			Mountpoint:  root,
			BtimeCutoff: time.Now().Add(-time.Hour).Unix(),
		})
		require.NoError(t, err)
		defer it.Close()

		assert.ElementsMatch(t, []string{"dir"}, collect(t, it))
	})

	t.Run("FutureCutoffKeepsEverything", func(t *testing.T) {
		it, err := New(context.Background(), Options{
			Mountpoint:  root,
			BtimeCutoff: time.Now().Add(time.Hour).Unix(),
		})
		require.NoError(t, err)
		defer it.Close()

		assert.ElementsMatch(t, []string{"dir", "fresh"}, collect(t, it))
	})
}

func TestReportCallback(t *testing.T) {
	root := buildTree(t)

	var calls []Stats
	it, err := New(context.Background(), Options{
		Mountpoint:         root,
		ReportingIncrement: 2,
		Report: func(snapshot *DirStackSnapshot, stats Stats) error {
			require.NotNil(t, snapshot)
			require.NotEmpty(t, snapshot.Frames)
			assert.Equal(t, root, snapshot.Frames[0].Path)
			calls = append(calls, stats)
			return nil
		},
	})
	require.NoError(t, err)
	defer it.Close()

	names := collect(t, it)
	require.Len(t, names, 5)

	// 5 yields with increment 2 fire at counts 2 and 4.
	require.Len(t, calls, 2)
	assert.Equal(t, uint64(2), calls[0].Count)
	assert.Equal(t, uint64(4), calls[1].Count)
}

func TestReportCallbackErrorStopsIteration(t *testing.T) {
	root := buildTree(t)
	sentinel := errors.New("enough")

	it, err := New(context.Background(), Options{
		Mountpoint:         root,
		ReportingIncrement: 1,
		Report: func(snapshot *DirStackSnapshot, stats Stats) error {
			return sentinel
		},
	})
	require.NoError(t, err)
	defer it.Close()

	_, err = it.Next()
	assert.ErrorIs(t, err, sentinel)
}

func TestResumeFromSnapshot(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	for _, name := range []string{"x", "y", "z"} {
		require.NoError(t, os.WriteFile(filepath.Join(sub, name), []byte(name), 0o644))
	}

	ctx := context.Background()

	first, err := New(ctx, Options{Mountpoint: root})
	require.NoError(t, err)
	defer first.Close()

	e, err := first.Next()
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, "sub", e.Name)

	// The stack already includes the yielded directory, so the snapshot
	// records root and sub.
	snap := first.DirStack()
	require.Len(t, snap.Frames, 2)
	assert.Equal(t, sub, snap.Frames[1].Path)
	require.NoError(t, first.Close())

	resumed, err := New(ctx, Options{Mountpoint: root, Resume: snap})
	require.NoError(t, err)
	defer resumed.Close()

	// The restored iterator yields inside sub without re-yielding sub
	// itself.
	assert.ElementsMatch(t, []string{"x", "y", "z"}, collect(t, resumed))
}

func TestResumeRestoreFailure(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	snap := &DirStackSnapshot{Frames: []SnapshotFrame{
		{Path: root, Ino: 1},
		{Path: filepath.Join(root, "gone"), Ino: ^uint64(0)},
	}}

	it, err := New(context.Background(), Options{Mountpoint: root, Resume: snap})
	require.NoError(t, err)
	defer it.Close()

	_, err = it.Next()
	require.Error(t, err)

	var restore *RestoreError
	require.ErrorAs(t, err, &restore)
	assert.Equal(t, 1, restore.Depth)
	assert.Equal(t, root, restore.Path)
}

func TestFilesystemNameMismatch(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	rec, err := statx.Stat(ctx, unix.AT_FDCWD, root, 0, statx.BasicStats|statx.MntIDUnique)
	require.NoError(t, err)
	if _, err := mount.Statmount(ctx, rec.MntID, mount.SbBasic|mount.SbSource); err != nil {
		t.Skip("statmount unavailable, source verification is skipped")
	}

	_, err = New(ctx, Options{
		Mountpoint:     root,
		FilesystemName: "definitely/not/this/source",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filesystem source mismatch")
}

func TestDepthLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a 2049-deep tree")
	}

	root := t.TempDir()

	// Paths this deep exceed PATH_MAX, so build the chain with
	// directory-relative syscalls.
	fd, err := unix.Open(root, unix.O_DIRECTORY|unix.O_RDONLY, 0)
	require.NoError(t, err)
	for i := 0; i < MaxDepth+1; i++ {
		require.NoError(t, unix.Mkdirat(fd, "d", 0o755))
		next, err := unix.Openat(fd, "d", unix.O_DIRECTORY|unix.O_RDONLY|unix.O_NOFOLLOW, 0)
		require.NoError(t, err)
		unix.Close(fd)
		fd = next
	}
	unix.Close(fd)

	it, err := New(context.Background(), Options{Mountpoint: root})
	require.NoError(t, err)
	defer it.Close()

	for {
		e, err := it.Next()
		if err != nil {
			var depth *DepthError
			require.ErrorAs(t, err, &depth)
			assert.NotEmpty(t, depth.Path)
			return
		}
		require.NotNil(t, e, "walk finished without hitting the depth limit")
	}
}
