package mount

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/truenas/osfs/internal/sysx"
)

// skipUnlessMountAPI skips tests on kernels without listmount/statmount
// or in environments where the caller may not inspect the namespace.
func skipUnlessMountAPI(t *testing.T, err error) {
	t.Helper()
	if errors.Is(err, unix.ENOSYS) {
		t.Skip("kernel lacks listmount/statmount")
	}
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
		t.Skip("insufficient privileges for mount inspection")
	}
}

func TestListmountReturnsRootChildren(t *testing.T) {
	ids, err := Listmount(context.Background(), LsmtRoot, 0, false)
	if err != nil {
		skipUnlessMountAPI(t, err)
		t.Fatal(err)
	}
	assert.NotEmpty(t, ids)
}

func TestStatmountRoot(t *testing.T) {
	ctx := context.Background()

	ids, err := Listmount(ctx, LsmtRoot, 0, false)
	if err != nil {
		skipUnlessMountAPI(t, err)
		t.Fatal(err)
	}
	require.NotEmpty(t, ids)

	rec, err := Statmount(ctx, ids[0], MntBasic|SbBasic|MntPoint|FsType)
	if err != nil {
		skipUnlessMountAPI(t, err)
		t.Fatal(err)
	}

	assert.Equal(t, ids[0], rec.MntID)
	if rec.Mask&MntPoint != 0 {
		require.NotNil(t, rec.MntPoint)
		assert.True(t, filepath.IsAbs(*rec.MntPoint))
	}
	if rec.Mask&FsType != 0 {
		require.NotNil(t, rec.FsType)
		assert.NotEmpty(t, *rec.FsType)
	}
	// Fields outside the request mask stay absent.
	assert.Nil(t, rec.MntOpts)
	assert.Nil(t, rec.OptArray)
}

func TestIterVisitsEveryListedMount(t *testing.T) {
	ctx := context.Background()

	ids, err := Listmount(ctx, LsmtRoot, 0, false)
	if err != nil {
		skipUnlessMountAPI(t, err)
		t.Fatal(err)
	}

	var seen int
	err = Iter(ctx, func(rec *Record) error {
		seen++
		return nil
	})
	if err != nil {
		skipUnlessMountAPI(t, err)
		t.Fatal(err)
	}
	assert.Equal(t, len(ids), seen)
}

func TestIterStopsOnCallbackError(t *testing.T) {
	sentinel := errors.New("stop")

	err := Iter(context.Background(), func(rec *Record) error {
		return sentinel
	})
	if err != nil && !errors.Is(err, sentinel) {
		skipUnlessMountAPI(t, err)
	}
	assert.ErrorIs(t, err, sentinel)
}

func TestRenameat2Noreplace(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), []byte("b"), 0o644))

	err := Renameat2(ctx, unix.AT_FDCWD, filepath.Join(dir, "a"),
		unix.AT_FDCWD, filepath.Join(dir, "b"), RenameNoreplace)
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.EEXIST)

	err = Renameat2(ctx, unix.AT_FDCWD, filepath.Join(dir, "a"),
		unix.AT_FDCWD, filepath.Join(dir, "c"), RenameNoreplace)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "c"))
	assert.NoError(t, err)
}

func TestRenameat2Exchange(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), []byte("b"), 0o644))

	err := Renameat2(ctx, unix.AT_FDCWD, filepath.Join(dir, "a"),
		unix.AT_FDCWD, filepath.Join(dir, "b"), RenameExchange)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "a"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

func TestStatmountHeaderLayout(t *testing.T) {
	// The reply header must stay exactly 512 bytes; string offsets are
	// relative to its end.
	buf := make([]byte, sysx.StatmountHeaderSize)
	_, err := sysx.ParseStatmount(buf)
	require.NoError(t, err)

	_, err = sysx.ParseStatmount(buf[:100])
	assert.Equal(t, unix.EBADMSG, err)
}
