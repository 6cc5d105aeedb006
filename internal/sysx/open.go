package sysx

import (
	"context"

	"golang.org/x/sys/unix"
)

// Openat2 opens path relative to dirfd with the given open_how. This is
// the only open primitive the library uses for traversal: RESOLVE_*
// restrictions are enforced by the kernel during the walk itself, which
// closes the TOCTOU window a userspace lstat check would leave open.
func Openat2(ctx context.Context, dirfd int, path string, how *unix.OpenHow) (int, error) {
	var fd int

	err := Retry(ctx, func() error {
		var err error
		fd, err = unix.Openat2(dirfd, path, how)
		return err
	})
	if err != nil {
		return -1, err
	}

	return fd, nil
}

// Statx fills stx for path relative to dirfd.
func Statx(ctx context.Context, dirfd int, path string, flags int, mask int, stx *unix.Statx_t) error {
	return Retry(ctx, func() error {
		return unix.Statx(dirfd, path, flags, mask, stx)
	})
}

// Renameat2 renames oldpath to newpath with RENAME_* semantics
// (NOREPLACE, EXCHANGE, WHITEOUT).
func Renameat2(ctx context.Context, olddirfd int, oldpath string, newdirfd int, newpath string, flags uint) error {
	return Retry(ctx, func() error {
		return unix.Renameat2(olddirfd, oldpath, newdirfd, newpath, flags)
	})
}
