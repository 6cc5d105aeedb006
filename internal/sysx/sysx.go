// Package sysx wraps the raw Linux syscalls the library is built on.
//
// Every blocking call goes through Retry so EINTR never leaks to callers
// and cancellation is observed between retries. Wrappers return bare
// *unix.Errno* values; callers add path context when they wrap.
package sysx

import (
	"context"

	"golang.org/x/sys/unix"
)

// Retry runs fn until it stops failing with EINTR.
//
// Between retries the context is consulted, so a caller that has been
// cancelled does not spin on a signal storm. A done context wins over
// the syscall error: the context error is returned and the operation is
// abandoned.
func Retry(ctx context.Context, fn func() error) error {
	for {
		err := fn()
		if err != unix.EINTR {
			return err
		}

		if ctx != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
		}
	}
}

// Dup duplicates fd. The duplicate shares the file description, which is
// what the iterator relies on when it hands out directory descriptors.
func Dup(fd int) (int, error) {
	return unix.Dup(fd)
}

// Close closes fd. Not retried: Linux releases the descriptor even when
// close returns EINTR, and retrying would race a concurrent reuse.
func Close(fd int) error {
	return unix.Close(fd)
}
