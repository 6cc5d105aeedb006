package sysx

import (
	"context"

	"golang.org/x/sys/unix"
)

// Fgetxattr reads the attr xattr of fd into dest. A zero-length dest is
// the size probe: the kernel reports the value's current size without
// copying anything. ENODATA and EOPNOTSUPP are returned unmodified so
// the ACL layer can drive its probe protocol off them.
func Fgetxattr(ctx context.Context, fd int, attr string, dest []byte) (int, error) {
	var size int

	err := Retry(ctx, func() error {
		var err error
		size, err = unix.Fgetxattr(fd, attr, dest)
		return err
	})
	if err != nil {
		return -1, err
	}

	return size, nil
}

// Fsetxattr writes the attr xattr of fd.
func Fsetxattr(ctx context.Context, fd int, attr string, data []byte, flags int) error {
	return Retry(ctx, func() error {
		return unix.Fsetxattr(fd, attr, data, flags)
	})
}

// Fremovexattr removes the attr xattr of fd.
func Fremovexattr(ctx context.Context, fd int, attr string) error {
	return Retry(ctx, func() error {
		return unix.Fremovexattr(fd, attr)
	})
}
