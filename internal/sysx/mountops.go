package sysx

import (
	"context"

	"golang.org/x/sys/unix"
)

// OpenTree detaches or clones the mount subtree at path.
func OpenTree(ctx context.Context, dirfd int, path string, flags uint) (int, error) {
	var fd int

	err := Retry(ctx, func() error {
		var err error
		fd, err = unix.OpenTree(dirfd, path, flags)
		return err
	})
	if err != nil {
		return -1, err
	}

	return fd, nil
}

// move_mount flags missing from the MOVE_MOUNT_* set x/sys exports.
const (
	// MoveMountBeneath mounts beneath the top mount at the destination
	// instead of on top of it.
	MoveMountBeneath = 0x200
)

// MoveMount attaches a mount (typically a detached tree or an fsmount
// result) at the destination.
func MoveMount(ctx context.Context, fromDirfd int, fromPath string, toDirfd int, toPath string, flags int) error {
	return Retry(ctx, func() error {
		return unix.MoveMount(fromDirfd, fromPath, toDirfd, toPath, flags)
	})
}

// Fsopen starts a new filesystem context for fsName.
func Fsopen(ctx context.Context, fsName string, flags int) (int, error) {
	var fd int

	err := Retry(ctx, func() error {
		var err error
		fd, err = unix.Fsopen(fsName, flags)
		return err
	})
	if err != nil {
		return -1, err
	}

	return fd, nil
}

// FsconfigSetString sets a string option on a filesystem context.
func FsconfigSetString(ctx context.Context, fd int, key, value string) error {
	return Retry(ctx, func() error {
		return unix.FsconfigSetString(fd, key, value)
	})
}

// FsconfigSetFlag sets a flag option on a filesystem context.
func FsconfigSetFlag(ctx context.Context, fd int, key string) error {
	return Retry(ctx, func() error {
		return unix.FsconfigSetFlag(fd, key)
	})
}

// FsconfigCreate asks the kernel to create the superblock configured on
// the context.
func FsconfigCreate(ctx context.Context, fd int) error {
	return Retry(ctx, func() error {
		return unix.FsconfigCreate(fd)
	})
}

// FsconfigReconfigure applies the pending options to an existing
// superblock.
func FsconfigReconfigure(ctx context.Context, fd int) error {
	return Retry(ctx, func() error {
		return unix.FsconfigReconfigure(fd)
	})
}

// Fsmount turns a created filesystem context into a mount fd.
func Fsmount(ctx context.Context, fd int, flags int, mountAttrs int) (int, error) {
	var mfd int

	err := Retry(ctx, func() error {
		var err error
		mfd, err = unix.Fsmount(fd, flags, mountAttrs)
		return err
	})
	if err != nil {
		return -1, err
	}

	return mfd, nil
}

// MountSetattr changes mount properties of the mount at path.
func MountSetattr(ctx context.Context, dirfd int, path string, flags uint, attr *unix.MountAttr) error {
	return Retry(ctx, func() error {
		return unix.MountSetattr(dirfd, path, flags, attr)
	})
}

// Unmount2 unmounts target. flags is the MNT_* set (DETACH, FORCE,
// EXPIRE, UMOUNT_NOFOLLOW).
func Unmount2(ctx context.Context, target string, flags int) error {
	return Retry(ctx, func() error {
		return unix.Unmount(target, flags)
	})
}
