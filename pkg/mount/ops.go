package mount

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/truenas/osfs/internal/sysx"
)

// ============================================================================
// Mount-programming wrappers (open_tree, move_mount, fsopen family)
// ============================================================================

// open_tree flags.
const (
	OpenTreeClone   = unix.OPEN_TREE_CLONE
	OpenTreeCloexec = unix.OPEN_TREE_CLOEXEC
	AtRecursive     = unix.AT_RECURSIVE
)

// move_mount flags.
const (
	MoveMountFEmptyPath = unix.MOVE_MOUNT_F_EMPTY_PATH
	MoveMountTEmptyPath = unix.MOVE_MOUNT_T_EMPTY_PATH
	MoveMountFSymlinks  = unix.MOVE_MOUNT_F_SYMLINKS
	MoveMountTSymlinks  = unix.MOVE_MOUNT_T_SYMLINKS
	MoveMountBeneath    = sysx.MoveMountBeneath
)

// fsopen/fsmount flags and mount attributes.
const (
	FsopenCloexec  = unix.FSOPEN_CLOEXEC
	FsmountCloexec = unix.FSMOUNT_CLOEXEC

	MountAttrRdonly      = unix.MOUNT_ATTR_RDONLY
	MountAttrNosuid      = unix.MOUNT_ATTR_NOSUID
	MountAttrNodev       = unix.MOUNT_ATTR_NODEV
	MountAttrNoexec      = unix.MOUNT_ATTR_NOEXEC
	MountAttrNoatime     = unix.MOUNT_ATTR_NOATIME
	MountAttrRelatime    = unix.MOUNT_ATTR_RELATIME
	MountAttrStrictatime = unix.MOUNT_ATTR_STRICTATIME
	MountAttrNodiratime  = unix.MOUNT_ATTR_NODIRATIME
	MountAttrIdmap       = unix.MOUNT_ATTR_IDMAP
)

// umount2 flags.
const (
	UnmountForce    = unix.MNT_FORCE
	UnmountDetach   = unix.MNT_DETACH
	UnmountExpire   = unix.MNT_EXPIRE
	UnmountNofollow = unix.UMOUNT_NOFOLLOW
)

// renameat2 flags.
const (
	RenameNoreplace = unix.RENAME_NOREPLACE
	RenameExchange  = unix.RENAME_EXCHANGE
	RenameWhiteout  = unix.RENAME_WHITEOUT
)

// OpenTree returns an fd referring to the mount subtree at path, a
// detached clone of it when OpenTreeClone is given.
func OpenTree(ctx context.Context, dirfd int, path string, flags uint) (int, error) {
	fd, err := sysx.OpenTree(ctx, dirfd, path, flags)
	if err != nil {
		return -1, fmt.Errorf("open_tree %q: %w", path, err)
	}
	return fd, nil
}

// MoveMount attaches the mount identified by (fromDirfd, fromPath) at
// (toDirfd, toPath).
func MoveMount(ctx context.Context, fromDirfd int, fromPath string, toDirfd int, toPath string, flags int) error {
	if err := sysx.MoveMount(ctx, fromDirfd, fromPath, toDirfd, toPath, flags); err != nil {
		return fmt.Errorf("move_mount %q -> %q: %w", fromPath, toPath, err)
	}
	return nil
}

// FSOpen opens a filesystem context for fsName.
func FSOpen(ctx context.Context, fsName string, flags int) (int, error) {
	fd, err := sysx.Fsopen(ctx, fsName, flags)
	if err != nil {
		return -1, fmt.Errorf("fsopen %q: %w", fsName, err)
	}
	return fd, nil
}

// FSConfigSetString sets a string option on a filesystem context fd.
func FSConfigSetString(ctx context.Context, fd int, key, value string) error {
	if err := sysx.FsconfigSetString(ctx, fd, key, value); err != nil {
		return fmt.Errorf("fsconfig set %s: %w", key, err)
	}
	return nil
}

// FSConfigSetFlag sets a boolean option on a filesystem context fd.
func FSConfigSetFlag(ctx context.Context, fd int, key string) error {
	if err := sysx.FsconfigSetFlag(ctx, fd, key); err != nil {
		return fmt.Errorf("fsconfig set flag %s: %w", key, err)
	}
	return nil
}

// FSConfigCreate creates the superblock configured on fd.
func FSConfigCreate(ctx context.Context, fd int) error {
	if err := sysx.FsconfigCreate(ctx, fd); err != nil {
		return fmt.Errorf("fsconfig create: %w", err)
	}
	return nil
}

// FSConfigReconfigure applies pending options to the superblock on fd.
func FSConfigReconfigure(ctx context.Context, fd int) error {
	if err := sysx.FsconfigReconfigure(ctx, fd); err != nil {
		return fmt.Errorf("fsconfig reconfigure: %w", err)
	}
	return nil
}

// FSMount turns a created filesystem context into a mount fd that
// MoveMount can attach.
func FSMount(ctx context.Context, fd int, flags int, mountAttrs int) (int, error) {
	mfd, err := sysx.Fsmount(ctx, fd, flags, mountAttrs)
	if err != nil {
		return -1, fmt.Errorf("fsmount: %w", err)
	}
	return mfd, nil
}

// SetAttr changes mount attributes of the mount at path, recursively
// with AtRecursive.
func SetAttr(ctx context.Context, dirfd int, path string, flags uint, attr *unix.MountAttr) error {
	if err := sysx.MountSetattr(ctx, dirfd, path, flags, attr); err != nil {
		return fmt.Errorf("mount_setattr %q: %w", path, err)
	}
	return nil
}

// Unmount detaches the mount at target.
func Unmount(ctx context.Context, target string, flags int) error {
	if err := sysx.Unmount2(ctx, target, flags); err != nil {
		return fmt.Errorf("umount2 %q: %w", target, err)
	}
	return nil
}

// Renameat2 renames oldpath to newpath with the RENAME_* extensions:
// NOREPLACE refuses to clobber, EXCHANGE swaps atomically, WHITEOUT
// leaves a whiteout behind.
func Renameat2(ctx context.Context, olddirfd int, oldpath string, newdirfd int, newpath string, flags uint) error {
	if err := sysx.Renameat2(ctx, olddirfd, oldpath, newdirfd, newpath, flags); err != nil {
		return fmt.Errorf("renameat2 %q -> %q: %w", oldpath, newpath, err)
	}
	return nil
}
