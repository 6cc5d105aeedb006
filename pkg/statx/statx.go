// Package statx maps the Linux statx result into a typed record.
//
// The kernel only fills the fields the caller asked for and the
// filesystem could supply; the record keeps the result mask so callers
// can tell an absent field from a zero one.
package statx

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/truenas/osfs/internal/sysx"
)

// Field masks, re-exported so callers do not need to import unix.
const (
	Type        = unix.STATX_TYPE
	Mode        = unix.STATX_MODE
	Nlink       = unix.STATX_NLINK
	UID         = unix.STATX_UID
	GID         = unix.STATX_GID
	Atime       = unix.STATX_ATIME
	Mtime       = unix.STATX_MTIME
	Ctime       = unix.STATX_CTIME
	Ino         = unix.STATX_INO
	Size        = unix.STATX_SIZE
	Blocks      = unix.STATX_BLOCKS
	BasicStats  = unix.STATX_BASIC_STATS
	Btime       = unix.STATX_BTIME
	MntID       = unix.STATX_MNT_ID
	MntIDUnique = unix.STATX_MNT_ID_UNIQUE
)

// Time is one statx timestamp.
type Time struct {
	Sec  int64
	Nsec uint32
}

// Seconds returns the timestamp as fractional seconds.
func (t Time) Seconds() float64 {
	return float64(t.Sec) + float64(t.Nsec)*1e-9
}

// Nanoseconds returns the timestamp as total nanoseconds.
func (t Time) Nanoseconds() int64 {
	return t.Sec*1_000_000_000 + int64(t.Nsec)
}

// Device is a split device number.
type Device struct {
	Major uint32
	Minor uint32
}

// Packed returns the combined device id as the kernel encodes it.
func (d Device) Packed() uint64 {
	return unix.Mkdev(d.Major, d.Minor)
}

// Record is the decoded statx reply.
//
// Fields outside Mask carry whatever the kernel left there (usually
// zero); use Has before trusting an optional field such as Btime or
// MntID.
type Record struct {
	Mask           uint32
	Blksize        uint32
	Attributes     uint64
	AttributesMask uint64
	Nlink          uint32
	UID            uint32
	GID            uint32
	Mode           uint16
	Ino            uint64
	Size           uint64
	Blocks         uint64
	Atime          Time
	Btime          Time
	Ctime          Time
	Mtime          Time
	Rdev           Device
	Dev            Device

	// MntID is the mount id of the containing mount: the unique 64-bit
	// id when the kernel honored STATX_MNT_ID_UNIQUE, the legacy 32-bit
	// id otherwise. MntIDUnique tells the two apart.
	MntID       uint64
	MntIDUnique bool
}

// Has reports whether every bit of mask was filled by the kernel.
func (r *Record) Has(mask uint32) bool {
	return r.Mask&mask == mask
}

// IsDir reports whether the record describes a directory. Requires the
// TYPE bits.
func (r *Record) IsDir() bool {
	return r.Mode&unix.S_IFMT == unix.S_IFDIR
}

// IsRegular reports whether the record describes a regular file.
func (r *Record) IsRegular() bool {
	return r.Mode&unix.S_IFMT == unix.S_IFREG
}

// IsSymlink reports whether the record describes a symbolic link.
func (r *Record) IsSymlink() bool {
	return r.Mode&unix.S_IFMT == unix.S_IFLNK
}

func stxTime(ts unix.StatxTimestamp) Time {
	return Time{Sec: ts.Sec, Nsec: ts.Nsec}
}

// FromRaw converts a raw statx buffer into a Record.
func FromRaw(stx *unix.Statx_t) *Record {
	return &Record{
		Mask:           stx.Mask,
		Blksize:        stx.Blksize,
		Attributes:     stx.Attributes,
		AttributesMask: stx.Attributes_mask,
		Nlink:          stx.Nlink,
		UID:            stx.Uid,
		GID:            stx.Gid,
		Mode:           stx.Mode,
		Ino:            stx.Ino,
		Size:           stx.Size,
		Blocks:         stx.Blocks,
		Atime:          stxTime(stx.Atime),
		Btime:          stxTime(stx.Btime),
		Ctime:          stxTime(stx.Ctime),
		Mtime:          stxTime(stx.Mtime),
		Rdev:           Device{Major: stx.Rdev_major, Minor: stx.Rdev_minor},
		Dev:            Device{Major: stx.Dev_major, Minor: stx.Dev_minor},
		MntID:          stx.Mnt_id,
		MntIDUnique:    stx.Mask&unix.STATX_MNT_ID_UNIQUE != 0,
	}
}

// Stat issues statx for path relative to dirfd (unix.AT_FDCWD for the
// working directory) and maps the reply.
func Stat(ctx context.Context, dirfd int, path string, flags int, mask uint32) (*Record, error) {
	var stx unix.Statx_t
	if err := sysx.Statx(ctx, dirfd, path, flags, int(mask), &stx); err != nil {
		return nil, fmt.Errorf("statx %q: %w", path, err)
	}
	return FromRaw(&stx), nil
}

// FStat issues statx against an open descriptor via AT_EMPTY_PATH.
func FStat(ctx context.Context, fd int, mask uint32) (*Record, error) {
	var stx unix.Statx_t
	err := sysx.Statx(ctx, fd, "", unix.AT_EMPTY_PATH|unix.AT_SYMLINK_NOFOLLOW, int(mask), &stx)
	if err != nil {
		return nil, fmt.Errorf("statx fd %d: %w", fd, err)
	}
	return FromRaw(&stx), nil
}
