// Package handle persists kernel file handles so objects can be
// reopened across processes and reboots without a path.
//
// A handle is only meaningful together with the identity of the mount
// it was resolved against, so the two travel as one value and opening
// re-checks the pairing before asking the kernel.
package handle

import (
	"context"
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/truenas/osfs/internal/sysx"
	"github.com/truenas/osfs/pkg/statx"
)

// MaxHandleSize is the kernel's MAX_HANDLE_SZ bound on handle data.
const MaxHandleSize = sysx.MaxHandleSize

// Flags accepted by FromPath on top of the plain lookup.
const (
	AtSymlinkFollow     = unix.AT_SYMLINK_FOLLOW
	AtEmptyPath         = unix.AT_EMPTY_PATH
	AtHandleFid         = sysx.AtHandleFid
	AtHandleConnectable = sysx.AtHandleConnectable
	AtHandleMntIDUnique = sysx.AtHandleMntIDUnique

	supportedFlags = AtSymlinkFollow | AtEmptyPath | AtHandleFid |
		AtHandleConnectable | AtHandleMntIDUnique
)

const headerSize = 8

// MountMismatchError reports an Open attempt against a mount fd that
// does not belong to the filesystem the handle was resolved on.
type MountMismatchError struct {
	Want uint64
	Got  uint64
}

func (e *MountMismatchError) Error() string {
	return fmt.Sprintf("mount fd belongs to mount %d, handle was resolved against mount %d", e.Got, e.Want)
}

// FileHandle is an opaque kernel handle plus the identity of the mount
// it belongs to.
type FileHandle struct {
	// HandleType is the kernel's handle_type discriminator.
	HandleType int32

	// Data is the opaque handle payload, at most MaxHandleSize bytes.
	Data []byte

	// MountID identifies the mount the handle was resolved against:
	// the unique 64-bit id when UniqueMountID is set, the legacy
	// 32-bit id otherwise.
	MountID       uint64
	UniqueMountID bool
}

// FromPath resolves path relative to dirfd into a persistent handle.
// With AtHandleMntIDUnique the recorded mount id is the unique 64-bit
// one, which survives mount-id reuse within long-lived namespaces.
func FromPath(ctx context.Context, dirfd int, path string, flags int) (*FileHandle, error) {
	if flags&^supportedFlags != 0 {
		return nil, fmt.Errorf("unsupported flags %#x: only AT_SYMLINK_FOLLOW, AT_EMPTY_PATH, AT_HANDLE_FID, AT_HANDLE_CONNECTABLE and AT_HANDLE_MNT_ID_UNIQUE are accepted", flags&^supportedFlags)
	}

	handleType, data, mountID, err := sysx.NameToHandleAt(ctx, dirfd, path, flags)
	if err != nil {
		return nil, fmt.Errorf("name_to_handle_at %q: %w", path, err)
	}

	return &FileHandle{
		HandleType:    handleType,
		Data:          data,
		MountID:       mountID,
		UniqueMountID: flags&AtHandleMntIDUnique != 0,
	}, nil
}

// Bytes serializes the handle in the kernel's struct file_handle
// layout: handle_bytes, handle_type, then the opaque data. The mount
// id is not part of the serialization; persist it alongside.
func (h *FileHandle) Bytes() []byte {
	buf := make([]byte, headerSize+len(h.Data))
	binary.NativeEndian.PutUint32(buf[0:4], uint32(len(h.Data)))
	binary.NativeEndian.PutUint32(buf[4:8], uint32(h.HandleType))
	copy(buf[headerSize:], h.Data)
	return buf
}

// FromBytes reconstructs a handle from a Bytes serialization and the
// mount id persisted with it.
func FromBytes(b []byte, mountID uint64, unique bool) (*FileHandle, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("handle buffer too short: %d bytes", len(b))
	}

	handleBytes := binary.NativeEndian.Uint32(b[0:4])
	if int(handleBytes) != len(b)-headerSize {
		return nil, fmt.Errorf("handle_bytes %d does not match %d bytes of data", handleBytes, len(b)-headerSize)
	}
	if handleBytes > MaxHandleSize {
		return nil, fmt.Errorf("handle_bytes %d exceeds MAX_HANDLE_SZ %d", handleBytes, MaxHandleSize)
	}

	data := make([]byte, handleBytes)
	copy(data, b[headerSize:])

	return &FileHandle{
		HandleType:    int32(binary.NativeEndian.Uint32(b[4:8])),
		Data:          data,
		MountID:       mountID,
		UniqueMountID: unique,
	}, nil
}

// Open opens the object the handle refers to, resolving it against
// mountFd.
//
// Before the kernel is involved, the mount id of mountFd is compared
// to the one recorded in the handle; a mismatch fails with
// MountMismatchError so a handle can never be resolved on the wrong
// filesystem.
func (h *FileHandle) Open(ctx context.Context, mountFd int, flags int) (int, error) {
	mask := uint32(statx.MntID)
	if h.UniqueMountID {
		mask = statx.MntIDUnique
	}

	rec, err := statx.FStat(ctx, mountFd, mask)
	if err != nil {
		return -1, err
	}
	if rec.MntID != h.MountID {
		return -1, &MountMismatchError{Want: h.MountID, Got: rec.MntID}
	}

	fd, err := sysx.OpenByHandleAt(ctx, mountFd, h.HandleType, h.Data, flags)
	if err != nil {
		return -1, fmt.Errorf("open_by_handle_at mount %d: %w", h.MountID, err)
	}

	return fd, nil
}
