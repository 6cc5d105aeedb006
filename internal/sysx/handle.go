package sysx

import (
	"context"
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MaxHandleSize is MAX_HANDLE_SZ from the kernel, the upper bound on the
// opaque data of a struct file_handle.
const MaxHandleSize = 128

// name_to_handle_at flags beyond the AT_* set x/sys already exports.
const (
	// AtHandleFid asks for a file id instead of an openable handle.
	AtHandleFid = 0x200
	// AtHandleMntIDUnique requests the 64-bit unique mount id.
	AtHandleMntIDUnique = 0x001
	// AtHandleConnectable asks for a handle that resolves with a
	// connected path.
	AtHandleConnectable = 0x002
)

// fileHandleHeaderSize covers handle_bytes (u32) and handle_type (s32).
const fileHandleHeaderSize = 8

// NameToHandleAt resolves path relative to dirfd into an opaque kernel
// handle.
//
// The mount id is returned as a uint64. Unless flags contains
// AtHandleMntIDUnique the kernel only writes the legacy 32-bit id, so
// the value fits in 32 bits; with the flag it is the unique 64-bit id.
//
// EOVERFLOW from a filesystem whose handles exceed the initial buffer
// is retried once with a doubled buffer; a second overflow is surfaced.
func NameToHandleAt(ctx context.Context, dirfd int, path string, flags int) (handleType int32, data []byte, mountID uint64, err error) {
	return nameToHandleAt(ctx, dirfd, path, flags, MaxHandleSize)
}

func nameToHandleAt(ctx context.Context, dirfd int, path string, flags int, size int) (int32, []byte, uint64, error) {
	pathp, err := unix.BytePtrFromString(path)
	if err != nil {
		return 0, nil, 0, err
	}

	buf := make([]byte, fileHandleHeaderSize+size)
	binary.NativeEndian.PutUint32(buf[0:4], uint32(size))

	var mntID uint64
	err = Retry(ctx, func() error {
		_, _, errno := unix.Syscall6(unix.SYS_NAME_TO_HANDLE_AT,
			uintptr(dirfd),
			uintptr(unsafe.Pointer(pathp)),
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(unsafe.Pointer(&mntID)),
			uintptr(flags), 0)
		if errno != 0 {
			return errno
		}
		return nil
	})
	if err == unix.EOVERFLOW && size == MaxHandleSize {
		// Kernel wants more than MAX_HANDLE_SZ; give it one shot with a
		// doubled buffer in case the constant has moved since build.
		return nameToHandleAt(ctx, dirfd, path, flags, MaxHandleSize*2)
	}
	if err != nil {
		return 0, nil, 0, err
	}

	handleBytes := binary.NativeEndian.Uint32(buf[0:4])
	handleType := int32(binary.NativeEndian.Uint32(buf[4:8]))
	data := make([]byte, handleBytes)
	copy(data, buf[fileHandleHeaderSize:fileHandleHeaderSize+int(handleBytes)])

	return handleType, data, mntID, nil
}

// OpenByHandleAt opens the object a handle refers to, resolving it
// against mountFd.
func OpenByHandleAt(ctx context.Context, mountFd int, handleType int32, data []byte, flags int) (int, error) {
	buf := make([]byte, fileHandleHeaderSize+len(data))
	binary.NativeEndian.PutUint32(buf[0:4], uint32(len(data)))
	binary.NativeEndian.PutUint32(buf[4:8], uint32(handleType))
	copy(buf[fileHandleHeaderSize:], data)

	var fd int
	err := Retry(ctx, func() error {
		r1, _, errno := unix.Syscall(unix.SYS_OPEN_BY_HANDLE_AT,
			uintptr(mountFd),
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(flags))
		if errno != 0 {
			return errno
		}
		fd = int(r1)
		return nil
	})
	if err != nil {
		return -1, err
	}

	return fd, nil
}
