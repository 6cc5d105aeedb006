package sysx

import (
	"bytes"
	"context"
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Constants from the uapi mount.h that x/sys does not export yet.
const (
	// LsmtRoot names the root mount of the caller's namespace in
	// listmount/statmount requests.
	LsmtRoot = ^uint64(0)

	// ListmountReverse asks listmount for descending mount ids.
	ListmountReverse = uint(1 << 0)

	MntIDReqSizeVer0 = 24
	MntIDReqSizeVer1 = 32
)

// statmount mask bits.
const (
	StatmountSbBasic       = 0x00000001
	StatmountMntBasic      = 0x00000002
	StatmountPropagateFrom = 0x00000004
	StatmountMntRoot       = 0x00000008
	StatmountMntPoint      = 0x00000010
	StatmountFsType        = 0x00000020
	StatmountMntNsID       = 0x00000040
	StatmountMntOpts       = 0x00000080
	StatmountFsSubtype     = 0x00000100
	StatmountSbSource      = 0x00000200
	StatmountOptArray      = 0x00000400
	StatmountOptSecArray   = 0x00000800
	StatmountSupportedMask = 0x00001000
)

// MntIDReq is struct mnt_id_req, the request half of statmount and
// listmount. Size must be one of the MntIDReqSizeVer* values.
type MntIDReq struct {
	Size    uint32
	Spare   uint32
	MntID   uint64
	Param   uint64
	MntNsID uint64
}

// StatmountHeaderSize is the fixed portion of struct statmount; string
// offsets in the reply are relative to the byte that follows it.
const StatmountHeaderSize = 512

// Statmount is the fixed header of the statmount reply. The u32 fields
// annotated as strings are offsets from the end of the header into the
// variable tail of the reply buffer.
type Statmount struct {
	Size           uint32
	MntOpts        uint32 // [str]
	Mask           uint64
	SbDevMajor     uint32
	SbDevMinor     uint32
	SbMagic        uint64
	SbFlags        uint32
	FsType         uint32 // [str]
	MntID          uint64
	MntParentID    uint64
	MntIDOld       uint32
	MntParentIDOld uint32
	MntAttr        uint64
	MntPropagation uint64
	MntPeerGroup   uint64
	MntMaster      uint64
	PropagateFrom  uint64
	MntRoot        uint32 // [str]
	MntPoint       uint32 // [str]
	MntNsID        uint64
	FsSubtype      uint32 // [str]
	SbSource       uint32 // [str]
	OptNum         uint32
	OptArray       uint32 // [str]
	OptSecNum      uint32
	OptSecArray    uint32 // [str]
	SupportedMask  uint64
	_              [45]uint64
}

// ParseStatmount copies the fixed reply header out of a raw statmount
// buffer.
func ParseStatmount(buf []byte) (*Statmount, error) {
	if len(buf) < StatmountHeaderSize {
		return nil, unix.EBADMSG
	}

	var sm Statmount
	if err := binary.Read(bytes.NewReader(buf[:StatmountHeaderSize]), binary.NativeEndian, &sm); err != nil {
		return nil, err
	}
	return &sm, nil
}

// DoStatmount issues statmount for req into buf. The caller grows buf
// and retries on EOVERFLOW. buf must be at least StatmountHeaderSize.
func DoStatmount(ctx context.Context, req *MntIDReq, buf []byte) error {
	return Retry(ctx, func() error {
		_, _, errno := unix.Syscall6(unix.SYS_STATMOUNT,
			uintptr(unsafe.Pointer(req)),
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(len(buf)),
			0, 0, 0)
		if errno != 0 {
			return errno
		}
		return nil
	})
}

// DoListmount fills ids with children of req.MntID starting after
// req.Param and returns how many were written.
func DoListmount(ctx context.Context, req *MntIDReq, ids []uint64, flags uint) (int, error) {
	var count int

	err := Retry(ctx, func() error {
		r1, _, errno := unix.Syscall6(unix.SYS_LISTMOUNT,
			uintptr(unsafe.Pointer(req)),
			uintptr(unsafe.Pointer(&ids[0])),
			uintptr(len(ids)),
			uintptr(flags),
			0, 0)
		if errno != 0 {
			return errno
		}
		count = int(r1)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}
