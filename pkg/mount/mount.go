// Package mount enumerates and manipulates mounts through the new
// mount-id based kernel interfaces (listmount/statmount) and the fd
// based mount-programming syscalls.
package mount

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/truenas/osfs/internal/sysx"
)

// Statmount request mask bits, re-exported from the shim layer.
const (
	SbBasic       = sysx.StatmountSbBasic
	MntBasic      = sysx.StatmountMntBasic
	PropagateFrom = sysx.StatmountPropagateFrom
	MntRoot       = sysx.StatmountMntRoot
	MntPoint      = sysx.StatmountMntPoint
	FsType        = sysx.StatmountFsType
	MntNsID       = sysx.StatmountMntNsID
	MntOpts       = sysx.StatmountMntOpts
	FsSubtype     = sysx.StatmountFsSubtype
	SbSource      = sysx.StatmountSbSource
	OptArray      = sysx.StatmountOptArray
	OptSecArray   = sysx.StatmountOptSecArray
	SupportedMask = sysx.StatmountSupportedMask

	// All asks for everything except the id-mapping arrays.
	All = SbBasic | MntBasic | PropagateFrom | MntRoot | MntPoint |
		FsType | MntNsID | MntOpts | FsSubtype | SbSource |
		OptArray | OptSecArray | SupportedMask
)

// LsmtRoot names the root mount of the caller's namespace.
const LsmtRoot = sysx.LsmtRoot

// listmountBatch is how many mount ids one listmount call requests.
const listmountBatch = 512

// statmount buffer sizing: start small, grow on EOVERFLOW. Most
// replies fit the initial buffer; option-heavy mounts need a few grow
// steps at most.
const (
	statmountInitialBuf = 1024
	statmountGrowth     = 4096
)

// Record is a decoded statmount reply. Pointer and slice fields are
// nil when the kernel did not report them, either because the request
// mask excluded them or the kernel predates them.
type Record struct {
	Mask uint64

	// MNT_BASIC
	MntID          uint64
	MntParentID    uint64
	MntIDOld       uint32
	MntParentIDOld uint32
	MntAttr        uint64
	MntPropagation uint64
	MntPeerGroup   uint64
	MntMaster      uint64

	// SB_BASIC
	SbDevMajor uint32
	SbDevMinor uint32
	SbMagic    uint64
	SbFlags    uint32

	PropagateFrom *uint64
	MntNsID       *uint64
	SupportedMask *uint64

	FsType    *string
	FsSubtype *string
	MntRoot   *string
	MntPoint  *string
	MntOpts   *string
	SbSource  *string

	OptArray    []string
	OptSecArray []string
}

// str pulls a NUL-terminated string out of the reply tail at off.
func str(tail []byte, off uint32) *string {
	if int(off) >= len(tail) {
		return nil
	}
	s := tail[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	out := string(s)
	return &out
}

// strArray pulls count consecutive NUL-terminated strings starting at
// off.
func strArray(tail []byte, off uint32, count uint32) []string {
	out := make([]string, 0, count)
	pos := int(off)
	for i := uint32(0); i < count && pos < len(tail); i++ {
		s := tail[pos:]
		end := bytes.IndexByte(s, 0)
		if end < 0 {
			end = len(s)
		}
		out = append(out, string(s[:end]))
		pos += end + 1
	}
	return out
}

func u64ptr(v uint64) *uint64 { return &v }

// decodeRecord maps the raw reply into a Record, honoring the reply
// mask: fields the kernel did not fill stay absent.
func decodeRecord(sm *sysx.Statmount, tail []byte) *Record {
	rec := &Record{Mask: sm.Mask}

	if sm.Mask&MntBasic != 0 {
		rec.MntID = sm.MntID
		rec.MntParentID = sm.MntParentID
		rec.MntIDOld = sm.MntIDOld
		rec.MntParentIDOld = sm.MntParentIDOld
		rec.MntAttr = sm.MntAttr
		rec.MntPropagation = sm.MntPropagation
		rec.MntPeerGroup = sm.MntPeerGroup
		rec.MntMaster = sm.MntMaster
	}
	if sm.Mask&SbBasic != 0 {
		rec.SbDevMajor = sm.SbDevMajor
		rec.SbDevMinor = sm.SbDevMinor
		rec.SbMagic = sm.SbMagic
		rec.SbFlags = sm.SbFlags
	}
	if sm.Mask&PropagateFrom != 0 {
		rec.PropagateFrom = u64ptr(sm.PropagateFrom)
	}
	if sm.Mask&MntNsID != 0 {
		rec.MntNsID = u64ptr(sm.MntNsID)
	}
	if sm.Mask&SupportedMask != 0 {
		rec.SupportedMask = u64ptr(sm.SupportedMask)
	}
	if sm.Mask&FsType != 0 {
		rec.FsType = str(tail, sm.FsType)
	}
	if sm.Mask&FsSubtype != 0 {
		rec.FsSubtype = str(tail, sm.FsSubtype)
	}
	if sm.Mask&MntRoot != 0 {
		rec.MntRoot = str(tail, sm.MntRoot)
	}
	if sm.Mask&MntPoint != 0 {
		rec.MntPoint = str(tail, sm.MntPoint)
	}
	if sm.Mask&MntOpts != 0 {
		rec.MntOpts = str(tail, sm.MntOpts)
	}
	if sm.Mask&SbSource != 0 {
		rec.SbSource = str(tail, sm.SbSource)
	}
	if sm.Mask&OptArray != 0 {
		rec.OptArray = strArray(tail, sm.OptArray, sm.OptNum)
	}
	if sm.Mask&OptSecArray != 0 {
		rec.OptSecArray = strArray(tail, sm.OptSecArray, sm.OptSecNum)
	}

	return rec
}

// Statmount queries one mount by its unique id. mask selects which
// field groups to request; the reply may report fewer.
func Statmount(ctx context.Context, mntID uint64, mask uint64) (*Record, error) {
	req := &sysx.MntIDReq{
		Size:  sysx.MntIDReqSizeVer1,
		MntID: mntID,
		Param: mask,
	}

	size := statmountInitialBuf
	for {
		buf := make([]byte, size)
		err := sysx.DoStatmount(ctx, req, buf)
		if err == unix.EOVERFLOW {
			size += statmountGrowth
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("statmount mount %d: %w", mntID, err)
		}

		sm, err := sysx.ParseStatmount(buf)
		if err != nil {
			return nil, fmt.Errorf("statmount mount %d: %w", mntID, err)
		}

		end := int(sm.Size)
		if end > len(buf) || end < sysx.StatmountHeaderSize {
			end = len(buf)
		}
		return decodeRecord(sm, buf[sysx.StatmountHeaderSize:end]), nil
	}
}

// Listmount returns the ids of the child mounts of mntID (LsmtRoot for
// the namespace root), starting after lastID. With reverse the ids
// come back descending. The full set is collected across batches.
func Listmount(ctx context.Context, mntID uint64, lastID uint64, reverse bool) ([]uint64, error) {
	req := &sysx.MntIDReq{
		Size:  sysx.MntIDReqSizeVer1,
		MntID: mntID,
		Param: lastID,
	}

	var flags uint
	if reverse {
		flags = sysx.ListmountReverse
	}

	var out []uint64
	batch := make([]uint64, listmountBatch)
	for {
		count, err := sysx.DoListmount(ctx, req, batch, flags)
		if err != nil {
			return nil, fmt.Errorf("listmount mount %d: %w", mntID, err)
		}

		out = append(out, batch[:count]...)
		if count < listmountBatch {
			return out, nil
		}

		// Resume after the last id we saw.
		req.Param = batch[count-1]
	}
}

// Iter walks every mount in the namespace, calling fn with a Record
// carrying the basic mount and superblock groups plus the point,
// source and type strings. fn returning an error stops the walk with
// that error.
func Iter(ctx context.Context, fn func(*Record) error) error {
	ids, err := Listmount(ctx, LsmtRoot, 0, false)
	if err != nil {
		return err
	}

	const mask = MntBasic | SbBasic | MntPoint | MntRoot | FsType | SbSource

	for _, id := range ids {
		rec, err := Statmount(ctx, id, mask)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}

	return nil
}

// OpenByID opens the mount point of the mount with the given unique
// id. flags defaults to O_DIRECTORY when zero, matching what callers
// resolving file handles need.
func OpenByID(ctx context.Context, mntID uint64, flags int) (int, error) {
	if flags == 0 {
		flags = unix.O_DIRECTORY
	}

	rec, err := Statmount(ctx, mntID, MntPoint)
	if err != nil {
		return -1, err
	}
	if rec.MntPoint == nil {
		return -1, fmt.Errorf("open mount %d: kernel did not report a mount point", mntID)
	}

	var fd int
	err = sysx.Retry(ctx, func() error {
		var err error
		fd, err = unix.Open(*rec.MntPoint, flags, 0)
		return err
	})
	if err != nil {
		return -1, fmt.Errorf("open mount point %q: %w", *rec.MntPoint, err)
	}

	return fd, nil
}
