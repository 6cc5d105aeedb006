// Package acl reads and writes ACLs on open file descriptors without
// the caller having to know which ACL model the filesystem speaks.
//
// The model is discovered with a zero-length xattr probe against the
// NFSv4 ACL xattr: a size (or ENODATA) means NFSv4, EOPNOTSUPP means
// the filesystem is POSIX.1e territory. A POSIX filesystem that also
// rejects the access xattr has ACLs disabled entirely and that error
// is surfaced.
package acl

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/truenas/osfs/internal/sysx"
	"github.com/truenas/osfs/pkg/acl/nfs4"
	"github.com/truenas/osfs/pkg/acl/posix1e"
)

// Xattr names, bit-exact with what ZFS and the VFS expect.
const (
	NFS4Xattr         = "system.nfs4_acl_xdr"
	PosixAccessXattr  = "system.posix_acl_access"
	PosixDefaultXattr = "system.posix_acl_default"
)

// Kind discriminates the ACL model a Value carries.
type Kind int

const (
	KindNFS4 Kind = iota
	KindPosix
)

func (k Kind) String() string {
	switch k {
	case KindNFS4:
		return "nfs4"
	case KindPosix:
		return "posix1e"
	default:
		return "unknown"
	}
}

// Value is the tagged union over the two ACL models. The concrete
// types are NFS4Value and PosixValue; both carry raw xattr payloads so
// a read-modify-write cycle never re-encodes bytes it did not touch.
type Value interface {
	Kind() Kind
}

// NFS4Value is a raw system.nfs4_acl_xdr payload. Empty Data means the
// xattr was present but empty.
type NFS4Value struct {
	Data []byte
}

func (v *NFS4Value) Kind() Kind { return KindNFS4 }

// ACL decodes the payload.
func (v *NFS4Value) ACL() (*nfs4.ACL, error) {
	return nfs4.Parse(v.Data)
}

// PosixValue is the raw POSIX.1e xattr pair. A nil Default means the
// default xattr is absent; writing the value back removes it.
type PosixValue struct {
	Access  []byte
	Default []byte
}

func (v *PosixValue) Kind() Kind { return KindPosix }

// ACL decodes the pair.
func (v *PosixValue) ACL() (*posix1e.ACL, error) {
	return posix1e.Parse(v.Access, v.Default)
}

// readXattr reads the attr xattr of fd at the size a prior probe
// reported. sz must be positive.
func readXattr(ctx context.Context, fd int, attr string, sz int) ([]byte, error) {
	buf := make([]byte, sz)
	n, err := sysx.Fgetxattr(ctx, fd, attr, buf)
	if err != nil {
		return nil, fmt.Errorf("read xattr %s: %w", attr, err)
	}
	return buf[:n], nil
}

// FGet reads the ACL of fd, returning the model the filesystem
// actually stores.
func FGet(ctx context.Context, fd int) (Value, error) {
	sz, err := sysx.Fgetxattr(ctx, fd, NFS4Xattr, nil)
	switch {
	case err == nil:
		if sz == 0 {
			return &NFS4Value{Data: []byte{}}, nil
		}
		data, err := readXattr(ctx, fd, NFS4Xattr, sz)
		if err != nil {
			return nil, err
		}
		return &NFS4Value{Data: data}, nil

	case err == unix.ENODATA:
		// NFS4 filesystem, ACL present but empty.
		return &NFS4Value{Data: []byte{}}, nil

	case err != unix.EOPNOTSUPP:
		return nil, fmt.Errorf("probe xattr %s: %w", NFS4Xattr, err)
	}

	// EOPNOTSUPP: not NFS4, try the POSIX pair.
	value := &PosixValue{Access: []byte{}}

	sz, err = sysx.Fgetxattr(ctx, fd, PosixAccessXattr, nil)
	switch {
	case err == nil:
		if sz > 0 {
			value.Access, err = readXattr(ctx, fd, PosixAccessXattr, sz)
			if err != nil {
				return nil, err
			}
		}
	case err == unix.ENODATA:
		// Absent access xattr: trivial ACL.
	case err == unix.EOPNOTSUPP:
		return nil, fmt.Errorf("ACLs are not supported on this filesystem: %w", err)
	default:
		return nil, fmt.Errorf("probe xattr %s: %w", PosixAccessXattr, err)
	}

	dsz, err := sysx.Fgetxattr(ctx, fd, PosixDefaultXattr, nil)
	switch {
	case err == nil:
		if dsz == 0 {
			value.Default = []byte{}
		} else {
			value.Default, err = readXattr(ctx, fd, PosixDefaultXattr, dsz)
			if err != nil {
				return nil, err
			}
		}
	case err == unix.ENODATA:
		// No default ACL.
	default:
		return nil, fmt.Errorf("probe xattr %s: %w", PosixDefaultXattr, err)
	}

	return value, nil
}

// FSetNFS4Bytes writes a raw NFSv4 ACL payload. No validation is
// applied; use nfs4.Validate first when the payload is untrusted.
func FSetNFS4Bytes(ctx context.Context, fd int, data []byte) error {
	if err := sysx.Fsetxattr(ctx, fd, NFS4Xattr, data, 0); err != nil {
		return fmt.Errorf("set xattr %s: %w", NFS4Xattr, err)
	}
	return nil
}

// FSetPosixBytes writes the raw POSIX.1e pair. A nil def removes the
// default xattr; its absence is not an error.
func FSetPosixBytes(ctx context.Context, fd int, access, def []byte) error {
	if err := sysx.Fsetxattr(ctx, fd, PosixAccessXattr, access, 0); err != nil {
		return fmt.Errorf("set xattr %s: %w", PosixAccessXattr, err)
	}

	if def != nil {
		if err := sysx.Fsetxattr(ctx, fd, PosixDefaultXattr, def, 0); err != nil {
			return fmt.Errorf("set xattr %s: %w", PosixDefaultXattr, err)
		}
		return nil
	}

	err := sysx.Fremovexattr(ctx, fd, PosixDefaultXattr)
	if err != nil && err != unix.ENODATA {
		return fmt.Errorf("remove xattr %s: %w", PosixDefaultXattr, err)
	}
	return nil
}

// FSet writes an ACL value back to fd, dispatching on its model.
func FSet(ctx context.Context, fd int, v Value) error {
	switch val := v.(type) {
	case *NFS4Value:
		return FSetNFS4Bytes(ctx, fd, val.Data)
	case *PosixValue:
		return FSetPosixBytes(ctx, fd, val.Access, val.Default)
	default:
		return fmt.Errorf("unsupported ACL value type %T", v)
	}
}

// FRemove strips the ACL from fd. The filesystem model is probed the
// same way FGet does it; ENODATA on any individual remove is ignored
// because the goal state is already reached.
func FRemove(ctx context.Context, fd int) error {
	_, err := sysx.Fgetxattr(ctx, fd, NFS4Xattr, nil)
	switch {
	case err == nil, err == unix.ENODATA:
		rerr := sysx.Fremovexattr(ctx, fd, NFS4Xattr)
		if rerr != nil && rerr != unix.ENODATA {
			return fmt.Errorf("remove xattr %s: %w", NFS4Xattr, rerr)
		}
		return nil

	case err != unix.EOPNOTSUPP:
		return fmt.Errorf("probe xattr %s: %w", NFS4Xattr, err)
	}

	if err := sysx.Fremovexattr(ctx, fd, PosixAccessXattr); err != nil && err != unix.ENODATA {
		return fmt.Errorf("remove xattr %s: %w", PosixAccessXattr, err)
	}
	if err := sysx.Fremovexattr(ctx, fd, PosixDefaultXattr); err != nil && err != unix.ENODATA {
		return fmt.Errorf("remove xattr %s: %w", PosixDefaultXattr, err)
	}
	return nil
}
