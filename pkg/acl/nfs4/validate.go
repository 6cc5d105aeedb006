package nfs4

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/truenas/osfs/pkg/statx"
)

// propagateMask covers the flags only meaningful on directory ACLs.
const propagateMask = FlagInheritMask

// Validate checks the structural validity rules of a raw ACL payload
// before it is handed to the kernel:
//
//  1. DENY is not permitted for the special principals.
//  2. INHERIT_ONLY requires FILE_INHERIT or DIRECTORY_INHERIT.
//  3. Propagation flags are only valid on directories.
//  4. A directory ACL must carry at least one inheritable ACE.
//
// fd identifies the target object; pass a negative fd to validate an
// ACL destined for a directory without an open descriptor.
func Validate(ctx context.Context, fd int, data []byte) error {
	if len(data) < headerSize {
		return nil
	}

	naces := binary.BigEndian.Uint32(data[4:8])

	var hasPropagate, hasInheritable bool
	for i := uint32(0); i < naces; i++ {
		if headerSize+int(i+1)*aceSize > len(data) {
			break
		}

		p := data[headerSize+int(i)*aceSize:]
		aceType := binary.BigEndian.Uint32(p[0:4])
		aceFlags := binary.BigEndian.Uint32(p[4:8])
		iflag := binary.BigEndian.Uint32(p[8:12])

		if aceType == AceDeny && iflag != 0 {
			return fmt.Errorf("DENY entries are not permitted for special principals (OWNER@, GROUP@, EVERYONE@)")
		}

		if aceFlags&FlagInheritOnly != 0 &&
			aceFlags&(FlagFileInherit|FlagDirectoryInherit) == 0 {
			return fmt.Errorf("INHERIT_ONLY requires FILE_INHERIT or DIRECTORY_INHERIT to also be set")
		}

		if aceFlags&propagateMask != 0 {
			hasPropagate = true
		}
		if aceFlags&(FlagFileInherit|FlagDirectoryInherit) != 0 {
			hasInheritable = true
		}
	}

	isDir := true
	if fd >= 0 {
		rec, err := statx.FStat(ctx, fd, statx.Type)
		if err != nil {
			return err
		}
		isDir = rec.IsDir()
	}

	if hasPropagate && !isDir {
		return fmt.Errorf("FILE_INHERIT/DIRECTORY_INHERIT/NO_PROPAGATE_INHERIT/INHERIT_ONLY flags are only valid on directories")
	}
	if isDir && !hasInheritable {
		return fmt.Errorf("directory ACL must contain at least one ACE with FILE_INHERIT or DIRECTORY_INHERIT")
	}

	return nil
}
