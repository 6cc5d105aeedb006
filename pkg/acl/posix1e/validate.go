package posix1e

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/truenas/osfs/pkg/statx"
)

// ValidateBlob checks one raw xattr payload for POSIX.1e conformance:
// exactly one USER_OBJ, GROUP_OBJ and OTHER entry, concrete ids on
// named USER/GROUP entries, and exactly one MASK entry if and only if
// at most one is present and named entries require it. label names the
// blob ("access" or "default") in error messages.
func ValidateBlob(data []byte, label string) error {
	if len(data) < headerSize {
		return fmt.Errorf("%s ACL too short", label)
	}

	version := binary.LittleEndian.Uint32(data[0:4])
	if version != Version {
		return fmt.Errorf("%s ACL has unexpected version %d", label, version)
	}

	naces := (len(data) - headerSize) / aceSize

	var nUserObj, nGroupObj, nOther, nMask, nNamed int
	for i := 0; i < naces; i++ {
		p := data[headerSize+i*aceSize:]
		tag := Tag(binary.LittleEndian.Uint16(p[0:2]))
		xid := binary.LittleEndian.Uint32(p[4:8])

		switch tag {
		case TagUserObj:
			nUserObj++
		case TagUser:
			if xid == SpecialID {
				return fmt.Errorf("%s ACL: named USER entry has no uid", label)
			}
			nNamed++
		case TagGroupObj:
			nGroupObj++
		case TagGroup:
			if xid == SpecialID {
				return fmt.Errorf("%s ACL: named GROUP entry has no gid", label)
			}
			nNamed++
		case TagMask:
			nMask++
		case TagOther:
			nOther++
		default:
			return fmt.Errorf("%s ACL: unknown tag 0x%04x", label, uint16(tag))
		}
	}

	if nUserObj != 1 {
		return fmt.Errorf("%s ACL must have exactly one USER_OBJ entry", label)
	}
	if nGroupObj != 1 {
		return fmt.Errorf("%s ACL must have exactly one GROUP_OBJ entry", label)
	}
	if nOther != 1 {
		return fmt.Errorf("%s ACL must have exactly one OTHER entry", label)
	}
	if nNamed > 0 && nMask != 1 {
		return fmt.Errorf("%s ACL must have exactly one MASK entry when named USER or GROUP entries are present", label)
	}
	if nMask > 1 {
		return fmt.Errorf("%s ACL has more than one MASK entry", label)
	}

	return nil
}

// Validate checks the xattr pair against the target object. The access
// blob is always validated; a non-nil default blob additionally
// requires fd to be a directory.
func Validate(ctx context.Context, fd int, access, def []byte) error {
	if err := ValidateBlob(access, "access"); err != nil {
		return err
	}

	if def == nil {
		return nil
	}

	rec, err := statx.FStat(ctx, fd, statx.Type)
	if err != nil {
		return err
	}
	if !rec.IsDir() {
		return fmt.Errorf("default ACL is only valid on directories")
	}

	return ValidateBlob(def, "default")
}
