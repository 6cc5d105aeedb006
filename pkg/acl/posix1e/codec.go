package posix1e

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ============================================================================
// Little-endian xattr Encoding/Decoding
// ============================================================================

func encodeACEs(aces []ACE) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(headerSize + len(aces)*aceSize)

	if err := binary.Write(buf, binary.LittleEndian, uint32(Version)); err != nil {
		return nil, fmt.Errorf("encode version: %w", err)
	}

	for i, ace := range aces {
		xid := uint32(SpecialID)
		if !ace.Tag.special() {
			if ace.ID < 0 {
				return nil, fmt.Errorf("entry %d: named %s entry requires a concrete id", i, ace.Tag)
			}
			xid = uint32(ace.ID)
		}

		if err := binary.Write(buf, binary.LittleEndian, uint16(ace.Tag)); err != nil {
			return nil, fmt.Errorf("encode entry %d tag: %w", i, err)
		}
		if err := binary.Write(buf, binary.LittleEndian, ace.Perms); err != nil {
			return nil, fmt.Errorf("encode entry %d perm: %w", i, err)
		}
		if err := binary.Write(buf, binary.LittleEndian, xid); err != nil {
			return nil, fmt.Errorf("encode entry %d id: %w", i, err)
		}
	}

	return buf.Bytes(), nil
}

// AccessBytes serializes the access ACL xattr payload.
func (a *ACL) AccessBytes() ([]byte, error) {
	return encodeACEs(a.Access)
}

// DefaultBytes serializes the default ACL xattr payload, or returns
// nil when the ACL has no default half.
func (a *ACL) DefaultBytes() ([]byte, error) {
	if a.Default == nil {
		return nil, nil
	}
	return encodeACEs(a.Default)
}

func parseACEs(data []byte, isDefault bool) ([]ACE, error) {
	if len(data) == 0 {
		return []ACE{}, nil
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("POSIX ACL data too short: %d bytes", len(data))
	}

	naces := (len(data) - headerSize) / aceSize
	aces := make([]ACE, naces)

	for i := range aces {
		p := data[headerSize+i*aceSize:]

		xid := binary.LittleEndian.Uint32(p[4:8])
		id := int64(-1)
		if xid != SpecialID {
			id = int64(xid)
		}

		aces[i] = ACE{
			Tag:     Tag(binary.LittleEndian.Uint16(p[0:2])),
			Perms:   binary.LittleEndian.Uint16(p[2:4]),
			ID:      id,
			Default: isDefault,
		}
	}

	return aces, nil
}

// Parse decodes the xattr pair into an ACL. access may be empty (no
// access xattr present); def may be nil (no default xattr present).
func Parse(access, def []byte) (*ACL, error) {
	acl := &ACL{}

	var err error
	acl.Access, err = parseACEs(access, false)
	if err != nil {
		return nil, fmt.Errorf("access ACL: %w", err)
	}

	if def != nil {
		acl.Default, err = parseACEs(def, true)
		if err != nil {
			return nil, fmt.Errorf("default ACL: %w", err)
		}
	}

	return acl, nil
}
