package nfs4

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ============================================================================
// XDR Encoding/Decoding
// ============================================================================

// Encode serializes the ACL into the xattr wire format. ACEs are
// written in the order they are held; use FromACEs first when canonical
// order matters.
func (a *ACL) Encode() ([]byte, error) {
	if len(a.ACEs) > MaxACECount {
		return nil, fmt.Errorf("ACL has %d ACEs, maximum is %d", len(a.ACEs), MaxACECount)
	}

	buf := new(bytes.Buffer)
	buf.Grow(headerSize + len(a.ACEs)*aceSize)

	if err := binary.Write(buf, binary.BigEndian, a.Flags); err != nil {
		return nil, fmt.Errorf("encode acl_flags: %w", err)
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(len(a.ACEs))); err != nil {
		return nil, fmt.Errorf("encode n_aces: %w", err)
	}

	for i, ace := range a.ACEs {
		var iflag, who uint32
		if ace.WhoType == WhoNamed {
			if ace.WhoID < 0 {
				return nil, fmt.Errorf("ACE %d: named principal requires a concrete id", i)
			}
			who = uint32(ace.WhoID)
		} else {
			iflag = 1
			who = uint32(ace.WhoType)
		}

		words := [5]uint32{ace.Type, ace.Flags, iflag, ace.AccessMask, who}
		if err := binary.Write(buf, binary.BigEndian, words[:]); err != nil {
			return nil, fmt.Errorf("encode ACE %d: %w", i, err)
		}
	}

	return buf.Bytes(), nil
}

// Parse decodes an xattr payload into an ACL.
//
// A payload shorter than the header is rejected, as is one whose ACE
// count does not fit the remaining bytes.
func Parse(data []byte) (*ACL, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("NFS4 ACL data too short: %d bytes", len(data))
	}

	flags := binary.BigEndian.Uint32(data[0:4])
	naces := binary.BigEndian.Uint32(data[4:8])

	if naces > MaxACECount {
		return nil, fmt.Errorf("NFS4 ACL ace count %d exceeds maximum %d", naces, MaxACECount)
	}
	if headerSize+int(naces)*aceSize > len(data) {
		return nil, fmt.Errorf("NFS4 ACL data truncated: %d ACEs in %d bytes", naces, len(data))
	}

	aces := make([]ACE, naces)
	for i := range aces {
		p := data[headerSize+i*aceSize:]

		iflag := binary.BigEndian.Uint32(p[8:12])
		who := binary.BigEndian.Uint32(p[16:20])

		ace := ACE{
			Type:       binary.BigEndian.Uint32(p[0:4]),
			Flags:      binary.BigEndian.Uint32(p[4:8]),
			AccessMask: binary.BigEndian.Uint32(p[12:16]),
		}
		if iflag != 0 {
			ace.WhoType = WhoType(who)
			ace.WhoID = -1
		} else {
			ace.WhoType = WhoNamed
			ace.WhoID = int64(who)
		}

		aces[i] = ace
	}

	return &ACL{Flags: flags, ACEs: aces}, nil
}

// TrivialBytes reports whether a raw xattr payload carries the trivial
// marker. Payloads too short to hold a header are treated as trivial.
func TrivialBytes(data []byte) bool {
	if len(data) < headerSize {
		return true
	}
	return binary.BigEndian.Uint32(data[0:4])&ACLIsTrivial != 0
}
