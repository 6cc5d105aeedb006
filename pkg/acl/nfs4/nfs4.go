// Package nfs4 implements the NFSv4 ACL carried by ZFS in the
// system.nfs4_acl_xdr extended attribute.
//
// Wire format (all words big-endian XDR):
//
//	uint32  acl_flags;
//	uint32  n_aces;
//	struct {
//	    uint32 type;         // ALLOW/DENY/AUDIT/ALARM
//	    uint32 flags;        // inheritance and audit bits
//	    uint32 iflag;        // 0 = named principal, 1 = special
//	    uint32 access_mask;
//	    uint32 who;          // uid/gid when named, who-type when special
//	} aces[n_aces];
package nfs4

import "sort"

// ACE types.
const (
	AceAllow = 0
	AceDeny  = 1
	AceAudit = 2
	AceAlarm = 3
)

// WhoType identifies the principal class of an ACE.
type WhoType uint32

// Who kinds. Named principals carry a uid or gid; the rest are the
// special NFSv4 principals OWNER@, GROUP@ and EVERYONE@.
const (
	WhoNamed    WhoType = 0
	WhoOwner    WhoType = 1
	WhoGroup    WhoType = 2
	WhoEveryone WhoType = 3
)

// Access mask bits.
const (
	PermReadData        = 0x00000001
	PermWriteData       = 0x00000002
	PermAppendData      = 0x00000004
	PermReadNamedAttrs  = 0x00000008
	PermWriteNamedAttrs = 0x00000010
	PermExecute         = 0x00000020
	PermDeleteChild     = 0x00000040
	PermReadAttributes  = 0x00000080
	PermWriteAttributes = 0x00000100
	PermDelete          = 0x00010000
	PermReadACL         = 0x00020000
	PermWriteACL        = 0x00040000
	PermWriteOwner      = 0x00080000
	PermSynchronize     = 0x00100000
)

// ACE flag bits.
const (
	FlagFileInherit        = 0x00000001
	FlagDirectoryInherit   = 0x00000002
	FlagNoPropagateInherit = 0x00000004
	FlagInheritOnly        = 0x00000008
	FlagSuccessfulAccess   = 0x00000010
	FlagFailedAccess       = 0x00000020
	FlagIdentifierGroup    = 0x00000040
	FlagInherited          = 0x00000080

	// FlagInheritMask covers every bit that controls inheritance.
	FlagInheritMask = FlagFileInherit | FlagDirectoryInherit |
		FlagNoPropagateInherit | FlagInheritOnly
)

// ACL-level flag bits from the XDR header. The upper two are local
// annotations, not part of the NFSv4 protocol.
const (
	ACLAutoInherit = 0x00000001
	ACLProtected   = 0x00000002
	ACLDefaulted   = 0x00000004
	ACLIsTrivial   = 0x00010000
	ACLIsDir       = 0x00020000
)

const (
	headerSize = 8
	aceSize    = 20

	// MaxACECount bounds decoding so a corrupt header cannot drive a
	// huge allocation.
	MaxACECount = 1024
)

// ACE is one access control entry.
//
// Invariant: WhoType == WhoNamed implies WhoID is a concrete uid or
// gid; any other WhoType implies WhoID == -1.
type ACE struct {
	Type       uint32
	Flags      uint32
	AccessMask uint32
	WhoType    WhoType
	WhoID      int64
}

// IsInherited reports whether the ACE was propagated from a parent.
// This is the INHERITED marker bit, distinct from FILE_INHERIT and
// DIRECTORY_INHERIT which control propagation to children.
func (a ACE) IsInherited() bool {
	return a.Flags&FlagInherited != 0
}

// sortKey is the canonical DACL ordering bucket: explicit-deny,
// explicit-allow, inherited-deny, inherited-allow.
func (a ACE) sortKey() int {
	key := 0
	if a.IsInherited() {
		key += 2
	}
	if a.Type == AceAllow {
		key++
	}
	return key
}

// ACL is a decoded NFSv4 ACL.
type ACL struct {
	Flags uint32
	ACEs  []ACE
}

// FromACEs builds an ACL in canonical order. The sort is stable so the
// relative order of ACEs within a bucket is preserved, matching what
// Windows clients expect of a canonical DACL.
func FromACEs(aces []ACE, flags uint32) *ACL {
	sorted := make([]ACE, len(aces))
	copy(sorted, aces)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].sortKey() < sorted[j].sortKey()
	})

	return &ACL{Flags: flags, ACEs: sorted}
}

// Trivial reports whether the ACL is mode-equivalent, as signalled by
// the server in the header flags.
func (a *ACL) Trivial() bool {
	return a.Flags&ACLIsTrivial != 0
}

// IsDir reports whether the header marks the ACL as belonging to a
// directory.
func (a *ACL) IsDir() bool {
	return a.Flags&ACLIsDir != 0
}
