// Package posix1e implements the POSIX.1e draft ACL stored in the
// system.posix_acl_access and system.posix_acl_default extended
// attributes.
//
// Each xattr is little-endian: a u32 version header (always 2)
// followed by 8-byte entries (tag u16, perm u16, id u32). The id field
// is 0xFFFFFFFF for the tags that do not name a user or group.
package posix1e

import "sort"

// Tag identifies the entry kind.
type Tag uint16

const (
	TagUserObj  Tag = 0x01
	TagUser     Tag = 0x02
	TagGroupObj Tag = 0x04
	TagGroup    Tag = 0x08
	TagMask     Tag = 0x10
	TagOther    Tag = 0x20
)

// Permission bits.
const (
	PermRead    uint16 = 4
	PermWrite   uint16 = 2
	PermExecute uint16 = 1
)

const (
	// Version is the only on-disk ACL version Linux has ever shipped.
	Version = 2

	// SpecialID fills the id field of entries that do not carry one.
	SpecialID = 0xFFFFFFFF

	headerSize = 4
	aceSize    = 8
)

func (t Tag) String() string {
	switch t {
	case TagUserObj:
		return "USER_OBJ"
	case TagUser:
		return "USER"
	case TagGroupObj:
		return "GROUP_OBJ"
	case TagGroup:
		return "GROUP"
	case TagMask:
		return "MASK"
	case TagOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// special reports whether the tag's id field is always SpecialID.
func (t Tag) special() bool {
	switch t {
	case TagUserObj, TagGroupObj, TagMask, TagOther:
		return true
	default:
		return false
	}
}

// ACE is one POSIX.1e entry. ID is -1 for the special tags. Default
// marks entries belonging to the default (inheritance) ACL rather than
// the access ACL.
type ACE struct {
	Tag     Tag
	Perms   uint16
	ID      int64
	Default bool
}

// ACL is a decoded POSIX.1e ACL pair. A nil Default means the default
// xattr is absent, which is distinct from an empty one only in that
// neither is ever written back.
type ACL struct {
	Access  []ACE
	Default []ACE
}

// sortACEs orders entries by (tag, id) ascending, the canonical order
// the kernel accepts: USER_OBJ, USER by uid, GROUP_OBJ, GROUP by gid,
// MASK, OTHER.
func sortACEs(aces []ACE) {
	sort.SliceStable(aces, func(i, j int) bool {
		if aces[i].Tag != aces[j].Tag {
			return aces[i].Tag < aces[j].Tag
		}
		return aces[i].ID < aces[j].ID
	})
}

// FromACEs builds an ACL from a flat entry list. Entries are split by
// their Default flag and each half is sorted canonically. When no
// entry carries the Default flag the result has no default ACL.
func FromACEs(aces []ACE) *ACL {
	var access, def []ACE
	for _, ace := range aces {
		if ace.Default {
			def = append(def, ace)
		} else {
			access = append(access, ace)
		}
	}

	sortACEs(access)
	sortACEs(def)

	return &ACL{Access: access, Default: def}
}

// Trivial reports whether the ACL carries no information beyond the
// mode bits: no access entries and no default ACL. Note this tracks
// xattr presence, not reducibility of a populated ACL to a mode.
func (a *ACL) Trivial() bool {
	return len(a.Access) == 0 && a.Default == nil
}
