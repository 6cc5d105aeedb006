package main

import (
	"fmt"
	"os/user"
	"strconv"
	"strings"

	"github.com/truenas/osfs/pkg/acl/nfs4"
	"github.com/truenas/osfs/pkg/acl/posix1e"
)

// ============================================================================
// ACL text rendering and parsing
// ============================================================================

// Per-bit permission and flag characters, in display order. A bit that
// is clear renders as '-' so every entry has a fixed width.
var nfs4PermChars = []struct {
	bit uint32
	ch  byte
}{
	{nfs4.PermReadData, 'r'},
	{nfs4.PermWriteData, 'w'},
	{nfs4.PermAppendData, 'a'},
	{nfs4.PermReadNamedAttrs, 'R'},
	{nfs4.PermWriteNamedAttrs, 'W'},
	{nfs4.PermExecute, 'x'},
	{nfs4.PermDeleteChild, 'D'},
	{nfs4.PermDelete, 'd'},
	{nfs4.PermReadAttributes, 'p'},
	{nfs4.PermWriteAttributes, 'P'},
	{nfs4.PermReadACL, 'c'},
	{nfs4.PermWriteACL, 'C'},
	{nfs4.PermWriteOwner, 'o'},
	{nfs4.PermSynchronize, 's'},
}

var nfs4FlagChars = []struct {
	bit uint32
	ch  byte
}{
	{nfs4.FlagFileInherit, 'f'},
	{nfs4.FlagDirectoryInherit, 'd'},
	{nfs4.FlagNoPropagateInherit, 'n'},
	{nfs4.FlagInheritOnly, 'i'},
	{nfs4.FlagSuccessfulAccess, 'S'},
	{nfs4.FlagFailedAccess, 'F'},
	{nfs4.FlagIdentifierGroup, 'g'},
	{nfs4.FlagInherited, 'I'},
}

func nfs4FullSet() uint32 {
	var m uint32
	for _, pc := range nfs4PermChars {
		m |= pc.bit
	}
	return m
}

// Named permission sets accepted in place of permission characters.
var nfs4PermSets = map[string]uint32{
	"full_set":   nfs4FullSet(),
	"modify_set": nfs4FullSet() &^ (nfs4.PermWriteACL | nfs4.PermWriteOwner),
	"read_set": nfs4.PermReadData | nfs4.PermReadNamedAttrs |
		nfs4.PermReadAttributes | nfs4.PermReadACL,
	"write_set": nfs4.PermWriteData | nfs4.PermAppendData |
		nfs4.PermWriteNamedAttrs | nfs4.PermWriteAttributes,
}

var nfs4TypeNames = map[uint32]string{
	nfs4.AceAllow: "allow",
	nfs4.AceDeny:  "deny",
	nfs4.AceAudit: "audit",
	nfs4.AceAlarm: "alarm",
}

func bitString(val uint32, table []struct {
	bit uint32
	ch  byte
}) string {
	out := make([]byte, len(table))
	for i, e := range table {
		if val&e.bit != 0 {
			out[i] = e.ch
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}

// ----------------------------------------------------------------------------
// uid/gid name resolution
// ----------------------------------------------------------------------------

func nameOfUID(uid int64, numeric bool) string {
	if !numeric {
		if u, err := user.LookupId(strconv.FormatInt(uid, 10)); err == nil {
			return u.Username
		}
	}
	return strconv.FormatInt(uid, 10)
}

func nameOfGID(gid int64, numeric bool) string {
	if !numeric {
		if g, err := user.LookupGroupId(strconv.FormatInt(gid, 10)); err == nil {
			return g.Name
		}
	}
	return strconv.FormatInt(gid, 10)
}

func resolveUID(s string) (int64, error) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	u, err := user.Lookup(s)
	if err != nil {
		return 0, fmt.Errorf("unknown user: %q", s)
	}
	return strconv.ParseInt(u.Uid, 10, 64)
}

func resolveGID(s string) (int64, error) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	g, err := user.LookupGroup(s)
	if err != nil {
		return 0, fmt.Errorf("unknown group: %q", s)
	}
	return strconv.ParseInt(g.Gid, 10, 64)
}

// ----------------------------------------------------------------------------
// NFSv4 rendering
// ----------------------------------------------------------------------------

func nfs4WhoString(ace nfs4.ACE, numeric bool) string {
	switch ace.WhoType {
	case nfs4.WhoOwner:
		return "owner@"
	case nfs4.WhoGroup:
		return "group@"
	case nfs4.WhoEveryone:
		return "everyone@"
	}
	if ace.Flags&nfs4.FlagIdentifierGroup != 0 {
		return "group:" + nameOfGID(ace.WhoID, numeric)
	}
	return "user:" + nameOfUID(ace.WhoID, numeric)
}

// formatNFS4ACE renders one entry as who:perms:flags:type.
func formatNFS4ACE(ace nfs4.ACE, numeric bool) string {
	typeName, ok := nfs4TypeNames[ace.Type]
	if !ok {
		typeName = strconv.FormatUint(uint64(ace.Type), 10)
	}
	return fmt.Sprintf("%s:%s:%s:%s",
		nfs4WhoString(ace, numeric),
		bitString(ace.AccessMask, nfs4PermChars),
		bitString(ace.Flags, nfs4FlagChars),
		typeName)
}

// ----------------------------------------------------------------------------
// NFSv4 parsing
// ----------------------------------------------------------------------------

func parseNFS4Perms(s string) (uint32, error) {
	if m, ok := nfs4PermSets[s]; ok {
		return m, nil
	}
	var mask uint32
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '-' {
			continue
		}
		found := false
		for _, pc := range nfs4PermChars {
			if pc.ch == ch {
				mask |= pc.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("invalid NFS4 perm char: %q", string(ch))
		}
	}
	return mask, nil
}

func parseNFS4Flags(s string) (uint32, error) {
	var flags uint32
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '-' {
			continue
		}
		found := false
		for _, fc := range nfs4FlagChars {
			if fc.ch == ch {
				flags |= fc.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("invalid NFS4 flag char: %q", string(ch))
		}
	}
	return flags, nil
}

// parseNFS4ACE parses one who:perms:flags:type entry. Named principals
// carry their qualifier as a second colon field: user:alice:rw...,
// group:staff:r....
func parseNFS4ACE(s string) (nfs4.ACE, error) {
	var whoStr, rest string

	switch {
	case strings.HasPrefix(s, "owner@:"),
		strings.HasPrefix(s, "group@:"),
		strings.HasPrefix(s, "everyone@:"):
		at := strings.Index(s, ":")
		whoStr, rest = s[:at], s[at+1:]
	case strings.HasPrefix(s, "user:"), strings.HasPrefix(s, "group:"):
		parts := strings.SplitN(s, ":", 5)
		if len(parts) < 5 {
			return nfs4.ACE{}, fmt.Errorf("invalid NFS4 ACE: %q", s)
		}
		whoStr = parts[0] + ":" + parts[1]
		rest = strings.Join(parts[2:], ":")
	default:
		return nfs4.ACE{}, fmt.Errorf("invalid NFS4 ACE: %q", s)
	}

	rparts := strings.Split(rest, ":")
	if len(rparts) != 3 {
		return nfs4.ACE{}, fmt.Errorf("invalid NFS4 ACE: %q", s)
	}

	perms, err := parseNFS4Perms(rparts[0])
	if err != nil {
		return nfs4.ACE{}, err
	}
	flags, err := parseNFS4Flags(rparts[1])
	if err != nil {
		return nfs4.ACE{}, err
	}

	var aceType uint32
	found := false
	for t, name := range nfs4TypeNames {
		if name == rparts[2] {
			aceType, found = t, true
			break
		}
	}
	if !found {
		return nfs4.ACE{}, fmt.Errorf("invalid NFS4 ACE type: %q", rparts[2])
	}

	ace := nfs4.ACE{Type: aceType, Flags: flags, AccessMask: perms, WhoID: -1}

	switch {
	case whoStr == "owner@":
		ace.WhoType = nfs4.WhoOwner
	case whoStr == "group@":
		ace.WhoType = nfs4.WhoGroup
	case whoStr == "everyone@":
		ace.WhoType = nfs4.WhoEveryone
	case strings.HasPrefix(whoStr, "user:"):
		uid, err := resolveUID(whoStr[5:])
		if err != nil {
			return nfs4.ACE{}, err
		}
		ace.WhoType, ace.WhoID = nfs4.WhoNamed, uid
	default:
		gid, err := resolveGID(whoStr[6:])
		if err != nil {
			return nfs4.ACE{}, err
		}
		ace.WhoType, ace.WhoID = nfs4.WhoNamed, gid
		ace.Flags |= nfs4.FlagIdentifierGroup
	}

	return ace, nil
}

// ----------------------------------------------------------------------------
// POSIX rendering and parsing
// ----------------------------------------------------------------------------

var posixPermChars = []struct {
	bit uint16
	ch  byte
}{
	{posix1e.PermRead, 'r'},
	{posix1e.PermWrite, 'w'},
	{posix1e.PermExecute, 'x'},
}

func posixPermString(perms uint16) string {
	out := make([]byte, len(posixPermChars))
	for i, e := range posixPermChars {
		if perms&e.bit != 0 {
			out[i] = e.ch
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}

func posixTagPrefix(tag posix1e.Tag) string {
	switch tag {
	case posix1e.TagUserObj, posix1e.TagUser:
		return "user"
	case posix1e.TagGroupObj, posix1e.TagGroup:
		return "group"
	case posix1e.TagMask:
		return "mask"
	default:
		return "other"
	}
}

func posixQualifier(ace posix1e.ACE, numeric bool) string {
	switch ace.Tag {
	case posix1e.TagUser:
		return nameOfUID(ace.ID, numeric)
	case posix1e.TagGroup:
		return nameOfGID(ace.ID, numeric)
	default:
		return ""
	}
}

// formatPosixACE renders one entry as [default:]tag:qualifier:perms.
func formatPosixACE(ace posix1e.ACE, numeric bool) string {
	line := fmt.Sprintf("%s:%s:%s",
		posixTagPrefix(ace.Tag),
		posixQualifier(ace, numeric),
		posixPermString(ace.Perms))
	if ace.Default {
		return "default:" + line
	}
	return line
}

func parsePosixPerms(s string) (uint16, error) {
	var perms uint16
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '-' {
			continue
		}
		found := false
		for _, pc := range posixPermChars {
			if pc.ch == ch {
				perms |= pc.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("invalid POSIX perm char: %q", string(ch))
		}
	}
	return perms, nil
}

// parsePosixACE parses one [default:]tag:qualifier:perms entry. An
// empty qualifier selects the *_OBJ variant of user and group tags.
func parsePosixACE(s string) (posix1e.ACE, error) {
	orig := s
	isDefault := strings.HasPrefix(s, "default:")
	if isDefault {
		s = s[len("default:"):]
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return posix1e.ACE{}, fmt.Errorf("invalid POSIX ACE: %q", orig)
	}
	tagStr, qualStr := parts[0], parts[1]

	perms, err := parsePosixPerms(parts[2])
	if err != nil {
		return posix1e.ACE{}, err
	}

	ace := posix1e.ACE{Perms: perms, ID: -1, Default: isDefault}

	switch tagStr {
	case "user":
		if qualStr == "" {
			ace.Tag = posix1e.TagUserObj
		} else {
			ace.Tag = posix1e.TagUser
			if ace.ID, err = resolveUID(qualStr); err != nil {
				return posix1e.ACE{}, err
			}
		}
	case "group":
		if qualStr == "" {
			ace.Tag = posix1e.TagGroupObj
		} else {
			ace.Tag = posix1e.TagGroup
			if ace.ID, err = resolveGID(qualStr); err != nil {
				return posix1e.ACE{}, err
			}
		}
	case "mask":
		ace.Tag = posix1e.TagMask
	case "other":
		ace.Tag = posix1e.TagOther
	default:
		return posix1e.ACE{}, fmt.Errorf("invalid POSIX tag: %q", tagStr)
	}

	return ace, nil
}

// splitEntries breaks a comma- or newline-separated entry list into
// individual entries, dropping blanks and comment lines.
func splitEntries(text string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(text, ",", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
