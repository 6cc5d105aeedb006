package nfs4

import "errors"

// ErrNoInheritableACEs is returned when inheritance synthesis finds
// nothing to propagate to the child.
var ErrNoInheritableACEs = errors.New("parent ACL has no inheritable ACEs for this object type")

// inheritable reports whether an ACE with these flags propagates to a
// child of the given kind: directories match FILE_INHERIT or
// DIRECTORY_INHERIT, files match only FILE_INHERIT.
func inheritable(flags uint32, isDir bool) bool {
	if isDir {
		return flags&(FlagFileInherit|FlagDirectoryInherit) != 0
	}
	return flags&FlagFileInherit != 0
}

// Inherited synthesizes the ACL a newly created child object receives
// from this (parent directory) ACL.
//
// File child: every ACE with FILE_INHERIT is copied with all inherit
// bits cleared and INHERITED set.
//
// Directory child: every ACE with FILE_INHERIT or DIRECTORY_INHERIT is
// copied. With NO_PROPAGATE_INHERIT the inherit bits are cleared
// (propagation stops here); otherwise INHERIT_ONLY is cleared so the
// ACE applies to the new directory while FILE_INHERIT and
// DIRECTORY_INHERIT survive for further propagation. INHERITED is set
// either way.
func (a *ACL) Inherited(isDir bool) (*ACL, error) {
	var out []ACE

	for _, ace := range a.ACEs {
		if !inheritable(ace.Flags, isDir) {
			continue
		}

		child := ace
		if isDir && ace.Flags&FlagNoPropagateInherit == 0 {
			child.Flags = (ace.Flags &^ FlagInheritOnly) | FlagInherited
		} else {
			child.Flags = (ace.Flags &^ FlagInheritMask) | FlagInherited
		}

		out = append(out, child)
	}

	if len(out) == 0 {
		return nil, ErrNoInheritableACEs
	}

	var flags uint32
	if isDir {
		flags = ACLIsDir
	}

	return FromACEs(out, flags), nil
}
