package posix1e

import "errors"

var (
	// ErrTrivialACL is returned when inheritance is requested from an
	// ACL with nothing to inherit at all.
	ErrTrivialACL = errors.New("cannot generate inherited ACL from trivial ACL")

	// ErrNoDefaultACL is returned when the parent has no default ACL,
	// which is the only source of POSIX inheritance.
	ErrNoDefaultACL = errors.New("cannot generate inherited ACL: no default ACL")
)

func retagged(aces []ACE, def bool) []ACE {
	out := make([]ACE, len(aces))
	for i, ace := range aces {
		out[i] = ace
		out[i].Default = def
	}
	return out
}

// Inherited synthesizes the ACL a newly created child receives from
// this (parent directory) ACL. POSIX inheritance comes entirely from
// the default ACL: the child's access ACL is the parent's default, and
// a directory child also re-receives it as its own default so
// propagation continues.
func (a *ACL) Inherited(isDir bool) (*ACL, error) {
	if a.Trivial() {
		return nil, ErrTrivialACL
	}
	if a.Default == nil {
		return nil, ErrNoDefaultACL
	}

	child := &ACL{Access: retagged(a.Default, false)}
	if isDir {
		child.Default = retagged(a.Default, true)
	}

	return child, nil
}
