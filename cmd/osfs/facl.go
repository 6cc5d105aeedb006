package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/truenas/osfs/internal/sysx"
	"github.com/truenas/osfs/pkg/acl"
	"github.com/truenas/osfs/pkg/acl/nfs4"
	"github.com/truenas/osfs/pkg/acl/posix1e"
	"github.com/truenas/osfs/pkg/config"
	"github.com/truenas/osfs/pkg/fsiter"
	"github.com/truenas/osfs/pkg/statx"
)

// ============================================================================
// getfacl
// ============================================================================

type getfaclOptions struct {
	numeric  bool
	quiet    bool
	skipBase bool
}

// cmdGetfacl prints the ACL of each path, recursing with -R without
// following symlinks or crossing mounts.
func cmdGetfacl(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("getfacl", flag.ExitOnError)
	recursive := fs.Bool("R", false, "process directories recursively")
	numeric := fs.Bool("n", false, "display numeric uids/gids")
	quiet := fs.Bool("q", false, "omit comment headers")
	skipBase := fs.Bool("s", false, "skip files with only a trivial ACL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("at least one path is required")
	}

	opts := getfaclOptions{numeric: *numeric, quiet: *quiet, skipBase: *skipBase}

	for _, path := range fs.Args() {
		fd, err := openNoSymlinks(ctx, path)
		if err != nil {
			return err
		}

		rec, err := statx.FStat(ctx, fd, statx.BasicStats)
		if err != nil {
			sysx.Close(fd)
			return err
		}
		isDir := rec.IsDir()

		err = printACL(ctx, path, fd, rec, opts)
		sysx.Close(fd)
		if err != nil {
			return err
		}

		if !*recursive || !isDir {
			continue
		}

		if err := getfaclRecurse(ctx, path, opts); err != nil {
			return err
		}
	}

	return nil
}

func openNoSymlinks(ctx context.Context, path string) (int, error) {
	how := unix.OpenHow{
		Flags:   unix.O_RDONLY,
		Resolve: unix.RESOLVE_NO_SYMLINKS,
	}
	fd, err := sysx.Openat2(ctx, unix.AT_FDCWD, path, &how)
	if err != nil {
		return -1, fmt.Errorf("open %q: %w", path, err)
	}
	return fd, nil
}

func getfaclRecurse(ctx context.Context, root string, opts getfaclOptions) error {
	it, err := fsiter.New(ctx, fsiter.Options{Mountpoint: root})
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		entry, err := it.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		if entry.Kind == fsiter.KindSymlink {
			continue
		}

		full := filepath.Join(entry.Parent, entry.Name)
		if err := printACL(ctx, full, entry.Fd, entry.Stat, opts); err != nil {
			fmt.Fprintf(os.Stderr, "osfs getfacl: %s: %v\n", full, err)
		}
	}
}

// trivialPosixFromMode synthesizes the minimal three-entry ACL the
// mode bits imply, used when a file carries no access ACL xattr.
func trivialPosixFromMode(mode uint16) []posix1e.ACE {
	perm := func(bits uint16) uint16 {
		var p uint16
		if bits&4 != 0 {
			p |= posix1e.PermRead
		}
		if bits&2 != 0 {
			p |= posix1e.PermWrite
		}
		if bits&1 != 0 {
			p |= posix1e.PermExecute
		}
		return p
	}
	return []posix1e.ACE{
		{Tag: posix1e.TagUserObj, Perms: perm((mode >> 6) & 7), ID: -1},
		{Tag: posix1e.TagGroupObj, Perms: perm((mode >> 3) & 7), ID: -1},
		{Tag: posix1e.TagOther, Perms: perm(mode & 7), ID: -1},
	}
}

func printACL(ctx context.Context, path string, fd int, rec *statx.Record, opts getfaclOptions) error {
	v, err := acl.FGet(ctx, fd)
	if err != nil {
		return err
	}

	var lines []string

	switch val := v.(type) {
	case *acl.NFS4Value:
		a, err := val.ACL()
		if err != nil {
			return err
		}
		if opts.skipBase && a.Trivial() {
			return nil
		}
		for _, ace := range a.ACEs {
			lines = append(lines, formatNFS4ACE(ace, opts.numeric))
		}

	case *acl.PosixValue:
		a, err := val.ACL()
		if err != nil {
			return err
		}
		if opts.skipBase && a.Trivial() {
			return nil
		}
		access := a.Access
		if len(access) == 0 {
			access = trivialPosixFromMode(rec.Mode)
		}
		for _, ace := range access {
			lines = append(lines, formatPosixACE(ace, opts.numeric))
		}
		for _, ace := range a.Default {
			lines = append(lines, formatPosixACE(ace, opts.numeric))
		}

	default:
		return fmt.Errorf("unknown ACL value type %T", v)
	}

	if !opts.quiet {
		fmt.Printf("# file: %s\n", path)
		fmt.Printf("# owner: %s\n", nameOfUID(int64(rec.UID), opts.numeric))
		fmt.Printf("# group: %s\n", nameOfGID(int64(rec.GID), opts.numeric))
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	fmt.Println()

	return nil
}

// ============================================================================
// setfacl
// ============================================================================

// cmdSetfacl replaces, strips or trims the ACL of each path. The ACL
// model (NFSv4 or POSIX.1e) is detected from the filesystem, and the
// entry text is parsed accordingly.
func cmdSetfacl(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("setfacl", flag.ExitOnError)
	set := fs.String("s", "", "set the ACL to these entries, replacing the current one")
	strip := fs.Bool("b", false, "remove the ACL entirely")
	dropDefault := fs.Bool("k", false, "remove the default ACL (POSIX only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("at least one path is required")
	}
	if *set == "" && !*strip && !*dropDefault {
		return fmt.Errorf("one of -s, -b or -k is required")
	}

	for _, path := range fs.Args() {
		fd, err := openNoSymlinks(ctx, path)
		if err != nil {
			return err
		}
		err = setfaclOne(ctx, fd, *set, *strip, *dropDefault)
		sysx.Close(fd)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	return nil
}

func setfaclOne(ctx context.Context, fd int, set string, strip, dropDefault bool) error {
	if strip {
		return acl.FRemove(ctx, fd)
	}

	// Model detection comes from the filesystem, not the entry text:
	// an NFSv4 entry list against a POSIX filesystem is an error.
	current, err := acl.FGet(ctx, fd)
	if err != nil {
		return err
	}

	if dropDefault {
		pv, ok := current.(*acl.PosixValue)
		if !ok {
			return fmt.Errorf("-k only applies to POSIX ACLs")
		}
		return acl.FSetPosixBytes(ctx, fd, pv.Access, nil)
	}

	entries := splitEntries(set)
	if len(entries) == 0 {
		return fmt.Errorf("no ACL entries given")
	}

	switch current.(type) {
	case *acl.NFS4Value:
		aces := make([]nfs4.ACE, 0, len(entries))
		for _, e := range entries {
			ace, err := parseNFS4ACE(e)
			if err != nil {
				return err
			}
			aces = append(aces, ace)
		}
		data, err := nfs4.FromACEs(aces, 0).Encode()
		if err != nil {
			return err
		}
		if err := nfs4.Validate(ctx, fd, data); err != nil {
			return err
		}
		return acl.FSetNFS4Bytes(ctx, fd, data)

	case *acl.PosixValue:
		aces := make([]posix1e.ACE, 0, len(entries))
		for _, e := range entries {
			ace, err := parsePosixACE(e)
			if err != nil {
				return err
			}
			aces = append(aces, ace)
		}
		a := posix1e.FromACEs(aces)
		access, err := a.AccessBytes()
		if err != nil {
			return err
		}
		def, err := a.DefaultBytes()
		if err != nil {
			return err
		}
		if err := posix1e.Validate(ctx, fd, access, def); err != nil {
			return err
		}
		return acl.FSetPosixBytes(ctx, fd, access, def)

	default:
		return fmt.Errorf("unknown ACL value type %T", current)
	}
}
