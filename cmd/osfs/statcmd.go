package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/truenas/osfs/pkg/config"
	"github.com/truenas/osfs/pkg/statx"
)

// cmdStat dumps the statx record of each path argument.
func cmdStat(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("stat", flag.ExitOnError)
	follow := fs.Bool("follow", false, "follow a trailing symlink")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("at least one path is required")
	}

	mask := uint32(statx.BasicStats | statx.Btime | statx.MntIDUnique)

	flags := unix.AT_SYMLINK_NOFOLLOW
	if *follow {
		flags = 0
	}

	for _, path := range fs.Args() {
		rec, err := statx.Stat(ctx, unix.AT_FDCWD, path, flags, mask)
		if err != nil {
			return err
		}
		printRecord(path, rec)
	}
	return nil
}

func fileTypeName(rec *statx.Record) string {
	switch rec.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		return "regular file"
	case unix.S_IFDIR:
		return "directory"
	case unix.S_IFLNK:
		return "symbolic link"
	case unix.S_IFBLK:
		return "block device"
	case unix.S_IFCHR:
		return "character device"
	case unix.S_IFIFO:
		return "fifo"
	case unix.S_IFSOCK:
		return "socket"
	default:
		return "unknown"
	}
}

func fmtTime(t statx.Time) string {
	return time.Unix(t.Sec, int64(t.Nsec)).Format(time.RFC3339Nano)
}

func printRecord(path string, rec *statx.Record) {
	w := os.Stdout

	fmt.Fprintf(w, "  File: %s\n", path)
	fmt.Fprintf(w, "  Type: %s\n", fileTypeName(rec))
	fmt.Fprintf(w, "  Size: %d\tBlocks: %d\tIO Block: %d\n", rec.Size, rec.Blocks, rec.Blksize)
	fmt.Fprintf(w, "Device: %d:%d\tInode: %d\tLinks: %d\n",
		rec.Dev.Major, rec.Dev.Minor, rec.Ino, rec.Nlink)
	fmt.Fprintf(w, "Access: (%04o)\tUid: %d\tGid: %d\n", rec.Mode&0o7777, rec.UID, rec.GID)

	if rec.Has(statx.Atime) {
		fmt.Fprintf(w, "Access: %s\n", fmtTime(rec.Atime))
	}
	if rec.Has(statx.Mtime) {
		fmt.Fprintf(w, "Modify: %s\n", fmtTime(rec.Mtime))
	}
	if rec.Has(statx.Ctime) {
		fmt.Fprintf(w, "Change: %s\n", fmtTime(rec.Ctime))
	}
	if rec.Has(statx.Btime) {
		fmt.Fprintf(w, " Birth: %s\n", fmtTime(rec.Btime))
	}

	if rec.MntIDUnique {
		fmt.Fprintf(w, " Mount: %d (unique)\n", rec.MntID)
	} else if rec.Has(statx.MntID) {
		fmt.Fprintf(w, " Mount: %d\n", rec.MntID)
	}
}
