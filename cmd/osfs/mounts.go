package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/truenas/osfs/pkg/config"
	"github.com/truenas/osfs/pkg/mount"
)

// cmdMounts prints one line per mount in the current namespace using
// the listmount/statmount kernel interface.
func cmdMounts(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("mounts", flag.ExitOnError)
	showOpts := fs.Bool("options", false, "include mount options")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "MNT_ID\tSOURCE\tMOUNTPOINT\tFSTYPE\tOPTIONS")

	return mount.Iter(ctx, func(rec *mount.Record) error {
		source, point, fstype := "-", "-", "-"
		if rec.SbSource != nil {
			source = *rec.SbSource
		}
		if rec.MntPoint != nil {
			point = *rec.MntPoint
		}
		if rec.FsType != nil {
			fstype = *rec.FsType
		}

		opts := "-"
		if *showOpts {
			r, err := mount.Statmount(ctx, rec.MntID, mount.MntBasic|mount.MntOpts)
			if err == nil && r.MntOpts != nil {
				opts = *r.MntOpts
			}
		}

		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", rec.MntID, source, point, fstype, opts)
		return nil
	})
}
