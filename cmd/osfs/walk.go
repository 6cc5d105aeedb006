package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/truenas/osfs/internal/logger"
	"github.com/truenas/osfs/pkg/checkpoint"
	"github.com/truenas/osfs/pkg/config"
	"github.com/truenas/osfs/pkg/fsiter"
)

// cmdWalk iterates a tree and prints every entry. With --resume the
// walk continues from the last saved checkpoint; progress is
// checkpointed at the reporting increment either way, so an
// interrupted walk can always be picked up again.
func cmdWalk(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("walk", flag.ExitOnError)
	mountpoint := fs.String("mountpoint", cfg.Walk.Mountpoint, "filesystem mountpoint to walk")
	fsName := fs.String("filesystem", cfg.Walk.FilesystemName, "expected filesystem source (verified via statmount)")
	relPath := fs.String("relative-path", cfg.Walk.RelativePath, "start the walk below the mountpoint")
	btimeCutoff := fs.Int64("btime-cutoff", cfg.Walk.BtimeCutoff, "skip files created after this Unix timestamp (0: disabled)")
	increment := fs.Uint64("increment", cfg.Walk.ReportingIncrement, "progress/checkpoint frequency in entries")
	ckptDir := fs.String("checkpoint-dir", cfg.Checkpoint.Dir, "checkpoint database directory")
	name := fs.String("name", "", "checkpoint name (default: the mountpoint)")
	resume := fs.Bool("resume", false, "resume from the saved checkpoint")
	quiet := fs.Bool("quiet", false, "do not print entries, only progress")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *mountpoint == "" {
		return fmt.Errorf("--mountpoint is required")
	}
	if *name == "" {
		*name = *mountpoint
	}

	store, err := checkpoint.Open(*ckptDir)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := fsiter.Options{
		Mountpoint:         *mountpoint,
		FilesystemName:     *fsName,
		RelativePath:       *relPath,
		BtimeCutoff:        *btimeCutoff,
		ReportingIncrement: *increment,
	}

	if *resume {
		cp, err := store.Load(*name)
		switch {
		case errors.Is(err, checkpoint.ErrNotFound):
			logger.Info("No checkpoint for %q, starting from the top", *name)
		case err != nil:
			return err
		case len(cp.Snapshot.Frames) == 0:
			logger.Info("Checkpoint for %q has no position, starting from the top", *name)
		default:
			opts.Resume = &cp.Snapshot
			logger.Info("Resuming %q at %s (%d entries walked so far)",
				*name, cp.Snapshot.Frames[len(cp.Snapshot.Frames)-1].Path, cp.Count)
		}
	}

	opts.Report = func(snapshot *fsiter.DirStackSnapshot, stats fsiter.Stats) error {
		logger.Info("Walked %d entries (%d bytes), currently in %s",
			stats.Count, stats.Bytes, stats.CurrentDir)
		return store.Save(*name, &checkpoint.Checkpoint{
			Snapshot:  *snapshot,
			Count:     stats.Count,
			Bytes:     stats.Bytes,
			UpdatedAt: time.Now().Unix(),
		})
	}

	it, err := fsiter.New(ctx, opts)
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		entry, err := it.Next()
		if err != nil {
			var restore *fsiter.RestoreError
			if errors.As(err, &restore) {
				logger.Warn("Checkpoint is stale (%v), delete it and restart", restore)
			}
			return err
		}
		if entry == nil {
			break
		}
		if !*quiet {
			fmt.Fprintf(os.Stdout, "%s\n", filepath.Join(entry.Parent, entry.Name))
		}
	}

	stats := it.Stats()
	logger.Info("Walk complete: %d entries, %d bytes", stats.Count, stats.Bytes)

	// A finished walk has nothing to resume.
	return store.Delete(*name)
}
