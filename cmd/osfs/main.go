// Command osfs exposes the library's filesystem and mount primitives
// as a small multi-tool: tree walks, mount inspection, ACL display and
// editing, statx dumps and file-handle plumbing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/truenas/osfs/internal/logger"
	"github.com/truenas/osfs/pkg/config"
)

const usageText = `osfs - Linux filesystem and mount primitives

Usage:
  osfs <command> [flags]

Commands:
  walk      Iterate a filesystem tree securely, optionally resumable
  mounts    List mounts in the current namespace via listmount/statmount
  getfacl   Display the ACL of files
  setfacl   Modify or strip the ACL of files
  stat      Dump the statx record of a path
  handle    Encode a file handle or open a file from one
  config    Manage the osfs configuration file

Run 'osfs <command> -h' for command flags.
`

func usage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfgPath := os.Getenv("OSFS_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osfs: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Logging.Level)

	// SIGINT/SIGTERM cancel the context; long walks stop between
	// syscall retries and checkpoints stay consistent.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var run func(ctx context.Context, cfg *config.Config, args []string) error

	switch os.Args[1] {
	case "walk":
		run = cmdWalk
	case "mounts":
		run = cmdMounts
	case "getfacl":
		run = cmdGetfacl
	case "setfacl":
		run = cmdSetfacl
	case "stat":
		run = cmdStat
	case "handle":
		run = cmdHandle
	case "config":
		run = cmdConfig
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "osfs: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err := run(ctx, cfg, os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "osfs %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}
