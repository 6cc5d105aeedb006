package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/truenas/osfs/pkg/config"
)

// cmdConfig manages the osfs configuration file.
func cmdConfig(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: osfs config init [-force]")
	}

	switch args[0] {
	case "init":
		fs := flag.NewFlagSet("config init", flag.ExitOnError)
		force := fs.Bool("force", false, "overwrite an existing config file")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}

		path, err := config.InitConfig(*force)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote default configuration to %s\n", path)
		return nil

	case "path":
		fmt.Println(config.GetDefaultConfigPath())
		return nil

	default:
		return fmt.Errorf("unknown config subcommand %q", args[0])
	}
}
