package main

import (
	"fmt"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/openpath"
	"github.com/spf13/cobra"
)

func newOpenCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "open [personal|shared|path]",
		Short:         "Open a synced folder in the system file manager",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          openFolder,
	}
}

func openFolder(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	target := "personal"
	if len(args) > 0 {
		target = args[0]
	}

	path := target
	switch target {
	case "personal", "shared":
		cfg, err := fetchConfig()
		if err != nil {
			return out.Error("Failed to fetch configuration", err)
		}
		if target == "personal" {
			path = cfg.PersonalPath
		} else {
			path = cfg.SharedPath
		}
		if path == "" {
			return out.Error(fmt.Sprintf("No %s sync folder configured", target), nil)
		}
	}

	path = config.ExpandPath(path)
	if err := openpath.Open(path); err != nil {
		return out.Error("Failed to open folder", err)
	}

	return out.Success(fmt.Sprintf("Opened %s", path), map[string]interface{}{
		"path": path,
	})
}
