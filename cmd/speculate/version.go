package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/speculate/internal/model"
	"github.com/samcharles93/speculate/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information and the registered model architectures",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			printVersion(cmd.Root().Writer, version.Resolve(), model.Architectures())
			return nil
		},
	}
}

func printVersion(w io.Writer, info version.Info, archs []string) {
	fmt.Fprintf(w, "speculate %s\n", info.Version)
	if info.Commit != "" {
		state := "clean"
		if info.Modified {
			state = "modified"
		}
		fmt.Fprintf(w, "  commit  %s (%s)\n", info.Commit, state)
	}
	if info.BuildTime != "" {
		fmt.Fprintf(w, "  built   %s\n", info.BuildTime)
	}
	fmt.Fprintf(w, "  go      %s\n", info.GoVersion)
	fmt.Fprintf(w, "  archs   %s\n", strings.Join(archs, ", "))
}
