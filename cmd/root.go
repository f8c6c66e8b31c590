// Package cmd defines and implements the CLI commands for the ripples executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates the root command and attaches every subcommand.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ripples",
		Short: "Map the link graph that ripples out from a seed URL.",
		Long: `ripples crawls outward from a seed URL breadth first, one depth at a
time, and records every page it meets as a node in a directed graph. The
finished graph is written as Graphviz DOT or JSON.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newCrawlCmd(), newVersionCmd())
	return cmd
}

// Execute runs the root command with a context canceled on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
