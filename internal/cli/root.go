// Package cli implements the possync command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mrlokans/possync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "yaml"
	Version string

	// LoadConfig builds the configuration for commands that touch the store.
	// Defaults to config.NewConfig.
	LoadConfig func() *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the possync CLI.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(&RootOptions{Version: version, LoadConfig: config.NewConfig})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "possync",
		Short: "Mirror point-of-sale data into a local database",
		Long: `possync pulls locations, catalog, inventory, vendors, orders and payments
from the Square API and upserts them into SQLite or PostgreSQL.

Configuration is read from the environment (SQUARE_ACCESS_TOKEN,
DATABASE_PATH, SYNC_SCHEDULE, ...).`,
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging on stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewOrderCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))

	return cmd
}
