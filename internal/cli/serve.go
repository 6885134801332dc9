package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrlokans/possync/internal/entrypoint"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, cron scheduler and task queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return entrypoint.Run(opts.LoadConfig(), opts.Version)
		},
	}
}
