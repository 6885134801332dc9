package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type ResetOutput struct {
	Reset int64 `json:"reset" yaml:"reset"`
}

func NewResetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [types...]",
		Short: "Forget watermarks so the next cycle fetches everything again",
		Long: `Delete the tracking rows of the given entity types, or of every type when
none are given. Mirrored rows are kept; the next cycle re-fetches the full
remote set and only rows whose payload changed are rewritten.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, cmd, args)
		},
	}
}

func runReset(opts *RootOptions, cmd *cobra.Command, args []string) error {
	app, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	types, err := app.Registry.Parse(args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid entity type", err)
	}

	count, err := app.Tracker.Reset(commandContext(cmd), types...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to reset sync state", err)
	}

	return newFormatter(opts, cmd).Render(ResetOutput{Reset: count}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "reset %d tracking row(s)\n", count)
		return err
	})
}
