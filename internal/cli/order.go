package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrlokans/possync/internal/registry"
)

type OrderOptions struct {
	*RootOptions
	Types    []string
	WithDeps bool
}

// OrderOutput is the resolved execution order of a cycle.
type OrderOutput struct {
	Order []registry.EntityType `json:"order" yaml:"order"`
}

func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "order",
		Short: "Print the order a cycle would sync entity types in",
		Long: `Print the dependency order a cycle would use, without touching the store
or the remote API.

Examples:
  possync order
  possync order --types payments,locations
  possync order --types inventory_counts --with-deps --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Types, "types", nil, "comma separated entity types (default: all)")
	cmd.Flags().BoolVar(&opts.WithDeps, "with-deps", false, "include the prerequisites of the requested types")

	return cmd
}

func runOrder(opts *OrderOptions, cmd *cobra.Command) error {
	reg := registry.Default()

	types, err := reg.Parse(opts.Types)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --types", err)
	}
	if opts.WithDeps && len(types) > 0 {
		if types, err = reg.WithPrerequisites(types); err != nil {
			return WrapExitError(ExitCommandError, "invalid --types", err)
		}
	}

	order, err := reg.Resolve(types)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot resolve order", err)
	}

	out := OrderOutput{Order: order}
	return newFormatter(opts.RootOptions, cmd).Render(out, func(w io.Writer) error {
		for i, t := range order {
			fmt.Fprintf(w, "%d. %s\n", i+1, t)
		}
		return nil
	})
}
