package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/possync/internal/engine"
	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/registry"
)

// TypeStatus is one line of the status output.
type TypeStatus struct {
	EntityType    string              `json:"entity_type" yaml:"entity_type"`
	Watermark     *time.Time          `json:"watermark" yaml:"watermark"`
	RecordsSynced int                 `json:"records_synced" yaml:"records_synced"`
	LastStatus    entities.SyncStatus `json:"last_status,omitempty" yaml:"last_status,omitempty"`
	LastError     string              `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	UpdatedAt     *time.Time          `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

type LeaseStatus struct {
	Owner     string    `json:"owner" yaml:"owner"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

type StatusOutput struct {
	Lease *LeaseStatus `json:"lease" yaml:"lease"`
	Types []TypeStatus `json:"types" yaml:"types"`
}

func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show watermarks and the last result of every entity type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	app, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := commandContext(cmd)
	states, err := app.Tracker.List(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read sync state", err)
	}
	lease, err := app.Tracker.Lease(ctx, engine.CycleLeaseName)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cycle lease", err)
	}

	out := buildStatus(app.Registry.Types(), states, lease)
	return newFormatter(opts, cmd).Render(out, func(w io.Writer) error {
		return writeStatus(w, out)
	})
}

// buildStatus lists every registered type in declaration order, followed by
// the cycle pseudo-row when present. Types never synced have no watermark.
func buildStatus(types []registry.EntityType, states []entities.SyncState, lease *entities.SyncLease) StatusOutput {
	byType := make(map[string]entities.SyncState, len(states))
	for _, s := range states {
		byType[s.EntityType] = s
	}

	names := make([]string, 0, len(types)+1)
	for _, t := range types {
		names = append(names, t.String())
	}
	if _, ok := byType[registry.CyclePseudoType]; ok {
		names = append(names, registry.CyclePseudoType)
	}

	out := StatusOutput{Types: make([]TypeStatus, 0, len(names))}
	for _, name := range names {
		row := TypeStatus{EntityType: name}
		if s, ok := byType[name]; ok {
			updated := s.UpdatedAt
			row.Watermark = s.LastSyncTimestamp
			row.RecordsSynced = s.RecordsSynced
			row.LastStatus = s.LastStatus
			row.LastError = s.LastError
			row.UpdatedAt = &updated
		}
		out.Types = append(out.Types, row)
	}
	if lease != nil {
		out.Lease = &LeaseStatus{Owner: lease.Owner, ExpiresAt: lease.ExpiresAt}
	}
	return out
}

func writeStatus(w io.Writer, out StatusOutput) error {
	if out.Lease != nil {
		fmt.Fprintf(w, "cycle running: owner %s, lease expires %s\n\n", out.Lease.Owner, out.Lease.ExpiresAt.Format(time.RFC3339))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tWATERMARK\tRECORDS\tSTATUS\tERROR")
	for _, row := range out.Types {
		watermark := "never"
		if row.Watermark != nil {
			watermark = row.Watermark.UTC().Format(time.RFC3339)
		}
		status := string(row.LastStatus)
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", row.EntityType, watermark, row.RecordsSynced, status, row.LastError)
	}
	return tw.Flush()
}
