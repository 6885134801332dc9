package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/mrlokans/possync/internal/engine"
	"github.com/mrlokans/possync/internal/entities"
)

// Recorder stores engine reports as runs.
type Recorder struct {
	repo *Repository
}

var _ engine.RunRecorder = (*Recorder)(nil)

func NewRecorder(repo *Repository) *Recorder {
	return &Recorder{repo: repo}
}

func (rec *Recorder) Record(ctx context.Context, report *engine.Report) error {
	run, err := FromReport(report)
	if err != nil {
		return err
	}
	return rec.repo.Save(ctx, run)
}

// FromReport converts a finished cycle into its persisted form.
func FromReport(report *engine.Report) (*entities.SyncRun, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	failed := report.FailedTypes()
	names := make([]string, len(failed))
	for i, t := range failed {
		names[i] = string(t)
	}

	trigger := report.Trigger
	if trigger == "" {
		trigger = entities.RunTriggerManual
	}

	return &entities.SyncRun{
		CycleID:      report.CycleID,
		Trigger:      trigger,
		Status:       string(report.Status),
		Success:      report.Success,
		TotalChanges: report.TotalChanges,
		FailedTypes:  strings.Join(names, ","),
		Report:       datatypes.JSON(payload),
		StartedAt:    report.Timestamp,
		DurationMS:   report.DurationMS,
	}, nil
}
