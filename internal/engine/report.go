package engine

import (
	"time"

	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/registry"
)

type State string

const (
	StateIdle           State = "idle"
	StateAborted        State = "aborted"
	StateResolving      State = "resolving"
	StateFetching       State = "fetching"
	StateApplying       State = "applying"
	StateRecording      State = "recording"
	StateCompleted      State = "completed"
	StatePartialFailure State = "partial_failure"
)

// TypeResult is the outcome of one entity type within a cycle.
type TypeResult struct {
	Success        bool   `json:"success" yaml:"success"`
	ChangesApplied int    `json:"changes_applied" yaml:"changes_applied"`
	Records        int    `json:"records" yaml:"records"`
	Error          string `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMS     int64  `json:"duration_ms" yaml:"duration_ms"`
}

// Report is returned by every cycle that got past its pre-conditions.
type Report struct {
	CycleID      string                             `json:"cycle_id" yaml:"cycle_id"`
	Trigger      entities.RunTrigger                `json:"trigger" yaml:"trigger"`
	Status       State                              `json:"status" yaml:"status"`
	Success      bool                               `json:"success" yaml:"success"`
	TotalChanges int                                `json:"total_changes" yaml:"total_changes"`
	Order        []registry.EntityType              `json:"order" yaml:"order"`
	PerType      map[registry.EntityType]TypeResult `json:"per_type" yaml:"per_type"`
	Timestamp    time.Time                          `json:"timestamp" yaml:"timestamp"`
	DurationMS   int64                              `json:"duration_ms" yaml:"duration_ms"`
}

// FailedTypes lists failed types in execution order.
func (r *Report) FailedTypes() []registry.EntityType {
	var failed []registry.EntityType
	for _, t := range r.Order {
		if res, ok := r.PerType[t]; ok && !res.Success {
			failed = append(failed, t)
		}
	}
	return failed
}

func (r *Report) finish(duration time.Duration) {
	r.Success = true
	r.TotalChanges = 0
	for _, t := range r.Order {
		res := r.PerType[t]
		if !res.Success {
			r.Success = false
			continue
		}
		r.TotalChanges += res.ChangesApplied
	}

	r.Status = StateCompleted
	if !r.Success {
		r.Status = StatePartialFailure
	}
	r.DurationMS = duration.Milliseconds()
}
