package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/possync/internal/applier"
	"github.com/mrlokans/possync/internal/database/runs"
	"github.com/mrlokans/possync/internal/database/syncstate"
	"github.com/mrlokans/possync/internal/engine"
	"github.com/mrlokans/possync/internal/http"
	"github.com/mrlokans/possync/internal/scheduler"
	"github.com/mrlokans/possync/internal/square"
	"github.com/mrlokans/possync/internal/tasks"
)

// =============================================================================
// Sync Engine
// =============================================================================

var _ engine.Fetcher = (*square.Client)(nil)
var _ engine.Applier = (*applier.Applier)(nil)
var _ engine.Tracker = (*syncstate.Repository)(nil)
var _ engine.RunRecorder = (*runs.Recorder)(nil)

// LocationSource implementations
var _ square.LocationSource = (*applier.Applier)(nil)

// =============================================================================
// Triggers
// =============================================================================

var _ scheduler.Runner = (*engine.Engine)(nil)
var _ tasks.SyncRunner = (*engine.Engine)(nil)
var _ tasks.SyncRunCleaner = (*runs.Repository)(nil)

// =============================================================================
// HTTP Surface
// =============================================================================

var _ http.SyncEngine = (*engine.Engine)(nil)
var _ http.StateReader = (*syncstate.Repository)(nil)
var _ http.RunReader = (*runs.Repository)(nil)
var _ http.SyncQueue = (*tasks.Client)(nil)
