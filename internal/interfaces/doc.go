// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Sync Engine Seams (internal/engine/engine.go)
//
//   - Fetcher: pulls one entity type from the platform (square.Client)
//   - Applier: upserts fetched records into the mirror (applier.Applier)
//   - Tracker: watermarks, cycle totals and the cycle lease (syncstate.Repository)
//   - RunRecorder: persists finished reports (runs.Recorder)
//
// ## Triggers
//
//   - scheduler.Runner and tasks.SyncRunner: anything that runs a cycle (engine.Engine)
//   - tasks.SyncRunCleaner: deletes old reports (runs.Repository)
//
// ## HTTP Surface (internal/http)
//
//   - SyncEngine, StateReader, RunReader, SyncQueue
//
// # Adding a New Entity Type
//
//  1. Add the constant to registry.EntityType and to Valid()
//
//  2. Describe it in registry.DefaultDescriptors with its dependencies,
//     endpoint and update strategy
//
//  3. Add a gorm model embedding entities.Mirror and list it in MirrorModels()
//
//  4. Add a tableSpec and a mapFunc in internal/applier, and the case to the
//     switches in Apply and specFor
//
//  5. Teach square/request.go how to page the endpoint if it is not a plain
//     cursor GET
//
// The exhaustive switches fail tests for a type that is registered but not
// handled, so a missing step shows up before a cycle runs.
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go.
package interfaces
