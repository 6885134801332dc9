package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mrlokans/possync/internal/config"
	"github.com/mrlokans/possync/internal/engine"
	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/registry"
)

func fakeSquare(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/locations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"locations":[
			{"id":"L1","name":"Main St","status":"ACTIVE","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-03-01T00:00:00Z"},
			{"id":"L2","name":"Harbor","status":"ACTIVE","created_at":"2024-01-02T00:00:00Z","updated_at":"2024-03-02T00:00:00Z"}
		]}`))
	})
	mux.HandleFunc("/v2/vendors/search", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type cliHarness struct {
	cfg *config.Config
}

func newCLIHarness(t *testing.T) *cliHarness {
	srv := fakeSquare(t)
	return &cliHarness{cfg: &config.Config{
		Database: config.Database{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "cli.db")},
		Square: config.Square{
			AccessToken:    "test-token",
			BaseURL:        srv.URL,
			APIVersion:     config.DefaultSquareAPIVersion,
			RequestTimeout: 5 * time.Second,
			MaxAttempts:    1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			PageLimit:      100,
		},
		Sync: config.Sync{BatchSize: 50, LeaseTTL: time.Minute},
		Log:  config.Log{Level: "error", Format: "text"},
	}}
}

func (h *cliHarness) run(args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd := newRootCommand(&RootOptions{Version: "test", LoadConfig: func() *config.Config {
		cfg := *h.cfg
		return &cfg
	}})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInvalidFormat(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run("order", "--format", "xml")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestOrder(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("order")
	require.NoError(t, err)
	assert.Contains(t, out, "1. locations\n")
	assert.Contains(t, out, "8. inventory_counts\n")

	out, err = h.run("order", "--types", "payments,locations", "--format", "json")
	require.NoError(t, err)
	var parsed OrderOutput
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, []registry.EntityType{registry.Locations, registry.Payments}, parsed.Order)
}

func TestOrder_WithDepsYAML(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("order", "--types", "inventory_counts", "--with-deps", "--format", "yaml")
	require.NoError(t, err)

	var parsed struct {
		Order []string `yaml:"order"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, []string{"locations", "catalog_categories", "catalog_items", "catalog_variations", "inventory_counts"}, parsed.Order)
}

func TestOrder_UnknownType(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run("order", "--types", "widgets")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, registry.ErrUnknownEntityType)
}

func TestSync_Succeeds(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("sync", "--types", "locations", "--format", "json")
	require.NoError(t, err)

	var report engine.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Success)
	assert.Equal(t, entities.RunTriggerCLI, report.Trigger)
	assert.Equal(t, 2, report.PerType[registry.Locations].Records)
	assert.Equal(t, 2, report.TotalChanges)

	out, err = h.run("sync", "--types", "locations")
	require.NoError(t, err)
	assert.Contains(t, out, "completed, 0 changes")
}

func TestSync_PartialFailureExitCode(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("sync", "--types", "locations,vendors")

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "partial_failure")
	assert.Contains(t, out, "FAILED")
}

func TestSync_MissingToken(t *testing.T) {
	h := newCLIHarness(t)
	h.cfg.Square.AccessToken = ""

	_, err := h.run("sync")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStatusAndReset(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run("sync", "--types", "locations")
	require.NoError(t, err)

	out, err := h.run("status", "--format", "json")
	require.NoError(t, err)
	var status StatusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Nil(t, status.Lease)
	rows := statusByType(status)
	require.Contains(t, rows, "locations")
	assert.Equal(t, "locations", status.Types[0].EntityType)
	assert.NotNil(t, rows["locations"].Watermark)
	assert.Equal(t, 2, rows["locations"].RecordsSynced)
	assert.Nil(t, rows["vendors"].Watermark)
	assert.Contains(t, rows, registry.CyclePseudoType)

	out, err = h.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "never")

	out, err = h.run("reset", "locations")
	require.NoError(t, err)
	assert.Contains(t, out, "reset 1 tracking row(s)")

	out, err = h.run("status", "--format", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Nil(t, statusByType(status)["locations"].Watermark)
}

func statusByType(out StatusOutput) map[string]TypeStatus {
	rows := make(map[string]TypeStatus, len(out.Types))
	for _, row := range out.Types {
		rows[row.EntityType] = row
	}
	return rows
}

func TestReset_UnknownType(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run("reset", "widgets")

	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitBusy, GetExitCode(WrapExitError(ExitBusy, "busy", engine.ErrCycleInProgress)))
}
