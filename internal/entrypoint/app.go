package entrypoint

import (
	"fmt"

	"github.com/mrlokans/possync/internal/applier"
	"github.com/mrlokans/possync/internal/config"
	"github.com/mrlokans/possync/internal/database"
	"github.com/mrlokans/possync/internal/database/runs"
	"github.com/mrlokans/possync/internal/database/syncstate"
	"github.com/mrlokans/possync/internal/engine"
	"github.com/mrlokans/possync/internal/logger"
	"github.com/mrlokans/possync/internal/registry"
	"github.com/mrlokans/possync/internal/square"
)

// App holds the components shared by the server and the CLI commands.
type App struct {
	Config   *config.Config
	Log      logger.Logger
	Database *database.Database
	Registry *registry.Registry
	Square   *square.Client
	Applier  *applier.Applier
	Tracker  *syncstate.Repository
	Runs     *runs.Repository
	Engine   *engine.Engine
}

// NewApp opens the destination store and wires the sync stack on top of it.
// The square client reads location ids for order searches from the mirror
// through the applier.
func NewApp(cfg *config.Config, log logger.Logger, opts ...square.Option) (*App, error) {
	db, err := database.NewDatabase(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	reg := registry.Default()
	apl := applier.New(db.DB, log, applier.Options{BatchSize: cfg.Sync.BatchSize})
	client := square.NewClient(cfg.Square, log, append([]square.Option{square.WithLocationSource(apl)}, opts...)...)
	tracker := syncstate.NewRepository(db.DB)
	runRepo := runs.NewRepository(db.DB)

	eng := engine.New(reg, client, apl, tracker,
		engine.WithLogger(log),
		engine.WithLeaseTTL(cfg.Sync.LeaseTTL),
		engine.WithRunRecorder(runs.NewRecorder(runRepo)),
	)

	return &App{
		Config:   cfg,
		Log:      log,
		Database: db,
		Registry: reg,
		Square:   client,
		Applier:  apl,
		Tracker:  tracker,
		Runs:     runRepo,
		Engine:   eng,
	}, nil
}

// ScheduledTypes parses SYNC_ENTITY_TYPES. Empty means every registered type.
func (a *App) ScheduledTypes() ([]registry.EntityType, error) {
	types, err := a.Registry.Parse(a.Config.Sync.EntityTypes)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_ENTITY_TYPES: %w", err)
	}
	return types, nil
}

func (a *App) Close() error {
	return a.Database.Close()
}
