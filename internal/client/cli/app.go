// Package cli is the interactive client: a REPL over the account stores,
// the failover engine, and the sync coordinator.
package cli

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/Sonicx161/aiomanager/internal/client/autopilot"
	"github.com/Sonicx161/aiomanager/internal/client/config"
	"github.com/Sonicx161/aiomanager/internal/client/failover"
	"github.com/Sonicx161/aiomanager/internal/client/repositories/localstore"
	"github.com/Sonicx161/aiomanager/internal/client/stores"
	"github.com/Sonicx161/aiomanager/internal/client/stremio"
	"github.com/Sonicx161/aiomanager/internal/client/syncapi"
	"github.com/Sonicx161/aiomanager/internal/client/syncer"
	"github.com/Sonicx161/aiomanager/internal/client/vault"
	"github.com/Sonicx161/aiomanager/internal/logging"

	_ "modernc.org/sqlite"
)

type App struct {
	config *config.Config
	log    logging.Logger

	repo        localstore.Repository
	vault       *vault.Vault
	accounts    *stores.AccountStore
	library     *stores.LibraryStore
	engine      *failover.Engine
	coordinator *syncer.Coordinator
	authority   autopilot.Client

	reader *bufio.Reader
	out    io.Writer
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	db, err := localstore.OpenDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, err
	}
	repo := localstore.NewSQLiteRepository(db)

	v := vault.New()
	service := stremio.NewHTTPClient(c.StremioAPIURL, nil)
	accounts := stores.NewAccountStore(repo, service, log, stores.WithKeySource(v))
	library := stores.NewLibraryStore(repo, log)

	var authority autopilot.Client
	engineOpts := []failover.Option{
		failover.WithVaultGate(v.Unlocked),
	}
	if c.AutopilotURL != "" {
		authority = autopilot.NewHTTPClient(c.AutopilotURL, nil)
		engineOpts = append(engineOpts, failover.WithAuthority(authority))
	}
	checker := failover.NewHTTPChecker(nil, 0)
	engine := failover.NewEngine(repo, accounts, checker, log, engineOpts...)

	remote := syncapi.NewHTTPClient(c.SyncServerURL, nil)
	coordinator := syncer.NewCoordinator(remote, v, repo, log,
		accounts, library, engine, c.SyncID,
		syncer.WithDebounce(c.PushDebounce))

	// The coordinator needs the stores as domains and the stores need the
	// coordinator as a push scheduler, so one side attaches late.
	accounts.SetPushScheduler(coordinator)
	accounts.SetRuleObserver(engine)
	library.SetPushScheduler(coordinator)
	engine.SetPushScheduler(coordinator)

	app := &App{
		config:      c,
		log:         log,
		repo:        repo,
		vault:       v,
		accounts:    accounts,
		library:     library,
		engine:      engine,
		coordinator: coordinator,
		authority:   authority,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
	}

	if err := app.loadState(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) loadState(ctx context.Context) error {
	if err := a.accounts.Load(ctx); err != nil {
		return err
	}
	if err := a.library.Load(ctx); err != nil {
		return err
	}
	if err := a.engine.Load(ctx); err != nil {
		return err
	}
	return a.coordinator.Load(ctx)
}

// Run starts the failover loop and the REPL; it returns when the user
// exits or the context is cancelled.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.engine.RunLoop(ctx, a.config.CheckInterval)

	runREPL(ctx, a, a.status, a.reader, a.out)
}

func (a *App) isUnlocked() bool {
	return a.vault.Unlocked()
}

func (a *App) status() string {
	if a.isUnlocked() {
		return "unlocked"
	}
	return "locked"
}
