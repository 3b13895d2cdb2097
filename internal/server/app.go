// Package server initializes and runs the sync backend: it opens the
// metadata database, applies migrations, connects the blob store, and
// serves the HTTP API while the authority probe loop runs alongside.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Sonicx161/aiomanager/internal/logging"
	"github.com/Sonicx161/aiomanager/internal/server/autopilot"
	"github.com/Sonicx161/aiomanager/internal/server/config"
	"github.com/Sonicx161/aiomanager/internal/server/httpapi"
	"github.com/Sonicx161/aiomanager/internal/server/storage"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	authority *autopilot.Service
	api       *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	db, err := storage.OpenDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	blobs, err := storage.NewS3BlobStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	store := storage.NewPostgresStore(db, blobs)
	checker := autopilot.NewHTTPChecker(nil, 0)
	authority := autopilot.NewService(store, checker, logger)
	api := httpapi.NewServer(store, authority, c, logger)

	return &App{config: c, logger: logger, authority: authority, api: api}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "addr", app.config.EndpointAddr)

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.api.Router(),
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.authority.RunLoop(ctx, app.config.ProbeInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(ctx, "shutdown error", "error", err)
	}

	wg.Wait()
}
