// Package lifecycle manages infrastructure startup and coordinated shutdown.
//
// Initialize connects the stores a binary asks for and hands back an App
// whose connections are verified; Run supervises long-running services
// until a shutdown signal arrives.
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"go.scenegrid.dev/internal/common/mongo"
	"go.scenegrid.dev/internal/config"
)

// App holds initialized infrastructure that is guaranteed to be connected.
// If you have an *App, the stores it carries have answered a ping.
type App struct {
	Config *config.Config

	// Postgres holds account and permission rows.
	DB *sql.DB

	// Mongo holds scene object documents.
	Mongo *mongo.Client

	cleanupFuncs []func() error
}

// AppOptions selects which infrastructure Initialize connects.
type AppOptions struct {
	NeedsPostgres bool
	NeedsMongoDB  bool
}

// Initialize loads configuration and connects the requested stores.
// The returned cleanup function disconnects everything in reverse order.
func Initialize(ctx context.Context, opts AppOptions) (*App, func(), error) {
	app := &App{}

	cfg, err := config.LoadWithFile()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	if opts.NeedsPostgres {
		if err := app.initPostgres(ctx); err != nil {
			app.Cleanup()
			return nil, nil, err
		}
	}

	if opts.NeedsMongoDB {
		if err := app.initMongoDB(ctx); err != nil {
			app.Cleanup()
			return nil, nil, err
		}
	}

	return app, app.Cleanup, nil
}

// AddCleanup registers a cleanup function to run on shutdown.
// Functions run in reverse order of registration.
func (app *App) AddCleanup(fn func() error) {
	app.cleanupFuncs = append(app.cleanupFuncs, fn)
}

func (app *App) initPostgres(ctx context.Context) error {
	cfg := app.Config

	slog.Info("Connecting to Postgres")

	db, err := sql.Open("pgx", cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("failed to open Postgres connection: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping Postgres: %w", err)
	}

	app.DB = db
	app.AddCleanup(func() error {
		slog.Info("Closing Postgres connection")
		return db.Close()
	})

	slog.Info("Connected to Postgres")
	return nil
}

func (app *App) initMongoDB(ctx context.Context) error {
	cfg := app.Config

	client, err := mongo.Connect(ctx, cfg.MongoDB)
	if err != nil {
		return err
	}

	app.Mongo = client
	app.AddCleanup(func() error {
		slog.Info("Disconnecting from MongoDB")
		return client.Disconnect(context.Background())
	})

	return nil
}

// Cleanup runs all registered cleanup functions in reverse order.
func (app *App) Cleanup() {
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		if err := app.cleanupFuncs[i](); err != nil {
			slog.Error("Cleanup error", "error", err)
		}
	}
	app.cleanupFuncs = nil
}
