package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/playsync/backend/internal/config"
	"github.com/playsync/backend/internal/db"
	"github.com/playsync/backend/internal/handlers"
	"github.com/playsync/backend/internal/httpserver"
	"github.com/playsync/backend/internal/logging"
	"github.com/playsync/backend/internal/middleware"
	"github.com/playsync/backend/internal/repositories"
)

// Run bootstraps the PlaySync backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, seed, or prune-sessions")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	case "prune-sessions":
		return pruneSessions(ctx)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
		defer cancel()
		if err := cleanup(closeCtx); err != nil {
			logger.Error("release store", "error", err)
		}
	}()

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	handler := middleware.RequestLogger(logger)(mux)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting http server", "port", cfg.AppPort, "store", cfg.StoreBackend, "authRequired", cfg.AuthRequired)
	return httpserver.New(cfg.AppPort, handler, logger).ListenAndServe(ctx)
}

func runMigrations(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	migrator, closePool, err := openMigrator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePool()

	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "status":
		statuses, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		for _, status := range statuses {
			mark := " "
			if status.Applied {
				mark = "x"
			}
			fmt.Printf("[%s] %s\n", mark, status.Name)
		}
		return nil
	case "up", "":
		applied, err := migrator.Up(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("no migrations to apply")
		}
		return nil
	case "down":
		return errors.New("down migrations are not supported")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

func runSeed(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected seed name (e.g. dev)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	seedDir, err := db.ResolveDir(cfg.SeedDir)
	if err != nil {
		return err
	}
	seedPath, err := db.SeedPath(seedDir, args[0])
	if err != nil {
		return err
	}

	migrator, closePool, err := openMigrator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePool()

	return migrator.ApplySeed(ctx, seedPath)
}

// pruneSessions deletes expired refresh sessions from the SQL store. The document
// store expires them with a TTL index instead.
func pruneSessions(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreBackend != config.StorePostgres {
		return fmt.Errorf("prune-sessions needs the %s store, configured store is %s", config.StorePostgres, cfg.StoreBackend)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	removed, err := repositories.NewPostgresSessionStore(pool).DeleteExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	logging.New(os.Stdout, cfg.LogLevel).Info("pruned expired sessions", "removed", removed)
	return nil
}

// openMigrator connects to the SQL store. Migrations and seeds do not apply to the
// document or in-memory stores.
func openMigrator(ctx context.Context, cfg config.Config) (*db.Migrator, func(), error) {
	if cfg.StoreBackend != config.StorePostgres {
		return nil, nil, fmt.Errorf("migrations and seeds need the %s store, configured store is %s", config.StorePostgres, cfg.StoreBackend)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)

	migrationDir, err := db.ResolveDir(cfg.MigrationDir)
	if err != nil {
		return nil, nil, err
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	return db.NewMigrator(pool, migrationDir, logger), pool.Close, nil
}
