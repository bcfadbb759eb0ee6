package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/playsync/backend/internal/auth"
	"github.com/playsync/backend/internal/config"
	"github.com/playsync/backend/internal/db"
	"github.com/playsync/backend/internal/handlers"
	"github.com/playsync/backend/internal/middleware"
	"github.com/playsync/backend/internal/repositories"
	"github.com/playsync/backend/internal/social"
)

const rateLimitIdleTTL = 10 * time.Minute

type userStore interface {
	handlers.UserStore
	handlers.UserSearcher
	social.UserReader
}

// stores groups the persistence backends selected by configuration.
type stores struct {
	users    userStore
	friends  social.FriendStore
	sessions auth.SessionStore
	health   handlers.Pinger
}

// openStores connects the configured backend and returns a cleanup that releases it.
func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.StoreBackend {
	case config.StoreMemory:
		store := repositories.NewMemoryStore()
		return stores{
			users:    store,
			friends:  store,
			sessions: auth.NewMemorySessionStore(),
		}, noop, nil

	case config.StoreMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return stores{}, nil, err
		}
		cleanup := func(ctx context.Context) error { return client.Disconnect(ctx) }

		store := repositories.NewMongoStore(client, cfg.MongoDatabase, cfg.MongoTransactions, logger)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = cleanup(context.Background())
			return stores{}, nil, err
		}
		return stores{
			users:    store,
			friends:  store,
			sessions: store.Sessions(),
			health:   store,
		}, cleanup, nil

	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return stores{}, nil, err
		}
		return stores{
			users:    repositories.NewPostgresUserRepository(pool),
			friends:  repositories.NewPostgresFriendRepository(pool),
			sessions: repositories.NewPostgresSessionStore(pool),
			health:   pool,
		}, func(context.Context) error { pool.Close(); return nil }, nil

	default:
		return stores{}, nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	st, cleanup, err := openStores(ctx, cfg, logger)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret, err = ephemeralSecret()
		if err != nil {
			_ = cleanup(context.Background())
			return handlers.Dependencies{}, nil, err
		}
		logger.Warn("PLAYSYNC_JWT_SECRET not set, access tokens will not survive a restart")
	}

	sessions := auth.NewManager(secret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, st.sessions)
	limit := middleware.RateLimit{
		Requests: cfg.RateLimitRequests,
		Window:   cfg.RateLimitWindow,
		Burst:    cfg.RateLimitBurst,
		IdleTTL:  rateLimitIdleTTL,
	}

	deps := handlers.Dependencies{
		Users:          st.users,
		Search:         st.users,
		Sessions:       sessions,
		Social:         social.NewManager(st.users, st.friends),
		Health:         st.health,
		AuthLimiter:    middleware.NewKeyedLimiter(limit),
		RequestLimiter: middleware.NewKeyedLimiter(limit),
	}
	if cfg.AuthRequired {
		deps.RequireAuth = middleware.RequireAuth(sessions)
	}

	return deps, cleanup, nil
}

func ephemeralSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate signing secret: %w", err)
	}
	return secret, nil
}
