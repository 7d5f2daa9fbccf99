package session

import (
	"context"
	"fmt"
	"time"

	"livechat-backend/internal/database"
	"livechat-backend/internal/env"
)

// DefaultTTL is how long a session survives without writes.
const DefaultTTL = 24 * time.Hour

type StoreConfig struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	SQLDriver     string
	SQLDSN        string
	DynamoTable   string
}

func StoreConfigFromEnv() StoreConfig {
	return StoreConfig{
		Backend:       env.GetOrDefault(env.StoreBackend, "memory"),
		TTL:           env.GetDuration(env.SessionTTL, DefaultTTL),
		RedisAddr:     env.Get(env.ChatRedisURL),
		RedisPassword: env.Get(env.ChatRedisPass),
		SQLDriver:     env.GetOrDefault(env.SQLDriver, "sqlite"),
		SQLDSN:        env.Get(env.SQLDSN),
		DynamoTable:   env.Get(env.DynamoDBSessionsTable),
	}
}

// OpenRepository builds the configured backend. The returned cleanup closes
// whatever connection the backend holds.
func OpenRepository(ctx context.Context, cfg StoreConfig, now func() time.Time) (Repository, func(), error) {
	noop := func() {}
	if now == nil {
		now = time.Now
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryRepository(cfg.TTL, now), noop, nil

	case "redis":
		client, err := database.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, noop, err
		}
		return NewRedisRepository(client, "livechat", cfg.TTL), func() { client.Close() }, nil

	case "dynamodb":
		db, err := database.NewDatabase(ctx)
		if err != nil {
			return nil, noop, err
		}
		return NewDynamoRepository(db, cfg.DynamoTable, cfg.TTL, now), noop, nil

	case "sql":
		db, err := database.OpenSQL(cfg.SQLDriver, cfg.SQLDSN)
		if err != nil {
			return nil, noop, err
		}
		repo := NewSQLRepository(db, cfg.TTL, now)
		if err := repo.Migrate(ctx); err != nil {
			return nil, noop, fmt.Errorf("migrate sessions: %w", err)
		}
		cleanup := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return repo, cleanup, nil

	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
