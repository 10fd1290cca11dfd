package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/config"
	"github.com/spec-kit/attendance-hub/internal/kv"
)

// Storage owns the selected key-value backend and the connections it needs.
type Storage struct {
	Store    kv.Store
	postgres *Postgres
	redis    *Redis
}

// OpenStorage builds the backend named by cfg.Storage.Driver.
func OpenStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Storage, error) {
	driver := cfg.Storage.Driver
	logger = logger.With(zap.String("driver", driver))

	switch driver {
	case "", config.DriverMemory:
		logger.Info("using in-memory storage")
		return &Storage{Store: kv.NewMemoryStore()}, nil

	case config.DriverFile:
		store, err := kv.OpenFileStore(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("using file storage", zap.String("path", cfg.Storage.Path))
		return &Storage{Store: store}, nil

	case config.DriverBolt:
		store, err := kv.OpenBoltStore(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("using bolt storage", zap.String("path", cfg.Storage.Path))
		return &Storage{Store: store}, nil

	case config.DriverRedis:
		r := NewRedis(cfg.Redis, logger)
		return &Storage{Store: kv.NewRedisStore(r.Client, cfg.Storage.KeyPrefix), redis: r}, nil

	case config.DriverPostgres:
		if cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is required for the postgres driver")
		}
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		return &Storage{Store: kv.NewPostgresStore(pg.PoolHandle()), postgres: pg}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// Close releases the backend and any connections it owns.
func (s *Storage) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.Store != nil {
		err = s.Store.Close()
	}
	s.redis.Close()
	s.postgres.Close()
	return err
}
