package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rarity/internal/config"
	dbBadger "github.com/kailas-cloud/rarity/internal/db/badger"
	dbPostgres "github.com/kailas-cloud/rarity/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/rarity/internal/db/redis"
	contentrepo "github.com/kailas-cloud/rarity/internal/repository/content"
	"github.com/kailas-cloud/rarity/internal/repository/pgvector"
	openaiTransport "github.com/kailas-cloud/rarity/internal/transport/openai"
	healthuc "github.com/kailas-cloud/rarity/internal/usecase/health"
)

// app holds what the ops subcommands need: the content store with its
// index ensured, the cache backend and the embedding provider.
type app struct {
	health  *healthuc.Service
	closers []func()
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	if err := a.wire(ctx, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	dims := cfg.Embedding.Dimensions
	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second

	var (
		storePinger healthuc.Pinger
		redisStore  *dbRedis.Store
	)
	switch cfg.Database.Driver {
	case config.DriverValkey, config.DriverRedis:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			return fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
		}
		a.closers = append(a.closers, s.Close)
		if err := s.WaitForReady(ctx, readiness); err != nil {
			return fmt.Errorf("database not ready: %w", err)
		}

		repo := contentrepo.New(s, cfg.Storage.KeyPrefix, dims).WithHNSW(contentrepo.HNSWConfig{
			M:           cfg.Index.HNSWM,
			EFConstruct: cfg.Index.HNSWEFConstruct,
		})
		if err := repo.EnsureIndex(ctx); err != nil {
			return fmt.Errorf("ensure content index: %w", err)
		}
		storePinger, redisStore = s, s

	case config.DriverPostgres:
		pg, err := dbPostgres.New(ctx, dbPostgres.Config{
			DSN:      cfg.Database.DSN,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("create postgres store: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.WaitForReady(ctx, readiness); err != nil {
			return fmt.Errorf("database not ready: %w", err)
		}

		repo := pgvector.New(pg.Pool, dims)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure content schema: %w", err)
		}
		storePinger = pg

	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	logger.Info("Connected to database", zap.String("driver", cfg.Database.Driver))

	var kv healthuc.Pinger
	switch cfg.Cache.Driver {
	case config.DriverBadger:
		b, err := dbBadger.NewStore(dbBadger.Config{
			Dir:        cfg.Cache.Badger.Dir,
			InMemory:   cfg.Cache.Badger.InMemory,
			GCInterval: time.Duration(cfg.Cache.Badger.GCIntervalSec) * time.Second,
		}, logger)
		if err != nil {
			return fmt.Errorf("open badger cache: %w", err)
		}
		a.closers = append(a.closers, b.Close)
		kv = b
	default:
		if redisStore == nil {
			return errors.New("cache driver needs a valkey/redis database")
		}
		kv = redisStore
	}

	// Pass nil interface (not typed nil pointer) when no provider is configured.
	var embedding healthuc.EmbeddingChecker
	if ec := cfg.Embedding; ec.APIKey != "" {
		embedding = openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     ec.APIKey,
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Provider:   ec.Provider,
			Logger:     logger,
		})
	} else {
		logger.Warn("Embedding api_key is empty, the engine runs on local fallback vectors")
	}

	a.health = healthuc.New(storePinger, kv, embedding)
	return nil
}
