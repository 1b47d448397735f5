package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/config"
	"github.com/mcdev12/quizlive/go/internal/dbconfig"
)

// Stores holds the external connections the service was configured with.
// Any of them may be nil.
type Stores struct {
	Pool  *pgxpool.Pool
	DB    *sql.DB
	Redis *redis.Client
}

func setupStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	stores := &Stores{}

	if cfg.Database.Enabled {
		dbCfg := dbconfig.NewConfigFromEnv()

		poolConfig, err := dbCfg.PoolConfig()
		if err != nil {
			return nil, err
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		stores.Pool = pool

		db, err := sql.Open("postgres", dbCfg.DSN())
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("failed to create database connection: %w", err)
		}
		stores.DB = db

		if err := db.PingContext(ctx); err != nil {
			stores.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		log.Info().
			Str("host", dbCfg.Host).
			Int("port", dbCfg.Port).
			Str("database", dbCfg.Database).
			Msg("connected to database")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			stores.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		stores.Redis = client

		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	}

	return stores, nil
}

// Close releases every open store.
func (s *Stores) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis")
		}
	}
}
