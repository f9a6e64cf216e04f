package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"weekly-assistant/internal/ai"
	"weekly-assistant/internal/config"
	postgresClient "weekly-assistant/internal/platform/postgres"
	redisClient "weekly-assistant/internal/platform/redis"
)

// App holds the process-wide clients. They are built once at startup and
// shared by every request.
type App struct {
	Config   *config.Config
	Postgres *gorm.DB
	Redis    *redis.Client // nil when the embedding cache is disabled
	LLM      *ai.OpenAICompatibleClient

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	app := &App{
		Config:    cfg,
		LLM:       ai.NewOpenAICompatibleClient(time.Duration(cfg.LLM.TimeoutSeconds) * time.Second),
		StartedAt: time.Now(),
	}

	app.Postgres, err = postgresClient.New(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}

	if cfg.CacheEnabled() {
		app.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		log.Printf("embedding cache enabled at %s (ttl %ds)", cfg.Redis.Addr, cfg.Redis.EmbeddingTTLSeconds)
	}

	return app, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Postgres != nil {
		sqlDB, err := a.Postgres.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
