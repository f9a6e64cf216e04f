package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const DefaultSystemPrompt = "You are a concise operations advisor. Cite sources like (Name@date)."

type Config struct {
	App      AppConfig      `toml:"app"`
	LLM      LLMConfig      `toml:"llm"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	RAG      RAGConfig      `toml:"rag"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Env     string `toml:"env"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	GinMode string `toml:"gin_mode"`
}

type LLMConfig struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	EmbeddingModel string  `toml:"embedding_model"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// PostgresConfig points at the database that hosts the weekly_reports vector
// index and the employees table. DSN, when set, takes precedence over the
// individual fields.
type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DB       string `toml:"db"`
	Params   string `toml:"params"`
}

// RedisConfig configures the optional embedding cache. An empty Addr disables it.
type RedisConfig struct {
	Addr                string `toml:"addr"`
	Password            string `toml:"password"`
	DB                  int    `toml:"db"`
	EmbeddingTTLSeconds int    `toml:"embedding_ttl_seconds"`
}

type RAGConfig struct {
	MatchCount   int    `toml:"match_count"`
	SystemPrompt string `toml:"system_prompt"`
}

func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	envPath := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load %s failed, relying on environment variables: %v", envPath, err)
	}

	overrideByEnv(cfg)
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return errors.New("llm api key is required (OPENAI_KEY or LLM_API_KEY)")
	}
	if c.Postgres.DSN == "" && c.Postgres.Host == "" {
		return errors.New("database endpoint is required (DATABASE_URL or POSTGRES_HOST)")
	}
	if c.RAG.MatchCount <= 0 {
		return fmt.Errorf("rag match_count must be positive, got %d", c.RAG.MatchCount)
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) PostgresDSN() string {
	if c.Postgres.DSN != "" {
		return c.Postgres.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s %s",
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.DB,
		c.Postgres.Params,
	)
}

func (c *Config) CacheEnabled() bool {
	return c.Redis.Addr != ""
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "weekly-assistant",
			Env:     "dev",
			Host:    "0.0.0.0",
			Port:    8080,
			GinMode: "debug",
		},
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Temperature:    0.3,
			TimeoutSeconds: 90,
		},
		Postgres: PostgresConfig{
			Port:   5432,
			User:   "postgres",
			DB:     "postgres",
			Params: "sslmode=require",
		},
		Redis: RedisConfig{
			EmbeddingTTLSeconds: 3600,
		},
		RAG: RAGConfig{
			MatchCount:   5,
			SystemPrompt: DefaultSystemPrompt,
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("OPENAI_KEY", cfg.LLM.APIKey)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.EmbeddingModel = getEnv("LLM_EMBEDDING_MODEL", cfg.LLM.EmbeddingModel)
	cfg.LLM.Temperature = getEnvAsFloat("LLM_TEMPERATURE", cfg.LLM.Temperature)
	cfg.LLM.TimeoutSeconds = getEnvAsInt("LLM_TIMEOUT_SECONDS", cfg.LLM.TimeoutSeconds)

	cfg.Postgres.DSN = getEnv("DATABASE_URL", cfg.Postgres.DSN)
	cfg.Postgres.Host = getEnv("POSTGRES_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = getEnvAsInt("POSTGRES_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = getEnv("POSTGRES_USER", cfg.Postgres.User)
	cfg.Postgres.Password = getEnv("DATABASE_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.DB = getEnv("POSTGRES_DB", cfg.Postgres.DB)
	cfg.Postgres.Params = getEnv("POSTGRES_PARAMS", cfg.Postgres.Params)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.EmbeddingTTLSeconds = getEnvAsInt("REDIS_EMBEDDING_TTL_SECONDS", cfg.Redis.EmbeddingTTLSeconds)

	cfg.RAG.MatchCount = getEnvAsInt("RAG_MATCH_COUNT", cfg.RAG.MatchCount)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
