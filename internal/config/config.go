package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Redis   RedisConfig
	NATS    NATSConfig
	Ollama  OllamaConfig
	Cache   CacheConfig
	Memory  MemoryConfig
	JWT     JWTConfig
	Vendors VendorsConfig
	Rate    RateConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

// OllamaConfig holds the local inference endpoint and sampling parameters.
type OllamaConfig struct {
	Host        string
	Port        int
	Model       string
	EmbedModel  string
	Temperature float64
	TopP        float64
	TopK        int
	NumCtx      int
	Timeout     time.Duration
}

func (c OllamaConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// CacheConfig controls the fixed-TTL response cache in front of inference.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// MemoryConfig holds conversation memory tuning.
type MemoryConfig struct {
	RetentionDays    int
	SearchLimit      int
	UserBoost        float64
	ShortTermMsgs    int
	ShortTermTTLSec  int
	BackfillInterval time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// VendorConfig is a per-vendor API endpoint plus its credential.
type VendorConfig struct {
	BaseURL    string
	Credential string
}

type VendorsConfig struct {
	Bitrix24 VendorConfig
	IXCSoft  VendorConfig
	Locaweb  VendorConfig
	Fluctus  VendorConfig
}

type RateConfig struct {
	PerMinute int
}

type LogConfig struct {
	Level  string
	Format string
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        k.String("server.host"),
			Port:        k.Int("server.port"),
			CORSOrigins: splitList(k.String("cors.allowed.origins")),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Ollama: OllamaConfig{
			Host:        k.String("ollama.host"),
			Port:        k.Int("ollama.port"),
			Model:       k.String("ollama.model"),
			EmbedModel:  k.String("ollama.embed.model"),
			Temperature: k.Float64("ollama.temperature"),
			TopP:        k.Float64("ollama.top.p"),
			TopK:        k.Int("ollama.top.k"),
			NumCtx:      k.Int("ollama.num.ctx"),
		},
		Cache: CacheConfig{
			Enabled: k.Bool("cache.enabled"),
		},
		Memory: MemoryConfig{
			RetentionDays:   k.Int("memory.retention.days"),
			SearchLimit:     k.Int("memory.search.limit"),
			UserBoost:       k.Float64("memory.user.boost"),
			ShortTermMsgs:   k.Int("memory.short.term.msgs"),
			ShortTermTTLSec: k.Int("memory.short.term.ttl"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		Vendors: VendorsConfig{
			Bitrix24: VendorConfig{
				BaseURL: k.String("bitrix24.webhook.url"),
			},
			IXCSoft: VendorConfig{
				BaseURL:    k.String("ixcsoft.base.url"),
				Credential: k.String("ixcsoft.token"),
			},
			Locaweb: VendorConfig{
				BaseURL:    k.String("locaweb.base.url"),
				Credential: k.String("locaweb.api.key"),
			},
			Fluctus: VendorConfig{
				BaseURL:    k.String("fluctus.base.url"),
				Credential: k.String("fluctus.api.key"),
			},
		},
		Rate: RateConfig{
			PerMinute: k.Int("rate.limit.per.minute"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "autobot"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "autobot"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Ollama.Host == "" {
		cfg.Ollama.Host = "localhost"
	}
	if cfg.Ollama.Port == 0 {
		cfg.Ollama.Port = 11434
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = "llama3"
	}
	if cfg.Ollama.EmbedModel == "" {
		cfg.Ollama.EmbedModel = "nomic-embed-text"
	}
	if cfg.Ollama.Temperature == 0 {
		cfg.Ollama.Temperature = 0.7
	}
	if cfg.Ollama.TopP == 0 {
		cfg.Ollama.TopP = 0.9
	}
	if cfg.Ollama.TopK == 0 {
		cfg.Ollama.TopK = 40
	}
	if cfg.Ollama.NumCtx == 0 {
		cfg.Ollama.NumCtx = 4096
	}
	if cfg.Memory.RetentionDays == 0 {
		cfg.Memory.RetentionDays = 30
	}
	if cfg.Memory.SearchLimit == 0 {
		cfg.Memory.SearchLimit = 5
	}
	if cfg.Memory.UserBoost == 0 {
		cfg.Memory.UserBoost = 0.1
	}
	if cfg.Memory.ShortTermMsgs == 0 {
		cfg.Memory.ShortTermMsgs = 20
	}
	if cfg.Memory.ShortTermTTLSec == 0 {
		cfg.Memory.ShortTermTTLSec = 3600
	}
	if cfg.Rate.PerMinute == 0 {
		cfg.Rate.PerMinute = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	ollamaTimeoutStr := k.String("ollama.timeout")
	if ollamaTimeoutStr == "" {
		ollamaTimeoutStr = "30s"
	}
	cfg.Ollama.Timeout, err = time.ParseDuration(ollamaTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama timeout: %w", err)
	}

	cacheTTLStr := k.String("cache.ttl")
	if cacheTTLStr == "" {
		cacheTTLStr = "1h"
	}
	cfg.Cache.TTL, err = time.ParseDuration(cacheTTLStr)
	if err != nil {
		return nil, fmt.Errorf("parsing cache ttl: %w", err)
	}

	backfillStr := k.String("memory.backfill.interval")
	if backfillStr == "" {
		backfillStr = "1m"
	}
	cfg.Memory.BackfillInterval, err = time.ParseDuration(backfillStr)
	if err != nil {
		return nil, fmt.Errorf("parsing memory backfill interval: %w", err)
	}

	accessExpStr := k.String("jwt.access.expiry")
	if accessExpStr == "" {
		accessExpStr = "15m"
	}
	cfg.JWT.AccessExpiry, err = time.ParseDuration(accessExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt access expiry: %w", err)
	}

	refreshExpStr := k.String("jwt.refresh.expiry")
	if refreshExpStr == "" {
		refreshExpStr = "168h"
	}
	cfg.JWT.RefreshExpiry, err = time.ParseDuration(refreshExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt refresh expiry: %w", err)
	}

	return cfg, nil
}
