package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/autobot-platform/autobot/internal/api"
	"github.com/autobot-platform/autobot/internal/audit"
	"github.com/autobot-platform/autobot/internal/auth"
	"github.com/autobot-platform/autobot/internal/chat"
	"github.com/autobot-platform/autobot/internal/config"
	"github.com/autobot-platform/autobot/internal/database"
	"github.com/autobot-platform/autobot/internal/events"
	"github.com/autobot-platform/autobot/internal/inference"
	"github.com/autobot-platform/autobot/internal/memory"
	"github.com/autobot-platform/autobot/internal/middleware"
	iredis "github.com/autobot-platform/autobot/internal/redis"
	"github.com/autobot-platform/autobot/internal/server"
	"github.com/autobot-platform/autobot/internal/users"
	"github.com/autobot-platform/autobot/internal/vendors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS JetStream. Optional: the API runs without events when NATS is
	// not configured.
	var eventsClient *events.Client
	var publisher *events.Publisher
	if cfg.NATS.URL != "" {
		eventsClient, err = events.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to NATS", "error", err)
			os.Exit(1)
		}
		defer eventsClient.Close()
		publisher = events.NewPublisher(eventsClient.JetStream())
	}

	// Inference
	ollama := inference.NewClient(cfg.Ollama)
	var cache *inference.ResponseCache
	if cfg.Cache.Enabled {
		cache = inference.NewResponseCache(redisClient, cfg.Cache.TTL)
	}

	// Memory
	memRepo := memory.NewPostgresRepository(pool)
	memSvc := memory.NewService(memRepo, ollama, cfg.Memory)
	var memAudit memory.AuditPublisher
	if publisher != nil {
		memAudit = publisher
	}
	memHandler := memory.NewHandler(memSvc, memAudit)
	shortTerm := memory.NewShortTermStore(redisClient, cfg.Memory.ShortTermMsgs, cfg.Memory.ShortTermTTLSec)

	backfiller := memory.NewBackfiller(memRepo, ollama, cfg.Memory.BackfillInterval)
	go backfiller.Run(ctx)

	// Chat
	var chatCache chat.ResponseCache
	if cache != nil {
		chatCache = cache
	}
	var interactionPub chat.InteractionPublisher
	if publisher != nil {
		interactionPub = publisher
	}
	chatSvc := chat.NewService(memSvc, shortTerm, ollama, chatCache, interactionPub, cfg.Ollama.Model)
	chatHandler := chat.NewHandler(chatSvc)

	// Vendors
	registry := vendors.NewRegistry()
	if a := vendors.NewBitrix24(cfg.Vendors.Bitrix24.BaseURL); a != nil {
		registry.Register(a)
	}
	if a := vendors.NewIXCSoft(cfg.Vendors.IXCSoft.BaseURL, cfg.Vendors.IXCSoft.Credential); a != nil {
		registry.Register(a)
	}
	if a := vendors.NewLocaweb(cfg.Vendors.Locaweb.BaseURL, cfg.Vendors.Locaweb.Credential); a != nil {
		registry.Register(a)
	}
	if a := vendors.NewFluctus(cfg.Vendors.Fluctus.BaseURL, cfg.Vendors.Fluctus.Credential); a != nil {
		registry.Register(a)
	}
	var vendorAudit vendors.AuditPublisher
	if publisher != nil {
		vendorAudit = publisher
	}
	vendorHandler := vendors.NewHandler(registry, func(ctx context.Context, userID, message string) (string, error) {
		result, err := chatSvc.Ask(ctx, userID, message)
		if err != nil {
			return "", err
		}
		if publisher != nil {
			if perr := publisher.PublishWebhook(ctx, "bitrix24", message); perr != nil {
				slog.Warn("publishing webhook event", "error", perr)
			}
		}
		return result.Response, nil
	}, vendorAudit)

	// Audit
	auditRepo := audit.NewRepository(pool)
	auditHandler := audit.NewHandler(auditRepo)
	if eventsClient != nil {
		consumerMgr := events.NewConsumerManager(eventsClient.JetStream())
		auditConsumer := audit.NewConsumer(auditRepo, consumerMgr)
		go func() {
			if err := auditConsumer.Start(ctx); err != nil {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Rate limiting
	rateLimiter := middleware.NewRateLimiter(redisClient, cfg.Rate.PerMinute, 60)

	// Router
	router := api.NewRouter(pool, redisClient, eventsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimiter:        rateLimiter.Middleware,
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		Chat: chatHandler.Chat,

		AddKnowledge:  memHandler.AddKnowledge,
		SearchContext: memHandler.Search,
		SaveMemory:    memHandler.SaveMemory,
		CleanMemory:   memHandler.Clean,
		MemoryStats:   memHandler.Stats,
		MemoryProfile: memHandler.Profile,

		ListIntegrations: vendorHandler.List,
		InvokeVendor:     vendorHandler.Invoke,
		Bitrix24Webhook:  vendorHandler.Bitrix24Webhook,

		ListAuditLogs: auditHandler.List,

		AuthMiddleware: auth.Middleware(authSvc),

		CheckInference: ollama.Ping,
		VendorNames:    registry.Names,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
