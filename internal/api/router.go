package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/autobot-platform/autobot/internal/database"
	ievents "github.com/autobot-platform/autobot/internal/events"
	mw "github.com/autobot-platform/autobot/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth handlers
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	// Chat
	Chat http.HandlerFunc

	// Memory
	AddKnowledge  http.HandlerFunc
	SearchContext http.HandlerFunc
	SaveMemory    http.HandlerFunc
	CleanMemory   http.HandlerFunc
	MemoryStats   http.HandlerFunc
	MemoryProfile http.HandlerFunc

	// Vendor integrations
	ListIntegrations http.HandlerFunc
	InvokeVendor     http.HandlerFunc
	Bitrix24Webhook  http.HandlerFunc

	// Audit
	ListAuditLogs http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler

	// CheckInference pings the inference endpoint for /api/v1/status.
	CheckInference func(ctx context.Context) error

	// VendorNames lists the configured vendor adapters.
	VendorNames func() []string
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RateLimiter        func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, redisClient *redis.Client, eventsClient *ievents.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	statusHandler := func(w http.ResponseWriter, r *http.Request) {
		components := map[string]any{
			"database":  "healthy",
			"redis":     "healthy",
			"nats":      "healthy",
			"inference": "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			components["database"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}

		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			components["redis"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}

		if eventsClient != nil && !eventsClient.Healthy() {
			components["nats"] = "unhealthy"
			status = http.StatusServiceUnavailable
		} else if eventsClient == nil {
			components["nats"] = "not configured"
		}

		// Inference being down degrades chat but the API stays usable,
		// so it never flips the probe to 503.
		if h.CheckInference != nil {
			if err := h.CheckInference(r.Context()); err != nil {
				components["inference"] = "unreachable"
			}
		} else {
			components["inference"] = "not configured"
		}

		if h.VendorNames != nil {
			components["vendors"] = h.VendorNames()
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "degraded"
		}
		JSON(w, status, map[string]any{"status": overall, "components": components})
	}

	r.Get("/health/ready", statusHandler)
	r.Get("/health", statusHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter)
		}

		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		// Vendor webhooks are called by the vendors themselves, not the dashboard
		r.Post("/webhooks/bitrix24", h.Bitrix24Webhook)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Post("/chat", h.Chat)
			r.Post("/knowledge", h.AddKnowledge)
			r.Post("/search", h.SearchContext)

			r.Route("/memory", func(r chi.Router) {
				r.Post("/save", h.SaveMemory)
				r.Post("/clean", h.CleanMemory)
				r.Get("/stats", h.MemoryStats)
				r.Get("/profile/{userID}", h.MemoryProfile)
			})

			r.Route("/integrations", func(r chi.Router) {
				r.Get("/", h.ListIntegrations)
				r.Post("/{vendor}/invoke", h.InvokeVendor)
			})

			r.Get("/audit", h.ListAuditLogs)
			r.Get("/status", statusHandler)
		})
	})

	return r
}
