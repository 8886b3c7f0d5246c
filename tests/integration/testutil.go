//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/autobot-platform/autobot/internal/api"
	"github.com/autobot-platform/autobot/internal/audit"
	"github.com/autobot-platform/autobot/internal/auth"
	"github.com/autobot-platform/autobot/internal/chat"
	"github.com/autobot-platform/autobot/internal/config"
	"github.com/autobot-platform/autobot/internal/memory"
	"github.com/autobot-platform/autobot/internal/users"
	"github.com/autobot-platform/autobot/internal/vendors"
)

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	MemorySvc   *memory.Service
	Embedder    *fakeEmbedder
}

var (
	testEnv *TestEnv
	counter int64
)

func uniqueID() int64 {
	return atomic.AddInt64(&counter, 1)
}

// fakeEmbedder is a deterministic stand-in for the Ollama embedding model.
// Fail can be toggled to exercise the pending/backfill path.
type fakeEmbedder struct {
	Fail atomic.Bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.Fail.Load() {
		return nil, fmt.Errorf("embedding model unreachable")
	}
	vec := make([]float32, 768)
	for i, r := range text {
		vec[(i*31+int(r))%768] += 1
	}
	vec[0] += 1
	return vec, nil
}

// fakeGenerator echoes a canned answer so chat flows run without Ollama.
type fakeGenerator struct{}

func (fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return "resposta de teste", nil
}

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:0.8.1-pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "autobot_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/autobot_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	m, err := migrate.New(
		fmt.Sprintf("file://%s", getMigrationsPath()),
		dsn,
	)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	// Auth
	jwtManager := auth.NewJWTManager("test-access-secret-32-chars-long!!", "test-refresh-secret-32-chars-long!!", 15*time.Minute, 7*24*time.Hour)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Memory with a deterministic embedder instead of Ollama
	embedder := &fakeEmbedder{}
	memCfg := config.MemoryConfig{
		RetentionDays:   30,
		SearchLimit:     5,
		UserBoost:       0.1,
		ShortTermMsgs:   20,
		ShortTermTTLSec: 3600,
	}
	memRepo := memory.NewPostgresRepository(pool)
	memSvc := memory.NewService(memRepo, embedder, memCfg)
	memHandler := memory.NewHandler(memSvc, nil)
	shortTerm := memory.NewShortTermStore(redisClient, memCfg.ShortTermMsgs, memCfg.ShortTermTTLSec)

	// Chat with a canned generator, no cache, no events
	chatSvc := chat.NewService(memSvc, shortTerm, fakeGenerator{}, nil, nil, "test-model")
	chatHandler := chat.NewHandler(chatSvc)

	// Vendors: empty registry, webhook wired to the chat pipeline
	registry := vendors.NewRegistry()
	vendorHandler := vendors.NewHandler(registry, func(ctx context.Context, userID, message string) (string, error) {
		result, err := chatSvc.Ask(ctx, userID, message)
		if err != nil {
			return "", err
		}
		return result.Response, nil
	}, nil)

	auditRepo := audit.NewRepository(pool)
	auditHandler := audit.NewHandler(auditRepo)

	router := api.NewRouter(pool, redisClient, nil, api.RouterConfig{}, api.HandlerSet{
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
		VendorNames:    registry.Names,
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      server,
		MemorySvc:   memSvc,
		Embedder:    embedder,
	}

	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

func RegisterUser(t *testing.T, env *TestEnv, email, password string) map[string]any {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: status %d", resp.StatusCode)
	}
	return ParseResponse(t, resp)
}

func LoginUser(t *testing.T, env *TestEnv, email, password string) string {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/login", body, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	return data["access_token"].(string)
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
