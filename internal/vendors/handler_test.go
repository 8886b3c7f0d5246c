package vendors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobot-platform/autobot/internal/events"
)

type stubAdapter struct {
	name    string
	invoke  func(action string, params map[string]any) (*Envelope, error)
	pingErr error
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Invoke(_ context.Context, action string, params map[string]any) (*Envelope, error) {
	return s.invoke(action, params)
}
func (s *stubAdapter) Ping(context.Context) error { return s.pingErr }

func testRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/integrations", h.List)
	r.Post("/integrations/{vendor}/invoke", h.Invoke)
	r.Post("/webhooks/bitrix24", h.Bitrix24Webhook)
	return r
}

func TestHandler_List(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubAdapter{name: "bitrix24"})
	reg.Register(&stubAdapter{name: "ixcsoft", pingErr: errors.New("down")})

	rec := httptest.NewRecorder()
	testRouter(NewHandler(reg, nil, nil)).ServeHTTP(rec, httptest.NewRequest("GET", "/integrations", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"bitrix24"`)
	assert.Contains(t, body, `"available"`)
	assert.Contains(t, body, `"unreachable"`)
}

func TestHandler_Invoke(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubAdapter{
		name: "ixcsoft",
		invoke: func(action string, params map[string]any) (*Envelope, error) {
			assert.Equal(t, "cliente", action)
			return &Envelope{Status: "success", Data: map[string]any{"total": float64(3)}}, nil
		},
	})

	req := httptest.NewRequest("POST", "/integrations/ixcsoft/invoke",
		strings.NewReader(`{"action":"cliente","params":{"qtd":3}}`))
	rec := httptest.NewRecorder()
	testRouter(NewHandler(reg, nil, nil)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success"`)
}

func TestHandler_InvokeUnknownVendor(t *testing.T) {
	req := httptest.NewRequest("POST", "/integrations/nope/invoke", strings.NewReader(`{"action":"x"}`))
	rec := httptest.NewRecorder()
	testRouter(NewHandler(NewRegistry(), nil, nil)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_InvokeUpstreamFailure(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubAdapter{
		name: "locaweb",
		invoke: func(string, map[string]any) (*Envelope, error) {
			return nil, errors.New("connection refused")
		},
	})

	req := httptest.NewRequest("POST", "/integrations/locaweb/invoke", strings.NewReader(`{"action":"domains"}`))
	rec := httptest.NewRecorder()
	testRouter(NewHandler(reg, nil, nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestHandler_InvokeMissingAction(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubAdapter{name: "fluctus"})

	req := httptest.NewRequest("POST", "/integrations/fluctus/invoke", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	testRouter(NewHandler(reg, nil, nil)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Bitrix24Webhook(t *testing.T) {
	var gotUser, gotPrompt string
	h := NewHandler(NewRegistry(), func(_ context.Context, userID, message string) (string, error) {
		gotUser = userID
		gotPrompt = message
		return "Sugiro entrar em contato com o lead em até 1 hora.", nil
	}, nil)

	payload := `{"event":"ONCRMLEADADD","data":{"FIELDS":{"ID":"42"}}}`
	req := httptest.NewRequest("POST", "/webhooks/bitrix24", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bitrix24_system", gotUser)
	assert.Contains(t, gotPrompt, "Novo lead")
	assert.Contains(t, gotPrompt, "42")

	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp.Data["processed"])
	assert.NotEmpty(t, resp.Data["ai_analysis"])
}

func TestHandler_Bitrix24WebhookMissingEvent(t *testing.T) {
	h := NewHandler(NewRegistry(), func(context.Context, string, string) (string, error) {
		t.Fatal("chat must not run for invalid payloads")
		return "", nil
	}, nil)

	req := httptest.NewRequest("POST", "/webhooks/bitrix24", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type capturingAudit struct {
	events []events.AuditEvent
}

func (c *capturingAudit) PublishAudit(_ context.Context, event events.AuditEvent) error {
	c.events = append(c.events, event)
	return nil
}

func TestHandler_Bitrix24WebhookEmitsAuditEvent(t *testing.T) {
	capt := &capturingAudit{}
	h := NewHandler(NewRegistry(), func(context.Context, string, string) (string, error) {
		return "análise registrada", nil
	}, capt)

	payload := `{"event":"ONCRMDEALUPDATE","data":{"FIELDS":{"ID":"7"}}}`
	req := httptest.NewRequest("POST", "/webhooks/bitrix24", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, capt.events, 1)
	evt := capt.events[0]
	assert.Equal(t, "webhook_processed", evt.EventType)
	assert.Equal(t, webhookUser, evt.Actor)
	assert.Equal(t, "ONCRMDEALUPDATE", evt.ResourceID)
	assert.Equal(t, "info", evt.Severity)
}
