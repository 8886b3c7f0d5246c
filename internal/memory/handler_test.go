package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobot-platform/autobot/internal/events"
)

type capturingAudit struct {
	events []events.AuditEvent
}

func (c *capturingAudit) PublishAudit(_ context.Context, event events.AuditEvent) error {
	c.events = append(c.events, event)
	return nil
}

func cleanRequest(body string) *http.Request {
	return httptest.NewRequest("POST", "/memory/clean", strings.NewReader(body))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data
}

func TestClean_DefaultsToRetentionWindow(t *testing.T) {
	svc, repo, _ := newTestService()
	h := NewHandler(svc, nil)
	ctx := context.Background()

	old, err := svc.SaveInteraction(ctx, "joao", "pergunta antiga", "resposta", "")
	require.NoError(t, err)
	repo.mu.Lock()
	repo.conversations[old.ID].CreatedAt = time.Now().AddDate(0, 0, -60)
	repo.mu.Unlock()
	recent, err := svc.SaveInteraction(ctx, "joao", "pergunta recente", "resposta", "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Clean(rec, cleanRequest(""))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, float64(30), data["days"])
	assert.Equal(t, float64(1), data["removed"])

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Nil(t, repo.conversations[old.ID])
	assert.NotNil(t, repo.conversations[recent.ID])
}

func TestClean_ExplicitZeroPrunesEverything(t *testing.T) {
	svc, repo, _ := newTestService()
	h := NewHandler(svc, nil)
	ctx := context.Background()

	_, err := svc.SaveInteraction(ctx, "joao", "pergunta de hoje", "resposta", "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Clean(rec, cleanRequest(`{"days":0}`))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, float64(0), data["days"])
	assert.Equal(t, float64(1), data["removed"])

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Empty(t, repo.conversations)
}

func TestClean_RejectsNegativeDays(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc, nil)

	rec := httptest.NewRecorder()
	h.Clean(rec, cleanRequest(`{"days":-1}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClean_EmitsAuditEvent(t *testing.T) {
	svc, _, _ := newTestService()
	capt := &capturingAudit{}
	h := NewHandler(svc, capt)

	rec := httptest.NewRecorder()
	h.Clean(rec, cleanRequest(`{"days":15}`))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, capt.events, 1)
	evt := capt.events[0]
	assert.Equal(t, "memory_cleaned", evt.EventType)
	assert.Equal(t, "conversations", evt.ResourceType)
	assert.Equal(t, "retention-15d", evt.ResourceID)
	assert.Equal(t, "dashboard", evt.Actor)
	assert.Contains(t, evt.Details, "15 dias")
}
