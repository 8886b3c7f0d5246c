//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat_PersistsInteraction(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("chat-%d@test.com", uniqueID())
	RegisterUser(t, env, email, "password123")
	token := LoginUser(t, env, email, "password123")

	userID := fmt.Sprintf("chatuser-%d", uniqueID())

	resp := DoRequest(t, env, "POST", "/api/v1/chat", map[string]any{
		"user_id": userID,
		"message": "Qual o status do meu contrato?",
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, "resposta de teste", data["response"])
	assert.Equal(t, "test-model", data["model"])
	assert.Equal(t, false, data["cached"])
	assert.Contains(t, data, "response_time")

	// The exchange landed in durable memory.
	resp = DoRequest(t, env, "GET", "/api/v1/memory/profile/"+userID, nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(1), profile["interaction_count"])
}

func TestChat_ValidatesInput(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("chatval-%d@test.com", uniqueID())
	RegisterUser(t, env, email, "password123")
	token := LoginUser(t, env, email, "password123")

	resp := DoRequest(t, env, "POST", "/api/v1/chat", map[string]any{"message": "oi"}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = DoRequest(t, env, "POST", "/api/v1/chat", map[string]any{"user_id": "x"}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhook_Bitrix24RunsPipeline(t *testing.T) {
	env := SetupTestEnv(t)

	payload := map[string]any{
		"event": "ONCRMLEADADD",
		"data":  map[string]any{"FIELDS": map[string]any{"ID": "77"}},
	}
	// Webhook endpoint is public: vendors cannot authenticate with our JWTs.
	resp := DoRequest(t, env, "POST", "/api/v1/webhooks/bitrix24", payload, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, true, data["processed"])
	assert.Equal(t, "ONCRMLEADADD", data["event"])
	assert.NotEmpty(t, data["ai_analysis"])
}

func TestIntegrations_EmptyRegistry(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("integ-%d@test.com", uniqueID())
	RegisterUser(t, env, email, "password123")
	token := LoginUser(t, env, email, "password123")

	resp := DoRequest(t, env, "GET", "/api/v1/integrations", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Empty(t, data["integrations"])
}
