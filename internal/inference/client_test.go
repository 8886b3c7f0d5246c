package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobot-platform/autobot/internal/config"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return NewClient(config.OllamaConfig{
		Host:        u.Hostname(),
		Port:        port,
		Model:       "llama3",
		EmbedModel:  "nomic-embed-text",
		Temperature: 0.7,
		TopP:        0.9,
		TopK:        40,
		NumCtx:      4096,
		Timeout:     5 * time.Second,
	})
}

func TestClient_Generate(t *testing.T) {
	var gotReq generateRequest
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(generateResponse{Response: "Olá! Como posso ajudar?", Done: true})
	}))

	answer, err := client.Generate(context.Background(), "Oi")
	require.NoError(t, err)
	assert.Equal(t, "Olá! Como posso ajudar?", answer)

	assert.Equal(t, "llama3", gotReq.Model)
	assert.Equal(t, "Oi", gotReq.Prompt)
	assert.False(t, gotReq.Stream)
	assert.InDelta(t, 0.7, gotReq.Options["temperature"], 1e-9)
	assert.InDelta(t, 0.9, gotReq.Options["top_p"], 1e-9)
	assert.EqualValues(t, 40, gotReq.Options["top_k"])
	assert.EqualValues(t, 4096, gotReq.Options["num_ctx"])
}

func TestClient_GenerateUpstreamError(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))

	_, err := client.Generate(context.Background(), "Oi")
	assert.Error(t, err)
}

func TestClient_Embed(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		json.NewEncoder(w).Encode(embeddingsResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))

	vec, err := client.Embed(context.Background(), "texto")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestClient_EmbedEmptyVector(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingsResponse{})
	}))

	_, err := client.Embed(context.Background(), "texto")
	assert.Error(t, err)
}

func TestClient_Ping(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	assert.NoError(t, client.Ping(context.Background()))

	down := NewClient(config.OllamaConfig{Host: "localhost", Port: 1, Timeout: 100 * time.Millisecond})
	assert.Error(t, down.Ping(context.Background()))
}
