package vendors

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Fluctus exposes network management operations (links, monitoring) behind a
// bearer token.
type Fluctus struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewFluctus creates the network adapter, or nil when unconfigured.
func NewFluctus(baseURL, apiKey string) *Fluctus {
	if baseURL == "" {
		return nil
	}
	return &Fluctus{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    newVendorHTTPClient(),
	}
}

func (f *Fluctus) Name() string { return "fluctus" }

func (f *Fluctus) Invoke(ctx context.Context, action string, params map[string]any) (*Envelope, error) {
	if action == "" {
		return nil, fmt.Errorf("action is required")
	}

	headers := map[string]string{"Authorization": "Bearer " + f.apiKey}
	method := http.MethodPost
	var body any = params
	if len(params) == 0 {
		method = http.MethodGet
		body = nil
	}

	url := f.baseURL + "/api/" + action
	data, err := doJSON(ctx, f.http, method, url, headers, body)
	if err != nil {
		return nil, fmt.Errorf("fluctus %s: %w", action, err)
	}
	return &Envelope{Status: "success", Message: action + " executed", Data: data}, nil
}

func (f *Fluctus) Ping(ctx context.Context) error {
	_, err := doJSON(ctx, f.http, http.MethodGet, f.baseURL+"/api/health", map[string]string{"Authorization": "Bearer " + f.apiKey}, nil)
	return err
}
