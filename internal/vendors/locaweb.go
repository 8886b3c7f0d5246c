package vendors

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Locaweb covers hosting operations (domains, sites, invoices) behind an
// API-key header.
type Locaweb struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewLocaweb creates the hosting adapter, or nil when unconfigured.
func NewLocaweb(baseURL, apiKey string) *Locaweb {
	if baseURL == "" {
		return nil
	}
	return &Locaweb{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    newVendorHTTPClient(),
	}
}

func (l *Locaweb) Name() string { return "locaweb" }

func (l *Locaweb) Invoke(ctx context.Context, action string, params map[string]any) (*Envelope, error) {
	if action == "" {
		return nil, fmt.Errorf("action is required")
	}

	headers := map[string]string{"X-Api-Key": l.apiKey}
	method := http.MethodPost
	var body any = params
	if len(params) == 0 {
		method = http.MethodGet
		body = nil
	}

	url := l.baseURL + "/v1/" + action
	data, err := doJSON(ctx, l.http, method, url, headers, body)
	if err != nil {
		return nil, fmt.Errorf("locaweb %s: %w", action, err)
	}
	return &Envelope{Status: "success", Message: action + " executed", Data: data}, nil
}

func (l *Locaweb) Ping(ctx context.Context) error {
	_, err := doJSON(ctx, l.http, http.MethodGet, l.baseURL+"/v1/status", map[string]string{"X-Api-Key": l.apiKey}, nil)
	return err
}
