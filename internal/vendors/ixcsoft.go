package vendors

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// IXCSoft manages ISP operations (clients, contracts, support tickets).
// The API authenticates with a Basic token and selects list/insert behavior
// via the ixcsoft header.
type IXCSoft struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewIXCSoft creates the ISP adapter, or nil when unconfigured.
func NewIXCSoft(baseURL, token string) *IXCSoft {
	if baseURL == "" {
		return nil
	}
	return &IXCSoft{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    newVendorHTTPClient(),
	}
}

func (i *IXCSoft) Name() string { return "ixcsoft" }

func (i *IXCSoft) Invoke(ctx context.Context, action string, params map[string]any) (*Envelope, error) {
	if action == "" {
		return nil, fmt.Errorf("action is required")
	}

	headers := map[string]string{
		"Authorization": "Basic " + i.token,
		"ixcsoft":       "listar",
	}
	if mode, ok := params["ixcsoft"].(string); ok {
		headers["ixcsoft"] = mode
		delete(params, "ixcsoft")
	}

	url := i.baseURL + "/webservice/v1/" + action
	data, err := doJSON(ctx, i.http, http.MethodPost, url, headers, params)
	if err != nil {
		return nil, fmt.Errorf("ixcsoft %s: %w", action, err)
	}
	return &Envelope{Status: "success", Message: action + " executed", Data: data}, nil
}

func (i *IXCSoft) Ping(ctx context.Context) error {
	_, err := i.Invoke(ctx, "cliente", map[string]any{"qtd": 1, "page": 1})
	return err
}
