package vendors

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Bitrix24 talks to a Bitrix24 inbound webhook URL. The URL already embeds
// the credential, so actions map to REST methods appended to it, e.g.
// crm.lead.get -> <webhook_url>/crm.lead.get.json.
type Bitrix24 struct {
	webhookURL string
	http       *http.Client
}

// NewBitrix24 creates the CRM adapter, or nil if no webhook URL is configured.
func NewBitrix24(webhookURL string) *Bitrix24 {
	if webhookURL == "" {
		return nil
	}
	return &Bitrix24{
		webhookURL: strings.TrimRight(webhookURL, "/"),
		http:       newVendorHTTPClient(),
	}
}

func (b *Bitrix24) Name() string { return "bitrix24" }

func (b *Bitrix24) Invoke(ctx context.Context, action string, params map[string]any) (*Envelope, error) {
	if action == "" {
		return nil, fmt.Errorf("action is required")
	}

	url := fmt.Sprintf("%s/%s.json", b.webhookURL, action)
	data, err := doJSON(ctx, b.http, http.MethodPost, url, nil, params)
	if err != nil {
		return nil, fmt.Errorf("bitrix24 %s: %w", action, err)
	}

	if errDesc, ok := data["error_description"].(string); ok && errDesc != "" {
		return &Envelope{Status: "error", Message: errDesc, Data: data}, nil
	}
	return &Envelope{Status: "success", Message: action + " executed", Data: data}, nil
}

func (b *Bitrix24) Ping(ctx context.Context) error {
	_, err := doJSON(ctx, b.http, http.MethodGet, b.webhookURL+"/user.current.json", nil, nil)
	return err
}
