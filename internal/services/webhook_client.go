package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/company-marketplace/backend/internal/events"
	"go.uber.org/zap"
)

// WebhookClient delivers moderation notifications to an external endpoint
// (chat bot, mailer) that knows how to reach the recipient.
type WebhookClient struct {
	url        string
	httpClient *http.Client
	log        *zap.Logger
}

func NewWebhookClient(url string, log *zap.Logger) *WebhookClient {
	return &WebhookClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

type webhookNotification struct {
	Event      string `json:"event"`
	Recipient  string `json:"recipient"`
	Text       string `json:"text"`
	ChangeID   string `json:"change_id,omitempty"`
	ChangeType string `json:"change_type,omitempty"`
	CompanyID  string `json:"company_id,omitempty"`
}

// Forward posts event to the webhook. Events without a recipient are
// dropped.
func (c *WebhookClient) Forward(ctx context.Context, event events.Event) error {
	n := webhookNotification{Event: event.Type}
	n.Recipient, _ = event.Payload["recipient"].(string)
	if n.Recipient == "" {
		c.log.Debug("dropping event without recipient", zap.String("type", event.Type))
		return nil
	}
	n.Text, _ = event.Payload["text"].(string)
	if n.Text == "" {
		n.Text = fmt.Sprintf("Event: %s", event.Type)
	}
	n.ChangeID, _ = event.Payload["change_id"].(string)
	n.ChangeType, _ = event.Payload["change_type"].(string)
	n.CompanyID, _ = event.Payload["company_id"].(string)

	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification webhook unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification webhook returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
