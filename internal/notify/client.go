// Package notify provides a webhook client for posting household
// notifications to a Mattermost-compatible chat channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hholt/choreboard/internal/config"
	"github.com/hholt/choreboard/pkg/logger"
)

// Client handles chat webhook notifications.
type Client struct {
	webhookURL string
	channel    string
	username   string
	enabled    bool
	log        *logger.Logger
}

// NewClient creates a new notification client.
func NewClient(cfg *config.NotifyConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		username:   cfg.Username,
		enabled:    cfg.Enabled,
		log:        log,
	}
}

// Message represents a webhook message payload.
type Message struct {
	Channel  string `json:"channel,omitempty"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
}

// SendMessage posts a message to the configured webhook.
func (c *Client) SendMessage(msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Notifications are disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}
	if msg.Username == "" {
		msg.Username = c.username
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent webhook message")

	return nil
}

// SendSimpleMessage sends a plain text message.
func (c *Client) SendSimpleMessage(text string) error {
	return c.SendMessage(&Message{
		Text: text,
	})
}

// SendSweepSummary announces the outcome of an overdue sweep. Sweeps
// that applied no penalties stay quiet.
func (c *Client) SendSweepSummary(applied int, spendReset bool) error {
	if applied == 0 && !spendReset {
		c.log.Debug().Msg("Nothing swept, skipping sweep summary")
		return nil
	}

	text := fmt.Sprintf("### Chore sweep\n\n**%d** overdue task(s) had their penalty applied.\n", applied)
	if spendReset {
		text += "\nThe instant-purchase spend counter was reset for the new period.\n"
	}

	return c.SendMessage(&Message{
		Text: text,
	})
}
