package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fuomag9/onlinetracker/internal/models"
)

type webhookConfig struct {
	URL         string            `mapstructure:"webhook_url"`
	Method      string            `mapstructure:"method"`
	ContentType string            `mapstructure:"content_type"`
	Headers     map[string]string `mapstructure:"headers"`
}

func (c *webhookConfig) check() error {
	if c.URL == "" {
		return errors.New("webhook_url is required")
	}
	if c.Method == "" {
		c.Method = http.MethodPost
	}
	if c.ContentType == "" {
		c.ContentType = "application/json"
	}
	return nil
}

// WebhookProvider posts the alert message as JSON to an operator endpoint
type WebhookProvider struct {
	client *http.Client
}

func init() {
	RegisterProvider(&WebhookProvider{client: &http.Client{Timeout: 10 * time.Second}})
}

func (w *WebhookProvider) Name() string {
	return "webhook"
}

func (w *WebhookProvider) Send(ctx context.Context, notification *models.Notification, message *Message) error {
	var cfg webhookConfig
	if err := decodeChannelConfig(notification.Config, &cfg); err != nil {
		return err
	}
	if err := cfg.check(); err != nil {
		return err
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("invalid webhook request: %w", err)
	}
	req.Header.Set("Content-Type", cfg.ContentType)
	req.Header.Set("User-Agent", "OnlineTracker/1.0")
	req.Header.Set("X-OnlineTracker-Event", message.Kind)
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery to %s failed: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook %s answered %s", req.URL.Host, resp.Status)
	}
	return nil
}

func (w *WebhookProvider) Validate(config map[string]interface{}) error {
	var cfg webhookConfig
	if err := decodeChannelConfig(config, &cfg); err != nil {
		return err
	}
	return cfg.check()
}
