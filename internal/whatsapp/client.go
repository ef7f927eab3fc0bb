// Package whatsapp is the client for the external messaging bridge that
// actually delivers automation messages. The engine treats the bridge as an
// opaque capability: send a text to a phone number, get back a message id.
// The bridge's own session, QR-pairing and retry concerns live outside this
// codebase.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/itgabriell/audicare-engine/internal/config"
	"github.com/itgabriell/audicare-engine/internal/pkg/httpretry"
	"github.com/itgabriell/audicare-engine/internal/pkg/logger"
)

// Sender is the capability the dispatcher depends on. Implementations must
// be safe for concurrent use.
type Sender interface {
	// Send delivers a rendered message to a phone number and returns the
	// bridge's message id. A non-nil error means this recipient failed;
	// callers record it and continue with the next recipient.
	Send(ctx context.Context, phone, message, displayName string) (string, error)
}

// Client is the HTTP client for the messaging bridge.
type Client struct {
	baseURL    string
	apiKey     string
	instance   string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a bridge client from config.
func NewClient(cfg config.WhatsAppConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		instance: cfg.Instance,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, cfg.MaxRetries),
	}
}

// Send posts a text message to the bridge.
func (c *Client) Send(ctx context.Context, phone, message, displayName string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("phone number is empty")
	}

	payload := sendTextRequest{Number: phone, Text: message}
	payload.Options.DisplayName = displayName

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling request body: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, c.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("bridge send failed", "phone", phone, "status", resp.StatusCode)
		return "", fmt.Errorf("bridge error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed sendTextResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("bridge rejected message: %s", parsed.Error)
	}

	logger.Debug("bridge send ok", "phone", phone, "message_id", parsed.messageID())
	return parsed.messageID(), nil
}
