package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notification is a single push message addressed to one device token.
type Notification struct {
	Token    string
	Title    string
	Body     string
	Icon     string
	Sound    string
	Tag      string
	Renotify bool
}

// Notifier defines the interface for a push-notification gateway.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Config holds the settings for the push gateway client.
type Config struct {
	Endpoint  string
	ServerKey string
	Timeout   time.Duration
}

type client struct {
	httpClient *http.Client
	endpoint   string
	serverKey  string
}

// NewClient creates a new push gateway client.
func NewClient(cfg Config) (Notifier, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("push gateway endpoint is required")
	}
	if cfg.ServerKey == "" {
		return nil, fmt.Errorf("push gateway server key is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   cfg.Endpoint,
		serverKey:  cfg.ServerKey,
	}, nil
}

type sendRequest struct {
	To           string              `json:"to"`
	Notification notificationPayload `json:"notification"`
}

type notificationPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Icon     string `json:"icon,omitempty"`
	Sound    string `json:"sound,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Renotify bool   `json:"renotify,omitempty"`
}

type sendResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		Error string `json:"error"`
	} `json:"results"`
}

// Send delivers one notification through the gateway.
func (c *client) Send(ctx context.Context, n Notification) error {
	if n.Token == "" {
		return fmt.Errorf("notification token is empty")
	}

	payload, err := json.Marshal(sendRequest{
		To: n.Token,
		Notification: notificationPayload{
			Title:    n.Title,
			Body:     n.Body,
			Icon:     n.Icon,
			Sound:    n.Sound,
			Tag:      n.Tag,
			Renotify: n.Renotify,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.serverKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read push response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var result sendResponse
	if err := json.Unmarshal(body, &result); err != nil {
		// Some gateways return an empty body on success.
		return nil
	}
	if result.Failure > 0 {
		reason := "unknown"
		if len(result.Results) > 0 && result.Results[0].Error != "" {
			reason = result.Results[0].Error
		}
		return fmt.Errorf("push gateway rejected message: %s", reason)
	}

	return nil
}
