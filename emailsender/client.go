package emailsender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"yipfoundation/config"
)

const DefaultEndpoint = "https://api.brevo.com/v3/smtp/email"

var (
	ErrNoAPIKey    = errors.New("email api key not configured")
	ErrNoRecipient = errors.New("email has no recipient")
)

// Client sends transactional email through the Brevo API.
type Client struct {
	APIKey   string
	Endpoint string
	Sender   Contact
	ReplyTo  Contact
	HTTP     *http.Client
	// Limiter paces requests to stay under the provider's rate limit.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// NewClient builds a client from the loaded configuration.
func NewClient(cfg config.Config) *Client {
	return &Client{
		APIKey:   cfg.BrevoAPIKey,
		Endpoint: DefaultEndpoint,
		Sender:   Contact{Name: cfg.SenderName, Email: cfg.SenderEmail},
		ReplyTo:  Contact{Name: cfg.ReplyName, Email: cfg.ReplyEmail},
		HTTP:     &http.Client{Timeout: 15 * time.Second},
		Limiter:  rate.NewLimiter(rate.Limit(cfg.EmailRatePerSec), 1),
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.APIKey != ""
}

// Send posts msg and returns the provider message id.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if !c.Configured() {
		return "", ErrNoAPIKey
	}
	if len(msg.To) == 0 {
		return "", ErrNoRecipient
	}

	payload := EmailData{
		Sender:          c.Sender,
		Subject:         msg.Subject,
		HTMLContent:     msg.HTML,
		MessageVersions: []MessageVersion{{To: msg.To}},
		Attachment:      msg.Attachments,
	}
	if msg.From != nil {
		payload.Sender = *msg.From
	}
	if c.ReplyTo.Email != "" {
		replyTo := c.ReplyTo
		payload.ReplyTo = &replyTo
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}
	return c.request(ctx, b)
}

func (c *Client) request(ctx context.Context, payload []byte) (string, error) {
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", c.APIKey)

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if readErr != nil {
			return "", fmt.Errorf("API error (status %d): read body: %w", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	// Delivery was accepted from here on; the message id is informational.
	if readErr != nil {
		c.logger().Warn("email accepted but response unreadable", "status", resp.StatusCode, "error", readErr)
		return "", nil
	}
	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		c.logger().Warn("email accepted but response not decoded", "status", resp.StatusCode, "error", err)
		return "", nil
	}
	if out.MessageID != "" {
		return out.MessageID, nil
	}
	if len(out.MessageIDs) > 0 {
		return out.MessageIDs[0], nil
	}
	return "", nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
