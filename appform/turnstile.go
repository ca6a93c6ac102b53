package appform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTurnstileEndpoint = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

type TurnstileResponse struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes,omitempty"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
}

// Turnstile verifies Cloudflare Turnstile tokens. An empty Secret turns
// verification off, which is how local development runs.
type Turnstile struct {
	Secret   string
	Endpoint string
	HTTP     *http.Client
}

func (t Turnstile) Enabled() bool {
	return t.Secret != ""
}

func (t Turnstile) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if !t.Enabled() {
		return true, nil
	}
	if strings.TrimSpace(token) == "" {
		return false, nil
	}
	form := url.Values{}
	form.Add("secret", t.Secret)
	form.Add("response", token)
	if remoteIP != "" {
		form.Add("remoteip", remoteIP)
	}

	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = DefaultTurnstileEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := t.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("turnstile request: %w", err)
	}
	defer resp.Body.Close()

	var result TurnstileResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("turnstile response: %w", err)
	}
	return result.Success, nil
}
