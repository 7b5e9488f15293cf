package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/stockbook/internal/model"
)

// ErrUnauthorized means the server rejected the access token.
var ErrUnauthorized = errors.New("unauthorized")

// API is the server side of the in-app channel.
type API interface {
	Due(ctx context.Context) ([]model.Candidate, error)
	Confirm(ctx context.Context, c model.Candidate) error
}

// HTTPClient talks to the notifications API with a bearer token.
type HTTPClient struct {
	baseURL  string
	token    string
	http     *http.Client
	attempts uint64
	backoff  time.Duration
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		http:     &http.Client{Timeout: 10 * time.Second},
		attempts: 3,
		backoff:  200 * time.Millisecond,
	}
}

// Due fetches and claims the user's due notifications. Transport errors and
// 5xx responses are retried with exponential backoff. A retried fetch may
// have claimed on the server even though the response was lost.
func (c *HTTPClient) Due(ctx context.Context) ([]model.Candidate, error) {
	var out []model.Candidate
	b := retry.WithMaxRetries(c.attempts-1, retry.NewExponential(c.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodGet, "/api/notifications/due", nil)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return ErrUnauthorized
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("fetch due: status %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("fetch due: status %d", resp.StatusCode)
		}

		out = nil
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode due: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Confirm reports that c was rendered. It is not retried.
func (c *HTTPClient) Confirm(ctx context.Context, cand model.Candidate) error {
	body, err := json.Marshal(map[string]any{
		"transaction_id":    cand.TransactionID,
		"notification_type": cand.NotificationType,
		"scheduled_date":    cand.ScheduledDate,
	})
	if err != nil {
		return fmt.Errorf("marshal confirm: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/notifications/confirm", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("confirm: status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// WebSocketURL derives the nudge endpoint from the API base URL.
func (c *HTTPClient) WebSocketURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}
