// Package notify delivers job completion callbacks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-worker/internal/model"
	"github.com/sells-group/enrichment-worker/internal/resilience"
)

// Notification is the callback payload sent when a job reaches a terminal
// state.
type Notification struct {
	JobID     int64           `json:"job_id"`
	SearchID  string          `json:"search_id"`
	Status    model.JobStatus `json:"status"`
	Processed int             `json:"processed"`
	Total     int             `json:"total"`
	Error     string          `json:"error,omitempty"`
}

// Notifier sends a Notification. Delivery is attempted once.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Callback POSTs notifications as JSON with a bearer token.
type Callback struct {
	url    string
	secret string
	client *http.Client
}

// Option configures a Callback.
type Option func(*Callback)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cb *Callback) {
		if c != nil {
			cb.client = c
		}
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cb *Callback) {
		if d > 0 {
			cb.client.Timeout = d
		}
	}
}

// NewCallback creates a Callback targeting url. An empty url disables
// delivery.
func NewCallback(url, secret string, opts ...Option) *Callback {
	cb := &Callback{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(cb)
	}
	return cb
}

// Notify posts n to the callback URL. Non-2xx responses are errors.
func (c *Callback) Notify(ctx context.Context, n Notification) error {
	if c.url == "" {
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return eris.Wrap(err, "notify: marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create callback request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: callback request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resilience.NewStatusError("callback", resp.StatusCode, body)
	}

	zap.L().Info("notify: callback sent",
		zap.Int64("job_id", n.JobID),
		zap.String("status", string(n.Status)),
	)
	return nil
}
