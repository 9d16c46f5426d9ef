// Package dialer places emergency calls on behalf of the countdown controller.
package dialer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/okian/ridesafe/internal/domain/emergency"
	"github.com/okian/ridesafe/pkg/logger"
)

// ErrCallRejected is returned when the call gateway answers with a non-2xx status.
var ErrCallRejected = errors.New("dialer: call rejected")

// LogDialer only records the call. It is the default when no gateway is configured.
type LogDialer struct {
	log logger.Logger
}

// NewLogDialer creates a LogDialer.
func NewLogDialer(l logger.Logger) *LogDialer {
	if l == nil {
		l = logger.Get().Named("dialer")
	}
	return &LogDialer{log: l}
}

// Dial logs the call request.
func (d *LogDialer) Dial(ctx context.Context, call emergency.Call) error {
	d.log.Warn(ctx, "emergency call requested",
		logger.String("number", call.Number),
		logger.String("episode", call.EpisodeID),
		logger.Float64("g", call.TriggerG),
		logger.String("reason", string(call.Reason)))
	return nil
}

// WebhookDialer POSTs the call as JSON to a telephony gateway.
type WebhookDialer struct {
	url    string
	client *http.Client
}

// NewWebhookDialer creates a WebhookDialer. A nil client uses http.DefaultClient;
// per-call deadlines come from the context.
func NewWebhookDialer(url string, client *http.Client) *WebhookDialer {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookDialer{url: url, client: client}
}

// Dial sends the call request.
func (d *WebhookDialer) Dial(ctx context.Context, call emergency.Call) error {
	body, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("marshal call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", call.EpisodeID)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrCallRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
