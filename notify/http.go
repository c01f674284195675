package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultHTTPTimeout = 15 * time.Second

// HTTPDispatcher posts codes to an SMS gateway as JSON:
//
//	{"route": "otp", "numbers": "<digits>", "variables": "<code>", "sender": "..."}
//
// The API key goes in the Authorization header. Only the redacted
// destination and the response status are ever logged.
type HTTPDispatcher struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client

	logger *zap.Logger
}

// NewHTTPDispatcher returns a dispatcher for the gateway at baseURL.
func NewHTTPDispatcher(apiKey, baseURL, sender string, logger *zap.Logger) *HTTPDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPDispatcher{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger.Named("notify"),
	}
}

func (d *HTTPDispatcher) Send(ctx context.Context, msg Message) error {
	if d.APIKey == "" || d.BaseURL == "" {
		return fmt.Errorf("%w: gateway not configured", ErrDeliveryFailed)
	}

	body := map[string]string{
		"route":     "otp",
		"numbers":   digitsOnly(msg.Destination),
		"variables": msg.Code,
	}
	if d.Sender != "" {
		body["sender"] = d.Sender
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", d.APIKey)

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		d.logger.Warn("sms gateway unreachable", zap.String("destination", Redact(msg.Destination)))
		return fmt.Errorf("%w: gateway request failed", ErrDeliveryFailed)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Warn("sms gateway rejected delivery",
			zap.String("destination", Redact(msg.Destination)),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: gateway status %d", ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
