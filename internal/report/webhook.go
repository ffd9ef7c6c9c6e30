package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"spreadwatch/internal/model"
)

const webhookTimeout = 10 * time.Second

// WebhookSink POSTs cycles whose spread meets a threshold.
type WebhookSink struct {
	url       string
	threshold decimal.Decimal
	client    *http.Client
}

// NewWebhookSink posts to rawURL when the spread reaches thresholdBps. An
// empty threshold posts every cycle.
func NewWebhookSink(rawURL, thresholdBps string, client *http.Client) (*WebhookSink, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook url %q", rawURL)
	}

	threshold := decimal.Zero
	if thresholdBps != "" {
		threshold, err = decimal.NewFromString(thresholdBps)
		if err != nil {
			return nil, fmt.Errorf("parse alert threshold: %w", err)
		}
		if threshold.IsNegative() {
			return nil, fmt.Errorf("alert threshold must not be negative: %s", thresholdBps)
		}
	}

	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	return &WebhookSink{url: rawURL, threshold: threshold, client: client}, nil
}

func (s *WebhookSink) Name() string { return SinkWebhook }

func (s *WebhookSink) Write(ctx context.Context, cycle model.Cycle) error {
	if cycle.SpreadBps.LessThan(s.threshold) {
		return nil
	}

	body, err := json.Marshal(cycle)
	if err != nil {
		return fmt.Errorf("marshal cycle: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
