package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrSinkQueueFull is returned when the webhook queue cannot accept an entry.
var ErrSinkQueueFull = errors.New("safety webhook queue full")

// WebhookConfig configures the audit webhook sink.
type WebhookConfig struct {
	URL        string
	AuthHeader string
	AuthValue  string
	Timeout    time.Duration
	MaxRetries uint64
	QueueSize  int
}

// WebhookSink posts safety entries to an external collector off the request path.
// Entries are queued and dropped when the queue is full.
type WebhookSink struct {
	url        string
	authHeader string
	authValue  string
	maxRetries uint64
	baseDelay  time.Duration
	client     *http.Client
	queue      chan Entry

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebhookSink creates a sink from config. It returns nil when no URL is set.
func NewWebhookSink(cfg WebhookConfig) *WebhookSink {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	return &WebhookSink{
		url:        url,
		authHeader: strings.TrimSpace(cfg.AuthHeader),
		authValue:  strings.TrimSpace(cfg.AuthValue),
		maxRetries: cfg.MaxRetries,
		baseDelay:  200 * time.Millisecond,
		client:     &http.Client{Timeout: timeout},
		queue:      make(chan Entry, size),
	}
}

// Emit enqueues the entry without blocking.
func (w *WebhookSink) Emit(_ context.Context, entry Entry) error {
	if w == nil {
		return nil
	}
	select {
	case w.queue <- entry:
		return nil
	default:
		return ErrSinkQueueFull
	}
}

// Start launches the delivery worker. It drains the queue until ctx is done.
func (w *WebhookSink) Start(ctx context.Context) {
	if w == nil {
		return
	}
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case entry := <-w.queue:
					if err := w.deliver(ctx, entry); err != nil && !errors.Is(err, context.Canceled) {
						slog.Warn("safety webhook delivery failed",
							slog.String("id", entry.ID.String()),
							slog.String("error", err.Error()))
					}
				}
			}
		}()
	})
}

// Wait blocks until the worker exits.
func (w *WebhookSink) Wait() {
	if w == nil {
		return
	}
	w.wg.Wait()
}

func (w *WebhookSink) deliver(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	backoff := retry.WithMaxRetries(w.maxRetries, retry.NewFibonacci(w.baseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if w.authHeader != "" && w.authValue != "" {
			req.Header.Set(w.authHeader, w.authValue)
		}
		resp, err := w.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return retry.RetryableError(fmt.Errorf("webhook status %s", resp.Status))
		case resp.StatusCode >= 400:
			return fmt.Errorf("webhook status %s", resp.Status)
		}
		return nil
	})
}
