// Package webhook posts enriched jobs to the caller-provided delivery URL.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/fairyhunter13/findajob/internal/domain"
)

const (
	maxAttempts     = 3
	initialInterval = time.Second
	multiplier      = 2
)

// Emitter implements domain.Emitter over plain HTTP POST. Deliveries carry no
// deduplication key; idempotency is the receiver's concern.
type Emitter struct {
	hc       *http.Client
	interval time.Duration
}

// New builds an Emitter with the given per-POST transport timeout.
func New(timeout time.Duration) *Emitter {
	return &Emitter{hc: &http.Client{Timeout: timeout}, interval: initialInterval}
}

// Deliver posts one enriched record as JSON. Failed posts are retried with
// jittered exponential backoff; after the last attempt the error wraps
// ErrWebhook so the pipeline counts it as a delivery failure.
func (e *Emitter) Deliver(ctx domain.Context, webhookURL string, job domain.EnrichedJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: marshal job %s: %v", domain.ErrInternal, job.JobID, err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = e.interval
	expo.Multiplier = multiplier

	// One delivery id across all attempts so the receiver can dedupe retries.
	deliveryID := uuid.New().String()

	attempt := 0
	operation := func() error {
		attempt++
		if err := e.post(ctx, webhookURL, deliveryID, body); err != nil {
			slog.Warn("webhook delivery attempt failed",
				slog.String("job_id", job.JobID),
				slog.String("delivery_id", deliveryID),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return err
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, maxAttempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("%w: job %s after %d attempts: %v", domain.ErrWebhook, job.JobID, attempt, err)
	}

	slog.Info("job delivered",
		slog.String("job_id", job.JobID),
		slog.Int("attempts", attempt))
	return nil
}

func (e *Emitter) post(ctx domain.Context, webhookURL, deliveryID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", deliveryID)

	resp, err := e.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

var _ domain.Emitter = (*Emitter)(nil)
