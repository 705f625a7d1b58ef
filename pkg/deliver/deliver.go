package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/cuemby/wikifeed/pkg/log"
	"github.com/cuemby/wikifeed/pkg/types"
	"github.com/rs/zerolog"
)

// LogDeliverer writes every delivery as a log line. It is the default
// transport when no webhook is configured.
type LogDeliverer struct {
	logger zerolog.Logger
}

// NewLogDeliverer creates a log deliverer
func NewLogDeliverer() *LogDeliverer {
	return &LogDeliverer{logger: log.WithComponent("deliver")}
}

// Deliver logs the formatted event
func (d *LogDeliverer) Deliver(ctx context.Context, id types.SubscriberID, event *types.ChangeEvent) error {
	d.logger.Info().
		Str("subscriber_id", id.String()).
		Str("source_id", event.SourceID).
		Str("kind", event.Kind).
		Str("title", event.SubjectTitle).
		Str("actor", event.Actor).
		Str("url", PageURL(event)).
		Msg("Change delivered")
	return nil
}

// WebhookPayload is the JSON body posted by WebhookDeliverer
type WebhookPayload struct {
	SubscriberID string    `json:"subscriber_id"`
	Source       string    `json:"source"`
	Kind         string    `json:"kind"`
	Title        string    `json:"title"`
	Actor        string    `json:"actor"`
	Text         string    `json:"text"`
	URL          string    `json:"url,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}

// WebhookDeliverer posts each delivery to an HTTP endpoint
type WebhookDeliverer struct {
	// URL receives a POST per delivery
	URL string

	// Headers are added to every request
	Headers map[string]string

	// Client is the HTTP client to use
	Client *http.Client
}

// NewWebhookDeliverer creates a webhook deliverer
func NewWebhookDeliverer(url string) *WebhookDeliverer {
	return &WebhookDeliverer{
		URL:     url,
		Headers: make(map[string]string),
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithHeader adds a custom HTTP header
func (w *WebhookDeliverer) WithHeader(key, value string) *WebhookDeliverer {
	w.Headers[key] = value
	return w
}

// WithTimeout sets the HTTP client timeout
func (w *WebhookDeliverer) WithTimeout(timeout time.Duration) *WebhookDeliverer {
	w.Client.Timeout = timeout
	return w
}

// Deliver posts the event; any non-2xx response is an error
func (w *WebhookDeliverer) Deliver(ctx context.Context, id types.SubscriberID, event *types.ChangeEvent) error {
	body, err := json.Marshal(WebhookPayload{
		SubscriberID: id.String(),
		Source:       event.SourceID,
		Kind:         event.Kind,
		Title:        event.SubjectTitle,
		Actor:        event.Actor,
		Text:         Format(event),
		URL:          PageURL(event),
		Timestamp:    event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range w.Headers {
		req.Header.Set(key, value)
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}

// Deliverer matches dispatch.Deliverer without importing it
type Deliverer interface {
	Deliver(ctx context.Context, id types.SubscriberID, event *types.ChangeEvent) error
}

// Multi delivers to every deliverer in turn and joins their errors
type Multi []Deliverer

// Deliver calls each deliverer, continuing past failures
func (m Multi) Deliver(ctx context.Context, id types.SubscriberID, event *types.ChangeEvent) error {
	var errs []error
	for _, d := range m {
		if err := d.Deliver(ctx, id, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
