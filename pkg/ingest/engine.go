// Package ingest ties the stream, the normalizer and the dispatcher into
// one pipeline: every message record read from the stream is normalized
// and, if well formed, dispatched to its subscribers before the next record
// is read.
package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cuemby/wikifeed/pkg/dispatch"
	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/cuemby/wikifeed/pkg/events"
	"github.com/cuemby/wikifeed/pkg/log"
	"github.com/cuemby/wikifeed/pkg/metrics"
	"github.com/cuemby/wikifeed/pkg/normalize"
	"github.com/cuemby/wikifeed/pkg/stream"
	"github.com/cuemby/wikifeed/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Dispatcher delivers one event to its subscribers
type Dispatcher interface {
	Dispatch(ctx context.Context, event *types.ChangeEvent) dispatch.Result
}

// Config holds engine settings
type Config struct {
	Stream stream.Config

	// RateLimit caps events dispatched per second. Zero means unlimited.
	RateLimit float64
	Burst     int
}

// Stats is a point-in-time view of the engine counters
type Stats struct {
	Connected   bool      `json:"connected"`
	Records     uint64    `json:"records"`
	Malformed   uint64    `json:"malformed"`
	Dispatched  uint64    `json:"dispatched"`
	Delivered   uint64    `json:"delivered"`
	Failed      uint64    `json:"failed"`
	Connects    uint64    `json:"connects"`
	LastEventAt time.Time `json:"last_event_at,omitzero"`
}

// Engine runs the ingest pipeline
type Engine struct {
	stream     *stream.Manager
	dispatcher Dispatcher
	limiter    *rate.Limiter
	broker     *events.Broker
	logger     zerolog.Logger

	records    atomic.Uint64
	malformed  atomic.Uint64
	dispatched atomic.Uint64
	delivered  atomic.Uint64
	failed     atomic.Uint64
	connects   atomic.Uint64
	lastEvent  atomic.Int64
}

// New creates an engine. broker may be nil.
func New(cfg Config, dispatcher Dispatcher, broker *events.Broker) *Engine {
	e := &Engine{
		dispatcher: dispatcher,
		broker:     broker,
		logger:     log.WithComponent("ingest"),
	}

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	onConnected, onDisconnected := cfg.Stream.OnConnected, cfg.Stream.OnDisconnected
	cfg.Stream.OnConnected = func(url string) {
		e.connects.Add(1)
		e.publish(events.EventStreamConnected, "connected", map[string]string{"url": url})
		if onConnected != nil {
			onConnected(url)
		}
	}
	cfg.Stream.OnDisconnected = func(err error) {
		e.publish(events.EventStreamDisconnected, err.Error(), nil)
		if onDisconnected != nil {
			onDisconnected(err)
		}
	}
	e.stream = stream.NewManager(cfg.Stream)

	return e
}

// Run consumes the stream until ctx is cancelled and returns ctx.Err()
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Msg("Ingest engine started")
	err := e.stream.Run(ctx, func(record string) {
		e.handle(ctx, record)
	})
	e.logger.Info().Msg("Ingest engine stopped")
	return err
}

// Stats returns the current counters
func (e *Engine) Stats() Stats {
	s := Stats{
		Connected:  e.stream.Connected(),
		Records:    e.records.Load(),
		Malformed:  e.malformed.Load(),
		Dispatched: e.dispatched.Load(),
		Delivered:  e.delivered.Load(),
		Failed:     e.failed.Load(),
		Connects:   e.connects.Load(),
	}
	if ns := e.lastEvent.Load(); ns != 0 {
		s.LastEventAt = time.Unix(0, ns).UTC()
	}
	return s
}

func (e *Engine) handle(ctx context.Context, record string) {
	e.records.Add(1)

	event, err := normalize.Normalize(record)
	if err != nil {
		e.malformed.Add(1)
		metrics.RecordsTotal.WithLabelValues(metrics.RecordMalformed).Inc()

		reason := "unknown"
		var perr *errors.ParseError
		if errors.As(err, &perr) {
			reason = string(perr.Reason)
		}
		e.logger.Debug().Err(err).Str("reason", reason).Msg("Skipping malformed record")
		e.publish(events.EventRecordMalformed, err.Error(), map[string]string{"reason": reason})
		return
	}
	metrics.RecordsTotal.WithLabelValues(metrics.RecordAccepted).Inc()
	metrics.EventsTotal.WithLabelValues(event.Kind).Inc()
	e.lastEvent.Store(time.Now().UnixNano())

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			// Only fails on shutdown
			return
		}
	}

	result := e.dispatcher.Dispatch(ctx, event)
	e.dispatched.Add(1)
	e.delivered.Add(uint64(len(result.Delivered)))
	e.failed.Add(uint64(len(result.Failed)))

	for _, id := range result.Failed {
		e.publish(events.EventDeliveryFailed, "delivery to "+id.String()+" failed", map[string]string{
			"subscriber_id": id.String(),
			"source_id":     event.SourceID,
			"kind":          event.Kind,
		})
	}

	if len(result.Matched) > 0 {
		e.logger.Debug().
			Str("source_id", event.SourceID).
			Str("kind", event.Kind).
			Str("title", event.SubjectTitle).
			Int("matched", len(result.Matched)).
			Int("failed", len(result.Failed)).
			Msg("Event dispatched")
	}
}

func (e *Engine) publish(eventType events.EventType, message string, metadata map[string]string) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(events.NewEvent(eventType, message, metadata))
}
