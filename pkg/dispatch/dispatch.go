// Package dispatch fans a change event out to every matching subscriber.
package dispatch

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/cuemby/wikifeed/pkg/log"
	"github.com/cuemby/wikifeed/pkg/metrics"
	"github.com/cuemby/wikifeed/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultDeliveryTimeout bounds a single delivery
	DefaultDeliveryTimeout = 10 * time.Second

	// DefaultMaxConcurrency bounds parallel deliveries for one event
	DefaultMaxConcurrency = 8
)

// Deliverer sends one event to one subscriber
type Deliverer interface {
	Deliver(ctx context.Context, subscriberID types.SubscriberID, event *types.ChangeEvent) error
}

// DelivererFunc adapts a function to Deliverer
type DelivererFunc func(ctx context.Context, subscriberID types.SubscriberID, event *types.ChangeEvent) error

// Deliver calls f
func (f DelivererFunc) Deliver(ctx context.Context, subscriberID types.SubscriberID, event *types.ChangeEvent) error {
	return f(ctx, subscriberID, event)
}

// Snapshotter is the read side of the subscription registry
type Snapshotter interface {
	Snapshot() []types.Subscription
}

// FailureHandler is told about every failed delivery
type FailureHandler func(err *errors.DeliveryError)

// Result summarizes one Dispatch call
type Result struct {
	Matched   []types.SubscriberID
	Delivered []types.SubscriberID
	Failed    []types.SubscriberID
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithDeliveryTimeout sets the per-delivery timeout
func WithDeliveryTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithMaxConcurrency sets how many deliveries of one event may run at once
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxConcurrency = n
		}
	}
}

// WithFailureHandler registers a callback for failed deliveries
func WithFailureHandler(fn FailureHandler) Option {
	return func(d *Dispatcher) {
		d.onFailure = fn
	}
}

// Dispatcher matches events against the registry and delivers them
type Dispatcher struct {
	registry       Snapshotter
	deliverer      Deliverer
	timeout        time.Duration
	maxConcurrency int
	onFailure      FailureHandler
	logger         zerolog.Logger
}

// New creates a dispatcher
func New(registry Snapshotter, deliverer Deliverer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:       registry,
		deliverer:      deliverer,
		timeout:        DefaultDeliveryTimeout,
		maxConcurrency: DefaultMaxConcurrency,
		logger:         log.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Match returns the ids of subscriptions that want event, sorted
func Match(subs []types.Subscription, event *types.ChangeEvent) []types.SubscriberID {
	var ids []types.SubscriberID
	for _, sub := range subs {
		if sub.Matches(event) {
			ids = append(ids, sub.SubscriberID)
		}
	}
	slices.Sort(ids)
	return ids
}

// Dispatch delivers event to every matching subscriber, each at most once.
// Deliveries run concurrently and Dispatch returns when all of them have
// finished or timed out. A failing or panicking delivery is logged and
// never affects the other subscribers or the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, event *types.ChangeEvent) Result {
	matched := Match(d.registry.Snapshot(), event)
	metrics.DispatchMatches.Observe(float64(len(matched)))

	result := Result{Matched: matched}
	if len(matched) == 0 {
		return result
	}

	var mu sync.Mutex
	// errgroup only bounds concurrency here; delivery errors are collected
	// per subscriber and never cancel siblings.
	var g errgroup.Group
	g.SetLimit(d.maxConcurrency)

	for _, id := range matched {
		g.Go(func() error {
			err := d.deliver(ctx, id, event)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, id)
			} else {
				result.Delivered = append(result.Delivered, id)
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(result.Delivered)
	slices.Sort(result.Failed)
	return result
}

func (d *Dispatcher) deliver(ctx context.Context, id types.SubscriberID, event *types.ChangeEvent) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.DeliveryDuration)

		if err == nil {
			metrics.DeliveriesTotal.WithLabelValues(metrics.DeliveryOK).Inc()
			return
		}

		metrics.DeliveriesTotal.WithLabelValues(metrics.DeliveryFailed).Inc()
		derr := errors.NewDeliveryError(id.String(), err)
		d.logger.Warn().
			Err(err).
			Str("subscriber_id", id.String()).
			Str("source_id", event.SourceID).
			Str("kind", event.Kind).
			Str("title", event.SubjectTitle).
			Msg("Delivery failed")
		if d.onFailure != nil {
			d.onFailure(derr)
		}
		err = derr
	}()

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("panic: %v", r)
			}
		}()
		errCh <- d.deliverer.Deliver(ctx, id, event)
	}()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
		// The deliverer ignored its context; abandon it.
		return fmt.Errorf("delivery timed out after %s: %w", d.timeout, ctx.Err())
	}
}
