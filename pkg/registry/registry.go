// Package registry holds the current set of subscriptions.
//
// Reads are lock free: the registry keeps an immutable map behind an atomic
// pointer and writers publish a modified copy. A snapshot therefore always
// reflects one point in time, and a subscription is never observed half
// written.
package registry

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/wikifeed/pkg/log"
	"github.com/cuemby/wikifeed/pkg/types"
	"github.com/rs/zerolog"
)

type table = map[types.SubscriberID]types.Subscription

// Registry maps subscriber ids to their subscription
type Registry struct {
	current atomic.Pointer[table]

	mu       sync.Mutex // serializes writers
	onChange []func(count int)
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates an empty registry
func New() *Registry {
	r := &Registry{
		logger: log.WithComponent("registry"),
		now:    time.Now,
	}
	empty := make(table)
	r.current.Store(&empty)
	return r
}

// OnChange registers a hook called with the new subscription count after
// every write. Hooks run on the writer's goroutine.
func (r *Registry) OnChange(fn func(count int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Snapshot returns every subscription at a single point in time, in no
// particular order. The returned slice is owned by the caller.
func (r *Registry) Snapshot() []types.Subscription {
	t := *r.current.Load()
	subs := make([]types.Subscription, 0, len(t))
	for _, sub := range t {
		subs = append(subs, sub.Clone())
	}
	return subs
}

// Get returns the subscription for id
func (r *Registry) Get(id types.SubscriberID) (types.Subscription, bool) {
	sub, ok := (*r.current.Load())[id]
	if !ok {
		return types.Subscription{}, false
	}
	return sub.Clone(), true
}

// Len returns the number of subscriptions
func (r *Registry) Len() int {
	return len(*r.current.Load())
}

// Upsert creates or replaces the subscription for sub.SubscriberID
func (r *Registry) Upsert(sub types.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := maps.Clone(*r.current.Load())
	next[sub.SubscriberID] = r.prepare(sub, next)
	r.publish(next)
	return nil
}

// Remove deletes the subscription for id and reports whether it existed
func (r *Registry) Remove(id types.SubscriberID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.current.Load()
	if _, ok := cur[id]; !ok {
		return false
	}
	next := maps.Clone(cur)
	delete(next, id)
	r.publish(next)
	return true
}

// Replace swaps the whole subscription set. Nothing is changed if any of
// the subscriptions is invalid.
func (r *Registry) Replace(subs []types.Subscription) error {
	for _, sub := range subs {
		if err := sub.Validate(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := *r.current.Load()
	next := make(table, len(subs))
	for _, sub := range subs {
		next[sub.SubscriberID] = r.prepare(sub, prev)
	}
	r.publish(next)
	return nil
}

// prepare copies sub, normalizes its kinds and stamps timestamps, keeping
// CreatedAt of an existing entry. Caller holds r.mu.
func (r *Registry) prepare(sub types.Subscription, existing table) types.Subscription {
	sub = sub.Clone()
	sub.SourceID = types.NormalizeSource(sub.SourceID)
	sub.InterestedKinds = types.NormalizeKinds(sub.InterestedKinds)

	now := r.now()
	if old, ok := existing[sub.SubscriberID]; ok && !old.CreatedAt.IsZero() {
		sub.CreatedAt = old.CreatedAt
	} else if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	if len(sub.InterestedKinds) == 0 {
		r.logger.Debug().
			Str("subscriber_id", sub.SubscriberID.String()).
			Str("source_id", sub.SourceID).
			Msg("Subscription has no event kinds and matches nothing")
	}
	return sub
}

// publish swaps in next and runs the change hooks. Caller holds r.mu.
func (r *Registry) publish(next table) {
	r.current.Store(&next)
	for _, fn := range r.onChange {
		fn(len(next))
	}
}

// IDs returns the subscriber ids in sorted order
func (r *Registry) IDs() []types.SubscriberID {
	ids := slices.Collect(maps.Keys(*r.current.Load()))
	slices.Sort(ids)
	return ids
}
