package storage

import (
	"fmt"

	"github.com/cuemby/wikifeed/pkg/types"
)

// Store persists subscriptions across restarts
type Store interface {
	PutSubscription(sub *types.Subscription) error
	GetSubscription(id types.SubscriberID) (*types.Subscription, error)
	ListSubscriptions() ([]*types.Subscription, error)
	DeleteSubscription(id types.SubscriberID) error

	// Utility
	Close() error
}

// Replacer is the registry operation Load needs
type Replacer interface {
	Replace(subs []types.Subscription) error
}

// Load copies every stored subscription into the registry and returns how
// many were loaded.
func Load(store Store, registry Replacer) (int, error) {
	stored, err := store.ListSubscriptions()
	if err != nil {
		return 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	subs := make([]types.Subscription, 0, len(stored))
	for _, sub := range stored {
		subs = append(subs, *sub)
	}
	if err := registry.Replace(subs); err != nil {
		return 0, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	return len(subs), nil
}
