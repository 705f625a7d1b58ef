package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/cuemby/wikifeed/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// DBFile is the database file name inside the data directory
const DBFile = "wikifeed.db"

var (
	// Bucket names
	bucketSubscriptions = []byte("subscriptions")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltStore creates a new BoltDB-backed store in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, DBFile)

	// A running engine holds the file lock; fail instead of hanging
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSubscriptions); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketSubscriptions, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// PutSubscription creates or replaces a subscription. CreatedAt is kept
// from the stored copy and UpdatedAt is set to now.
func (s *BoltStore) PutSubscription(sub *types.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	sub.SourceID = types.NormalizeSource(sub.SourceID)
	sub.InterestedKinds = types.NormalizeKinds(sub.InterestedKinds)

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubscriptions)
		key := []byte(sub.SubscriberID)

		now := s.now().UTC()
		sub.UpdatedAt = now
		sub.CreatedAt = now
		if data := b.Get(key); data != nil {
			var existing types.Subscription
			if err := json.Unmarshal(data, &existing); err == nil && !existing.CreatedAt.IsZero() {
				sub.CreatedAt = existing.CreatedAt
			}
		}

		data, err := json.Marshal(sub)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// GetSubscription returns errors.ErrNotFound if id is unknown
func (s *BoltStore) GetSubscription(id types.SubscriberID) (*types.Subscription, error) {
	var sub types.Subscription
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSubscriptions).Get([]byte(id))
		if data == nil {
			return errors.NewNotFoundError("subscription", id.String())
		}
		return json.Unmarshal(data, &sub)
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubscriptions returns all subscriptions ordered by id
func (s *BoltStore) ListSubscriptions() ([]*types.Subscription, error) {
	var subs []*types.Subscription
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubscriptions)
		return b.ForEach(func(k, v []byte) error {
			var sub types.Subscription
			if err := json.Unmarshal(v, &sub); err != nil {
				return fmt.Errorf("subscription %s: %w", k, err)
			}
			subs = append(subs, &sub)
			return nil
		})
	})
	return subs, err
}

// DeleteSubscription returns errors.ErrNotFound if id is unknown
func (s *BoltStore) DeleteSubscription(id types.SubscriberID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubscriptions)
		if b.Get([]byte(id)) == nil {
			return errors.NewNotFoundError("subscription", id.String())
		}
		return b.Delete([]byte(id))
	})
}
