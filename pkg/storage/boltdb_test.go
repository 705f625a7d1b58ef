package storage

import (
	"testing"
	"time"

	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/cuemby/wikifeed/pkg/registry"
	"github.com/cuemby/wikifeed/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutAndGetSubscription(t *testing.T) {
	store := newTestStore(t)

	sub := types.NewSubscription("chat-1", "enwiki", "edit")
	sub.SourceID = "enwiki "
	sub.InterestedKinds = append(sub.InterestedKinds, " Delete ")
	require.NoError(t, store.PutSubscription(&sub))

	got, err := store.GetSubscription("chat-1")
	require.NoError(t, err)
	assert.Equal(t, "enwiki", got.SourceID)
	assert.Equal(t, []string{"delete", "edit"}, got.InterestedKinds)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestPutSubscriptionKeepsCreatedAt(t *testing.T) {
	store := newTestStore(t)

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return first }
	sub := types.NewSubscription("chat-1", "enwiki", "edit")
	require.NoError(t, store.PutSubscription(&sub))

	later := first.Add(time.Hour)
	store.now = func() time.Time { return later }
	update := types.NewSubscription("chat-1", "dewiki", "block")
	require.NoError(t, store.PutSubscription(&update))

	got, err := store.GetSubscription("chat-1")
	require.NoError(t, err)
	assert.Equal(t, "dewiki", got.SourceID)
	assert.True(t, got.CreatedAt.Equal(first))
	assert.True(t, got.UpdatedAt.Equal(later))
}

func TestPutSubscriptionValidates(t *testing.T) {
	store := newTestStore(t)

	sub := types.NewSubscription("chat-1", "", "edit")
	err := store.PutSubscription(&sub)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	subs, err := store.ListSubscriptions()
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestGetAndDeleteMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSubscription("nope")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.ErrorIs(t, store.DeleteSubscription("nope"), errors.ErrNotFound)
}

func TestListAndDelete(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []types.SubscriberID{"c", "a", "b"} {
		sub := types.NewSubscription(id, "enwiki", "edit")
		require.NoError(t, store.PutSubscription(&sub))
	}
	require.NoError(t, store.DeleteSubscription("b"))

	subs, err := store.ListSubscriptions()
	require.NoError(t, err)
	require.Len(t, subs, 2)
	// bbolt iterates keys in byte order
	assert.Equal(t, types.SubscriberID("a"), subs[0].SubscriberID)
	assert.Equal(t, types.SubscriberID("c"), subs[1].SubscriberID)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	sub := types.NewSubscription("chat-1", "enwiki", "edit")
	require.NoError(t, store.PutSubscription(&sub))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetSubscription("chat-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"edit"}, got.InterestedKinds)
}

func TestLoad(t *testing.T) {
	store := newTestStore(t)
	for _, sub := range []types.Subscription{
		types.NewSubscription("a", "enwiki", "edit"),
		types.NewSubscription("b", "dewiki", "block"),
	} {
		require.NoError(t, store.PutSubscription(&sub))
	}

	reg := registry.New()
	require.NoError(t, reg.Upsert(types.NewSubscription("stale", "frwiki", "edit")))

	n, err := Load(store, reg)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []types.SubscriberID{"a", "b"}, reg.IDs())
}
