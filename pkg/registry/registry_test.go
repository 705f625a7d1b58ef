package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/cuemby/wikifeed/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndGet(t *testing.T) {
	r := New()

	require.NoError(t, r.Upsert(types.NewSubscription("sub1", "enwiki", "edit", "delete")))
	assert.Equal(t, 1, r.Len())

	sub, ok := r.Get("sub1")
	require.True(t, ok)
	assert.Equal(t, "enwiki", sub.SourceID)
	assert.Equal(t, []string{"delete", "edit"}, sub.InterestedKinds)
	assert.False(t, sub.CreatedAt.IsZero())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestUpsertReplacesWholeEntry(t *testing.T) {
	r := New()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return created }
	require.NoError(t, r.Upsert(types.NewSubscription("sub1", "enwiki", "edit")))

	r.now = func() time.Time { return created.Add(time.Hour) }
	require.NoError(t, r.Upsert(types.NewSubscription("sub1", "dewiki", "block")))

	sub, ok := r.Get("sub1")
	require.True(t, ok)
	assert.Equal(t, "dewiki", sub.SourceID)
	assert.Equal(t, []string{"block"}, sub.InterestedKinds)
	assert.Equal(t, created, sub.CreatedAt)
	assert.Equal(t, created.Add(time.Hour), sub.UpdatedAt)
}

func TestUpsertRejectsInvalid(t *testing.T) {
	r := New()
	err := r.Upsert(types.NewSubscription("sub1", ""))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Equal(t, 0, r.Len())
}

func TestUpsertTrimsSource(t *testing.T) {
	r := New()
	require.NoError(t, r.Upsert(types.Subscription{
		SubscriberID:    "sub1",
		SourceID:        "  enwiki\t",
		InterestedKinds: []string{"edit"},
	}))

	sub, ok := r.Get("sub1")
	require.True(t, ok)
	assert.Equal(t, "enwiki", sub.SourceID)
	assert.True(t, sub.Matches(&types.ChangeEvent{SourceID: "enwiki", Kind: "edit"}))
}

func TestRemove(t *testing.T) {
	r := New()
	require.NoError(t, r.Upsert(types.NewSubscription("sub1", "enwiki", "edit")))

	assert.True(t, r.Remove("sub1"))
	assert.False(t, r.Remove("sub1"))
	assert.Equal(t, 0, r.Len())
}

func TestReplace(t *testing.T) {
	r := New()
	require.NoError(t, r.Upsert(types.NewSubscription("old", "enwiki", "edit")))

	err := r.Replace([]types.Subscription{
		types.NewSubscription("a", "enwiki", "edit"),
		types.NewSubscription("b", "dewiki", "new"),
	})
	require.NoError(t, err)
	assert.Equal(t, []types.SubscriberID{"a", "b"}, r.IDs())

	err = r.Replace([]types.Subscription{
		types.NewSubscription("c", "enwiki"),
		types.NewSubscription("", "enwiki"),
	})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Equal(t, []types.SubscriberID{"a", "b"}, r.IDs(), "failed replace leaves registry untouched")
}

func TestSnapshotIsIsolatedFromWrites(t *testing.T) {
	r := New()
	require.NoError(t, r.Upsert(types.NewSubscription("sub1", "enwiki", "edit")))

	snap := r.Snapshot()
	require.NoError(t, r.Upsert(types.NewSubscription("sub1", "dewiki", "block")))
	require.NoError(t, r.Upsert(types.NewSubscription("sub2", "enwiki", "edit")))

	require.Len(t, snap, 1)
	assert.Equal(t, "enwiki", snap[0].SourceID)

	snap[0].InterestedKinds[0] = "mutated"
	sub, _ := r.Get("sub1")
	assert.Equal(t, []string{"block"}, sub.InterestedKinds)
}

func TestOnChange(t *testing.T) {
	r := New()
	var counts []int
	r.OnChange(func(count int) { counts = append(counts, count) })

	require.NoError(t, r.Upsert(types.NewSubscription("a", "enwiki", "edit")))
	require.NoError(t, r.Upsert(types.NewSubscription("b", "enwiki", "edit")))
	r.Remove("a")
	r.Remove("missing")

	assert.Equal(t, []int{1, 2, 1}, counts)
}

// Each writer stores subscriptions whose source and kind carry the same
// generation number; a torn read would show them disagreeing.
func TestConcurrentSnapshotNeverTorn(t *testing.T) {
	r := New()
	const writers = 4
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				gen := fmt.Sprintf("g%d", i)
				id := types.SubscriberID(fmt.Sprintf("sub%d", w))
				_ = r.Upsert(types.NewSubscription(id, "wiki-"+gen, "kind-"+gen))
				if i%10 == 0 {
					r.Remove(id)
				}
			}
		}(w)
	}

	done := make(chan struct{})
	var readErr error
	go func() {
		defer close(done)
		for i := 0; i < rounds*writers; i++ {
			for _, sub := range r.Snapshot() {
				if len(sub.InterestedKinds) != 1 || "wiki-"+sub.InterestedKinds[0][len("kind-"):] != sub.SourceID {
					readErr = fmt.Errorf("torn subscription: %+v", sub)
					return
				}
			}
		}
	}()

	wg.Wait()
	<-done
	assert.NoError(t, readErr)
}
