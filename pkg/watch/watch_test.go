package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/cuemby/wikifeed/pkg/registry"
	"github.com/cuemby/wikifeed/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoSubs = `
subscriptions:
  - id: chat-1
    source: enwiki
    kinds: [Edit, delete]
  - id: chat-2
    source: " dewiki "
    kinds: ["block,move"]
`

func TestParse(t *testing.T) {
	subs, err := Parse([]byte(twoSubs))
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, types.SubscriberID("chat-1"), subs[0].SubscriberID)
	assert.Equal(t, "enwiki", subs[0].SourceID)
	assert.Equal(t, []string{"delete", "edit"}, subs[0].InterestedKinds)
	assert.Equal(t, "dewiki", subs[1].SourceID)
	assert.Equal(t, []string{"block", "move"}, subs[1].InterestedKinds)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		is   error
	}{
		{"missing source", "subscriptions:\n  - id: a\n    kinds: [edit]\n", errors.ErrInvalidInput},
		{"missing id", "subscriptions:\n  - source: enwiki\n", errors.ErrInvalidInput},
		{"duplicate id", "subscriptions:\n  - {id: a, source: enwiki}\n  - {id: a, source: dewiki}\n", nil},
		{"unknown field", "subscriptions:\n  - {id: a, source: enwiki, kind: edit}\n", nil},
		{"not yaml", "subscriptions: [", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	subs, err := Parse([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatcherLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.yaml")
	writeFile(t, path, twoSubs)

	reg := registry.New()
	n, err := NewWatcher(path, reg).Load()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []types.SubscriberID{"chat-1", "chat-2"}, reg.IDs())
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.yaml")
	writeFile(t, path, twoSubs)

	reg := registry.New()
	var mu sync.Mutex
	var reloadErrs []error
	w := NewWatcher(path, reg).WithDebounce(20 * time.Millisecond).OnReload(func(count int, err error) {
		mu.Lock()
		defer mu.Unlock()
		reloadErrs = append(reloadErrs, err)
	})
	_, err := w.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register
	time.Sleep(50 * time.Millisecond)

	writeFile(t, path, "subscriptions:\n  - {id: chat-3, source: frwiki, kinds: [edit]}\n")
	require.Eventually(t, func() bool {
		ids := reg.IDs()
		return len(ids) == 1 && ids[0] == "chat-3"
	}, 5*time.Second, 10*time.Millisecond)

	// A broken document keeps the previous set
	writeFile(t, path, "subscriptions: [")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloadErrs) > 0 && reloadErrs[len(reloadErrs)-1] != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []types.SubscriberID{"chat-3"}, reg.IDs())
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subscriptions.yaml")
	writeFile(t, path, twoSubs)

	reg := registry.New()
	reloads := make(chan struct{}, 10)
	w := NewWatcher(path, reg).WithDebounce(10 * time.Millisecond).OnReload(func(int, error) {
		reloads <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	writeFile(t, filepath.Join(dir, "other.yaml"), "x: 1")

	select {
	case <-reloads:
		t.Fatal("reloaded for an unrelated file")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
