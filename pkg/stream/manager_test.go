package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects records and disconnect causes from a running manager.
type recorder struct {
	mu      sync.Mutex
	records []string
	errs    []error
}

func (r *recorder) onRecord(record string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

func (r *recorder) onDisconnected(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) snapshot() ([]string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.records...), append([]error(nil), r.errs...)
}

// runManager starts m.Run in the background and returns a stop function
// that cancels it and returns Run's result.
func runManager(t *testing.T, m *Manager, onRecord func(string)) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx, onRecord)
	}()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
}

func TestRunForwardsOnlyMessageFrames(t *testing.T) {
	var gotAccept atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept.Store(r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ":ok\n\n")
		fmt.Fprint(w, "event: message\ndata: {\"n\":1}\n\n")
		fmt.Fprint(w, "event: keepalive\ndata: {}\n\n")
		fmt.Fprint(w, "data: {\"n\":2}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	rec := &recorder{}
	m := NewManager(Config{
		URL:            server.URL,
		Clock:          testclock.NewClock(time.Now()),
		OnDisconnected: rec.onDisconnected,
	})
	stop := runManager(t, m, rec.onRecord)

	require.Eventually(t, func() bool {
		records, _ := rec.snapshot()
		return len(records) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, m.Connected())

	err := stop()
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, m.Connected())

	records, _ := rec.snapshot()
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`}, records)
	assert.Equal(t, "text/event-stream", gotAccept.Load())
}

func TestRunRetriesAfterServiceUnavailable(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	clk := testclock.NewClock(time.Now())
	rec := &recorder{}
	m := NewManager(Config{
		URL:            server.URL,
		ReconnectDelay: 5 * time.Second,
		Clock:          clk,
		OnDisconnected: rec.onDisconnected,
	})
	stop := runManager(t, m, rec.onRecord)

	require.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Waiting on the reconnect delay, not retrying yet
	require.NoError(t, clk.WaitAdvance(4*time.Second, time.Second, 1))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())

	require.NoError(t, clk.WaitAdvance(time.Second, time.Second, 1))
	require.Eventually(t, func() bool { return hits.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, stop(), context.Canceled)

	_, errs := rec.snapshot()
	require.NotEmpty(t, errs)
	var connErr *errors.ConnectionError
	require.ErrorAs(t, errs[0], &connErr)
	assert.Equal(t, http.StatusServiceUnavailable, connErr.StatusCode)
	assert.ErrorIs(t, errs[0], errors.ErrConnection)
}

func TestRunReconnectsAfterStreamEnds(t *testing.T) {
	var hits atomic.Int32
	var lastEventIDs sync.Map
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		lastEventIDs.Store(n, r.Header.Get("Last-Event-ID"))
		fmt.Fprintf(w, "id: offset-%d\ndata: record-%d\n\n", n, n)
		// Returning ends the stream
	}))
	defer server.Close()

	clk := testclock.NewClock(time.Now())
	rec := &recorder{}
	m := NewManager(Config{URL: server.URL, Clock: clk, OnDisconnected: rec.onDisconnected})
	stop := runManager(t, m, rec.onRecord)

	require.Eventually(t, func() bool {
		records, _ := rec.snapshot()
		return len(records) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, clk.WaitAdvance(DefaultReconnectDelay, time.Second, 1))
	require.Eventually(t, func() bool {
		records, _ := rec.snapshot()
		return len(records) == 2
	}, 2*time.Second, 10*time.Millisecond)

	stop()

	records, errs := rec.snapshot()
	assert.Equal(t, []string{"record-1", "record-2"}, records)
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], errStreamEnded)

	first, _ := lastEventIDs.Load(int32(1))
	second, _ := lastEventIDs.Load(int32(2))
	assert.Equal(t, "", first)
	assert.Equal(t, "offset-1", second)
}

func TestRunSurvivesPanickingHandler(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: boom\n\ndata: fine\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	rec := &recorder{}
	m := NewManager(Config{URL: server.URL, Clock: testclock.NewClock(time.Now()), OnDisconnected: rec.onDisconnected})
	stop := runManager(t, m, func(record string) {
		if record == "boom" {
			panic("handler failure")
		}
		rec.onRecord(record)
	})

	require.Eventually(t, func() bool {
		records, _ := rec.snapshot()
		return len(records) == 1
	}, 2*time.Second, 10*time.Millisecond)
	stop()

	records, errs := rec.snapshot()
	assert.Equal(t, []string{"fine"}, records)
	assert.Empty(t, errs, "a panicking handler must not drop the connection")
}

func TestCancelAbortsReconnectWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	rec := &recorder{}
	m := NewManager(Config{URL: server.URL, ReconnectDelay: time.Hour, OnDisconnected: rec.onDisconnected})
	stop := runManager(t, m, rec.onRecord)

	require.Eventually(t, func() bool {
		_, errs := rec.snapshot()
		return len(errs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	assert.ErrorIs(t, stop(), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestIdleTimeoutDropsStalledStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: only\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	rec := &recorder{}
	m := NewManager(Config{
		URL:            server.URL,
		IdleTimeout:    100 * time.Millisecond,
		Clock:          testclock.NewClock(time.Now()),
		OnDisconnected: rec.onDisconnected,
	})
	stop := runManager(t, m, rec.onRecord)

	require.Eventually(t, func() bool {
		_, errs := rec.snapshot()
		return len(errs) == 1
	}, 2*time.Second, 10*time.Millisecond)
	stop()

	_, errs := rec.snapshot()
	assert.ErrorIs(t, errs[0], errIdle)
	assert.ErrorIs(t, errs[0], errors.ErrConnection)
}

func TestConnectFailureIsConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	m := NewManager(Config{URL: url, ConnectTimeout: time.Second})
	_, err := m.connect(context.Background())
	assert.ErrorIs(t, err, errors.ErrConnection)
}
