package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/wikifeed/pkg/events"
	"github.com/cuemby/wikifeed/pkg/registry"
	"github.com/cuemby/wikifeed/pkg/storage"
	"github.com/cuemby/wikifeed/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(s *Server, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.GetHandler().ServeHTTP(w, req)
	return w
}

func TestPutSubscription(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	reg := registry.New()
	broker := events.NewBroker()
	s := NewServer(Options{Registry: reg, Store: store, Broker: broker})

	w := put(s, "/subscriptions/chat-1", `{"source":"enwiki","kinds":["Edit","delete"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got types.Subscription
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, types.SubscriberID("chat-1"), got.SubscriberID)
	assert.Equal(t, []string{"delete", "edit"}, got.InterestedKinds)

	sub, ok := reg.Get("chat-1")
	require.True(t, ok)
	assert.Equal(t, "enwiki", sub.SourceID)

	stored, err := store.GetSubscription("chat-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"delete", "edit"}, stored.InterestedKinds)

	recent := broker.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, events.EventSubscriptionUpdated, recent[0].Type)
	assert.Equal(t, "chat-1", recent[0].Metadata["subscriber_id"])
}

func TestPutSubscriptionInvalid(t *testing.T) {
	reg := registry.New()
	s := NewServer(Options{Registry: reg})

	tests := []struct {
		name string
		body string
	}{
		{"missing source", `{"kinds":["edit"]}`},
		{"not json", `{`},
		{"unknown field", `{"source":"enwiki","kind":"edit"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := put(s, "/subscriptions/chat-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
	assert.Zero(t, reg.Len())
}

func TestGetAndListSubscriptions(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Upsert(types.NewSubscription("b", "enwiki", "edit")))
	require.NoError(t, reg.Upsert(types.NewSubscription("a", "dewiki", "block")))
	s := NewServer(Options{Registry: reg})

	w := do(s, http.MethodGet, "/subscriptions")
	require.Equal(t, http.StatusOK, w.Code)
	var list []types.Subscription
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Len(t, list, 2)

	w = do(s, http.MethodGet, "/subscriptions/a")
	require.Equal(t, http.StatusOK, w.Code)
	var sub types.Subscription
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sub))
	assert.Equal(t, "dewiki", sub.SourceID)

	w = do(s, http.MethodGet, "/subscriptions/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSubscription(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	reg := registry.New()
	broker := events.NewBroker()
	s := NewServer(Options{Registry: reg, Store: store, Broker: broker})

	require.Equal(t, http.StatusOK, put(s, "/subscriptions/chat-1", `{"source":"enwiki","kinds":["edit"]}`).Code)

	w := do(s, http.MethodDelete, "/subscriptions/chat-1")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, reg.Len())
	_, err = store.GetSubscription("chat-1")
	assert.Error(t, err)

	recent := broker.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, events.EventSubscriptionRemoved, recent[0].Type)

	w = do(s, http.MethodDelete, "/subscriptions/chat-1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventsHandler(t *testing.T) {
	broker := events.NewBroker()
	for i := 0; i < 3; i++ {
		broker.Publish(events.NewEvent(events.EventStreamConnected, "connected", nil))
	}
	s := NewServer(Options{Registry: registry.New(), Broker: broker})

	w := do(s, http.MethodGet, "/events?limit=2")
	require.Equal(t, http.StatusOK, w.Code)

	var got []events.Event
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, events.EventStreamConnected, got[0].Type)
	assert.NotEmpty(t, got[0].ID)
	assert.WithinDuration(t, time.Now(), got[1].Timestamp, time.Minute)

	w = do(s, http.MethodGet, "/events?limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWriteRoutesRejectedForFileSubscriptions(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Upsert(types.NewSubscription("chat-1", "enwiki", "edit")))
	s := NewServer(Options{Registry: reg, SubscriptionsFile: "subs.yaml"})

	w := put(s, "/subscriptions/chat-2", `{"source":"dewiki","kinds":["edit"]}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "subs.yaml")
	_, ok := reg.Get("chat-2")
	assert.False(t, ok)

	w = do(s, http.MethodDelete, "/subscriptions/chat-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, reg.Len())

	w = do(s, http.MethodGet, "/subscriptions/chat-1")
	assert.Equal(t, http.StatusOK, w.Code)
}
