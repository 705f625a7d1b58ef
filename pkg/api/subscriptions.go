package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/cuemby/wikifeed/pkg/events"
	"github.com/cuemby/wikifeed/pkg/types"
)

// SubscriptionRequest is the body of PUT /subscriptions/{id}
type SubscriptionRequest struct {
	Source string   `json:"source"`
	Kinds  []string `json:"kinds"`
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs := s.opts.Registry.Snapshot()
	if subs == nil {
		subs = []types.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	id := types.SubscriberID(r.PathValue("id"))
	sub, ok := s.opts.Registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.NewNotFoundError("subscription", id.String()).Error())
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// putSubscription creates or replaces a subscription. The store is written
// first so that the registry never holds a subscription that would be lost
// on restart.
func (s *Server) putSubscription(w http.ResponseWriter, r *http.Request) {
	if s.rejectFileManaged(w) {
		return
	}
	id := types.SubscriberID(r.PathValue("id"))

	var req SubscriptionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sub := types.NewSubscription(id, req.Source, req.Kinds...)
	if err := sub.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.opts.Store != nil {
		if err := s.opts.Store.PutSubscription(&sub); err != nil {
			s.logger.Error().Err(err).Str("subscriber_id", id.String()).Msg("Failed to store subscription")
			writeError(w, http.StatusInternalServerError, "failed to store subscription")
			return
		}
	}
	if err := s.opts.Registry.Upsert(sub); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.publish(events.EventSubscriptionUpdated, id, sub.SourceID)
	stored, _ := s.opts.Registry.Get(id)
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	if s.rejectFileManaged(w) {
		return
	}
	id := types.SubscriberID(r.PathValue("id"))

	found := false
	if s.opts.Store != nil {
		err := s.opts.Store.DeleteSubscription(id)
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, errors.ErrNotFound):
			s.logger.Error().Err(err).Str("subscriber_id", id.String()).Msg("Failed to delete subscription")
			writeError(w, http.StatusInternalServerError, "failed to delete subscription")
			return
		}
	}
	if s.opts.Registry.Remove(id) {
		found = true
	}

	if !found {
		writeError(w, http.StatusNotFound, errors.NewNotFoundError("subscription", id.String()).Error())
		return
	}

	s.publish(events.EventSubscriptionRemoved, id, "")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) rejectFileManaged(w http.ResponseWriter) bool {
	if s.opts.SubscriptionsFile == "" {
		return false
	}
	writeError(w, http.StatusConflict, "subscriptions are managed by "+s.opts.SubscriptionsFile+"; edit the file instead")
	return true
}

func (s *Server) publish(eventType events.EventType, id types.SubscriberID, source string) {
	if s.opts.Broker == nil {
		return
	}
	metadata := map[string]string{"subscriber_id": id.String()}
	if source != "" {
		metadata["source_id"] = source
	}
	s.opts.Broker.Publish(events.NewEvent(eventType, "subscription "+id.String(), metadata))
}
