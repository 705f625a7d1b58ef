package types

import (
	"slices"
	"strings"
	"time"

	"github.com/cuemby/wikifeed/pkg/errors"
)

// AnonymousActor is used when a change record carries no user.
const AnonymousActor = "anonymous"

// SubscriberID identifies a subscriber. It is opaque to the core; the
// delivery side decides what it means (a chat id, a webhook name, ...).
type SubscriberID string

// String returns the id as a plain string
func (id SubscriberID) String() string {
	return string(id)
}

// ChangeEvent is one normalized record from the recent-change stream
type ChangeEvent struct {
	SourceID     string         // Wiki database name, e.g. "enwiki"
	Kind         string         // Canonical category; "log" is resolved to its log_type
	SubjectTitle string         // Affected page title
	Actor        string         // User that caused the change
	Comment      string         // Edit summary, if any
	ServerURL    string         // e.g. "https://en.wikipedia.org"
	Timestamp    time.Time      // Zero when the record has none
	Raw          map[string]any // Decoded payload, kept for formatting
}

// Subscription is the filter one subscriber registered.
//
// A Subscription stored in the registry is never modified in place; updates
// replace the whole value.
type Subscription struct {
	SubscriberID    SubscriberID `json:"id" yaml:"id"`
	SourceID        string       `json:"source" yaml:"source"`
	InterestedKinds []string     `json:"kinds" yaml:"kinds"`
	CreatedAt       time.Time    `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt       time.Time    `json:"updated_at,omitempty" yaml:"-"`
}

// NewSubscription builds a subscription with normalized source and kinds
func NewSubscription(id SubscriberID, sourceID string, kinds ...string) Subscription {
	return Subscription{
		SubscriberID:    id,
		SourceID:        NormalizeSource(sourceID),
		InterestedKinds: NormalizeKinds(kinds),
	}
}

// Matches reports whether the event is wanted by this subscription.
// An empty kind set matches nothing.
func (s Subscription) Matches(event *ChangeEvent) bool {
	if event == nil || s.SourceID != event.SourceID {
		return false
	}
	return slices.Contains(s.InterestedKinds, event.Kind)
}

// Validate checks the fields the registry relies on
func (s Subscription) Validate() error {
	if strings.TrimSpace(string(s.SubscriberID)) == "" {
		return errors.NewValidationError("id", s.SubscriberID, "subscriber id is required")
	}
	if strings.TrimSpace(s.SourceID) == "" {
		return errors.NewValidationError("source", s.SourceID, "source id is required")
	}
	return nil
}

// Clone returns a copy that shares no slices with s
func (s Subscription) Clone() Subscription {
	s.InterestedKinds = slices.Clone(s.InterestedKinds)
	return s
}

// NormalizeSource trims a wiki database name the same way incoming records
// are trimmed, so " enwiki" and "enwiki" name the same source.
func NormalizeSource(source string) string {
	return strings.TrimSpace(source)
}

// NormalizeKinds lower-cases, trims, de-duplicates and sorts event kinds.
// Comma separated entries are split, so "edit,delete" and
// []string{"edit", "delete"} are equivalent.
func NormalizeKinds(kinds []string) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		for _, part := range strings.Split(k, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
