// Package normalize turns raw recent-change records into change events.
package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/cuemby/wikifeed/pkg/types"
)

const (
	// KindLog is the upstream type for log actions; the concrete action is in log_type.
	KindLog = "log"

	// KindUnknown is used when a record has no usable type field.
	KindUnknown = "unknown"
)

// Normalize decodes one raw record into a ChangeEvent.
//
// The record must be a JSON object carrying a source id, either as a
// top-level "wiki" field or nested under "meta". Every other field is
// optional. Errors wrap errors.ErrMalformedPayload.
func Normalize(raw string) (*types.ChangeEvent, error) {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, errors.NewParseError(errors.ReasonInvalidJSON, err)
	}

	payload, ok := decoded.(map[string]any)
	if !ok {
		return nil, errors.NewParseError(errors.ReasonNotObject, nil)
	}

	sourceID := sourceOf(payload)
	if sourceID == "" {
		return nil, errors.NewParseError(errors.ReasonMissingSource, nil)
	}

	actor := stringField(payload, "user")
	if actor == "" {
		actor = types.AnonymousActor
	}

	return &types.ChangeEvent{
		SourceID:     sourceID,
		Kind:         kindOf(payload),
		SubjectTitle: stringField(payload, "title"),
		Actor:        actor,
		Comment:      stringField(payload, "comment"),
		ServerURL:    stringField(payload, "server_url"),
		Timestamp:    timestampOf(payload),
		Raw:          payload,
	}, nil
}

// kindOf resolves the canonical kind. A "log" record is replaced by its
// log_type so that filters can name block, delete, move, ... directly.
// An empty, blank or null log_type keeps "log"; the kind is never empty.
func kindOf(payload map[string]any) string {
	kind := canonical(stringField(payload, "type"))
	if kind == "" {
		return KindUnknown
	}
	if kind == KindLog {
		if logType := canonical(stringField(payload, "log_type")); logType != "" {
			return logType
		}
	}
	return kind
}

func sourceOf(payload map[string]any) string {
	if wiki := strings.TrimSpace(stringField(payload, "wiki")); wiki != "" {
		return wiki
	}
	// Older envelopes carried the database name inside meta.
	if meta, ok := payload["meta"].(map[string]any); ok {
		return strings.TrimSpace(stringField(meta, "wiki"))
	}
	return ""
}

func timestampOf(payload map[string]any) time.Time {
	switch ts := payload["timestamp"].(type) {
	case float64:
		if ts > 0 {
			return time.Unix(int64(ts), 0).UTC()
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

func canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
