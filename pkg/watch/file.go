// Package watch keeps the subscription registry in sync with a YAML file.
//
// The file looks like:
//
//	subscriptions:
//	  - id: chat-1
//	    source: enwiki
//	    kinds: [edit, delete]
//	  - id: chat-2
//	    source: dewiki
//	    kinds: [block]
package watch

import (
	"bytes"
	"fmt"
	"os"

	"github.com/cuemby/wikifeed/pkg/types"
	"gopkg.in/yaml.v3"
)

// File is the subscriptions document
type File struct {
	Subscriptions []types.Subscription `yaml:"subscriptions"`
}

// Parse decodes a subscriptions document and validates every entry.
// Duplicate ids are rejected.
func Parse(data []byte) ([]types.Subscription, error) {
	var doc File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		// An empty file is an empty set
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse subscriptions: %w", err)
	}

	seen := make(map[types.SubscriberID]bool, len(doc.Subscriptions))
	subs := make([]types.Subscription, 0, len(doc.Subscriptions))
	for i, sub := range doc.Subscriptions {
		if err := sub.Validate(); err != nil {
			return nil, fmt.Errorf("subscription %d: %w", i, err)
		}
		if seen[sub.SubscriberID] {
			return nil, fmt.Errorf("subscription %d: duplicate id %q", i, sub.SubscriberID)
		}
		seen[sub.SubscriberID] = true
		sub.SourceID = types.NormalizeSource(sub.SourceID)
		sub.InterestedKinds = types.NormalizeKinds(sub.InterestedKinds)
		subs = append(subs, sub)
	}
	return subs, nil
}

// LoadFile reads and parses a subscriptions file
func LoadFile(path string) ([]types.Subscription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscriptions file: %w", err)
	}
	return Parse(data)
}
