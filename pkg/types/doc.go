/*
Package types defines the data shared by the wikifeed packages.

ChangeEvent is what the normalizer produces from one stream record and what
the dispatcher hands to deliverers. Subscription is the filter a subscriber
registered: a source id (wiki database name) plus a set of event kinds.

	sub := types.NewSubscription("chat-42", "enwiki", "edit", "delete")
	sub.Matches(&types.ChangeEvent{SourceID: "enwiki", Kind: "edit"}) // true

Kinds are compared after normalization (lower case, trimmed), and a
subscription with no kinds matches nothing.
*/
package types
