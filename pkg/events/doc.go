/*
Package events provides an in-memory broker for wikifeed lifecycle events.

These are not the recent-change records themselves. They describe what the
engine is doing: the stream connected or dropped, a record was skipped, a
delivery failed, a subscription changed. Observers such as the health
collector and the HTTP API consume them without being wired into the
ingestion path.

# Architecture

	Publisher ──► event channel (buffer: 100) ──► broadcast loop
	                                                 │
	                         ┌───────────────────────┼──────────────────┐
	                         ▼                       ▼                  ▼
	                 subscriber (50)          subscriber (50)     recent history

Publish never blocks. When the event queue or a subscriber buffer is full
the event is dropped for that consumer. A bounded history of recent events
is kept for the API.

# Event Types

  - stream.connected, stream.disconnected
  - record.malformed
  - delivery.failed
  - subscription.updated, subscription.removed

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			if event.Type == events.EventStreamDisconnected {
				fmt.Println("stream lost:", event.Message)
			}
		}
	}()

	broker.Publish(events.NewEvent(events.EventStreamConnected, "connected", nil))
*/
package events
