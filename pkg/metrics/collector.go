package metrics

import (
	"sync"

	"github.com/cuemby/wikifeed/pkg/events"
)

// Collector turns engine lifecycle events into component health
type Collector struct {
	broker *events.Broker
	sub    events.Subscriber
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new collector reading from broker
func NewCollector(broker *events.Broker) *Collector {
	return &Collector{
		broker: broker,
		stopCh: make(chan struct{}),
	}
}

// Start begins consuming events
func (c *Collector) Start() {
	// Not connected until the stream says so
	RegisterComponent(ComponentStream, false, "connecting")

	c.sub = c.broker.Subscribe()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case event, ok := <-c.sub:
				if !ok {
					return
				}
				c.handle(event)
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the collector and waits for it to exit
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	c.broker.Unsubscribe(c.sub)
}

func (c *Collector) handle(event *events.Event) {
	switch event.Type {
	case events.EventStreamConnected:
		UpdateComponent(ComponentStream, true, event.Message)
	case events.EventStreamDisconnected:
		UpdateComponent(ComponentStream, false, event.Message)
	case events.EventDeliveryFailed:
		// Delivery failures are per subscriber and never make the process unhealthy
		UpdateComponent(ComponentDelivery, true, "last failure: "+event.Message)
	}
}
