package metrics

import (
	"testing"
	"time"

	"github.com/cuemby/wikifeed/pkg/events"
	"github.com/stretchr/testify/assert"
)

func componentState(name string) (ComponentHealth, bool) {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()
	comp, ok := healthChecker.components[name]
	return comp, ok
}

func TestCollectorTracksStreamHealth(t *testing.T) {
	healthChecker = newHealthChecker()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	collector := NewCollector(broker)
	collector.Start()
	defer collector.Stop()

	comp, ok := componentState(ComponentStream)
	assert.True(t, ok)
	assert.False(t, comp.Healthy)

	broker.Publish(events.NewEvent(events.EventStreamConnected, "connected", nil))
	assert.Eventually(t, func() bool {
		comp, _ := componentState(ComponentStream)
		return comp.Healthy
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "ready", GetReadiness().Status)

	broker.Publish(events.NewEvent(events.EventStreamDisconnected, "status 503", nil))
	assert.Eventually(t, func() bool {
		comp, _ := componentState(ComponentStream)
		return !comp.Healthy && comp.Message == "status 503"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "not_ready", GetReadiness().Status)
}
