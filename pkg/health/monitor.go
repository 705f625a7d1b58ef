package health

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/wikifeed/pkg/log"
	"github.com/cuemby/wikifeed/pkg/metrics"
	"github.com/rs/zerolog"
)

// Monitor runs a checker on an interval and publishes the target's health
// as a metrics component.
type Monitor struct {
	component string
	checker   Checker
	config    Config
	logger    zerolog.Logger

	mu     sync.RWMutex
	status *Status
}

// NewMonitor creates a monitor reporting as component
func NewMonitor(component string, checker Checker, config Config) *Monitor {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Retries <= 0 {
		config.Retries = defaults.Retries
	}

	return &Monitor{
		component: component,
		checker:   checker,
		config:    config,
		logger:    log.WithComponent("health").With().Str("target", component).Logger(),
		status:    NewStatus(),
	}
}

// Status returns a copy of the current status
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.status
}

// Run checks immediately and then every Interval until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) error {
	metrics.RegisterComponent(m.component, true, "not checked yet")

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		m.checkOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) checkOnce(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	result := m.checker.Check(checkCtx)
	cancel()

	if ctx.Err() != nil {
		// Shutting down; a cancelled probe says nothing about the target
		return
	}

	m.mu.Lock()
	changed := m.status.Update(result, m.config)
	healthy := m.status.Healthy
	m.mu.Unlock()

	metrics.UpdateComponent(m.component, healthy, result.Message)

	switch {
	case changed && !healthy:
		m.logger.Warn().
			Str("check", string(m.checker.Type())).
			Str("result", result.Message).
			Int("failures", m.config.Retries).
			Msg("Delivery target unreachable")
	case changed && healthy:
		m.logger.Info().Str("result", result.Message).Msg("Delivery target reachable again")
	default:
		m.logger.Debug().
			Bool("healthy", result.Healthy).
			Dur("duration", result.Duration).
			Str("result", result.Message).
			Msg("Probe finished")
	}
}
