package metrics

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Component names reported by wikifeed
const (
	ComponentStream   = "stream"
	ComponentStorage  = "storage"
	ComponentAPI      = "api"
	ComponentWatcher  = "watcher"
	ComponentDelivery = "delivery"
	ComponentWebhook  = "webhook"
)

// Overall states reported in HealthStatus.Status
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// HealthStatus is a point-in-time report over the registered components
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	StartTime  time.Time         `json:"-"`
}

// ComponentHealth is the last state a component reported
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// HealthChecker holds component states for the process. The stream is
// critical unless SetCriticalComponents says otherwise.
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	critical   []string
	startTime  time.Time
	version    string
}

var healthChecker = newHealthChecker()

func newHealthChecker() *HealthChecker {
	return &HealthChecker{
		components: make(map[string]ComponentHealth),
		critical:   []string{ComponentStream},
		startTime:  time.Now(),
	}
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// SetCriticalComponents replaces the set of components that must be
// registered and healthy for GetReadiness to report ready
func SetCriticalComponents(names ...string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.critical = slices.Clone(names)
}

// RegisterComponent records the state of a component, replacing any
// earlier report under the same name
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent is RegisterComponent under the name callers use for
// state changes
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// GetHealth reports every registered component. One unhealthy component
// makes the whole report unhealthy.
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	report := healthChecker.report(StatusHealthy)
	for name, comp := range healthChecker.components {
		if comp.Healthy {
			report.Components[name] = StatusHealthy
			continue
		}
		report.Status = StatusUnhealthy
		report.Components[name] = StatusUnhealthy + ": " + comp.Message
	}
	return report
}

// GetReadiness reports only the critical components. A critical component
// that has not registered yet counts as not ready.
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	report := healthChecker.report(StatusReady)
	for _, name := range healthChecker.critical {
		comp, ok := healthChecker.components[name]
		switch {
		case !ok:
			report.Status = StatusNotReady
			report.Message = "waiting for " + name + " initialization"
			report.Components[name] = "not registered"
		case !comp.Healthy:
			report.Status = StatusNotReady
			report.Message = "waiting for " + name
			report.Components[name] = "not ready: " + comp.Message
		default:
			report.Components[name] = StatusReady
		}
	}
	return report
}

// report starts a HealthStatus with the given status. Caller holds h.mu.
func (h *HealthChecker) report(status string) HealthStatus {
	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]string, len(h.components)),
		Version:    h.version,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		StartTime:  h.startTime,
	}
}

// LivenessHandler answers 200 for as long as the process can serve HTTP
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(healthChecker.startTime).Round(time.Second).String(),
		})
	}
}
