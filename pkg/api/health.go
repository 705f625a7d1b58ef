package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/wikifeed/pkg/metrics"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler implements the /health endpoint
// This is a simple liveness check - returns 200 if the process is alive
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	version := s.opts.Version
	if version == "" {
		version = "dev"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   version,
	})
}

// readyHandler implements the /ready endpoint. The process is ready once
// the stream is connected and the store, if any, answers reads.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true
	var message string

	// Check 1: event stream
	if s.opts.Stats == nil {
		checks["stream"] = "not initialized"
		ready = false
		message = "Ingest engine not initialized"
	} else if s.opts.Stats.Stats().Connected {
		checks["stream"] = "connected"
	} else {
		checks["stream"] = "disconnected"
		ready = false
		message = "Waiting for stream connection"
	}

	// Check 2: storage
	if s.opts.Store == nil {
		checks["storage"] = "disabled"
	} else if _, err := s.opts.Store.ListSubscriptions(); err != nil {
		checks["storage"] = fmt.Sprintf("error: %v", err)
		ready = false
		if message == "" {
			message = "Storage not accessible"
		}
	} else {
		checks["storage"] = "ok"
	}

	// Check 3: critical components not covered above
	readiness := metrics.GetReadiness()
	for name, status := range readiness.Components {
		if _, ok := checks[name]; ok {
			continue
		}
		checks[name] = status
		if status != metrics.StatusReady {
			ready = false
			if message == "" {
				message = readiness.Message
			}
		}
	}

	// Everything else is informational
	for name, status := range metrics.GetHealth().Components {
		if _, ok := checks[name]; !ok {
			checks[name] = status
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	})
}
