package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// LivenessHandler returns an HTTP handler for liveness probes: the process
// is running, nothing more.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// ReadinessHandler returns an HTTP handler that runs all registered checks.
// Degraded still reports ready; only a fully down composite returns 503.
func ReadinessHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		agg := reg.Aggregate(ctx)

		w.Header().Set("Content-Type", "text/plain")

		switch agg.Status {
		case StatusUp:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		case StatusDegraded:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("DEGRADED"))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("DOWN"))
		}
	}
}

// HealthResponse is the JSON body of the detailed health endpoint.
type HealthResponse struct {
	Status         string          `json:"status"`
	Healthy        bool            `json:"healthy"`
	ResponseTimeMs int64           `json:"response_time_ms"`
	Message        string          `json:"message,omitempty"`
	Timestamp      string          `json:"timestamp"`
	Checks         []CheckResponse `json:"checks,omitempty"`
}

// CheckResponse is the JSON body for a single subsystem.
type CheckResponse struct {
	Name           string `json:"name"`
	Status         string `json:"status"`
	Healthy        bool   `json:"healthy"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Message        string `json:"message,omitempty"`
}

// DetailedHandler returns an HTTP handler exposing the composite status and
// each subsystem result, for the monitoring system.
func DetailedHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		results := reg.CheckAll(ctx)
		agg := Fold(results)

		response := HealthResponse{
			Status:         agg.Status,
			Healthy:        agg.Healthy,
			ResponseTimeMs: agg.ResponseTime.Milliseconds(),
			Message:        agg.Message,
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
			Checks:         make([]CheckResponse, 0, len(results)),
		}
		for _, res := range results {
			response.Checks = append(response.Checks, CheckResponse{
				Name:           res.Name,
				Status:         res.Status,
				Healthy:        res.Healthy,
				ResponseTimeMs: res.ResponseTime.Milliseconds(),
				Message:        res.Message,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if agg.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(response)
	}
}
