package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	up := NewCheckerFunc("database", func(ctx context.Context) Result { return Up("database", "") })
	down := NewCheckerFunc("redis", func(ctx context.Context) Result { return Down("redis", "") })

	tests := []struct {
		name     string
		checkers []Checker
		wantCode int
		wantBody string
	}{
		{"all up", []Checker{up}, http.StatusOK, "OK"},
		{"degraded still ready", []Checker{up, down}, http.StatusOK, "DEGRADED"},
		{"all down", []Checker{down}, http.StatusServiceUnavailable, "DOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			for _, c := range tt.checkers {
				reg.Register(c)
			}

			rec := httptest.NewRecorder()
			ReadinessHandler(reg)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestDetailedHandler(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewCheckerFunc("database", func(ctx context.Context) Result { return Up("database", "") }))
	reg.Register(NewCheckerFunc("redis", func(ctx context.Context) Result { return Down("redis", "connection refused") }))

	rec := httptest.NewRecorder()
	DetailedHandler(reg)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (degraded is not down)", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != StatusDegraded || body.Healthy {
		t.Errorf("composite = %q/%v", body.Status, body.Healthy)
	}
	if len(body.Checks) != 2 {
		t.Fatalf("len(Checks) = %d, want 2", len(body.Checks))
	}
	if body.Checks[0].Name != "database" || !body.Checks[0].Healthy {
		t.Errorf("Checks[0] = %+v", body.Checks[0])
	}
	if body.Checks[1].Message != "connection refused" {
		t.Errorf("Checks[1].Message = %q", body.Checks[1].Message)
	}
	if body.Timestamp == "" {
		t.Error("Timestamp missing")
	}
}

func TestDetailedHandler_AllDown(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewCheckerFunc("redis", func(ctx context.Context) Result { return Down("redis", "") }))

	rec := httptest.NewRecorder()
	DetailedHandler(reg)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
