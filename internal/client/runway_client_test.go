package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/makeasinger/motionvault/internal/config"
	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/model"
)

func newTestRunway(t *testing.T, h http.HandlerFunc) *RunwayClient {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewRunwayClient(&config.RunwayConfig{
		APIKey:  "key-123",
		BaseURL: srv.URL + "/",
		Version: "2024-11-06",
	}, logger.Nop())
}

func TestRunwaySubmit(t *testing.T) {
	c := newTestRunway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("unexpected authorization %q", got)
		}
		if got := r.Header.Get("X-Runway-Version"); got != "2024-11-06" {
			t.Errorf("unexpected version %q", got)
		}
		var req model.JobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.Reference != "https://cdn/ref.mp4" {
			t.Errorf("unexpected reference %q", req.Reference)
		}
		_, _ = w.Write([]byte(`{"id":"job-42"}`))
	})

	id, err := c.Submit(context.Background(), &model.JobRequest{Reference: "https://cdn/ref.mp4", Character: "https://cdn/c.png"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "job-42" {
		t.Fatalf("expected job-42, got %q", id)
	}
}

func TestRunwaySubmitWithoutID(t *testing.T) {
	c := newTestRunway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	if _, err := c.Submit(context.Background(), &model.JobRequest{}); err == nil {
		t.Fatalf("expected error for missing id")
	}
}

func TestRunwayGetStatus(t *testing.T) {
	c := newTestRunway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/job-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"job-1","status":"SUCCEEDED","output":["https://out/v.mp4"]}`))
	})

	report, err := c.GetStatus(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if report.Status != "SUCCEEDED" || report.Output.URI != "https://out/v.mp4" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunwayNotFound(t *testing.T) {
	c := newTestRunway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	})

	if _, err := c.GetStatus(context.Background(), "gone"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := c.Cancel(context.Background(), "gone"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRunwayAPIError(t *testing.T) {
	c := newTestRunway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	})

	_, err := c.GetStatus(context.Background(), "job-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Body != "slow down" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestRunwayCancel(t *testing.T) {
	var method string
	c := newTestRunway(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.Cancel(context.Background(), "job-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if method != http.MethodDelete {
		t.Fatalf("expected DELETE, got %s", method)
	}
}
