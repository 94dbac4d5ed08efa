package e2e

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/makeasinger/motionvault/internal/config"
)

type upstreamCall struct {
	method        string
	path          string
	authorization string
	version       string
	body          string
}

func fakeJobAPI(t *testing.T) (*httptest.Server, func() []upstreamCall) {
	t.Helper()

	var mu sync.Mutex
	var calls []upstreamCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, upstreamCall{
			method:        r.Method,
			path:          r.URL.Path,
			authorization: r.Header.Get("Authorization"),
			version:       r.Header.Get("X-Runway-Version"),
			body:          string(body),
		})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"job-77"}`))
		case r.URL.Path == "/jobs/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
		default:
			_, _ = w.Write([]byte(`{"id":"job-77","status":"RUNNING"}`))
		}
	}))
	t.Cleanup(srv.Close)

	return srv, func() []upstreamCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]upstreamCall(nil), calls...)
	}
}

func withRunway(cfg config.RunwayConfig) func(*appOptions) {
	return func(o *appOptions) { o.runway = cfg }
}

func TestProxy_Preflight(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodOptions, "/proxy/jobs/job-1", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNoContent)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}

func TestProxy_RequiresAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/proxy/jobs/job-1", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestProxy_NotConfigured(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/proxy/jobs/job-1", "")
	assertStatus(t, resp, http.StatusServiceUnavailable)
}

func TestProxy_ForwardsWithServerKey(t *testing.T) {
	srv, calls := fakeJobAPI(t)
	ta := setupApp(t, withRunway(config.RunwayConfig{
		BaseURL: srv.URL,
		APIKey:  "server-key",
		Version: "2024-11-06",
	}))

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/proxy/jobs", `{"model":"act_two"}`)
	assertStatus(t, resp, http.StatusCreated)
	if body := readBody(t, resp); body != `{"id":"job-77"}` {
		t.Errorf("expected upstream body, got %s", body)
	}

	resp = doAuthRequest(t, ta.app, http.MethodGet, "/proxy/jobs/job-77", "")
	assertStatus(t, resp, http.StatusOK)

	resp = doAuthRequest(t, ta.app, http.MethodGet, "/proxy/jobs/missing", "")
	assertStatus(t, resp, http.StatusNotFound)

	resp = doAuthRequest(t, ta.app, http.MethodDelete, "/proxy/jobs/job-77", "")
	assertStatus(t, resp, http.StatusOK)

	got := calls()
	if len(got) != 4 {
		t.Fatalf("expected 4 upstream calls, got %d", len(got))
	}
	want := []struct{ method, path string }{
		{http.MethodPost, "/jobs"},
		{http.MethodGet, "/jobs/job-77"},
		{http.MethodGet, "/jobs/missing"},
		{http.MethodDelete, "/jobs/job-77"},
	}
	for i, c := range got {
		if c.method != want[i].method || c.path != want[i].path {
			t.Errorf("call %d: expected %s %s, got %s %s", i, want[i].method, want[i].path, c.method, c.path)
		}
		if c.authorization != "Bearer server-key" {
			t.Errorf("call %d: caller credentials leaked upstream: %q", i, c.authorization)
		}
		if c.version != "2024-11-06" {
			t.Errorf("call %d: expected version header, got %q", i, c.version)
		}
	}
	if got[0].body != `{"model":"act_two"}` {
		t.Errorf("expected body forwarded, got %q", got[0].body)
	}
}
