package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/motionvault/internal/auth"
	"github.com/makeasinger/motionvault/internal/config"
	"github.com/makeasinger/motionvault/internal/handler"
	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/middleware"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/session"
	"github.com/makeasinger/motionvault/internal/testsupport"
	ws "github.com/makeasinger/motionvault/internal/websocket"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testUserID    = "test-user-123"
)

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	backend  *testsupport.Backend
	sessions *session.Manager
}

type appOptions struct {
	runway config.RunwayConfig
}

// setupApp wires the same routes as the server over in-memory backing
// services. Redis is absent, so rate limiting is off.
func setupApp(t *testing.T, opts ...func(*appOptions)) *testApp {
	t.Helper()

	var o appOptions
	for _, fn := range opts {
		fn(&o)
	}

	log := logger.Nop()
	backend := testsupport.NewBackend()
	prober := &testsupport.Prober{Size: model.Resolution{Width: 1920, Height: 1080}}
	tempDir := t.TempDir()

	hub := ws.NewHub(log)
	go hub.Run()

	sessions := session.NewManager(t.Context(), session.Deps{
		Gateway:      backend.Gateway,
		Canceller:    backend.Canceller,
		Prober:       prober,
		Hub:          hub,
		Runway:       o.runway,
		PollInterval: time.Hour,
		TempDir:      tempDir,
		Log:          log,
	})
	t.Cleanup(sessions.Shutdown)

	validate := validator.New()
	const maxFileSize = 10 * 1024 * 1024
	routes := &handler.Routes{
		Gallery:      handler.NewGalleryHandler(sessions, hub, validate),
		Assets:       handler.NewAssetHandler(sessions, validate),
		Categories:   handler.NewCategoryHandler(sessions, validate),
		Uploads:      handler.NewUploadHandler(sessions, validate, prober, tempDir, maxFileSize),
		Tasks:        handler.NewTaskHandler(sessions, validate, prober, tempDir, maxFileSize),
		Proxy:        handler.NewJobProxy(&o.runway, log),
		Auth:         handler.NewAuthHandler(nil, testJWTSecret),
		Authenticate: middleware.NewAuthMiddleware(nil, testJWTSecret).Authenticate(),
		Limiter:      middleware.NewRateLimiter(nil),
		Limits: config.RateLimitConfig{
			MutationsPerMin: 10000,
			UploadPerHour:   10000,
			GeneratePerHour: 10000,
			ProxyPerMin:     10000,
		},
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})
	routes.Register(app)

	return &testApp{app: app, backend: backend, sessions: sessions}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	token, err := auth.IssueLegacyToken(testUserID, "test@example.com", testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// decode parses the response body into v.
func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	body := readBody(t, resp)
	if err := json.Unmarshal([]byte(body), v); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	decode(t, resp, &result)
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode returns error.code from an error envelope.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", result)
	}
	code, _ := errObj["code"].(string)
	return code
}

// gallery fetches the caller's collections.
func gallery(t *testing.T, app *fiber.App) model.WSStateMessage {
	t.Helper()
	resp := doAuthRequest(t, app, http.MethodGet, "/api/gallery", "")
	assertStatus(t, resp, http.StatusOK)
	var msg model.WSStateMessage
	decode(t, resp, &msg)
	return msg
}
