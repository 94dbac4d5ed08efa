package handler

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
	"github.com/valyala/fasthttp"

	"github.com/makeasinger/motionvault/internal/config"
	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/pkg/response"
)

// JobProxy forwards job API calls from the browser, replacing the caller's
// credentials with the server's API key. Upstream status and body are
// returned unchanged.
type JobProxy struct {
	baseURL string
	apiKey  string
	version string
	client  *fasthttp.Client
	log     *logger.Logger
}

func NewJobProxy(cfg *config.RunwayConfig, log *logger.Logger) *JobProxy {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &JobProxy{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		version: cfg.Version,
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		log: log.With("handler", "job_proxy"),
	}
}

// Preflight answers CORS preflight requests for the proxy routes.
func (p *JobProxy) Preflight(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	c.Set(fiber.HeaderAccessControlAllowMethods, "GET,POST,DELETE,OPTIONS")
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Origin,Content-Type,Accept,Authorization")
	return c.SendStatus(fiber.StatusNoContent)
}

// Create handles POST /proxy/jobs
func (p *JobProxy) Create(c *fiber.Ctx) error {
	return p.forward(c, "/jobs")
}

// Get handles GET /proxy/jobs/:id
func (p *JobProxy) Get(c *fiber.Ctx) error {
	return p.forward(c, "/jobs/"+url.PathEscape(c.Params("id")))
}

// Cancel handles DELETE /proxy/jobs/:id
func (p *JobProxy) Cancel(c *fiber.Ctx) error {
	return p.forward(c, "/jobs/"+url.PathEscape(c.Params("id")))
}

func (p *JobProxy) forward(c *fiber.Ctx, path string) error {
	if p.baseURL == "" || p.apiKey == "" {
		return response.Error(c, fiber.StatusServiceUnavailable, response.CodeServiceError, "Generation API not configured", nil)
	}

	req := &c.Request().Header
	req.Del(fiber.HeaderAuthorization)
	req.Del(fiber.HeaderCookie)
	req.Set(fiber.HeaderAuthorization, "Bearer "+p.apiKey)
	if p.version != "" {
		req.Set("X-Runway-Version", p.version)
	}

	if err := proxy.Do(c, p.baseURL+path, p.client); err != nil {
		p.log.Warn("Proxy request failed", "method", c.Method(), "path", path, "error", err)
		return response.UpstreamError(c, "Generation API unreachable")
	}
	c.Response().Header.Del(fiber.HeaderServer)
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	return nil
}
