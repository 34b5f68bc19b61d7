// Package stubrunner serves contracts as an HTTP stub server.
//
// Each incoming request is matched against the contracts in name order; the
// first contract whose request side matches produces the response. Every
// request, matched or not, is recorded in a Journal that tests can inspect
// through the /__admin endpoints.
package stubrunner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"contractkit/config"
	"contractkit/internal/contract"
	"contractkit/internal/core"
	"contractkit/internal/observability"
	"contractkit/internal/server"
)

// AdminPrefix is the path prefix of the stub runner's own endpoints.
const AdminPrefix = "/__admin"

// Config holds stub runner options
type Config struct {
	MasterKey       string  // Optional: protects the admin endpoints
	MetricsEnabled  bool    // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string  // HTTP path for metrics endpoint (default: /__admin/metrics)
	BodySizeLimit   int64   // Max request body size in bytes (default: 10MB)
	Journal         Journal // Request journal (default: in-memory)
	Seed            uint64  // Seed for matcher-generated response values
}

type stub struct {
	contract    *contract.Contract
	fingerprint string
}

// Runner is the stub HTTP server.
type Runner struct {
	echo    *echo.Echo
	stubs   []stub
	journal Journal
	metrics *observability.Metrics

	randMu sync.Mutex
	rand   *rand.Rand
}

// New creates a stub runner for the given contracts.
func New(registry *contract.Registry, cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}

	journal := cfg.Journal
	if journal == nil {
		journal = NewMemoryJournal(DefaultJournalMaxEntries)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	r := &Runner{
		journal: journal,
		metrics: observability.New(),
		rand:    rand.New(rand.NewPCG(seed, seed)),
	}
	for _, c := range registry.All() {
		r.stubs = append(r.stubs, stub{contract: c, fingerprint: c.Fingerprint()})
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(server.RequestID())
	e.Use(server.RequestLogger())
	e.Use(middleware.Recover())

	bodySizeLimit := config.DefaultBodySizeLimit
	if cfg.BodySizeLimit > 0 {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodySizeLimit, 10)))

	admin := e.Group(AdminPrefix)
	admin.GET("/health", r.health)
	if cfg.MetricsEnabled {
		e.GET(r.metricsPath(cfg.MetricsEndpoint), echo.WrapHandler(r.metrics.Handler()))
	}

	auth := server.AuthMiddleware(cfg.MasterKey)
	admin.GET("/contracts", r.listContracts, auth)
	admin.GET("/requests", r.listRequests, auth)
	admin.DELETE("/requests", r.resetRequests, auth)

	e.Any("/*", r.serveStub)

	r.echo = e
	return r
}

// metricsPath returns the configured metrics path, or the admin default when
// the configured one is "/" or would shadow a contract's request path.
func (r *Runner) metricsPath(endpoint string) string {
	const defaultPath = AdminPrefix + "/metrics"
	if endpoint == "" {
		return defaultPath
	}
	p := path.Clean("/" + endpoint)
	if p == "/" {
		return defaultPath
	}
	for _, s := range r.stubs {
		if s.contract.Request.URL.MatchesString(p) {
			slog.Warn("metrics endpoint collides with a contract path, using default",
				"endpoint", p, "contract", s.contract.Name, "default", defaultPath)
			return defaultPath
		}
	}
	return p
}

// Start starts the HTTP server on the given address
func (r *Runner) Start(addr string) error {
	return r.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (r *Runner) Shutdown(ctx context.Context) error {
	return r.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Runner to be used with httptest
func (r *Runner) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.echo.ServeHTTP(w, req)
}

// Journal returns the request journal.
func (r *Runner) Journal() Journal {
	return r.journal
}

func (r *Runner) serveStub(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return server.HandleError(c, core.NewInvalidRequestError("failed to read request body", err))
	}

	matched := r.find(req, body)

	entry := JournalEntry{
		ID:         uuid.NewString(),
		Method:     req.Method,
		Path:       req.URL.Path,
		Body:       string(body),
		Matched:    matched != nil,
		ReceivedAt: time.Now().UTC(),
	}
	contractLabel := ""
	if matched != nil {
		entry.Contract = matched.contract.Name
		entry.Fingerprint = matched.fingerprint
		contractLabel = matched.contract.Name
	}
	if err := r.journal.Append(req.Context(), entry); err != nil {
		slog.Warn("failed to record stub request", "error", err, "path", entry.Path)
	}
	r.metrics.StubRequests.WithLabelValues(contractLabel, strconv.FormatBool(matched != nil)).Inc()

	if matched == nil {
		slog.Info("no contract matched", "method", req.Method, "path", req.URL.Path)
		return server.HandleError(c, core.NewNotFoundError(
			fmt.Sprintf("no contract matches %s %s", req.Method, req.URL.Path)))
	}
	return r.respond(c, matched.contract.Response)
}

func (r *Runner) find(req *http.Request, body []byte) *stub {
	for i := range r.stubs {
		if matchRequest(r.stubs[i].contract, req, body) {
			return &r.stubs[i]
		}
	}
	return nil
}

func (r *Runner) respond(c echo.Context, resp contract.Response) error {
	for name, value := range resp.Headers {
		c.Response().Header().Set(name, value)
	}
	if resp.Body == nil {
		return c.NoContent(resp.Status)
	}

	body := make(map[string]any, len(resp.Body))
	r.randMu.Lock()
	defer r.randMu.Unlock()
	for field, value := range resp.Body {
		v, err := value.Sample(r.rand)
		if err != nil {
			return server.HandleError(c, core.NewInternalError("cannot render response field "+field, err))
		}
		body[field] = v
	}
	return c.JSON(resp.Status, body)
}

func (r *Runner) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "contracts": len(r.stubs)})
}

func (r *Runner) listContracts(c echo.Context) error {
	type item struct {
		Name        string             `json:"name"`
		Fingerprint string             `json:"fingerprint"`
		Contract    *contract.Contract `json:"contract"`
	}
	out := make([]item, 0, len(r.stubs))
	for _, s := range r.stubs {
		out = append(out, item{Name: s.contract.Name, Fingerprint: s.fingerprint, Contract: s.contract})
	}
	return c.JSON(http.StatusOK, out)
}

func (r *Runner) listRequests(c echo.Context) error {
	entries, err := r.journal.Entries(c.Request().Context())
	if err != nil {
		return server.HandleError(c, core.NewInternalError("failed to read journal", err))
	}
	return c.JSON(http.StatusOK, entries)
}

func (r *Runner) resetRequests(c echo.Context) error {
	if err := r.journal.Reset(c.Request().Context()); err != nil {
		return server.HandleError(c, core.NewInternalError("failed to reset journal", err))
	}
	return c.NoContent(http.StatusNoContent)
}
