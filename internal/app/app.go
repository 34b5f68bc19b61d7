// Package app wires configuration, contracts and the HTTP servers together
// and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/push"

	"contractkit/config"
	"contractkit/contracts/fraudname"
	"contractkit/internal/contract"
	"contractkit/internal/fraud"
	"contractkit/internal/history"
	"contractkit/internal/httpclient"
	"contractkit/internal/observability"
	"contractkit/internal/server"
	"contractkit/internal/storage"
	"contractkit/internal/stubrunner"
	"contractkit/internal/verifier"
)

// PushJob is the Pushgateway job name verification metrics are pushed under.
const PushJob = "contractkit_verify"

// ShutdownTimeout bounds how long Serve waits for in-flight requests.
const ShutdownTimeout = 30 * time.Second

// App represents the application with all its dependencies.
// Components are created on first use; Close releases whatever was opened.
type App struct {
	config    *config.Config
	contracts *contract.Registry
	metrics   *observability.Metrics

	mu      sync.Mutex
	journal stubrunner.Journal
	db      *storage.SQLite
	history *history.Store

	closeMu sync.Mutex
	closed  bool
}

// New loads the contracts named by cfg.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	registry, err := LoadContracts(cfg.Contracts)
	if err != nil {
		return nil, err
	}

	return &App{
		config:    cfg,
		contracts: registry,
		metrics:   observability.New(),
	}, nil
}

// Config returns the application configuration.
func (a *App) Config() *config.Config {
	return a.config
}

// Contracts returns the loaded contracts.
func (a *App) Contracts() *contract.Registry {
	return a.contracts
}

// Metrics returns the collectors for verification runs.
func (a *App) Metrics() *observability.Metrics {
	return a.metrics
}

// Producer builds the fraud name service.
func (a *App) Producer() *server.Server {
	cfg := a.config
	return server.New(fraud.NewDetector(cfg.Fraud.Names...), &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   cfg.Server.BodySizeLimit,
	})
}

// StubRunner builds the stub server for the loaded contracts.
func (a *App) StubRunner() (*stubrunner.Runner, error) {
	journal, err := a.Journal()
	if err != nil {
		return nil, err
	}

	cfg := a.config
	metricsEndpoint := ""
	if cfg.Metrics.Endpoint != "" && cfg.Metrics.Endpoint != config.Default().Metrics.Endpoint {
		metricsEndpoint = cfg.Metrics.Endpoint
	}
	return stubrunner.New(a.contracts, &stubrunner.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: metricsEndpoint,
		BodySizeLimit:   cfg.Server.BodySizeLimit,
		Journal:         journal,
		Seed:            cfg.Verifier.Seed,
	}), nil
}

// Journal returns the stub request journal selected by stubs.journal.
func (a *App) Journal() (stubrunner.Journal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.journal != nil {
		return a.journal, nil
	}

	cfg := a.config.Stubs
	switch cfg.Journal {
	case config.JournalRedis:
		j, err := stubrunner.NewRedisJournal(stubrunner.RedisConfig{
			URL:        cfg.RedisURL,
			Key:        cfg.RedisKey,
			MaxEntries: cfg.JournalMaxEntries,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis journal: %w", err)
		}
		a.journal = j
	default:
		a.journal = stubrunner.NewMemoryJournal(cfg.JournalMaxEntries)
	}
	slog.Info("stub journal ready", "backend", cfg.Journal, "max_entries", cfg.JournalMaxEntries)
	return a.journal, nil
}

// History opens the verification history database.
func (a *App) History(ctx context.Context) (*history.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.history != nil {
		return a.history, nil
	}

	db, err := storage.Open(ctx, storage.Config{Path: a.config.Storage.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open history storage: %w", err)
	}
	store, err := history.NewStore(ctx, db.DB())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.db = db
	a.history = store
	return store, nil
}

// Verify replays every loaded contract against baseURL (verifier.base_url
// when empty) and records the report in the history database.
func (a *App) Verify(ctx context.Context, baseURL string) (verifier.Report, error) {
	if baseURL == "" {
		baseURL = a.config.Verifier.BaseURL
	}

	clientCfg := httpclient.FromConfig(a.config.HTTP)
	opts := []verifier.Option{
		verifier.WithObserver(func(r verifier.Result) {
			outcome := "passed"
			if !r.Passed {
				outcome = "failed"
			}
			a.metrics.Verifications.WithLabelValues(outcome).Inc()
		}),
	}
	if a.config.Verifier.Seed != 0 {
		opts = append(opts, verifier.WithSeed(a.config.Verifier.Seed))
	}

	client := httpclient.NewHTTPClient(&clientCfg)
	v := verifier.New(client, baseURL, opts...)
	report := v.VerifyAll(ctx, a.contracts.All())

	store, err := a.History(ctx)
	if err != nil {
		return report, err
	}
	if err := store.Save(ctx, report); err != nil {
		return report, fmt.Errorf("failed to save verification report: %w", err)
	}

	if url := a.config.Metrics.PushgatewayURL; url != "" {
		err := push.New(url, PushJob).
			Client(client).
			Gatherer(a.metrics.Registry()).
			PushContext(ctx)
		if err != nil {
			return report, fmt.Errorf("failed to push verification metrics: %w", err)
		}
		slog.Debug("verification metrics pushed", "pushgateway", url, "job", PushJob)
	}
	return report, nil
}

// Close releases the journal and the history database.
// Close is idempotent; it attempts every step and joins the failures.
func (a *App) Close() error {
	a.closeMu.Lock()
	if a.closed {
		a.closeMu.Unlock()
		return nil
	}
	a.closed = true
	a.closeMu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			slog.Error("journal close error", "error", err)
			errs = append(errs, fmt.Errorf("journal close: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Error("storage close error", "error", err)
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// LogStartupInfo logs security relevant settings.
func (a *App) LogStartupInfo() {
	cfg := a.config

	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: MASTER_KEY not set - admin endpoints are unauthenticated",
			"security_risk", "unauthenticated access allowed",
			"recommendation", "set MASTER_KEY environment variable")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}
	slog.Info("contracts loaded", "count", a.contracts.Len(), "dir", cfg.Contracts.Dir, "builtin", cfg.Contracts.Builtin)
}

// HTTPServer is a server Serve can run.
type HTTPServer interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

// Serve runs srv on addr until it fails or ctx is cancelled, then shuts it
// down within ShutdownTimeout.
func Serve(ctx context.Context, name string, srv HTTPServer, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "server", name, "address", addr)
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s failed to start: %w", name, err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...", "server", name)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown: %w", name, err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	slog.Info("server stopped gracefully", "server", name)
	return nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// LoadContracts builds the registry from the built-in contracts and the
// contracts directory. A directory contract identical to a built-in one is
// skipped. A missing directory is an error unless it is the default one.
func LoadContracts(cfg config.ContractsConfig) (*contract.Registry, error) {
	registry, err := contract.NewRegistry()
	if err != nil {
		return nil, err
	}

	builtin := map[string]string{}
	if cfg.Builtin {
		for _, c := range fraudname.Contracts() {
			if err := registry.Add(c); err != nil {
				return nil, err
			}
			builtin[c.Name] = c.Fingerprint()
		}
	}

	if cfg.Dir == "" {
		return registry, nil
	}

	loaded, err := contract.LoadDir(cfg.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && cfg.Dir == config.Default().Contracts.Dir {
			slog.Debug("contracts directory not found", "dir", cfg.Dir)
			return registry, nil
		}
		return nil, err
	}

	for _, c := range loaded {
		if fp, ok := builtin[c.Name]; ok && fp == c.Fingerprint() {
			continue
		}
		if err := registry.Add(c); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
