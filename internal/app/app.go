// Package app wires all sagevoice subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithEngine, WithBaselineStore, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/PoisonIvory/sagevoice/internal/analysis"
	"github.com/PoisonIvory/sagevoice/internal/api"
	"github.com/PoisonIvory/sagevoice/internal/baseline"
	baselinepg "github.com/PoisonIvory/sagevoice/internal/baseline/postgres"
	"github.com/PoisonIvory/sagevoice/internal/clinical"
	"github.com/PoisonIvory/sagevoice/internal/config"
	"github.com/PoisonIvory/sagevoice/internal/engine"
	"github.com/PoisonIvory/sagevoice/internal/engine/cloud"
	"github.com/PoisonIvory/sagevoice/internal/health"
	"github.com/PoisonIvory/sagevoice/internal/observe"
	"github.com/PoisonIvory/sagevoice/pkg/quality"
)

// shutdownGrace bounds how long Shutdown waits for in-flight requests.
const shutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config
	log *slog.Logger

	// Subsystems. Initialised in New, torn down in Shutdown.
	eng          engine.Engine
	store        baseline.Store
	orchestrator *analysis.Orchestrator
	baselines    *baseline.Manager
	server       *http.Server

	// extraCheckers are appended to the readiness probe.
	extraCheckers []health.Checker

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithEngine injects an analysis engine instead of creating the cloud client
// from config.
func WithEngine(e engine.Engine) Option {
	return func(a *App) { a.eng = e }
}

// WithBaselineStore injects a baseline store instead of creating one from
// config.
func WithBaselineStore(s baseline.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLogger sets the application logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// New creates an App by wiring all subsystems together: the baseline store,
// the analysis engine client, the orchestrator, the baseline manager, and the
// HTTP server with API, health and metrics routes.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init baseline store: %w", err)
	}
	if err := a.initEngine(); err != nil {
		return nil, fmt.Errorf("app: init engine: %w", err)
	}
	if err := a.initOrchestrator(); err != nil {
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}
	a.baselines = baseline.NewManager(a.store, clinical.NewValidator(clinical.NewProvider()), observe.DefaultMetrics())
	a.initServer()

	return a, nil
}

// initStore sets up the PostgreSQL baseline store, or an in-memory one when
// no DSN is configured.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		a.log.Warn("no postgres DSN configured, using in-memory baseline store")
		a.store = baseline.NewMemStore()
		return nil
	}

	store, err := baselinepg.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = store
	a.extraCheckers = append(a.extraCheckers, health.BaselineStore(store))
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initEngine creates the cloud engine client from config.
func (a *App) initEngine() error {
	if a.eng != nil {
		return nil
	}

	var opts []cloud.Option
	if a.cfg.Engine.ResultURL != "" {
		opts = append(opts, cloud.WithResultURL(a.cfg.Engine.ResultURL))
	}
	client, err := cloud.New(a.cfg.Engine.BaseURL, a.cfg.Engine.APIKey, opts...)
	if err != nil {
		return err
	}
	a.eng = client
	return nil
}

// initOrchestrator builds the estimator from the configured gate thresholds
// and wires it to the engine.
func (a *App) initOrchestrator() error {
	gate := quality.NewGate(
		gateThresholds(a.cfg.Quality.Device),
		gateThresholds(a.cfg.Quality.Simulator),
	)

	orch, err := analysis.New(analysis.Config{
		Estimator:         quality.NewEstimator(gate),
		Engine:            a.eng,
		Metrics:           observe.DefaultMetrics(),
		UploadMaxAttempts: a.cfg.Engine.UploadMaxAttempts,
		UploadBackoff:     a.cfg.Engine.UploadBackoff.Std(),
		UploadMaxBackoff:  a.cfg.Engine.UploadMaxBackoff.Std(),
		ResultTimeout:     a.cfg.Engine.ResultTimeout.Std(),
	})
	if err != nil {
		return err
	}
	a.orchestrator = orch
	a.closers = append(a.closers, func() error {
		orch.Close()
		return nil
	})
	return nil
}

// initServer assembles the HTTP mux: API routes, health probes and the
// Prometheus metrics endpoint, wrapped in the tracing middleware.
func (a *App) initServer() {
	mux := http.NewServeMux()

	api.NewServer(a.orchestrator, a.baselines, a.log).Register(mux)
	health.New(a.extraCheckers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Orchestrator exposes the analysis orchestrator, mainly for tests.
func (a *App) Orchestrator() *analysis.Orchestrator { return a.orchestrator }

// Baselines exposes the baseline manager, mainly for tests.
func (a *App) Baselines() *baseline.Manager { return a.baselines }

// Handler returns the HTTP handler serving all routes.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// returns ctx's cause.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server listening", "addr", a.cfg.Server.ListenAddr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Shutdown()
		return ctx.Err()
	})

	return g.Wait()
}

// Shutdown stops the HTTP server and tears down all subsystems in reverse
// initialisation order. Safe to call more than once.
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := a.server.Shutdown(ctx); err != nil {
			a.log.Error("http shutdown", "error", err)
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				a.log.Error("subsystem shutdown", "error", err)
			}
		}
		a.log.Info("shutdown complete")
	})
}

func gateThresholds(g config.GateConfig) quality.GateThresholds {
	return quality.GateThresholds{
		MinimumRMS:         g.MinimumRMS,
		WarningRecoveryRMS: g.WarningRecoveryRMS,
	}
}
