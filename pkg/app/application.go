package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"reservo/pkg/config"
	"reservo/pkg/contracts"
	"reservo/pkg/middleware"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/sync/errgroup"
)

type namedWorker struct {
	name   string
	worker contracts.Worker
}

type Application struct {
	cfg              *config.Config
	server           *http.Server
	idempotencyStore *middleware.InMemoryIdempotencyStore
	rateLimiter      *middleware.CallerRateLimiter
	healthHandler    http.Handler
	appHttpHandler   http.Handler
	metricsHandler   http.Handler
	workers          []namedWorker
	onShutdown       []func()
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

// SetApp wires the health routes with minimal middleware and the API routes
// with the full stack. appHandler and metrics may be nil for worker-only binaries.
func (a *Application) SetApp(health contracts.Handler, appHandler contracts.Handler, metrics http.Handler) {
	a.setHealthHandler(health)
	if appHandler != nil {
		a.setAppHandler(appHandler)
	}
	a.metricsHandler = metrics
	a.setAppServer()
}

// AddWorker registers a loop that runs alongside the HTTP server and is
// stopped before the server drains.
func (a *Application) AddWorker(name string, w contracts.Worker) {
	a.workers = append(a.workers, namedWorker{name: name, worker: w})
}

// OnShutdown registers cleanup run after the server and workers have stopped.
func (a *Application) OnShutdown(fn func()) {
	a.onShutdown = append(a.onShutdown, fn)
}

func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

func (a *Application) setHealthHandler(health contracts.Handler) {
	healthRouter := httprouter.New()
	health.RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(appHandler contracts.Handler) {
	appRouter := httprouter.New()
	appHandler.RegisterRoutes(appRouter)

	a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	a.rateLimiter = middleware.NewCallerRateLimiter(a.cfg.RateLimitRequests, a.cfg.RateLimitWindow, a.cfg.Log)

	var appHttpHandler http.Handler = appRouter
	appHttpHandler = middleware.Idempotency(a.idempotencyStore, middleware.DefaultIdempotencyHeader)(appHttpHandler)
	appHttpHandler = middleware.RequestTimeout(a.cfg.RequestTimeout)(appHttpHandler)
	appHttpHandler = middleware.CallerRateLimit(a.rateLimiter)(appHttpHandler)
	appHttpHandler = middleware.Identity(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(a.cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	if a.metricsHandler != nil {
		mux.Handle("/metrics", a.metricsHandler)
	}
	if a.appHttpHandler != nil {
		mux.Handle("/", a.appHttpHandler)
	}

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

// Run serves until ctx is cancelled or a component fails, then shuts everything
// down. Workers get their own context and are stopped only after the server has
// drained, so events queued by in-flight requests are still flushed.
func (a *Application) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, listener)
}

func (a *Application) Serve(ctx context.Context, listener net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	g.Go(func() error {
		a.cfg.Log.Info("Starting HTTP server", "address", listener.Addr().String())
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.cfg.Log.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	})

	for _, w := range a.workers {
		g.Go(func() error {
			a.cfg.Log.Info("Starting background worker", "worker", w.name)
			err := w.worker.Run(workerCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.cfg.Log.Error("Background worker failed", "worker", w.name, "error", err)
				return err
			}
			a.cfg.Log.Info("Background worker stopped", "worker", w.name)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.cfg.Log.Info("Shutdown signal received", "cause", context.Cause(gctx))
		a.gracefulShutdown(stopWorkers)
		return nil
	})

	err := g.Wait()
	for _, fn := range a.onShutdown {
		fn()
	}
	return err
}

func (a *Application) gracefulShutdown(stopWorkers context.CancelFunc) {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	stopWorkers()
	if a.idempotencyStore != nil {
		a.idempotencyStore.Stop()
		a.rateLimiter.Stop()
	}
	a.cfg.Log.Info("Server stopped gracefully")
}
