// Package app builds and owns the long-lived services of urlscraper: the
// fetcher, run workers, stores, publisher, progress hub and HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/urlscraper/internal/api"
	"github.com/JakeFAU/urlscraper/internal/clock/system"
	"github.com/JakeFAU/urlscraper/internal/config"
	collyfetcher "github.com/JakeFAU/urlscraper/internal/fetcher/colly"
	"github.com/JakeFAU/urlscraper/internal/hash/sha256"
	"github.com/JakeFAU/urlscraper/internal/id/uuid"
	"github.com/JakeFAU/urlscraper/internal/policy/ratelimit"
	"github.com/JakeFAU/urlscraper/internal/progress"
	progresssinks "github.com/JakeFAU/urlscraper/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/urlscraper/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/urlscraper/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/urlscraper/internal/queue/memory"
	"github.com/JakeFAU/urlscraper/internal/scrape"
	"github.com/JakeFAU/urlscraper/internal/storage"
	gcsstorage "github.com/JakeFAU/urlscraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/urlscraper/internal/storage/local"
	memorystorage "github.com/JakeFAU/urlscraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/urlscraper/internal/storage/postgres"
	"github.com/JakeFAU/urlscraper/internal/telemetry"
	"github.com/JakeFAU/urlscraper/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// Option overrides a dependency Build would otherwise construct.
type Option func(*overrides)

type overrides struct {
	transport http.RoundTripper
	publisher scrape.Publisher
	clock     scrape.Clock
}

// WithTransport routes every fetch through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *overrides) { o.transport = rt }
}

// WithPublisher replaces the configured notification publisher.
func WithPublisher(p scrape.Publisher) Option {
	return func(o *overrides) { o.publisher = p }
}

// WithClock replaces the system clock.
func WithClock(c scrape.Clock) Option {
	return func(o *overrides) { o.clock = c }
}

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	runner         *worker.Runner
	pool           *worker.Pool
	queue          *queuememory.Queue
	runs           *memorystorage.RunStore
	apiServer      *api.Server
	progressHub    *progress.Hub
	gcs            *gcsstorage.BlobStore
	results        *pgstore.ResultStore
	pubsub         *gcppublisher.Publisher
	tracerShutdown func(context.Context) error
	closeOnce      sync.Once
}

// Build creates the application's dependencies. On error every dependency
// created so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o overrides
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = system.New()
	}

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeInfrastructure(context.WithoutCancel(ctx))
		}
	}()

	if err := a.setupTelemetry(ctx); err != nil {
		return nil, err
	}
	blobs, err := a.setupStorage(ctx)
	if err != nil {
		return nil, err
	}
	format, err := storage.ParseFormat(cfg.Storage.Format)
	if err != nil {
		return nil, err
	}
	exporter, err := storage.NewExporter(blobs, format, cfg.Storage.Prefix)
	if err != nil {
		return nil, fmt.Errorf("exporter init failed: %w", err)
	}
	if err := a.setupDatabase(ctx); err != nil {
		return nil, err
	}
	publisher, err := a.setupPublisher(ctx, o.publisher)
	if err != nil {
		return nil, err
	}
	emitter, err := a.setupProgress()
	if err != nil {
		return nil, err
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		Transport:    o.transport,
	})
	a.logger.Info("colly fetcher ready",
		zap.String("user_agent", cfg.Fetch.UserAgent),
		zap.Int("max_redirects", cfg.Fetch.MaxRedirects),
	)

	deps := worker.Deps{
		Fetcher:   fetcher,
		Clock:     o.clock,
		Exporter:  exporter,
		Publisher: publisher,
		Emitter:   emitter,
	}
	a.runs = memorystorage.NewRunStore()
	deps.Runs = a.runs
	if a.results != nil {
		deps.Results = a.results
	}
	if cfg.Fetch.PerHostRPS > 0 {
		deps.Limiter = ratelimit.New(ratelimit.Config{RPS: cfg.Fetch.PerHostRPS, Burst: cfg.Fetch.PerHostBurst})
		a.logger.Info("per-host rate limit enabled",
			zap.Float64("rps", cfg.Fetch.PerHostRPS),
			zap.Int("burst", cfg.Fetch.PerHostBurst),
		)
	}

	a.runner, err = worker.NewRunner(deps, worker.Config{
		Concurrency: cfg.Fetch.Concurrency,
		Timeout:     cfg.FetchTimeout(),
		Topic:       cfg.PubSub.Topic,
	}, logger.Named("worker"))
	if err != nil {
		return nil, fmt.Errorf("runner init failed: %w", err)
	}

	a.queue = queuememory.NewQueue(cfg.Runs.QueueDepth)
	a.pool, err = worker.NewPool(a.queue, a.runs, a.runner, cfg.Runs.Workers, logger.Named("worker"))
	if err != nil {
		return nil, fmt.Errorf("pool init failed: %w", err)
	}

	apiOpts := api.Options{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: cfg.RequestTimeout(),
	}
	if a.results != nil {
		apiOpts.Ready = a.results.Ping
	}
	a.apiServer, err = api.NewServer(api.Deps{
		Submitter: a.pool,
		Executor:  a.runner,
		Runs:      a.runs,
		Lister:    a.runs,
		IDs:       uuid.New(),
		Clock:     o.clock,
	}, apiOpts, logger)
	if err != nil {
		return nil, fmt.Errorf("api init failed: %w", err)
	}

	return a, nil
}

// Runner executes runs inline.
func (a *App) Runner() *worker.Runner {
	return a.runner
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Serve starts the run workers and the HTTP server, and blocks until ctx is
// canceled or SIGINT/SIGTERM arrives. It always closes the App.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		a.logger.Info("run workers started", zap.Int("workers", a.cfg.Runs.Workers))
		a.pool.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-poolDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("run workers did not stop before shutdown deadline")
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close gracefully shuts down the application. It is safe to call more
// than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		a.closeInfrastructure(ctx)
		a.closeObservability(ctx)
		a.logger.Info("shutdown complete")
	})
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.results != nil {
		a.results.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
}

func (a *App) setupTelemetry(ctx context.Context) error {
	if !a.cfg.Telemetry.Tracing {
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Options{
		ServiceName: a.cfg.Telemetry.ServiceName,
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = tp.Shutdown
	a.logger.Info("tracing enabled", zap.String("service", a.cfg.Telemetry.ServiceName))
	return nil
}

func (a *App) setupStorage(ctx context.Context) (scrape.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		var err error
		a.gcs, err = gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return a.gcs, nil
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.BaseDir))
		return blobs, nil
	case config.BackendMemory, "":
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database DSN configured, result persistence disabled")
		return nil
	}
	var err error
	a.results, err = pgstore.NewResultStore(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	}, sha256.New())
	if err != nil {
		return fmt.Errorf("result store init failed: %w", err)
	}
	a.logger.Info("result store initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context, override scrape.Publisher) (scrape.Publisher, error) {
	if override != nil {
		return override, nil
	}
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	a.pubsub, err = gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return a.pubsub, nil
}

func (a *App) setupProgress() (progress.Emitter, error) {
	promSink, err := progresssinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	hubCfg := progress.Config{Logger: a.logger.Named("progress_hub")}
	a.progressHub = progress.NewHub(hubCfg,
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
	)
	return a.progressHub, nil
}
