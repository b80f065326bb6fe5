// Package pipeline wires a sync run together: it builds the API client,
// the sink, the checkpoint store and tracing from a TapConfig and drives
// the Emarsys source to completion.
//
// # Basic Usage
//
//	p := pipeline.NewSyncPipeline(cfg, cat, logger)
//	if err := p.Run(ctx); err != nil {
//	    return err
//	}
//	summary := p.Metrics()
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/emarsys-tap/pkg/catalog"
	"github.com/ajitpratap0/emarsys-tap/pkg/clients"
	"github.com/ajitpratap0/emarsys-tap/pkg/config"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/registry"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/sources/emarsys"
	"github.com/ajitpratap0/emarsys-tap/pkg/logger"
	"github.com/ajitpratap0/emarsys-tap/pkg/metrics"
	"github.com/ajitpratap0/emarsys-tap/pkg/observability"
	"github.com/ajitpratap0/emarsys-tap/pkg/sink"
	"github.com/ajitpratap0/emarsys-tap/pkg/state"
)

// Option customizes a SyncPipeline
type Option func(*SyncPipeline)

// WithStdout sets the stream Singer messages are written to. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(p *SyncPipeline) { p.stdout = w }
}

// WithClock sets the clock used for dates, rate limiting and polling
func WithClock(c clients.Clock) Option {
	return func(p *SyncPipeline) { p.clock = c }
}

// WithHTTPClient sets the HTTP client used for API calls
func WithHTTPClient(c *http.Client) Option {
	return func(p *SyncPipeline) { p.httpClient = c }
}

// WithVersion sets the service version reported in traces
func WithVersion(v string) Option {
	return func(p *SyncPipeline) { p.version = v }
}

// SyncPipeline runs one sync of the selected streams.
type SyncPipeline struct {
	config  *config.TapConfig
	catalog *catalog.Catalog
	logger  *zap.Logger

	stdout     io.Writer
	clock      clients.Clock
	httpClient *http.Client
	version    string

	// Metrics
	runID     string
	startTime time.Time
	duration  time.Duration
	apiStats  clients.APIStats
	mu        sync.Mutex
}

// NewSyncPipeline creates a pipeline for cfg and the catalog selection
func NewSyncPipeline(cfg *config.TapConfig, cat *catalog.Catalog, log *zap.Logger, opts ...Option) *SyncPipeline {
	if log == nil {
		log = zap.NewNop()
	}
	p := &SyncPipeline{
		config:  cfg,
		catalog: cat,
		logger:  log.With(zap.String("component", "pipeline")),
		stdout:  os.Stdout,
		clock:   clients.SystemClock{},
		version: "dev",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the sync. Checkpoints written before a failure stay valid
// and the next run resumes from them.
func (p *SyncPipeline) Run(ctx context.Context) (err error) {
	if err := p.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	log := p.logger.With(zap.String("run_id", runID))

	p.mu.Lock()
	p.runID = runID
	p.startTime = p.clock.Now()
	p.mu.Unlock()

	tracing := observability.DefaultTracingConfig()
	tracing.Enabled = p.config.Observability.EnableTracing
	tracing.ServiceVersion = p.version
	shutdown, err := observability.Init(tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := shutdown(sctx); serr != nil {
			log.Warn("failed to flush traces", zap.Error(serr))
		}
	}()

	ctx, span := observability.StartSpan(ctx, "emarsys.run",
		attribute.String("run_id", runID),
		attribute.String("output.mode", p.config.Output.Mode),
		attribute.String("state.backend", p.config.State.Backend))
	defer func() { observability.EndSpan(span, err) }()

	client, err := p.newClient(log)
	if err != nil {
		return err
	}
	defer func() {
		p.mu.Lock()
		p.apiStats = client.Stats()
		p.mu.Unlock()
		_ = client.Close()
	}()

	out, err := registry.CreateSink(p.config.Output.Mode, p.config, p.stdout)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close sink: %w", cerr)
		}
	}()

	store, err := OpenStore(ctx, p.config.State)
	if err != nil {
		return err
	}
	store = p.teeState(store, out)
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.Warn("failed to close state store", zap.Error(cerr))
		}
	}()

	src, err := emarsys.NewSource(emarsys.Options{
		Config:  p.config,
		Client:  client,
		Sink:    sink.NewInstrumented(out, log),
		Store:   store,
		Catalog: p.catalog,
		Clock:   p.clock,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	log.Info("starting sync",
		zap.Strings("streams", p.catalog.SelectedStreamIDs()),
		zap.String("output", p.config.Output.Mode),
		zap.String("state_backend", p.config.State.Backend))

	err = src.Sync(ctx)

	p.mu.Lock()
	p.duration = p.clock.Now().Sub(p.startTime)
	p.mu.Unlock()

	if perr := metrics.Push(ctx, p.config.Observability.MetricsPushgateway, "emarsys-tap"); perr != nil {
		log.Warn("failed to push metrics", zap.Error(perr))
	}

	if err != nil {
		log.Error("sync failed", zap.Error(err))
		return err
	}
	log.Info("sync completed", zap.Duration("duration", p.duration))
	return nil
}

// Discover writes the catalog of every stream to w
func (p *SyncPipeline) Discover(ctx context.Context, w io.Writer) error {
	client, err := p.newClient(p.logger)
	if err != nil {
		return err
	}
	defer client.Close()

	cat, err := emarsys.Discover(ctx, client)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	return cat.Write(w)
}

// Metrics returns a summary of the last run
func (p *SyncPipeline) Metrics() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]interface{}{
		"run_id":          p.runID,
		"duration":        p.duration,
		"total_requests":  p.apiStats.TotalRequests,
		"failed_requests": p.apiStats.FailedRequests,
	}
}

func (p *SyncPipeline) newClient(log *zap.Logger) (*clients.APIClient, error) {
	creds := p.config.Credentials
	apiConfig := clients.DefaultAPIConfig(creds.BaseURL, creds.Username, creds.Secret)
	if p.config.Timeouts.Request > 0 {
		apiConfig.RequestTimeout = p.config.Timeouts.Request
	}
	apiConfig.UserAgent = "emarsys-tap/" + p.version

	client, err := clients.NewAPIClient(apiConfig, p.httpClient, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return client, nil
}

// teeState echoes checkpoints as STATE messages when the output is the
// Singer stream or when explicitly requested
func (p *SyncPipeline) teeState(store state.Store, out core.Sink) state.Store {
	if emitter, ok := out.(state.Emitter); ok {
		return state.NewTee(store, emitter)
	}
	if p.config.State.EmitMessages {
		return state.NewTee(store, sink.NewSingerWriter(p.stdout))
	}
	return store
}
