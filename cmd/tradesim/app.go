package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourorg/tradesim/internal/cache"
	"github.com/yourorg/tradesim/internal/config"
	"github.com/yourorg/tradesim/internal/drafts"
	"github.com/yourorg/tradesim/internal/gateway"
	"github.com/yourorg/tradesim/internal/ledger"
	"github.com/yourorg/tradesim/internal/logging"
	"github.com/yourorg/tradesim/internal/observability"
	"github.com/yourorg/tradesim/internal/session"
	"github.com/yourorg/tradesim/internal/store"
)

// app is the fully wired client: config, storage, gateway, caches and session.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	store   *store.SQLiteStore
	metrics *observability.Collector
	api     *gateway.Client
	routes  *cache.Routes
	factors *cache.Factors
	drafts  *drafts.Store
	ledger  *ledger.Ledger
	sink    *ledger.KafkaSink
	session *session.Session

	shutdownTracing func(context.Context) error
}

type appOptions struct {
	cfgPath string
	debug   bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return nil, err
	}
	if opts.debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	a := &app{cfg: cfg, log: log}
	a.shutdownTracing, err = observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.metrics, err = observability.NewCollector(prometheus.NewRegistry())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init metrics: %w", err)
		}
	}

	a.store, err = store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	a.api = &gateway.Client{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.API.Timeout},
		Logger:     log,
	}
	if a.metrics != nil {
		a.api.Metrics = a.metrics
	}

	a.routes = cache.NewRoutes(a.api, log)
	a.factors = cache.NewFactors(a.api, a.store, log)
	a.drafts, err = drafts.New(a.api, a.factors, a.store, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load drafts: %w", err)
	}

	var ledgerOpts []ledger.Option
	if len(cfg.Ledger.Kafka.Brokers) > 0 {
		a.sink = ledger.NewKafkaSink(cfg.Ledger.Kafka.Brokers, cfg.Ledger.Kafka.Topic)
		ledgerOpts = append(ledgerOpts, ledger.WithSink(a.sink))
	}
	if a.metrics != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithGauge(a.metrics))
	}
	a.ledger, err = ledger.New(cfg.Ledger.Capacity, a.store, log, ledgerOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	scfg := session.Config{
		API:          a.api,
		Editor:       a.api,
		Routes:       a.routes,
		Factors:      a.factors,
		Drafts:       a.drafts,
		Ledger:       a.ledger,
		Store:        a.store,
		Logger:       log,
		Debounce:     cfg.Scheduler.Debounce,
		MinIndicator: cfg.Scheduler.MinIndicator,
	}
	if a.metrics != nil {
		scfg.Metrics = a.metrics
	}
	a.session = session.New(scfg)
	return a, nil
}

// warm loads both caches. Failures are logged; the caches keep their error.
func (a *app) warm(ctx context.Context) {
	if err := a.factors.Refresh(ctx); err != nil {
		a.log.Warn("initial factor load failed", "error", err)
	}
	if err := a.routes.Refresh(ctx); err != nil {
		a.log.Warn("initial route load failed", "error", err)
	}
}

func (a *app) Close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Warn("close kafka sink", "error", err)
		}
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.shutdownTracing != nil {
		observability.ShutdownWithTimeout(context.Background(), a.shutdownTracing, a.log)
	}
}
