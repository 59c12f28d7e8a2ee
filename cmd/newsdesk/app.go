package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/newsdesk/config"
	"github.com/c360studio/newsdesk/llm"
	"github.com/c360studio/newsdesk/metrics"
	"github.com/c360studio/newsdesk/model"
	"github.com/c360studio/newsdesk/news"
	"github.com/c360studio/newsdesk/source"
	"github.com/c360studio/newsdesk/storage"
)

// graphStream captures graph ingest messages when no other stream does.
const graphStream = "NEWSDESK_GRAPH"

// App wires the configured components together.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector

	nats *natsclient.Client
	db   *sql.DB

	store     storage.RecordStore
	publisher *news.Publisher
}

// NewApp connects the infrastructure the config asks for and builds the store
// and publisher. col may be nil.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, col *metrics.Collector) (*App, error) {
	a := &App{cfg: cfg, logger: logger, metrics: col}

	if cfg.NeedsNATS() {
		nc, err := connectToNATS(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.nats = nc
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.store = store

	if cfg.Graph.Enabled {
		if err := a.ensureGraphStream(ctx); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	a.publisher = news.NewPublisher(store, a.publisherOptions()...)
	return a, nil
}

// Close releases connections.
func (a *App) Close(ctx context.Context) {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Failed to close database", "error", err)
		}
	}
	if a.nats != nil {
		if err := a.nats.Close(ctx); err != nil {
			a.logger.Warn("Failed to close NATS connection", "error", err)
		}
	}
}

// Publisher returns the article publisher.
func (a *App) Publisher() *news.Publisher {
	return a.publisher
}

// Gateway builds the model gateway. Slots without credentials are skipped;
// it fails when no slot is left.
func (a *App) Gateway() (*llm.Gateway, error) {
	registry := model.NewRegistryFromConfig(&a.cfg.Providers)

	pollOpts := append(a.cfg.PollerOptions(),
		llm.WithPollLogger(a.logger),
		llm.WithPollObserver(a.metrics))

	opts := []llm.GatewayOption{
		llm.WithCallTimeout(a.cfg.Gateway.CallTimeout),
		llm.WithPoller(llm.NewPoller(pollOpts...)),
		llm.WithLogger(a.logger),
		llm.WithGatewayObserver(a.metrics),
	}

	if a.cfg.Graph.Enabled {
		callStore, err := llm.NewCallStore(llm.NewJetStreamPublisher(a.nats),
			llm.WithOrg(a.cfg.Graph.Org),
			llm.WithProject(a.cfg.Graph.Project),
			llm.WithStoreLogger(a.logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, llm.WithCallRecorder(callStore))
	}

	return llm.NewGatewayFromRegistry(registry, []llm.BackendOption{llm.WithBackendLogger(a.logger)}, opts...)
}

// Desk builds the news desk on top of the gateway.
func (a *App) Desk(gateway news.Generator, concurrency int) (*news.Desk, error) {
	if concurrency <= 0 {
		concurrency = a.cfg.Batch.Concurrency
	}

	fetcherOpts := []source.FetcherOption{
		source.WithTimeout(a.cfg.Sources.Timeout),
		source.WithMaxContentSize(a.cfg.Sources.MaxContentSize),
		source.WithLogger(a.logger),
	}
	if a.cfg.Sources.UserAgent != "" {
		fetcherOpts = append(fetcherOpts, source.WithUserAgent(a.cfg.Sources.UserAgent))
	}
	reader := source.NewReader(source.NewFetcher(fetcherOpts...), source.NewConverter(), a.cfg.Sources.MaxChars)

	return news.NewDesk(gateway, a.publisher, news.DefaultPrompt,
		news.WithConcurrency(concurrency),
		news.WithRateLimit(a.cfg.Batch.RequestsPerMinute),
		news.WithMaxItems(a.cfg.Batch.MaxItems),
		news.WithSource(reader),
		news.WithDeskObserver(a.metrics),
		news.WithDeskLogger(a.logger))
}

func (a *App) publisherOptions() []news.PublisherOption {
	opts := []news.PublisherOption{
		news.WithPublisherLogger(a.logger),
		news.WithUpsertOptions(
			storage.WithRetryConfig(a.cfg.Retry),
			storage.WithObserver(a.metrics),
		),
	}
	for kind, collection := range a.cfg.Store.Collections {
		opts = append(opts, news.WithCollection(kind, collection))
	}
	if a.cfg.Graph.Enabled {
		opts = append(opts, news.WithGraph(llm.NewJetStreamPublisher(a.nats), a.cfg.Graph.Org, a.cfg.Graph.Project))
	}
	return opts
}

func (a *App) collections() []string {
	out := make([]string, 0, 2)
	for _, kind := range []news.Kind{news.KindNewsItem, news.KindTutorial} {
		name := kind.DefaultCollection()
		if custom, ok := a.cfg.Store.Collections[kind]; ok && custom != "" {
			name = custom
		}
		out = append(out, name)
	}
	return out
}

func (a *App) openStore(ctx context.Context) (storage.RecordStore, error) {
	switch a.cfg.Store.Backend {
	case config.BackendKV:
		js, err := a.nats.JetStream()
		if err != nil {
			return nil, fmt.Errorf("get jetstream: %w", err)
		}
		var opts []storage.KVStoreOption
		if a.cfg.Store.BucketPrefix != "" {
			opts = append(opts, storage.WithBucketPrefix(a.cfg.Store.BucketPrefix))
		}
		a.logger.Info("Using JetStream KV store")
		return storage.NewKVStore(js, opts...), nil

	case config.BackendPostgres:
		dsn := os.Getenv(a.cfg.Store.PostgresDSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("%s is not set", a.cfg.Store.PostgresDSNEnv)
		}
		db, err := storage.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		a.db = db

		var opts []storage.PostgresOption
		if a.cfg.Store.TablePrefix != "" {
			opts = append(opts, storage.WithTablePrefix(a.cfg.Store.TablePrefix))
		}
		pg := storage.NewPostgresStore(db, opts...)
		for _, collection := range a.collections() {
			if err := pg.EnsureCollection(ctx, collection, storage.DefaultUniqueField); err != nil {
				return nil, err
			}
		}
		a.logger.Info("Using Postgres store")
		return pg, nil

	default:
		a.logger.Info("Using in-memory store; records are lost on exit")
		return storage.NewMemoryStore(), nil
	}
}

// ensureGraphStream makes sure some stream captures graph ingest messages.
func (a *App) ensureGraphStream(ctx context.Context) error {
	js, err := a.nats.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}

	name, err := js.StreamNameBySubject(ctx, llm.GraphIngestSubject)
	if err == nil {
		a.logger.Debug("Graph ingest stream found", "stream", name)
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("look up graph stream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     graphStream,
		Subjects: []string{llm.GraphIngestSubject},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create graph stream: %w", err)
	}
	a.logger.Info("Created graph ingest stream", "stream", graphStream)
	return nil
}

func connectToNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	natsURL := cfg.NATS.URL

	// Environment variable override takes precedence
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		natsURL = envURL
	} else if envURL := os.Getenv("NEWSDESK_NATS_URL"); envURL != "" {
		natsURL = envURL
	}

	logger.Info("Connecting to NATS", "url", natsURL)

	client, err := natsclient.NewClient(natsURL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithCircuitBreakerThreshold(20),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	logger.Info("Connected to NATS", "url", natsURL)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker run -p 4222:4222 nats -js

Or set NATS_URL to point to your NATS server, or use store.backend: memory
with graph publishing disabled.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}
