// Package app initializes and holds the long-lived services every command
// needs: the logger, the Postgres pool, the NSQ broker, blob storage and
// the read-side cache.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gcsapi "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/auctionlens/gazette-harvester/internal/api"
	"github.com/auctionlens/gazette-harvester/internal/blob"
	"github.com/auctionlens/gazette-harvester/internal/blob/gcs"
	"github.com/auctionlens/gazette-harvester/internal/blob/local"
	blobmemory "github.com/auctionlens/gazette-harvester/internal/blob/memory"
	"github.com/auctionlens/gazette-harvester/internal/broker"
	"github.com/auctionlens/gazette-harvester/internal/broker/nsq"
	"github.com/auctionlens/gazette-harvester/internal/cache"
	cachememory "github.com/auctionlens/gazette-harvester/internal/cache/memory"
	cacheredis "github.com/auctionlens/gazette-harvester/internal/cache/redis"
	"github.com/auctionlens/gazette-harvester/internal/config"
	"github.com/auctionlens/gazette-harvester/internal/dispatcher"
	"github.com/auctionlens/gazette-harvester/internal/extract"
	"github.com/auctionlens/gazette-harvester/internal/gazette"
	"github.com/auctionlens/gazette-harvester/internal/logging"
	"github.com/auctionlens/gazette-harvester/internal/metrics"
	"github.com/auctionlens/gazette-harvester/internal/pipeline"
	"github.com/auctionlens/gazette-harvester/internal/store"
)

// App is the dependency container shared by all commands. It is built once
// by New and torn down by Close.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	pool   *pgxpool.Pool
	broker *nsq.Broker
	blobs  blob.Store
	cache  *cache.Cache

	pages  *store.PageStore
	claims *store.ClaimStore
	cases  *store.CaseStore

	client     *gazette.Client
	dispatcher *dispatcher.Dispatcher
	fetcher    *pipeline.FetchWorker
	pageWorker *pipeline.PageWorker
	replayer   *pipeline.Replayer
	server     *api.Server
}

// New builds the full service graph from configuration. It fails fast: any
// backend that cannot be reached aborts startup.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	pool, err := store.NewPool(ctx, store.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifeMins) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	bk, err := nsq.New(nsq.Config{
		NSQDAddress:      cfg.Broker.NSQDAddress,
		LookupdAddresses: cfg.Broker.LookupdAddresses,
		ClientID:         "gazette-harvester",
	}, logging.Named(logger, "nsq"))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init nsq: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg.Storage, logging.Named(logger, "storage"))
	if err != nil {
		pool.Close()
		bk.Stop()
		return nil, err
	}

	reads, err := newCache(ctx, cfg.Cache, logging.Named(logger, "cache"))
	if err != nil {
		pool.Close()
		bk.Stop()
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		broker: bk,
		blobs:  blobs,
		cache:  reads,
	}
	a.wire()
	logger.Info("application services initialized",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("cache_engine", cfg.Cache.Engine))
	return a, nil
}

// wire assembles the pipeline components on top of the backends.
func (a *App) wire() {
	cfg := a.cfg

	a.pages = store.NewPageStore(a.pool)
	a.claims = store.NewClaimStore(a.pool)
	a.cases = store.NewCaseStore(a.pool)
	parties := store.NewPartyStore(a.pool)
	timeline := store.NewTimelineStore(a.pool)

	a.client = gazette.NewClient(&http.Client{Timeout: cfg.SourceTimeout()}, cfg.Source.BaseURL, cfg.Source.UserAgent)

	upstream := dispatcher.NewCachedUpstream(a.client, a.cache,
		time.Duration(cfg.Cache.DefaultTTLSec)*time.Second, logging.Named(a.logger, "upstream-cache"))
	a.dispatcher = dispatcher.New(upstream, a.broker, cfg.Broker.FetchTopic,
		cfg.DispatchDelay(), cfg.Source.TomorrowAfterUTC, logging.Named(a.logger, "dispatcher"))

	a.fetcher = pipeline.NewFetchWorker(a.client, a.broker, a.blobs, cfg.Broker.ConvertTopic,
		logging.Named(a.logger, "fetch-worker"))

	extractor := extract.New(extract.Config{
		MaxPageSpan:    cfg.Extract.MaxPageSpan,
		MinBlockLength: cfg.Extract.MinBlockLength,
		MaxParties:     cfg.Extract.MaxParties,
		ProgressEvery:  cfg.Extract.ProgressEvery,
	}, logging.Named(a.logger, "extract"))
	resolver := pipeline.NewResolver(parties, a.cases, timeline, logging.Named(a.logger, "resolver"))
	a.pageWorker = pipeline.NewPageWorker(a.pages, a.claims, resolver,
		gazette.NewNormalizer(), extractor, cfg.ClaimLease(), logging.Named(a.logger, "page-worker"))
	a.replayer = pipeline.NewReplayer(a.pageWorker, a.pages, a.claims, logging.Named(a.logger, "replay"))

	a.server = api.NewServer(a.cases, timeline, a.dispatcher, a.pool.Ping, logging.Named(a.logger, "api"))
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (blob.Store, error) {
	if !cfg.BackupRaw {
		logger.Info("raw PDF backup disabled, downloads will not be archived")
		return blob.Discard{}, nil
	}
	switch cfg.Backend {
	case "local":
		s, err := local.New(cfg.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return s, nil
	case "gcs":
		client, err := gcsapi.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		return gcs.New(client, cfg.GCSBucket)
	case "memory":
		return blobmemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

func newCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (*cache.Cache, error) {
	switch cfg.Engine {
	case "memory":
		return cache.New(cachememory.New(0), logger), nil
	case "redis":
		engine, err := cacheredis.New(ctx, cfg.RedisAddress, "", 0)
		if err != nil {
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		return cache.New(engine, logger), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache engine: %s", cfg.Engine)
	}
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Dispatcher returns the browse dispatcher.
func (a *App) Dispatcher() *dispatcher.Dispatcher { return a.dispatcher }

// Replayer returns the raw-backup replayer.
func (a *App) Replayer() *pipeline.Replayer { return a.replayer }

// APIHandler returns the HTTP surface (health, metrics, case reads).
func (a *App) APIHandler() http.Handler { return a.server.Handler() }

func (a *App) retryPolicy() pipeline.RetryPolicy {
	return pipeline.RetryPolicy{
		MaxAttempts:  uint16(a.cfg.Broker.MaxAttempts),
		RequeueDelay: a.cfg.RequeueDelay(),
	}
}

func (a *App) subscribeOptions() broker.SubscribeOptions {
	return broker.SubscribeOptions{
		MaxInFlight: a.cfg.Broker.MaxInFlight,
		MsgTimeout:  time.Duration(a.cfg.Broker.MsgTimeoutSec) * time.Second,
	}
}

// SubscribeFetch attaches the fetch worker to the raw job topic. Messages
// flow until Close stops the broker.
func (a *App) SubscribeFetch() error {
	topic := a.cfg.Broker.FetchTopic
	h := pipeline.WithRetry(a.retryPolicy(), a.broker, topic, a.logger, a.fetcher.Handle)
	return a.broker.Subscribe(topic, a.cfg.Broker.Channel, a.subscribeOptions(), h)
}

// SubscribePages attaches the page worker to the processed-page topic.
func (a *App) SubscribePages() error {
	topic := a.cfg.Broker.ProcessedTopic
	h := pipeline.WithRetry(a.retryPolicy(), a.broker, topic, a.logger, a.pageWorker.Handle)
	return a.broker.Subscribe(topic, a.cfg.Broker.Channel, a.subscribeOptions(), h)
}

// Close tears the services down in reverse dependency order and flushes
// the logger.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	a.broker.Stop()
	a.pool.Close()
	_ = a.logger.Sync()
}
