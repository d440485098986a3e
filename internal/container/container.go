package container

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"grocery/crawler/internal/browser"
	"grocery/crawler/internal/classifier"
	"grocery/crawler/internal/config"
	"grocery/crawler/internal/crawler"
	"grocery/crawler/internal/delay"
	"grocery/crawler/internal/discovery"
	"grocery/crawler/internal/extractor"
	"grocery/crawler/internal/metrics"
	"grocery/crawler/internal/proxy"
	"grocery/crawler/internal/queue"
	"grocery/crawler/internal/recovery"
	"grocery/crawler/internal/repository"
	"grocery/crawler/internal/server"
	"grocery/crawler/internal/service"
	"grocery/crawler/internal/state"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config       *config.Config
	Navigator    *browser.Navigator
	Engine       *crawler.Engine
	Queue        queue.Queue
	StateManager state.StateManager
	Metrics      *metrics.Metrics

	Service *service.Service
	Server  *server.Server

	db    *pgxpool.Pool
	redis *redis.Client
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	container.db = db

	if err := repository.EnsureSchema(ctx, db); err != nil {
		container.Close()
		return nil, err
	}
	log.Info("✅ Connected to PostgreSQL successfully")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})
	container.redis = rdb

	// Test connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("✅ Connected to Redis successfully")

	redisQueue, err := queue.NewRedisQueue(ctx, rdb, cfg.Redis)
	if err != nil {
		container.Close()
		return nil, err
	}
	container.Queue = redisQueue

	stateManager := state.NewRedisStateManager(rdb, cfg.Redis.KeyPrefix, time.Duration(cfg.Extractor.CacheTTL)*time.Second)
	container.StateManager = stateManager

	proxySupplier := proxy.NewProxySupplier(ctx, cfg.Browser)

	nav, err := browser.New(ctx, cfg.Browser, proxySupplier, log.WithField("component", "browser"))
	if err != nil {
		container.Close()
		return nil, err
	}
	container.Navigator = nav

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	container.Metrics = metrics.New(registry)

	recoveryManager := recovery.NewManager(cfg.Recovery,
		recovery.WithObserver(container.Metrics),
		recovery.WithLogger(log.WithField("component", "recovery")),
	)
	delays := delay.New(cfg.Delays, log.WithField("component", "delay"))

	linkClassifier := classifier.New(cfg.Crawler.AllowedDomain, cfg.Classifier)
	discoverer := discovery.New(linkClassifier, log.WithField("component", "discovery"))

	productExtractor := extractor.New(
		nav,
		repository.NewProductRepository(db),
		stateManager,
		log.WithField("component", "extractor"),
	)

	seeds := cfg.Crawler.StartURLs
	if len(seeds) == 0 {
		seeds = []string{cfg.Crawler.BaseURL}
	}

	svc := service.NewService(
		redisQueue,
		stateManager,
		seeds,
		cfg.Crawler.MaxDepth,
		cfg.Crawler.RetryFailed,
	)
	container.Service = svc

	engine := crawler.New(
		crawler.ConfigFrom(cfg.Crawler),
		nav,
		discoverer,
		repository.NewCategoryRepository(db),
		productExtractor,
		delays,
		recoveryManager,
		crawler.WithFailureSink(svc),
		crawler.WithMetrics(container.Metrics),
	)
	svc.SetCrawler(engine)
	container.Engine = engine

	if cfg.Server.Enabled {
		container.Server = server.New(cfg.Server, engine, registry)
	}

	return container, nil
}

// Run executes one crawl session, serving status while it runs
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	crawlCtx, crawlDone := context.WithCancel(ctx)

	g.Go(func() error {
		// the status server stops with the crawl
		defer crawlDone()

		_, err := c.Service.Run(crawlCtx)
		return err
	})

	if c.Server != nil {
		g.Go(func() error {
			return c.Server.Run(crawlCtx)
		})
	}

	return g.Wait()
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.Navigator != nil {
		c.Navigator.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Warnf("⚠️ Failed to close Redis client: %v", err)
		}
	}

	log.Info("Container shut down successfully")
	return nil
}
