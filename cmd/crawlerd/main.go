// Package main wires together the crawl service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/commonground/newscrawler/internal/api"
	"github.com/commonground/newscrawler/internal/archive"
	"github.com/commonground/newscrawler/internal/browser"
	"github.com/commonground/newscrawler/internal/clock/system"
	"github.com/commonground/newscrawler/internal/config"
	"github.com/commonground/newscrawler/internal/crawl"
	"github.com/commonground/newscrawler/internal/health"
	"github.com/commonground/newscrawler/internal/logging"
	"github.com/commonground/newscrawler/internal/metrics"
	"github.com/commonground/newscrawler/internal/pool"
	"github.com/commonground/newscrawler/internal/queue"
	"github.com/commonground/newscrawler/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	sessions := store.New()

	br := browser.New(browser.Config{
		Headless:  cfg.Browser.Headless,
		UserAgent: cfg.Browser.UserAgent,
	})
	defer br.Close()
	if err := br.WarmUp(); err != nil {
		logger.Warn("browser warm-up failed", zap.Error(err))
	}

	archiver, history, err := buildArchiver(ctx, cfg.Archive)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}
	defer func() {
		if err := archiver.Close(); err != nil {
			logger.Warn("archive close failed", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		logger.Fatal("metrics init failed", zap.Error(err))
	}
	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		logger.Fatal("metrics init failed", zap.Error(err))
	}
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	crawlCfg := crawl.Config{
		BaseURL:        cfg.Crawler.BaseURL,
		ListingTimeout: cfg.Crawler.ListingTimeout(),
		ArticleTimeout: cfg.Crawler.ArticleTimeout(),
		PacingDelay:    cfg.Crawler.PacingDelay(),
		ScrollRetries:  cfg.Crawler.ScrollRetries,
		ScrollPause:    cfg.Crawler.ScrollPause(),
	}
	chains := crawl.NaverChains()

	var broker queue.Broker
	if cfg.Queue.URL != "" {
		amqpBroker, err := queue.DialAMQP(cfg.Queue.URL)
		if err != nil {
			logger.Fatal("amqp connect failed", zap.Error(err))
		}
		broker = amqpBroker
		defer func() {
			if err := broker.Close(); err != nil {
				logger.Warn("broker close failed", zap.Error(err))
			}
		}()
	}

	var brokerStatus health.BrokerStatus
	if broker != nil {
		brokerStatus = broker
	}
	checker := health.New(health.Config{
		BackendURL: cfg.Backend.URL,
		HealthPath: cfg.Backend.HealthPath,
		Timeout:    time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		Interval:   time.Duration(cfg.Backend.IntervalSeconds) * time.Second,
	}, brokerStatus, logger.Named("health"))
	go checker.Run(ctx)

	apiOrch := crawl.NewOrchestrator(br, chains, crawlCfg, clock,
		logger.Named("orchestrator"), recorder)

	workers := pool.New(ctx, cfg.Crawler.Workers, cfg.Crawler.Backlog, logger.Named("pool"))

	var historyHandler *api.HistoryHandler
	if history != nil {
		historyHandler = api.NewHistoryHandler(history, logger.Named("history"))
	}
	apiServer := api.NewServer(sessions, apiOrch, workers, archiver, checker,
		clock, metricsHandler, httpMetrics.Middleware, historyHandler, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if broker != nil {
		workerOrch := crawl.NewOrchestrator(br, chains, crawlCfg, clock,
			logger.Named("orchestrator"), queue.ProgressEmitter(broker), recorder)
		qw := queue.NewWorker(broker, workerOrch, sessions, archiver, clock, logger.Named("worker"))
		go func() {
			logger.Info("queue worker started")
			if err := qw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("queue worker stopped", zap.Error(err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownSeconds)*time.Second,
	)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	workers.Close()
	logger.Info("shutdown complete")
}

// buildArchiver selects the snapshot sink from config. Only the postgres
// backend also serves the history read API.
func buildArchiver(ctx context.Context, cfg config.ArchiveConfig) (archive.Archiver, archive.HistoryReader, error) {
	switch cfg.Backend {
	case "fs":
		fs, err := archive.NewFS(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil
	case "postgres":
		pg, err := archive.NewPostgres(ctx, archive.PostgresConfig{
			DSN:   cfg.DSN,
			Table: cfg.Table,
		})
		if err != nil {
			return nil, nil, err
		}
		return pg, pg, nil
	case "redis":
		ttl := time.Duration(cfg.TTLDays) * 24 * time.Hour
		rd, err := archive.NewRedis(ctx, cfg.RedisA, ttl)
		if err != nil {
			return nil, nil, err
		}
		return rd, nil, nil
	case "none":
		return archive.Noop{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}
