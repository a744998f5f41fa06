// cmd/search-gateway/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketplace-search/internal/api"
	"marketplace-search/internal/common/auth"
	"marketplace-search/internal/common/camunda"
	"marketplace-search/internal/common/config"
	"marketplace-search/internal/common/database"
	"marketplace-search/internal/common/logger"
	"marketplace-search/internal/common/observability"
	"marketplace-search/internal/history"
	"marketplace-search/internal/indexsync"
	"marketplace-search/internal/recommend"
	"marketplace-search/internal/search/cache"
	"marketplace-search/internal/search/esstore"
	"marketplace-search/internal/search/gateway"
	"marketplace-search/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting search gateway...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.Observability.ServiceName, cfg.Observability.TraceSampleRate)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	store := esstore.New(esClient.Client, esstore.Config{
		Index:   cfg.Search.Index,
		Timeout: config.GetDuration(cfg.Search.Timeout),
		Refresh: cfg.Search.Refresh,
	})
	created, err := store.Bootstrap(ctx)
	if err != nil {
		zapLog.Fatal("index bootstrap failed", zap.Error(err), zap.String("index", store.Index()))
	}
	zapLog.Info("Index ready", zap.String("index", store.Index()), zap.Bool("created", created))

	// --- Init Redis cache ---
	var resultCache *cache.Cache
	if cfg.Cache.Enabled {
		var rc *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rc, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rc.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rc.Close()
		resultCache = cache.New(rc.Client, cache.Config{
			Prefix: cfg.Cache.Prefix,
			TTL:    config.GetDuration(cfg.Cache.TTL),
		}, log)
		zapLog.Info("Redis connected successfully")
	}

	// --- Core components ---
	historyRepo := history.NewRepository(pg.DB, config.GetDuration(cfg.Search.HistoryTimeout))

	gwOpts := []gateway.Option{gateway.WithObserver(obs)}
	syncOpts := []indexsync.Option{indexsync.WithObserver(obs)}
	if resultCache != nil {
		gwOpts = append(gwOpts, gateway.WithCache(resultCache))
		syncOpts = append(syncOpts, indexsync.WithInvalidator(resultCache))
	}

	gw := gateway.New(store, historyRepo, gateway.Config{
		Radius:         cfg.Search.Radius,
		DefaultLimit:   cfg.Search.DefaultLimit,
		MaxLimit:       cfg.Search.MaxLimit,
		HistoryTimeout: config.GetDuration(cfg.Search.HistoryTimeout),
	}, log, gwOpts...)

	syncHandler := indexsync.NewHandler(store, log, syncOpts...)
	decoder, err := indexsync.NewDecoder(registry.Default())
	if err != nil {
		zapLog.Fatal("event schemas failed to compile", zap.Error(err))
	}

	recommender := recommend.NewService(historyRepo, recommend.NewESRanker(store), cfg.Search.MaxLimit, log)

	// --- Zeebe job workers ---
	var workers []*camunda.Worker
	if cfg.Camunda.Enabled {
		var zc *camunda.Client
		err = retryWithBackoff(func() error {
			var err error
			zc, err = camunda.NewClient(cfg.Camunda)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zc.Close()
		zapLog.Info("Zeebe client connected successfully")

		timeouts := make(map[string]time.Duration, len(cfg.Workers))
		for taskType, wcfg := range cfg.Workers {
			timeouts[taskType] = config.GetDuration(wcfg.Timeout)
		}
		jobs := indexsync.NewJobWorker(syncHandler, decoder, timeouts, log)

		for _, ev := range registry.Default().Events {
			if w := startWorker(zc, ev.TaskType, config.GetWorkerConfig(cfg, ev.TaskType), jobs, zapLog); w != nil {
				workers = append(workers, w)
			}
		}
		zapLog.Info("Sync workers registered", zap.Int("count", len(workers)))
	}

	// --- Kafka listing-event consumer ---
	var consumers sync.WaitGroup
	if cfg.Kafka.Enabled {
		consumer := indexsync.NewConsumer(indexsync.NewKafkaReader(cfg.Kafka), syncHandler, decoder, log)
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			defer consumer.Close()
			if err := consumer.Run(ctx); err != nil {
				zapLog.Error("Listing event consumer stopped", zap.Error(err))
			}
		}()
		zapLog.Info("Listing event consumer started",
			zap.String("topic", cfg.Kafka.Topic),
			zap.String("groupId", cfg.Kafka.GroupID),
		)
	}

	// --- HTTP API ---
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(gw, syncHandler, decoder, recommender, store, log)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handler, auth.NewVerifier(cfg.Auth), log),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	for _, w := range workers {
		w.Stop()
	}
	consumers.Wait()
	gw.Wait()

	zapLog.Info("Search gateway stopped gracefully")
}

func startWorker(client *camunda.Client, taskType string, wcfg config.WorkerConfig, jobs *indexsync.JobWorker, log *zap.Logger) *camunda.Worker {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return nil
	}
	handler := jobs.HandlerFor(taskType)
	if handler == nil {
		log.Warn("no handler for task type", zap.String("taskType", taskType))
		return nil
	}
	return camunda.StartWorker(client.GetClient(), taskType, wcfg, handler, log)
}
