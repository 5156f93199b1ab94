package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/shimonpozd/astra-sub000/internal/config"
	"github.com/shimonpozd/astra-sub000/internal/database/kafka"
	"github.com/shimonpozd/astra-sub000/internal/database/milvus"
	"github.com/shimonpozd/astra-sub000/internal/database/neo4j"
	"github.com/shimonpozd/astra-sub000/internal/database/redis"
	"github.com/shimonpozd/astra-sub000/internal/discovery/etcd"
	"github.com/shimonpozd/astra-sub000/internal/embedding"
	"github.com/shimonpozd/astra-sub000/internal/memory/api"
	"github.com/shimonpozd/astra-sub000/internal/memory/cache"
	"github.com/shimonpozd/astra-sub000/internal/memory/consumer"
	"github.com/shimonpozd/astra-sub000/internal/memory/dialog"
	"github.com/shimonpozd/astra-sub000/internal/memory/ingest"
	"github.com/shimonpozd/astra-sub000/internal/memory/limiter"
	"github.com/shimonpozd/astra-sub000/internal/memory/publisher"
	"github.com/shimonpozd/astra-sub000/internal/memory/recall"
	"github.com/shimonpozd/astra-sub000/internal/memory/service"
	"github.com/shimonpozd/astra-sub000/internal/memory/store"
	"github.com/shimonpozd/astra-sub000/pkg/circuitbreaker"
	httpserver "github.com/shimonpozd/astra-sub000/pkg/http"
	"github.com/shimonpozd/astra-sub000/pkg/logger"
)

const serviceName = "recall_service"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	appLogger := logger.New(serviceName, "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// backing stores
	milvusClient, err := milvus.NewClient(ctx, &cfg.Databases.Milvus)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	defer milvusClient.Close()
	if err := milvusClient.EnsureCollection(ctx); err != nil {
		appLogger.Fatal(err.Error())
	}

	neo4jClient, err := neo4j.NewClient(ctx, &cfg.Databases.Neo4j)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	defer neo4jClient.Close(ctx)

	redisClient, err := redis.NewClient(ctx, &cfg.Databases.Redis)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	defer redisClient.Close()

	kafkaClient, err := kafka.NewClient(&cfg.Databases.Kafka)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	defer kafkaClient.Close()

	// embedding provider behind a circuit breaker
	embedder, err := embedding.New(&cfg.Embedding)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	if cfg.Middleware.CircuitBreaker.Enabled {
		breaker := circuitbreaker.New(
			cfg.Middleware.CircuitBreaker.FailureThreshold,
			cfg.Middleware.CircuitBreaker.SuccessThreshold,
			cfg.Middleware.CircuitBreaker.TimeoutDuration(),
		)
		embedder = embedding.WithBreaker(embedder, breaker)
	}

	// stores and graph schema
	vectorStore := store.NewMilvusStore(milvusClient)
	graphStore := store.NewNeo4jStore(neo4jClient, cfg.Databases.Milvus.Dim)
	if err := graphStore.EnsureSchema(ctx); err != nil {
		appLogger.Fatal(err.Error())
	}

	// recall pipeline
	sources := []recall.Source{
		&recall.SemanticSource{Embedder: embedder, Store: vectorStore},
		&recall.KeywordSource{Store: vectorStore},
		&recall.TopicSource{Store: graphStore},
		&recall.GraphSearchSource{Store: graphStore, Embedder: embedder},
	}
	extractor := dialog.NewExtractor(graphStore, cfg.Recall.Context)
	recallCache := cache.New(redisClient, cfg.Recall.CacheTTLDuration(), appLogger)
	lim := limiter.New(redisClient, appLogger,
		cfg.Recall.CooldownSeconds, cfg.Recall.LimitPerMinute, cfg.Recall.TacticCooldownTurns)
	queue := ingest.NewQueue(redisClient)
	dialogPublisher := publisher.NewDialogPublisher(kafkaClient)

	checks := map[string]service.HealthChecker{
		"milvus": milvusClient,
		"neo4j":  neo4jClient,
		"kafka":  kafkaClient,
		"redis":  redisHealth{redisClient},
	}

	recallService := service.NewRecallService(
		cfg.Recall, appLogger, lim, recallCache, extractor, graphStore, sources, queue, dialogPublisher, checks)

	// background workers
	worker := ingest.NewWorker(queue, embedder, vectorStore, graphStore, appLogger)
	go worker.Run(ctx)

	dialogConsumer := consumer.NewDialogConsumer(kafkaClient, graphStore, appLogger)
	go dialogConsumer.Run(ctx)

	// HTTP server
	srv, err := httpserver.NewServer(cfg, serviceName, httpserver.WithAddress(cfg.Server.Address))
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	api.RegisterRoutes(srv.Engine(), api.NewHandler(recallService, appLogger))

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(err.Error())
		}
	}()
	appLogger.Info("recall service started on " + cfg.Server.Address)

	// optional etcd registration
	var stopRegistration chan<- struct{}
	if len(cfg.Databases.Etcd.Endpoints) > 0 {
		registry, err := etcd.NewRegistry(cfg.Databases.Etcd.Endpoints)
		if err != nil {
			appLogger.Fatal(err.Error())
		}
		defer registry.Close()

		ttl := cfg.Databases.Etcd.TTL
		if ttl <= 0 {
			ttl = 10
		}
		stopRegistration, err = registry.Register(serviceName, cfg.Server.Address, ttl)
		if err != nil {
			appLogger.Fatal(err.Error())
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.Info("shutting down")
	if stopRegistration != nil {
		close(stopRegistration)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("server shutdown failed: " + err.Error())
	}
	appLogger.Info("recall service stopped")
}

type redisHealth struct {
	rdb *goredis.Client
}

func (r redisHealth) HealthCheck(ctx context.Context) error {
	return redis.HealthCheck(ctx, r.rdb)
}
