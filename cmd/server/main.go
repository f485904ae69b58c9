package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/tas-ingestion/ingestion/internal/auth"
	"github.com/tas-ingestion/ingestion/internal/batch"
	"github.com/tas-ingestion/ingestion/internal/canonical"
	"github.com/tas-ingestion/ingestion/internal/capture"
	"github.com/tas-ingestion/ingestion/internal/chunker"
	"github.com/tas-ingestion/ingestion/internal/config"
	"github.com/tas-ingestion/ingestion/internal/embedding"
	"github.com/tas-ingestion/ingestion/internal/graphenrich"
	"github.com/tas-ingestion/ingestion/internal/httpapi"
	"github.com/tas-ingestion/ingestion/internal/integrity"
	"github.com/tas-ingestion/ingestion/internal/observability"
	"github.com/tas-ingestion/ingestion/internal/pipeline"
	"github.com/tas-ingestion/ingestion/internal/release"
	"github.com/tas-ingestion/ingestion/internal/releaselock"
	"github.com/tas-ingestion/ingestion/internal/retrieval"
	"github.com/tas-ingestion/ingestion/internal/retrievalcache"
	"github.com/tas-ingestion/ingestion/internal/vectorstore"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.EnableRetrievalCache || cfg.Redis.EnableReleaseLock {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			log.Printf("Warning: Redis connection failed, running without it: %v", err)
			redisClient = nil
		} else {
			log.Println("Redis connection established")
		}
	}

	signer := integrity.NewSigner(cfg.Integrity.SigningSecret)
	releases := release.NewManager(cfg.Storage.ReleasesRoot)
	vectorStore := vectorstore.NewLocalJsonlStore(cfg.Storage.VectorIndexRoot)
	embeddingStore := embedding.NewFileStore(cfg.Storage.EmbeddingsRoot)
	observabilityStore := observability.NewStore(cfg.Storage.ObservabilityRoot)
	captureStore := capture.NewStore(cfg.Storage.CapturesRoot(), signer)

	ingestionProvider := embedding.NewOllamaProvider(cfg.Embedding.OllamaModel, cfg.Embedding.OllamaURL, cfg.Embedding.OllamaTimeoutS)

	var retrievalProvider embedding.Provider = ingestionProvider
	retrievalProviderName := ingestionProvider.Name()
	if cfg.Embedding.RetrievalProviderOverride != "" {
		retrievalProvider = embedding.NewDeterministicHashProvider(cfg.Embedding.RetrievalDim)
		retrievalProviderName = cfg.Embedding.RetrievalProviderOverride
	}

	var lock releaselock.Locker
	if cfg.Redis.EnableReleaseLock && redisClient != nil {
		lock = releaselock.NewRedisLocker(redisClient, cfg.Redis.ReleaseLockTTLSeconds)
	} else {
		lock = releaselock.NewInProcessLocker()
	}

	var enrich func(canonical.Object) canonical.Object
	if cfg.GraphEnrich.Enabled {
		enricher := graphenrich.New(cfg.GraphEnrich.BaseURL, cfg.GraphEnrich.APIKey, cfg.GraphEnrich.Timeout)
		enrich = func(obj canonical.Object) canonical.Object {
			enriched, err := enricher.Enrich(context.Background(), obj)
			if err != nil {
				log.Printf("graphenrich: lookup failed for %s: %v", obj.ID, err)
				return obj
			}
			return enriched
		}
	}

	pl := &pipeline.Pipeline{
		CanonicalRoot:  cfg.Storage.CanonicalRoot(),
		ChunksRoot:     cfg.Storage.ChunksRoot(),
		MaxChunkChars:  chunker.DefaultMaxChars,
		Embedder:       ingestionProvider,
		EmbeddingStore: embeddingStore,
		VectorStore:    vectorStore,
		Releases:       releases,
		Lock:           lock,
		Enrich:         enrich,
	}

	batchSvc := &batch.Service{
		Pipeline:       pl,
		Releases:       releases,
		CanonicalRoot:  cfg.Storage.CanonicalRoot(),
		ChunksRoot:     cfg.Storage.ChunksRoot(),
		EmbeddingsRoot: cfg.Storage.EmbeddingsRoot(),
		VectorStore:    vectorStore,
	}

	var cache *retrievalcache.Cache
	if cfg.Redis.EnableRetrievalCache {
		cache = retrievalcache.New(redisClient, time.Duration(cfg.Redis.RetrievalCacheTTLSeconds)*time.Second)
	}

	retrievalSvc := &retrieval.Service{
		Releases:          releases,
		Store:             vectorStore,
		Embedder:          retrievalProvider,
		Cache:             cache,
		MaxChars:          cfg.Embedding.RetrievalMaxChars,
		IngestionProvider: ingestionProvider.Name(),
		RetrievalProvider: retrievalProviderName,
	}

	server := &httpapi.Server{
		Pipeline:      pl,
		Releases:      releases,
		Captures:      captureStore,
		Batch:         batchSvc,
		Retrieval:     retrievalSvc,
		Observability: observabilityStore,
	}

	router := setupRouter(server, cfg)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Ingestion service starting on %s", cfg.Server.Address())
		log.Printf("Environment: %s", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	log.Println("Server exited")
}

func setupRouter(server *httpapi.Server, cfg *config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	validator := auth.NewValidator(cfg.Auth.AdminSigningSecret)
	server.Routes(router, auth.RequireAdmin(validator, cfg.Auth.RequireAdmin))

	return router
}
