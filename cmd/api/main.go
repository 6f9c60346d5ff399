package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/api/handlers"
	"github.com/kcb-text2sql/backend/internal/cache/redis"
	"github.com/kcb-text2sql/backend/internal/dictionary"
	"github.com/kcb-text2sql/backend/internal/evaluation"
	"github.com/kcb-text2sql/backend/internal/ingestion"
	"github.com/kcb-text2sql/backend/internal/kg/builder"
	"github.com/kcb-text2sql/backend/internal/kg/neo4j"
	"github.com/kcb-text2sql/backend/internal/llm"
	"github.com/kcb-text2sql/backend/internal/metrics"
	"github.com/kcb-text2sql/backend/internal/middleware/ratelimit"
	"github.com/kcb-text2sql/backend/internal/middleware/security"
	"github.com/kcb-text2sql/backend/internal/middleware/validation"
	"github.com/kcb-text2sql/backend/internal/preprocessing"
	"github.com/kcb-text2sql/backend/internal/storage/sqlite"
	"github.com/kcb-text2sql/backend/internal/text2sql"
	"github.com/kcb-text2sql/backend/internal/vector/zilliz"
	"github.com/kcb-text2sql/backend/pkg/config"
	appLogger "github.com/kcb-text2sql/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting KCB Text2SQL API Server")
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	osFs := afero.NewOsFs()

	store := dictionary.NewStore(osFs, cfg.Dictionary.Dir, cfg.Dictionary.BackupDir, appLogger.Named("dictionary"))
	store.Subscribe(dictionary.LatestOnly(func(snap *dictionary.Snapshot) {
		metrics.DictionaryEntries.WithLabelValues("credit_terms").Set(float64(snap.Terms().Len()))
		metrics.DictionaryEntries.WithLabelValues("sql_patterns").Set(float64(snap.Patterns().Len()))
	}))
	if err := store.SeedDefaults(); err != nil {
		appLogger.Fatal("Failed to seed dictionaries", zap.Error(err))
	}
	if err := store.Load(); err != nil {
		appLogger.Fatal("Failed to load dictionaries", zap.Error(err))
	}

	preprocessor := preprocessing.NewPreprocessor(store, appLogger.Named("preprocessing"))

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	engineOpts := []text2sql.Option{text2sql.WithHistory(sqliteClient)}

	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache, err = redis.NewClient(cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		if err != nil {
			appLogger.Warn("Redis unavailable, caching disabled", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
			engineOpts = append(engineOpts, text2sql.WithCache(cache))
			store.Subscribe(func(*dictionary.Snapshot) {
				if err := cache.InvalidateConversions(context.Background()); err != nil {
					appLogger.Warn("Failed to invalidate conversion cache", zap.Error(err))
				}
			})
		}
	}

	var llmClient *llm.Client
	if cfg.LLM.Provider != "none" {
		llmClient, err = llm.NewClient(llm.Config{
			Provider:       cfg.LLM.Provider,
			BaseURL:        cfg.LLM.BaseURL,
			APIKey:         cfg.LLM.APIKey,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
			Temperature:    cfg.LLM.Temperature,
			MaxTokens:      cfg.LLM.MaxTokens,
			Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		})
		if err != nil {
			appLogger.Warn("LLM unavailable, using rule-based conversion", zap.Error(err))
			llmClient = nil
		} else {
			engineOpts = append(engineOpts, text2sql.WithGenerator(llmClient))
		}
	}

	var documents handlers.DocumentProcessor
	if cfg.Zilliz.Enabled && llmClient != nil {
		zillizClient, err := zilliz.NewClient(ctx, cfg.Zilliz.Endpoint, cfg.Zilliz.APIKey, cfg.Zilliz.CollectionName, cfg.Zilliz.VectorDim)
		if err != nil {
			appLogger.Warn("Zilliz unavailable, RAG disabled", zap.Error(err))
		} else if err := zillizClient.CreateCollection(ctx); err != nil {
			appLogger.Warn("Failed to prepare RAG collection, RAG disabled", zap.Error(err))
			zillizClient.Close()
		} else {
			defer zillizClient.Close()
			processor := ingestion.NewProcessor(sqliteClient, zillizClient, llmClient, osFs, ingestion.Options{
				UploadDir:    cfg.RAG.UploadDir,
				ChunkSize:    cfg.RAG.ChunkSize,
				ChunkOverlap: cfg.RAG.ChunkOverlap,
				TopK:         cfg.RAG.TopK,
			})
			if cache != nil {
				processor.WithEmbeddingCache(cache)
			}
			documents = processor
			engineOpts = append(engineOpts, text2sql.WithRetriever(processor))

			go func() {
				processed, failed, err := processor.ProcessExisting(ctx)
				if err != nil {
					appLogger.Warn("Failed to index existing documents", zap.Error(err))
					return
				}
				appLogger.Info("Existing documents indexed", zap.Int("processed", processed), zap.Int("failed", failed))
			}()
		}
	}

	metadata := text2sql.DefaultMetadata()

	if cfg.Neo4j.Enabled {
		neo4jClient, err := neo4j.NewClient(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			appLogger.Warn("Neo4j unavailable, schema graph disabled", zap.Error(err))
		} else {
			defer neo4jClient.Close(context.Background())

			kgBuilder := builder.NewBuilder(neo4jClient, metadata.GraphTables())
			if err := kgBuilder.Initialize(ctx, store.Snapshot()); err != nil {
				appLogger.Warn("Failed to build schema graph", zap.Error(err))
			}
			store.Subscribe(kgBuilder.Enqueue)
			go kgBuilder.Run(ctx)

			engineOpts = append(engineOpts, text2sql.WithSchemaGraph(neo4jClient))
		}
	}

	engineOpts = append(engineOpts, text2sql.WithMetadata(metadata))
	engine := text2sql.NewEngine(preprocessor, engineOpts...)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		Logger:            appLogger.Named("ratelimit"),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))
	app.Use("/api", limiter.Middleware())
	app.Use("/api", validation.Middleware(validation.Config{
		MaxQuestionLength: cfg.Validation.MaxQuestionLength,
		Logger:            appLogger.Named("validation"),
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	handlers.Handlers{
		Convert:       handlers.NewConvertHandler(engine, sqliteClient),
		Preprocessing: handlers.NewPreprocessingHandler(preprocessor),
		Dictionary:    handlers.NewDictionaryHandler(store),
		Documents:     handlers.NewDocumentHandler(documents),
		Evaluation:    handlers.NewEvaluationHandler(evaluation.NewEvaluator(engine, sqliteClient)),
		WebSocket:     handlers.NewWebSocketHandler(engine, cfg.Validation.MaxQuestionLength),
	}.Register(app)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.Bool("llm", engine.LLMEnabled()),
		zap.Bool("rag", documents != nil),
		zap.Bool("cache", cache != nil),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
