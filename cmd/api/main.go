package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/clinscribe/backend/internal/api/handlers"
	"github.com/clinscribe/backend/internal/cache"
	rediscache "github.com/clinscribe/backend/internal/cache/redis"
	"github.com/clinscribe/backend/internal/classifier"
	"github.com/clinscribe/backend/internal/llm"
	"github.com/clinscribe/backend/internal/metrics"
	"github.com/clinscribe/backend/internal/middleware/ratelimit"
	"github.com/clinscribe/backend/internal/soap"
	"github.com/clinscribe/backend/internal/spellcheck"
	"github.com/clinscribe/backend/internal/spellcheck/dictionary"
	"github.com/clinscribe/backend/internal/spellcheck/vocabulary"
	"github.com/clinscribe/backend/internal/storage/sqlite"
	"github.com/clinscribe/backend/internal/terminology"
	"github.com/clinscribe/backend/internal/transcription"
	"github.com/clinscribe/backend/pkg/config"
	appLogger "github.com/clinscribe/backend/pkg/logger"
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

	appLogger.Info("Starting ClinScribe API Server")

	// the durable cache tier is optional: the pipeline runs on the static
	// dictionary and JSON vocabulary when SQLite cannot be opened
	var sqliteClient *sqlite.Client
	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		appLogger.Warn("Failed to create data directory", zap.Error(err))
	}
	sqliteClient, err = sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Warn("SQLite unavailable, running without durable cache", zap.Error(err))
		sqliteClient = nil
	} else {
		defer sqliteClient.Close()
		if err := sqliteClient.InitSchema(); err != nil {
			appLogger.Warn("Schema init failed, running without durable cache", zap.Error(err))
			sqliteClient.Close()
			sqliteClient = nil
		}
	}

	var redisClient *rediscache.Client
	if cfg.Redis.Host != "" {
		redisClient, err = rediscache.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.CacheTTL.LLMHours)*time.Hour,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, LLM extraction cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var llmClient *llm.Client
	llmClient, err = llm.NewClient(cfg.LLM)
	if err != nil {
		appLogger.Warn("LLM unavailable, extraction and SOAP generation disabled", zap.Error(err))
		llmClient = nil
	}

	terminologyClient := terminology.NewClient(cfg.Terminology)

	dict := dictionary.New()
	vocab := vocabulary.New(sqliteClient, cfg.SpellCheck.VocabularyFile)
	store := cache.NewStore(
		sqliteClient,
		time.Duration(cfg.CacheTTL.TerminologyHours)*time.Hour,
		time.Duration(cfg.CacheTTL.SuggestionDays)*24*time.Hour,
	)

	cls := classifier.New(llmClient, redisClient, dict, vocab)

	var corrector spellcheck.Corrector
	if llmClient != nil {
		corrector = llmClient
	}
	engine := spellcheck.NewEngine(dict, vocab, store, terminologyClient, corrector, cls, spellcheck.Config{
		SuggestionFloor:   cfg.SpellCheck.SuggestionFloor,
		OverrideThreshold: cfg.SpellCheck.OverrideThreshold,
		MaxSuggestions:    cfg.SpellCheck.MaxSuggestions,
		LLMOnly:           cfg.SpellCheck.LLMOnly,
	})

	soapGenerator := soap.NewGenerator(llmClient)

	var transcriber *transcription.Service
	if llmClient != nil {
		transcriber = transcription.NewService(llmClient)
	}

	purgeStop := make(chan struct{})
	go runPurgeLoop(store, time.Duration(cfg.SpellCheck.PurgeIntervalMin)*time.Minute, purgeStop)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: 120,
		RouteCosts: map[string]int{
			"/api/v1/transcribe": 10,
			"/api/v1/soap":       5,
		},
		Logger: appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	spellCheckHandler := handlers.NewSpellCheckHandler(engine, store)
	soapHandler := handlers.NewSOAPHandler(soapGenerator, store)
	transcribeHandler := handlers.NewTranscribeHandler(transcriber, store)

	api := app.Group("/api/v1")

	api.Post("/spellcheck", spellCheckHandler.CheckText)
	api.Post("/spellcheck/term", spellCheckHandler.CheckTerm)
	api.Post("/spellcheck/mode", spellCheckHandler.SetMode)
	api.Get("/spellcheck/stats", spellCheckHandler.GetStats)
	api.Post("/terms", spellCheckHandler.AddTerm)

	api.Post("/soap", soapHandler.GenerateNote)
	api.Post("/transcribe", transcribeHandler.Transcribe)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "healthy",
			"time":        time.Now().Unix(),
			"sqlite":      sqliteClient != nil,
			"redis":       redisClient != nil,
			"llm":         llmClient != nil,
			"terminology": !terminologyClient.CircuitOpen(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	close(purgeStop)
	app.Shutdown()
	appLogger.Info("Server stopped")
}

func runPurgeLoop(store *cache.Store, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			store.PurgeExpired()
		}
	}
}
