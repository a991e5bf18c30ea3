package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"studymate-backend/internal/config"
	"studymate-backend/internal/database"
	"studymate-backend/internal/handlers"
	"studymate-backend/internal/logger"
	"studymate-backend/internal/metrics"
	"studymate-backend/internal/middleware"
	"studymate-backend/internal/random"
	"studymate-backend/internal/repository"
	"studymate-backend/internal/router"
	"studymate-backend/internal/scheduler"
	"studymate-backend/internal/services"
	"studymate-backend/internal/websocket"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Env, cfg.LogFile)
	defer log.Sync()
	metrics.Init()
	log.Info("starting StudyMate backend", zap.String("env", cfg.Env), zap.String("kv_backend", cfg.KVBackend))

	// ──── Step 2: Connect Redis (store backend and event fan-out) ────
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("redis connected")
	}

	// ──── Step 3: Select Key-Value Store ────
	var store repository.Store
	switch cfg.KVBackend {
	case config.KVBackendRedis:
		store = repository.NewRedisStore(redisClient, "studymate:")
	case config.KVBackendPostgres:
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres connection failed", zap.Error(err))
		}
		defer pool.Close()
		if err := database.RunMigrations(pool, cfg.MigrationsDir, log); err != nil {
			log.Fatal("database migration failed", zap.Error(err))
		}
		store = repository.NewPostgresStore(pool)
		log.Info("postgres connected, migrations applied")
	default:
		store = repository.NewMemoryStore()
		log.Warn("using in-memory store, data is lost on restart")
	}
	studyRepo := repository.NewStudyRepo(store, log)

	// ──── Step 4: Event Delivery ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	wsHub := websocket.NewHub(redisClient, jwtAuth, log)
	defer wsHub.Close()

	var publisher services.Publisher = wsHub
	if redisClient != nil {
		publisher = services.NewRedisPublisher(redisClient, log)
	}

	// ──── Step 5: Content Sources ────
	var rng random.Source
	if cfg.RandomSeed != 0 {
		rng = random.New(cfg.RandomSeed)
	} else {
		rng = random.NewTimeSeeded()
	}
	normalizer := services.NewNormalizer(rng, log)
	normalizer.StrictAnswers = cfg.StrictAnswers

	contentAPI := services.NewContentAPIClient(services.ContentAPIConfig{
		GenerateURL:      cfg.GenerateURL,
		LiveQuestionsURL: cfg.LiveQuestionsURL,
		ChatAnswerURL:    cfg.ChatAnswerURL,
		ChannelVideosURL: cfg.ChannelVideosURL,
		LatestLiveURL:    cfg.LatestLiveURL,
		Timeout:          cfg.ContentAPITimeout,
	}, log)

	var remote services.MaterialSource
	if cfg.GenerateURL != "" {
		remote = services.NewContentAPISource(contentAPI, normalizer)
	} else {
		log.Warn("CONTENT_GENERATE_URL not set, every input is generated locally")
	}

	var (
		questions services.QuestionSource
		chat      services.ChatAnswerer
	)
	if cfg.LiveQuestionsURL != "" {
		questions = contentAPI
	}
	if cfg.ChatAnswerURL != "" {
		chat = contentAPI
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs, log)
		if err != nil {
			log.Fatal("gemini client initialization failed", zap.Error(err))
		}
		defer gemini.Close()
		if questions == nil {
			questions = gemini
		}
		if chat == nil {
			chat = gemini
		}
		log.Info("gemini client initialized", zap.String("model", cfg.GeminiModel))
	}

	var videos handlers.VideoLister
	if cfg.ChannelVideosURL != "" || cfg.LatestLiveURL != "" {
		videos = contentAPI
	}

	// ──── Step 6: Initialize Services ────
	sched := scheduler.New()
	youtubeService := services.NewYouTubeService(log)
	studyService := services.NewStudyService(
		studyRepo,
		remote,
		services.NewMockGenerator(rng),
		youtubeService,
		services.NewFileExtractService(),
		publisher,
		sched,
		log,
	)
	battleService := services.NewBattleService(studyRepo, rng, sched, publisher, log)
	liveService := services.NewLiveClassService(youtubeService, questions, chat, normalizer, studyRepo, sched, publisher, log)
	communityService := services.NewCommunityService(studyRepo)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		log,
		jwtAuth,
		middleware.NewRateLimiter(cfg.GenerateRatePerMin, time.Minute),
		handlers.NewStudyHandler(studyService),
		handlers.NewBattleHandler(battleService),
		handlers.NewLiveHandler(liveService, videos),
		handlers.NewCommunityHandler(communityService),
		wsHub.HandleWebSocket,
		cfg.FrontendURL,
	)

	// Generation requests hold the response open while the content API works.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.ContentAPITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		battleService.Close()
		liveService.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Info("StudyMate backend ready",
		zap.String("api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port)),
		zap.String("ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port)))

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}
