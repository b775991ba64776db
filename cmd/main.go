package main

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codequarry/codequarry-backend/internal/db"
	"github.com/codequarry/codequarry-backend/internal/handlers"
	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/repos"
	"github.com/codequarry/codequarry-backend/internal/server"
	"github.com/codequarry/codequarry-backend/internal/services"
	"github.com/codequarry/codequarry-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Database
	log.Info("Setting up database from main...")
	dbService, err := db.NewDatabaseService(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err = dbService.AutoMigrateAll(); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}
	theDB := dbService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	languageRepo := repos.NewLanguageRepo(theDB, log)
	topicRepo := repos.NewTopicRepo(theDB, log)
	videoRepo := repos.NewVideoRepo(theDB, log)
	transcriptRepo := repos.NewTranscriptRepo(theDB, log)
	questionRepo := repos.NewQuestionRepo(theDB, log)

	// External clients
	log.Info("Setting up clients from main...")
	llmClient, err := services.NewGroqClient(log)
	if err != nil {
		log.Error("Could not init GroqClient", "error", err)
		os.Exit(1)
	}
	youtubeClient, err := services.NewYouTubeClient(log)
	if err != nil {
		log.Error("Could not init YouTubeClient", "error", err)
		os.Exit(1)
	}

	var search services.VideoSearch = youtubeClient
	if redisAddr := utils.GetEnv("REDIS_ADDR", "", log); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: utils.GetEnv("REDIS_PASSWORD", "", nil),
		})
		ttl := utils.GetEnvAsInt("SEARCH_CACHE_TTL_SECONDS", 21600, log)
		search = services.NewCachedVideoSearch(log, youtubeClient, rdb, time.Duration(ttl)*time.Second)
	}

	runner := services.NewExecRunner()

	var speech services.SpeechToText
	if utils.GetEnv("SPEECH_PROVIDER", "whisper", log) == "gcp" {
		speech, err = services.NewGCPSpeech(log)
		if err != nil {
			log.Error("Could not init GCP speech provider", "error", err)
			os.Exit(1)
		}
	} else {
		speech = services.NewWhisperSpeech(log, runner)
	}

	codec, err := services.NewTiktokenCodec()
	if err != nil {
		log.Error("Could not init token codec", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up services from main...")
	fetcher := services.NewMediaFetcher(log, runner)
	audioTools := services.NewAudioTools(log, runner)
	filter := services.NewRelevanceFilter(log, llmClient, search, fetcher, audioTools, speech)
	transcriptResolver := services.NewTranscriptResolver(log, transcriptRepo, videoRepo, youtubeClient, fetcher, audioTools, speech)
	questionService := services.NewQuestionService(log, questionRepo, videoRepo, llmClient, codec)
	ingestService := services.NewIngestService(
		log,
		languageRepo,
		topicRepo,
		videoRepo,
		transcriptRepo,
		questionRepo,
		search,
		filter,
		transcriptResolver,
		questionService,
	)
	scheduler := services.NewScheduler(log, theDB, languageRepo, topicRepo, ingestService)
	scheduler.Start()

	// Handlers
	log.Info("Setting up handlers from main...")
	ingestHandler := handlers.NewIngestHandler(scheduler)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		IngestHandler: ingestHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
