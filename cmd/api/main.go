package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"freelancehub/internal/adapter/api"
	"freelancehub/internal/adapter/api/handler"
	apimiddleware "freelancehub/internal/adapter/api/middleware"
	"freelancehub/internal/adapter/api/router"
	"freelancehub/internal/adapter/repository"
	"freelancehub/internal/adapter/repository/memory"
	domainrepo "freelancehub/internal/domain/repository"
	"freelancehub/internal/domain/service"
	"freelancehub/internal/infrastructure/firebase"
	"freelancehub/internal/infrastructure/presence"
	"freelancehub/internal/infrastructure/ratelimit"
	"freelancehub/internal/infrastructure/storage"
	"freelancehub/internal/infrastructure/websocket"
	"freelancehub/internal/usecase"
	"freelancehub/pkg/config"
	"freelancehub/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.Environment); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opt option.ClientOption
	if cfg.ServiceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		opt = option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON))
	} else {
		if _, err := os.Stat(cfg.ServiceAccountPath); err != nil {
			fatal("Service account file is not readable: %s", cfg.ServiceAccountPath)
		}
		logger.Info("Using Firebase service account from file: %s", cfg.ServiceAccountPath)
		opt = option.WithCredentialsFile(cfg.ServiceAccountPath)
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
	if err != nil {
		fatal("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		fatal("Failed to initialize Firebase Auth: %v", err)
	}
	verifier := firebase.NewFirebaseAuthClient(authClient)

	var firestoreClient *firestore.Client
	if cfg.StoreBackend == "firestore" || cfg.PresenceBackend == "firestore" {
		firestoreClient, err = firestore.NewClient(ctx, cfg.FirebaseProject, opt)
		if err != nil {
			fatal("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()
	}

	var (
		conversationRepo domainrepo.ConversationRepository
		messageRepo      domainrepo.MessageRepository
		userRepo         domainrepo.UserRepository
		presenceRepo     domainrepo.PresenceRepository
		memoryStore      *memory.Store
	)
	switch cfg.StoreBackend {
	case "memory":
		memoryStore = memory.NewStore()
		conversationRepo = memoryStore.Conversations()
		messageRepo = memoryStore.Messages()
		userRepo = memoryStore.Users()
	case "firestore":
		conversationRepo = repository.NewFirestoreConversationRepository(firestoreClient)
		messageRepo = repository.NewFirestoreMessageRepository(firestoreClient)
		userRepo = repository.NewFirestoreUserRepository(firestoreClient)
	default:
		fatal("Unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch cfg.PresenceBackend {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			fatal("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err)
		}
		presenceRepo = presence.NewRedisPresenceRepository(redisClient, cfg.PresenceTTL)
	case "firestore":
		presenceRepo = repository.NewFirestorePresenceRepository(firestoreClient)
	case "memory":
		if memoryStore == nil {
			memoryStore = memory.NewStore()
		}
		presenceRepo = memoryStore.Presence()
	default:
		fatal("Unknown PRESENCE_BACKEND %q", cfg.PresenceBackend)
	}

	var uploader service.AttachmentUploader
	switch cfg.StorageProvider {
	case "gcs":
		storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, cfg.ServiceAccountJSON, cfg.ServiceAccountPath)
		if err != nil {
			fatal("Failed to initialize Cloud Storage: %v", err)
		}
		defer storageClient.Close()
		uploader = storageClient
	case "s3":
		s3Client, err := storage.NewS3Client(ctx, storage.S3Config{
			Region:     cfg.S3.Region,
			Bucket:     cfg.S3.Bucket,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			Endpoint:   cfg.S3.Endpoint,
			PublicBase: cfg.S3.PublicBase,
		})
		if err != nil {
			fatal("Failed to initialize S3 storage: %v", err)
		}
		uploader = s3Client
	case "none":
		logger.Warn("Attachment storage is disabled, messages with files will be rejected")
	default:
		fatal("Unknown STORAGE_PROVIDER %q", cfg.StorageProvider)
	}

	messageStore := usecase.NewMessageStore(conversationRepo, messageRepo, usecase.NewAttachmentBridge(uploader, cfg.MaxAttachmentBytes))
	conversationUseCase := usecase.NewConversationUseCase(conversationRepo, userRepo)
	presenceTracker := usecase.NewPresenceTracker(presenceRepo, cfg.TypingWindow)

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)

	limiter := ratelimit.NewRateLimiter()
	limiter.StartCleanupRoutine(ctx.Done())

	handler.Setup(conversationUseCase, messageStore, presenceTracker, conversationRepo, userRepo, cfg.MaxAttachmentBytes)
	handler.SetupHealthHandler(wsManager, messageStore, map[string]string{
		"store":    cfg.StoreBackend,
		"presence": cfg.PresenceBackend,
		"storage":  cfg.StorageProvider,
	})

	wsHandler := handler.NewWebSocketHandler(wsManager, verifier, usecase.ControllerDeps{
		Conversations:  conversationRepo,
		Users:          userRepo,
		Store:          messageStore,
		Finder:         conversationUseCase,
		Presence:       presenceTracker,
		LoadingTimeout: cfg.LoadingTimeout,
	}, limiter)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)
	router.Setup(e, authMiddleware, limiter)
	router.SetupWebSocketRouter(e, wsHandler)

	go func() {
		logger.Info("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			fatal("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown Error: %v", err)
	}
}

func fatal(format string, v ...interface{}) {
	logger.Error(format, v...)
	logger.Sync()
	os.Exit(1)
}
