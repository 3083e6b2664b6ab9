package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"github.com/rallyrank/rallyrank-api/brackets"
	"github.com/rallyrank/rallyrank-api/config"
	"github.com/rallyrank/rallyrank-api/db"
	"github.com/rallyrank/rallyrank-api/handlers"
	"github.com/rallyrank/rallyrank-api/middleware"
	"github.com/rallyrank/rallyrank-api/repositories"
	api "github.com/rallyrank/rallyrank-api/routes"
	"github.com/rallyrank/rallyrank-api/services"
	"github.com/rallyrank/rallyrank-api/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	// Profile photos are optional; without R2 credentials the upload
	// endpoint reports storage as unavailable.
	var uploader storage.FileUploader
	if cfg.PhotoStorageConfigured() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Warn("photo storage not configured, profile photo uploads disabled")
	}

	wsHub := brackets.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub started")

	txRunner := repositories.NewTxRunner(dbConn)
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	courtRepo := repositories.NewPostgresCourtRepository(dbConn)
	checkInRepo := repositories.NewPostgresCheckInRepository(dbConn)
	notificationRepo := repositories.NewPostgresNotificationRepository(dbConn)
	queueRepo := repositories.NewPostgresQueueRepository(dbConn)
	lobbyRepo := repositories.NewPostgresLobbyRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	resultRepo := repositories.NewPostgresResultRepository(dbConn)

	notifier := services.NewNotifier(notificationRepo, wsHub, logger)
	sweeper := services.NewCourtSweeper(lobbyRepo, queueRepo, matchRepo)

	authService := services.NewAuthService(userRepo, cfg.JWTSecretKey)
	userService := services.NewUserService(userRepo, resultRepo, uploader, logger)
	courtService := services.NewCourtService(courtRepo)
	presenceService := services.NewPresenceService(txRunner, checkInRepo, courtRepo, queueRepo, notifier, logger)
	notificationService := services.NewNotificationService(notificationRepo)
	queueService := services.NewQueueService(txRunner, queueRepo, checkInRepo, sweeper, notifier, logger)
	matchService := services.NewMatchService(
		txRunner, matchRepo, userRepo, tournamentRepo, notifier, services.DefaultEloConfig(), logger)
	lobbyService := services.NewLobbyService(
		txRunner, lobbyRepo, queueRepo, checkInRepo, userRepo, matchService, sweeper, notifier, logger)
	bracketService := services.NewBracketService(
		matchService, matchRepo, participantRepo, tournamentRepo, resultRepo, notifier,
		brackets.DefaultPointsConfig(), logger)
	matchService.SetBracketAdvancer(bracketService)
	tournamentService := services.NewTournamentService(
		txRunner, tournamentRepo, participantRepo, resultRepo, matchRepo, checkInRepo,
		userRepo, courtRepo, bracketService, notifier, logger)
	logger.Info("services initialized")

	authenticator := middleware.NewAuthenticator(cfg.JWTSecretKey)

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		authenticator,
		handlers.NewAuthHandler(authService),
		handlers.NewUserHandler(userService),
		handlers.NewCourtHandler(courtService),
		handlers.NewPresenceHandler(presenceService),
		handlers.NewQueueHandler(queueService),
		handlers.NewLobbyHandler(lobbyService),
		handlers.NewMatchHandler(matchService),
		handlers.NewTournamentHandler(tournamentService),
		handlers.NewNotificationHandler(notificationService),
		handlers.NewWebSocketHandler(wsHub, logger),
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
}
