package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/go-push-engine/internal/application/dispatch"
	"github.com/go-push-engine/internal/application/registry"
	"github.com/go-push-engine/internal/application/scheduler"
	"github.com/go-push-engine/internal/config"
	"github.com/go-push-engine/internal/infrastructure/apns"
	"github.com/go-push-engine/internal/infrastructure/dynamo"
	"github.com/go-push-engine/internal/infrastructure/fcm"
	"github.com/go-push-engine/internal/infrastructure/jwtinfra"
	"github.com/go-push-engine/internal/infrastructure/onesignal"
	"github.com/go-push-engine/internal/infrastructure/rediscache"
	"github.com/go-push-engine/internal/infrastructure/s3archive"
	transporthttp "github.com/go-push-engine/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	notificationRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications)
	deviceTokenRepo := dynamo.NewDeviceTokenRepo(dynamoClient, cfg.DynamoTables.DeviceTokens)

	// JWT provider (optional; requests are unauthenticated without it).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	// Redis token cache (optional).
	var tokenCache *rediscache.TokenCache
	if cfg.RedisAddr != "" {
		tokenCache = rediscache.New(rediscache.NewClient(cfg.RedisAddr, cfg.RedisPassword), cfg.TokenCacheTTL)
	}

	// Provider adapters: each channel is enabled by its configuration.
	var adapters []dispatch.Adapter
	if cfg.FCMCredentialsFile != "" {
		if client, err := fcm.NewMessagingClient(context.Background(), cfg.FCMCredentialsFile); err == nil {
			adapters = append(adapters, fcm.NewAdapter(client, cfg.ProviderTimeout, logger))
		} else {
			log.Printf("WARN: fcm channel disabled: %v", err)
		}
	}
	if cfg.OneSignalAppID != "" {
		adapters = append(adapters, onesignal.NewAdapter(
			cfg.OneSignalAppID, cfg.OneSignalAPIKey, cfg.OneSignalEndpoint, cfg.ProviderTimeout, logger))
	}
	if cfg.SNSPlatformAppARN != "" {
		if client, err := apns.NewClient(context.Background(), cfg.AWSRegion); err == nil {
			adapters = append(adapters, apns.NewAdapter(client, cfg.ProviderTimeout, logger))
		} else {
			log.Printf("WARN: apns channel disabled: %v", err)
		}
	}
	if len(adapters) == 0 {
		log.Println("WARN: no provider adapters configured; dispatches will fail")
	}

	// Delivery-report archive (optional).
	var reportArchive *s3archive.Store
	if cfg.S3ReportsBucket != "" {
		reportArchive = s3archive.NewStore(s3archive.NewClient(cfg), cfg.S3ReportsBucket)
	}

	deps := &transporthttp.Deps{
		NotificationRepo: notificationRepo,
		DeviceTokenRepo:  deviceTokenRepo,
		TokenCache:       tokenCache,
		Adapters:         adapters,
		ReportArchive:    reportArchive,
		JWTProvider:      jwtProvider,
		Logger:           logger,
	}

	router := transporthttp.NewRouter(cfg, deps)

	// The scheduler shares the dispatch pipeline with the HTTP layer.
	var cacheForScheduler registry.Cache
	if tokenCache != nil {
		cacheForScheduler = tokenCache
	}
	registrySvc := registry.NewService(deviceTokenRepo, cacheForScheduler, logger)
	var archiveForScheduler dispatch.Archiver
	if reportArchive != nil {
		archiveForScheduler = reportArchive
	}
	dispatchSvc := dispatch.NewService(notificationRepo, registrySvc, adapters,
		archiveForScheduler, cfg.ProviderTimeout, logger)
	schedulerSvc := scheduler.NewService(notificationRepo, dispatchSvc, logger)
	runner := scheduler.NewRunner(schedulerSvc, cfg.SchedulerInterval, logger)
	runner.Start()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	runner.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
