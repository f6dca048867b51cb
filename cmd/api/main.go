package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/api/routes"
	"github.com/ArowuTest/telegram-marketing-backend/internal/config"
	"github.com/ArowuTest/telegram-marketing-backend/internal/discount"
	"github.com/ArowuTest/telegram-marketing-backend/internal/handlers"
	"github.com/ArowuTest/telegram-marketing-backend/internal/jobs"
	"github.com/ArowuTest/telegram-marketing-backend/internal/kafka"
	"github.com/ArowuTest/telegram-marketing-backend/internal/ledger"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	mongorepo "github.com/ArowuTest/telegram-marketing-backend/internal/repositories/mongodb"
	"github.com/ArowuTest/telegram-marketing-backend/internal/scheduler"
	"github.com/ArowuTest/telegram-marketing-backend/internal/services"
	"github.com/ArowuTest/telegram-marketing-backend/pkg/jwt"
	"github.com/ArowuTest/telegram-marketing-backend/pkg/mongodb"
	"github.com/ArowuTest/telegram-marketing-backend/pkg/telegram"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger := observability.NewLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.JWT.Secret == "" {
		logger.Fatal(ctx, "JWT secret is not configured", errors.New("JWT_SECRET is empty"))
	}

	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database, 10*time.Second)
	if err != nil {
		logger.Fatal(ctx, "Failed to connect to MongoDB", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Error(context.Background(), "Error disconnecting from MongoDB", err)
		}
	}()

	db := mongoClient.Database()
	if err := mongorepo.EnsureIndexes(ctx, db); err != nil {
		logger.Fatal(ctx, "Failed to create indexes", err)
	}

	adminRepo := mongorepo.NewAdminUserRepository(db)
	userRepo := mongorepo.NewUserRepository(db)
	campaignRepo := mongorepo.NewCampaignRepository(db)
	discountRepo := mongorepo.NewDiscountRepository(db)
	referralRepo := mongorepo.NewReferralRepository(db)
	affiliateRepo := mongorepo.NewAffiliateRepository(db)
	eventRepo := mongorepo.NewEventRepository(db)
	experimentRepo := mongorepo.NewExperimentRepository(db)

	var gateway telegram.Gateway
	if cfg.Telegram.MockDelivery || cfg.Telegram.BotToken == "" {
		logger.Warn(ctx, "Telegram delivery is mocked, messages are only logged")
		gateway = telegram.NewMockGateway()
	} else {
		bot, err := telegram.NewBotGateway(cfg.Telegram.BotToken, cfg.Telegram.ParseMode, cfg.Telegram.DeliveryTimeout)
		if err != nil {
			logger.Fatal(ctx, "Failed to create Telegram bot", err)
		}
		gateway = bot
	}

	sched, err := scheduler.New(logger, cfg.Scheduler.Timezone)
	if err != nil {
		logger.Fatal(ctx, "Failed to create scheduler", err)
	}

	tokens := jwt.NewTokenService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiresIn)*time.Second)
	codes := discount.NewGenerator(cfg.Discount, logger)

	authService := services.NewAuthService(adminRepo, tokens)
	experimentService := services.NewExperimentService(experimentRepo, eventRepo, cfg.Analytics, logger)
	dispatcher := services.NewDispatcher(campaignRepo, userRepo, eventRepo, gateway, cfg, logger)
	campaignService := services.NewCampaignService(campaignRepo, eventRepo, dispatcher, experimentService, codes, sched, cfg, logger)
	subscriberService := services.NewSubscriberService(userRepo, referralRepo, eventRepo, campaignService, logger)
	referralService := services.NewReferralService(referralRepo, userRepo, eventRepo, ledger.RewardPolicyFromConfig(cfg.Referral), logger)
	affiliateService := services.NewAffiliateService(affiliateRepo, userRepo, eventRepo, codes, cfg.Affiliate.PayoutThreshold, logger)
	discountService := services.NewDiscountService(discountRepo, campaignRepo, userRepo, eventRepo, codes, logger)
	segmentService := services.NewSegmentService(userRepo, logger)
	analyticsService := services.NewAnalyticsService(eventRepo, campaignRepo, experimentService,
		cfg.Analytics.WindowDays, cfg.Analytics.RetentionDays, logger)
	ingestService := services.NewEventIngestService(subscriberService, referralService, affiliateService,
		discountService, experimentService, analyticsService, campaignService, logger)

	if err := experimentService.EnsureDefaults(ctx); err != nil {
		logger.Fatal(ctx, "Failed to seed experiments", err)
	}

	for _, job := range []scheduler.Job{
		jobs.NewCampaignDispatchJob(dispatcher, cfg.Scheduler.DispatchSpec, logger),
		jobs.NewMaintenanceJob(analyticsService, discountService, campaignService, referralService, cfg.Scheduler.MaintenanceSpec, logger),
		jobs.NewSegmentRefreshJob(segmentService, cfg.Scheduler.SegmentSpec, logger),
		jobs.NewDailyAnalyticsJob(experimentService, cfg.Scheduler.DailyAnalysisSpec, logger),
		jobs.NewWeeklyAnalyticsJob(experimentService, cfg.Scheduler.WeeklyAnalysisSpec, logger),
	} {
		if err := sched.Register(job); err != nil {
			logger.Fatal(ctx, fmt.Sprintf("Failed to register job %s", job.Name()), err)
		}
	}

	restored, err := campaignService.RestoreRecurring(ctx)
	if err != nil {
		logger.Error(ctx, "Failed to restore recurring campaigns", err)
	}
	logger.Info(ctx, fmt.Sprintf("Restored %d recurring campaigns", restored))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = sched.Start(ctx)
	}()

	if cfg.Kafka.Enabled {
		dlq := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.DLQTopic}, logger)
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.InboundTopic,
			GroupID: cfg.Kafka.GroupID,
		}, ingestService, dlq, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if err := consumer.Close(); err != nil {
					logger.Error(context.Background(), "Error closing Kafka consumer", err)
				}
				if err := dlq.Close(); err != nil {
					logger.Error(context.Background(), "Error closing DLQ producer", err)
				}
			}()
			if err := consumer.Start(ctx); err != nil {
				logger.Error(context.Background(), "Kafka consumer stopped", err)
			}
		}()
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.SetupRouter(cfg, routes.HandlerDependencies{
		AuthHandler:       handlers.NewAuthHandler(authService),
		UserHandler:       handlers.NewUserHandler(subscriberService),
		CampaignHandler:   handlers.NewCampaignHandler(campaignService),
		DiscountHandler:   handlers.NewDiscountHandler(discountService),
		AffiliateHandler:  handlers.NewAffiliateHandler(affiliateService),
		ReferralHandler:   handlers.NewReferralHandler(referralService),
		AnalyticsHandler:  handlers.NewAnalyticsHandler(analyticsService, sched),
		ExperimentHandler: handlers.NewExperimentHandler(experimentService),
		IngestHandler:     handlers.NewIngestHandler(ingestService),
	}, tokens, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx, fmt.Sprintf("Server starting on port %s", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "HTTP server failed", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info(context.Background(), "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "Server forced to shutdown", err)
	}

	wg.Wait()
	// interrupted deliveries go back to scheduled and resume after restart
	dispatcher.Close()

	logger.Info(context.Background(), "Server exiting")
}
