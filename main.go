package main

import (
	"context"
	"log"
	"strings"

	api "dmarcview-backend/cmd/api"
	authdomain "dmarcview-backend/internal/auth/domain"
	authRepo "dmarcview-backend/internal/auth/repository"
	authUsecase "dmarcview-backend/internal/auth/usecase"
	"dmarcview-backend/internal/notification"
	reportDelivery "dmarcview-backend/internal/report/delivery"
	reportdomain "dmarcview-backend/internal/report/domain"
	reportParser "dmarcview-backend/internal/report/parser"
	reportRepo "dmarcview-backend/internal/report/repository"
	reportUsecase "dmarcview-backend/internal/report/usecase"
	syncDelivery "dmarcview-backend/internal/sync/delivery"
	syncdomain "dmarcview-backend/internal/sync/domain"
	syncRepo "dmarcview-backend/internal/sync/repository"
	"dmarcview-backend/internal/sync/scheduler"
	syncUsecase "dmarcview-backend/internal/sync/usecase"
	"dmarcview-backend/pkg/config"
	"dmarcview-backend/pkg/database"
	"dmarcview-backend/pkg/gmail"
	"dmarcview-backend/pkg/graph"
	"dmarcview-backend/pkg/imap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&authdomain.RefreshToken{},
		&syncdomain.SyncConfig{},
		&syncdomain.SyncRunLog{},
		&syncdomain.ProcessedMessage{},
		&syncdomain.DeletionAuditEntry{},
		&reportdomain.DmarcReport{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	configRepo := syncRepo.NewSyncConfigRepository(db)
	runRepo := syncRepo.NewSyncRunRepository(db)
	processedRepo := syncRepo.NewProcessedMessageRepository(db)
	reportRepository := reportRepo.NewReportRepository(db)

	// Provider adapters
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
	graphService := graph.NewService(cfg.MicrosoftClientID, cfg.MicrosoftClientSecret, cfg.MicrosoftRedirectURI, cfg.MicrosoftTenant)
	imapService := imap.NewService()

	refreshers := map[syncdomain.Provider]syncUsecase.TokenRefresher{
		syncdomain.ProviderGmail:   gmailService,
		syncdomain.ProviderOutlook: graphService,
	}
	registry := syncUsecase.NewProviderRegistry(map[syncdomain.Provider]syncUsecase.ProviderFactory{
		syncdomain.ProviderGmail:   func() (syncdomain.MailProvider, error) { return gmailService, nil },
		syncdomain.ProviderOutlook: func() (syncdomain.MailProvider, error) { return graphService, nil },
		syncdomain.ProviderIMAP:    func() (syncdomain.MailProvider, error) { return imapService, nil },
	})

	// Initialize use cases (dependency injection)
	credentialService := syncUsecase.NewCredentialService(configRepo, refreshers, cfg)
	ingestService := reportUsecase.NewIngestService(reportParser.New(), reportRepository)
	deletionEngine := syncUsecase.NewDeletionEngine(runRepo)
	syncUc := syncUsecase.NewSyncUsecase(configRepo, runRepo, processedRepo, credentialService, registry, ingestService, deletionEngine, cfg.SyncMaxResults)
	authUc := authUsecase.NewAuthUsecase(userRepo, cfg)

	// Gmail push notifications (Pub/Sub), only when a project is configured
	if cfg.GoogleProjectID != "" {
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}
		if topicName == "" {
			topicName = "gmail-updates"
		}

		notifService, err := notification.NewService(cfg.GoogleProjectID, topicName, cfg.GoogleCredentials, configRepo, syncUc)
		if err != nil {
			log.Printf("[Main] Failed to initialize notification service: %v", err)
		} else {
			go notifService.Start(context.Background())
		}
	} else {
		log.Println("[Main] GoogleProjectID not configured, push notifications disabled")
	}

	// Periodic sync of all active mailboxes
	sched := scheduler.NewScheduler(configRepo, syncUc, cfg.SyncInterval)
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP handler
	syncHandler := syncDelivery.NewSyncHandler(configRepo, runRepo, syncUc, credentialService, refreshers, cfg)
	reportHandler := reportDelivery.NewReportHandler(ingestService, reportRepository)
	handler := api.NewHandler(authUc, syncHandler, reportHandler, cfg)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
