package main

import (
	"log"

	"taskgrid/internal/api"
	"taskgrid/internal/config"
	"taskgrid/internal/services"
	"taskgrid/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize MongoDB store
	st, err := store.NewMongo(cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer st.Close()

	// Initialize file storage
	fileStorage, err := services.NewFileStorage(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize file storage: %v", err)
	}
	log.Printf("File storage backend: %s", cfg.Storage.Backend)

	// Mailer is nil when email delivery is disabled
	mailer := services.NewMailer(cfg.Email)
	if mailer == nil {
		log.Printf("Email delivery disabled")
	}

	// Fan-out dispatcher for notifications, timeline, and email
	fanout := services.NewFanout(st, mailer)
	defer fanout.Close()

	// Initialize services
	jwtService := services.NewJWTService(cfg.JWT.Secret)
	authService := services.NewAuthService(st, jwtService)
	taskService := services.NewTaskService(st, fanout, cfg.Email)
	subtaskService := services.NewSubtaskService(st, fanout, cfg.Email)
	approvalService := services.NewApprovalService(st, fanout, cfg.Email)
	workService := services.NewWorkService(st, fileStorage, fanout, approvalService, cfg.Email)
	notificationService := services.NewNotificationService(st)
	dashboardService := services.NewDashboardService(st)

	// Deadline scanner
	if cfg.Deadline.Enabled {
		deadlineService, err := services.NewDeadlineService(st, fanout, cfg.Email, cfg.Deadline.Schedule)
		if err != nil {
			log.Fatalf("Failed to initialize deadline scanner: %v", err)
		}
		deadlineService.Start()
		defer deadlineService.Stop()
	} else {
		log.Printf("Deadline scanner disabled")
	}

	// Initialize handlers
	handlers := api.NewHandlers(
		authService,
		taskService,
		subtaskService,
		approvalService,
		workService,
		notificationService,
		dashboardService,
	)

	// Setup routes
	router := api.SetupRoutes(handlers, jwtService)

	// Start server
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
