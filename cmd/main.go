package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"referral-engine/internal/auth"
	"referral-engine/internal/config"
	"referral-engine/internal/database"
	"referral-engine/internal/handlers"
	"referral-engine/internal/jobs"
	"referral-engine/internal/logging"
	"referral-engine/internal/monitoring"
	"referral-engine/internal/repository"
	"referral-engine/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.Init(cfg.IsProduction()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Sync()

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		logging.Logger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run migrations
	if err := database.AutoMigrate(database.GetDB()); err != nil {
		logging.Logger.Fatal("failed to run migrations", zap.Error(err))
	}

	repo := repository.NewRepository(database.GetDB())

	// Initialize services
	notifier := services.NewNotifier(cfg.Email.BrevoAPIKey, cfg.Email.SenderEmail, cfg.Email.SenderName)
	accountService := services.NewAccountService(repo, cfg.Referral.BaseURL)
	commissionService := services.NewCommissionService(repo, notifier, cfg.Referral.HoldPeriod, cfg.Referral.WalkTimeout)
	subscriptionService := services.NewSubscriptionService(repo, commissionService)
	payoutService := services.NewPayoutService(repo, cfg.Referral.MinimumPayout)
	integrityService := services.NewIntegrityService(repo)
	adminService := services.NewAdminService(repo)

	// Start maintenance jobs
	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler = jobs.NewScheduler(payoutService, integrityService)
		if err := scheduler.Register(cfg.Jobs.ReleaseSchedule, cfg.Jobs.AuditSchedule); err != nil {
			logging.Logger.Fatal("invalid job schedule", zap.Error(err))
		}
		scheduler.Start()
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.RequestLogger())

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
	}
	if cfg.App.FrontendURL != "" {
		allowedOrigins = append(allowedOrigins, cfg.App.FrontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterRoutes(router, &handlers.Handlers{
		Account:      handlers.NewAccountHandler(accountService, adminService),
		Referral:     handlers.NewReferralHandler(accountService, commissionService, integrityService),
		Payout:       handlers.NewPayoutHandler(payoutService),
		Subscription: handlers.NewSubscriptionHandler(subscriptionService),
		Admin:        handlers.NewAdminHandler(adminService, integrityService, payoutService),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logging.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	if err := srv.Shutdown(ctx); err != nil {
		logging.Logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logging.Logger.Info("server exited")
}
