package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/eduspace/enrollment-api/api/swagger"
	"github.com/eduspace/enrollment-api/internal/handler"
	"github.com/eduspace/enrollment-api/internal/middleware"
	"github.com/eduspace/enrollment-api/internal/models"
	"github.com/eduspace/enrollment-api/internal/realtime"
	"github.com/eduspace/enrollment-api/internal/repository"
	"github.com/eduspace/enrollment-api/internal/service"
	"github.com/eduspace/enrollment-api/internal/session"
	"github.com/eduspace/enrollment-api/pkg/cache"
	"github.com/eduspace/enrollment-api/pkg/config"
	"github.com/eduspace/enrollment-api/pkg/database"
	"github.com/eduspace/enrollment-api/pkg/jobs"
	"github.com/eduspace/enrollment-api/pkg/logger"
	corsmiddleware "github.com/eduspace/enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/eduspace/enrollment-api/pkg/middleware/requestid"
	"github.com/eduspace/enrollment-api/pkg/storage"
)

// @title EduSpace Enrollment API
// @version 1.0.0
// @description Class invitations, student onboarding and roster management.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewAccessRequestRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	classRepo := repository.NewClassRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	broker := realtime.NewRedisBroker(redisClient, cfg.Realtime.ChannelPrefix, cfg.Realtime.BufferSize, logr)
	dismissals := session.NewRedisDismissalStore(redisClient, cfg.Session.DismissalTTL)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, requestRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "eduspace-enrollment-api",
	})

	notificationSvc := service.NewNotificationService(notificationRepo, metricsSvc, logr, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	})
	if cfg.Notifications.Enabled {
		notificationSvc.Start(ctx)
		defer notificationSvc.Stop()
	}

	var exportStore *storage.LocalStorage
	var exportSigner *storage.SignedURLSigner
	if cfg.Exports.Enabled {
		exportStore, err = storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		exportSigner = storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	}

	onboardingSvc := service.NewOnboardingService(requestRepo, rosterRepo, metricsSvc, logr)
	invitationSvc := service.NewInvitationService(requestRepo, rosterRepo, classRepo, dismissals, broker, notificationSvc, metricsSvc, validate, logr)
	classSvc := service.NewClassService(classRepo, validate, logr)
	rosterSvc := service.NewRosterService(rosterRepo, classRepo, exportStore, exportSigner, validate, logr)
	if cfg.Exports.Enabled {
		rosterSvc.StartCleanup(ctx, cfg.Exports.CleanupInterval, cfg.Exports.SignedURLTTL)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	onboardingHandler := handler.NewOnboardingHandler(onboardingSvc)
	invitationHandler := handler.NewInvitationHandler(invitationSvc, broker, metricsSvc)
	classHandler := handler.NewClassHandler(classSvc, rosterSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.GET("/auth/me", authHandler.Me)
		authed.POST("/auth/change-password", authHandler.ChangePassword)

		me := authed.Group("/me")
		{
			me.POST("/reconcile", onboardingHandler.Reconcile)
			me.GET("/invitations", invitationHandler.ListMine)
			me.GET("/invitations/prompts", invitationHandler.Prompts)
			me.GET("/invitations/stream", invitationHandler.Stream)
			me.POST("/invitations/:id/accept", invitationHandler.Accept)
			me.POST("/invitations/:id/reject", invitationHandler.Reject)
			me.POST("/invitations/:id/dismiss", invitationHandler.Dismiss)
			me.POST("/invitations/:id/reopen", invitationHandler.Reopen)
			me.GET("/notifications", notificationHandler.List)
			me.POST("/notifications/:id/read", notificationHandler.MarkRead)
		}

		lecturer := authed.Group("")
		lecturer.Use(middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin))
		{
			lecturer.POST("/classes", classHandler.Create)
			lecturer.GET("/classes", classHandler.List)
			lecturer.GET("/classes/:id", classHandler.Get)
			lecturer.GET("/classes/:id/roster", classHandler.Roster)
			lecturer.POST("/classes/:id/roster/import", classHandler.ImportRoster)
			lecturer.POST("/classes/:id/roster/export", classHandler.ExportRoster)
			lecturer.POST("/classes/:id/invitations", invitationHandler.Invite)
			lecturer.GET("/classes/:id/invitations", invitationHandler.ListForClass)
			lecturer.DELETE("/invitations/:id", invitationHandler.Withdraw)
		}
	}

	// Signed token is the credential; no session needed.
	api.GET("/exports/download", classHandler.DownloadExport)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
