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

	_ "github.com/noah-isme/sma-admission-api/api/swagger"
	"github.com/noah-isme/sma-admission-api/internal/handler"
	"github.com/noah-isme/sma-admission-api/internal/middleware"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	"github.com/noah-isme/sma-admission-api/internal/service"
	"github.com/noah-isme/sma-admission-api/pkg/cache"
	"github.com/noah-isme/sma-admission-api/pkg/config"
	"github.com/noah-isme/sma-admission-api/pkg/database"
	"github.com/noah-isme/sma-admission-api/pkg/jobs"
	"github.com/noah-isme/sma-admission-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-admission-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-admission-api/pkg/middleware/requestid"
)

// @title SMA Admission API
// @version 1.0.0
// @description Admission workflow and identity assignment service
// @BasePath /api/v1
// @schemes http
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

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, rate limiting disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	sequenceRepo := repository.NewSequenceRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	userRepo := repository.NewUserRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	auditRecorder := service.NewAuditRecorder(auditRepo, logr, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
		RetryDelay: cfg.Audit.RetryDelay,
		Logger:     logr,
	})
	auditRecorder.Start(ctx)
	defer auditRecorder.Stop()

	metricsService := service.NewMetricsService()
	uidService := service.NewUIDService(sequenceRepo, logr)
	admissionService := service.NewAdmissionService(applicationRepo, uidService, documentRepo, auditRecorder, metricsService, validate, logr)
	accountService := service.NewAccountService(userRepo, uidService, documentRepo, auditRecorder, metricsService, validate, logr)
	authService := service.NewAuthService(userRepo, auditRecorder, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	exportService := service.NewExportService(applicationRepo, service.LetterConfig{
		Enabled:    cfg.Letters.Enabled,
		SchoolName: cfg.Letters.SchoolName,
		Signatory:  cfg.Letters.Signatory,
	}, logr, nil, nil)

	authHandler := handler.NewAuthHandler(authService)
	admissionHandler := handler.NewAdmissionHandler(admissionService, exportService)
	userHandler := handler.NewUserHandler(accountService)
	metricsHandler := handler.NewMetricsHandler(metricsService, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	admissions := api.Group("/admissions")
	{
		admissions.POST("", middleware.RateLimit(redisClient, cfg.Admissions.SubmitRateLimit, cfg.Admissions.SubmitRateWindow, logr), admissionHandler.Submit)

		staff := admissions.Group("", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin, models.RoleAdmissionStaff))
		{
			staff.GET("", admissionHandler.List)
			staff.GET("/export", admissionHandler.ExportCSV)
			staff.GET("/:id", admissionHandler.Get)
			staff.POST("/:id/review", admissionHandler.Review)
			staff.POST("/:id/approve", admissionHandler.Approve)
			staff.POST("/:id/reject", admissionHandler.Reject)
			staff.GET("/:id/uid-preview", admissionHandler.PreviewUID)
			staff.GET("/:id/documents", admissionHandler.Documents)
			staff.GET("/:id/letter", admissionHandler.DecisionLetter)
		}
	}

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	adminOrSelf := middleware.RBAC(string(models.RoleAdmin), "SELF")

	users := api.Group("/users", middleware.JWT(authService))
	{
		users.POST("", adminOnly, userHandler.Create)
		users.GET("", adminOnly, userHandler.List)
		users.GET("/:id", adminOrSelf, userHandler.Get)
		users.GET("/:id/documents", adminOrSelf, userHandler.Documents)
		users.PUT("/:id", adminOnly, userHandler.Update)
		users.DELETE("/:id", adminOnly, userHandler.Deactivate)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
