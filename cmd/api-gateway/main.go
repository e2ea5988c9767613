package main

import (
	"context"
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

	_ "github.com/brightpath-edu/portal-api/api/swagger"
	"github.com/brightpath-edu/portal-api/internal/handler"
	"github.com/brightpath-edu/portal-api/internal/middleware"
	"github.com/brightpath-edu/portal-api/internal/models"
	"github.com/brightpath-edu/portal-api/internal/repository"
	"github.com/brightpath-edu/portal-api/internal/service"
	"github.com/brightpath-edu/portal-api/pkg/cache"
	"github.com/brightpath-edu/portal-api/pkg/config"
	"github.com/brightpath-edu/portal-api/pkg/database"
	"github.com/brightpath-edu/portal-api/pkg/logger"
	corsmiddleware "github.com/brightpath-edu/portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/brightpath-edu/portal-api/pkg/middleware/requestid"
	"github.com/brightpath-edu/portal-api/pkg/storage"
)

// @title BrightPath Portal API
// @version 1.0.0
// @description School management portal: curriculum selection, live classes,
// @description learning resources, assessments and timetable exports.
// @BasePath /api/v1
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	var cacheRepo service.CacheRepository
	cacheEnabled := cfg.Curriculum.CacheEnabled
	if cacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without option caching")
			cacheEnabled = false
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Curriculum.CacheTTL, logr, cacheEnabled)

	userRepo := repository.NewUserRepository(db)
	curriculumRepo := repository.NewCurriculumRepository(db)
	sessionRepo := repository.NewLiveSessionRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "brightpath-portal",
	})
	curriculumSvc := service.NewCurriculumService(curriculumRepo, cacheSvc, validate, logr, service.CurriculumServiceConfig{
		CacheTTL: cfg.Curriculum.CacheTTL,
	})
	selectionSvc := service.NewSelectionValidator(curriculumSvc, logr)
	liveClassSvc := service.NewLiveClassService(sessionRepo, validate, logr, service.LiveClassServiceConfig{
		ReconcileInterval: cfg.LiveClasses.ReconcileInterval,
	})

	resourceStore, err := storage.NewLocalStorage(cfg.Resources.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init resource storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Resources.SignedURLSecret, cfg.Resources.SignedURLTTL)
	resourceSvc := service.NewResourceService(resourceRepo, selectionSvc, resourceStore, signer, validate, logr, service.ResourceServiceConfig{
		MaxFileSizeBytes: cfg.Resources.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Resources.AllowedMIMEs,
	})
	assessmentSvc := service.NewAssessmentService(assessmentRepo, selectionSvc, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		exportSvc = service.NewExportService(sessionRepo, exportStore, logr, service.ExportServiceConfig{
			ResultTTL: cfg.Exports.ResultTTL,
		})
		exportSvc.Start(ctx)
		defer exportSvc.Stop()
	}

	if cfg.LiveClasses.ReconcileEnabled {
		go liveClassSvc.RunReconciler(ctx)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	curriculumHandler := handler.NewCurriculumHandler(curriculumSvc, selectionSvc)
	liveClassHandler := handler.NewLiveClassHandler(liveClassSvc)
	resourceHandler := handler.NewResourceHandler(resourceSvc)
	assessmentHandler := handler.NewAssessmentHandler(assessmentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(middleware.AccessLog(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())
	// Attaches claims when a token is present so access logs carry the user,
	// without blocking public reads. Protected groups still enforce JWT below.
	api.Use(middleware.OptionalJWT(authSvc))

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	curriculum := api.Group("/curriculum")
	{
		curriculum.GET("/programs", curriculumHandler.Programs)
		curriculum.GET("/programs/:programId/levels", curriculumHandler.Levels)
		curriculum.GET("/programs/:programId/offerings", curriculumHandler.OfferingOptions)
		curriculum.GET("/subjects/:subjectId/papers", curriculumHandler.Papers)
		curriculum.POST("/selection/validate", curriculumHandler.ValidateSelection)

		admin := curriculum.Group("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
		admin.POST("/programs", curriculumHandler.CreateProgram)
		admin.POST("/levels", curriculumHandler.CreateLevel)
		admin.POST("/offerings", curriculumHandler.CreateOffering)
		admin.POST("/papers", curriculumHandler.CreatePaper)
	}

	liveClasses := api.Group("/live-classes")
	{
		liveClasses.GET("", liveClassHandler.List)

		staff := liveClasses.Group("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
		staff.POST("", liveClassHandler.Schedule)
		staff.PUT("/:id", liveClassHandler.Reschedule)
		staff.DELETE("/:id", liveClassHandler.Cancel)
	}

	resources := api.Group("/resources")
	{
		resources.GET("", resourceHandler.List)
		resources.GET("/:id", resourceHandler.Get)
		resources.GET("/:id/download", middleware.JWT(authSvc), resourceHandler.Download)
		resources.GET("/:id/file", resourceHandler.ServeFile)

		staff := resources.Group("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
		staff.POST("", resourceHandler.Submit)
		staff.POST("/:id/file", resourceHandler.AttachFile)
		staff.DELETE("/:id", resourceHandler.Delete)
	}

	if cfg.Assessments.Enabled {
		assessments := api.Group("/assessments")
		assessments.GET("", assessmentHandler.List)
		assessments.GET("/:id", assessmentHandler.Get)

		staff := assessments.Group("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
		staff.POST("", assessmentHandler.Submit)
		staff.DELETE("/:id", assessmentHandler.Delete)
	}

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		exports := api.Group("/exports", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
		exports.POST("/timetable", exportHandler.Request)
		exports.GET("/:id", exportHandler.Status)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Sugar().Errorw("server shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}
}
