package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/absensi-enrollment-api/api/swagger"
	"github.com/noah-isme/absensi-enrollment-api/internal/handler"
	"github.com/noah-isme/absensi-enrollment-api/internal/middleware"
	"github.com/noah-isme/absensi-enrollment-api/internal/models"
	"github.com/noah-isme/absensi-enrollment-api/internal/repository"
	"github.com/noah-isme/absensi-enrollment-api/internal/service"
	"github.com/noah-isme/absensi-enrollment-api/pkg/cache"
	"github.com/noah-isme/absensi-enrollment-api/pkg/config"
	"github.com/noah-isme/absensi-enrollment-api/pkg/database"
	"github.com/noah-isme/absensi-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/absensi-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/absensi-enrollment-api/pkg/middleware/requestid"
)

// @title Absensi Enrollment API
// @version 1.0.0
// @description Class section enrollment service for the attendance platform
// @BasePath /api
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Cache is an optimisation for availability listings; the
		// ledger works without it.
		logr.Sugar().Warnw("redis unavailable, availability cache disabled", "error", err)
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Availability.CacheTTL, logr, cfg.Availability.CacheEnabled && redisClient != nil)
	availabilitySvc := service.NewAvailabilityService(studentRepo, classRepo, cacheSvc, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, availabilitySvc, metricsSvc, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, logr)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	classHandler := handler.NewClassHandler(enrollmentSvc, availabilitySvc)
	studentHandler := handler.NewStudentHandler(studentSvc)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))
	{
		api.GET("/students", studentHandler.List)
		api.GET("/classes/:id/enrollments", enrollmentHandler.ListByClass)
		api.GET("/classes/:id/occupancy", classHandler.Occupancy)
		api.GET("/classes/:id/available-students", classHandler.AvailableStudents)

		admin := api.Group("")
		admin.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
		{
			admin.POST("/enrollments", enrollmentHandler.Create)
			admin.DELETE("/enrollments/:id", enrollmentHandler.Delete)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
