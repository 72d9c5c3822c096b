package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/guidancehub/referral-api/api/swagger"
	"github.com/guidancehub/referral-api/internal/handler"
	"github.com/guidancehub/referral-api/internal/middleware"
	"github.com/guidancehub/referral-api/internal/models"
	"github.com/guidancehub/referral-api/internal/repository"
	"github.com/guidancehub/referral-api/internal/service"
	"github.com/guidancehub/referral-api/pkg/cache"
	"github.com/guidancehub/referral-api/pkg/config"
	"github.com/guidancehub/referral-api/pkg/database"
	"github.com/guidancehub/referral-api/pkg/logger"
	corsmiddleware "github.com/guidancehub/referral-api/pkg/middleware/cors"
	reqidmiddleware "github.com/guidancehub/referral-api/pkg/middleware/requestid"
)

// @title Referral Desk API
// @version 1.0.0
// @description Role-gated referral tracking backend for the guidance office
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Stats caching degrades to direct DB reads without Redis.
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	referralRepo := repository.NewReferralRepository(db, cfg.Referrals.CodeRetryAttempts)
	categoryRepo := repository.NewCategoryRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "referral-api",
	})
	referralSvc := service.NewReferralService(referralRepo, categoryRepo, cacheRepo, metricsSvc, validate, logr,
		cfg.Referrals.StatsCacheTTL, cfg.Referrals.RecentLimit)
	intakeSvc := service.NewIntakeService(referralRepo, validate, logr, metricsSvc)
	categorySvc := service.NewCategoryService(categoryRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	referralHandler := handler.NewReferralHandler(referralSvc)
	publicHandler := handler.NewPublicReferralHandler(intakeSvc)
	categoryHandler := handler.NewCategoryHandler(categorySvc)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
			return
		}
		// A dead cache degrades stats reads but never readiness.
		cacheStatus := "disabled"
		if redisClient != nil {
			cacheStatus = "up"
			if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
				cacheStatus = "down"
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "cache": cacheStatus})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	if cfg.Intake.Enabled {
		api.POST("/public-referrals", publicHandler.Submit)
	}

	authed := api.Group("", middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)
	authed.GET("/categories", categoryHandler.List)

	referrals := authed.Group("/referrals")
	referrals.POST("", referralHandler.Create)
	referrals.GET("/my-referrals", referralHandler.ListMine)
	referrals.GET("/recent", referralHandler.Recent)

	// Static routes registered alongside /:id; gin matches them first.
	privileged := middleware.RequireRoles(models.RoleAdmin, models.RoleCounselor)
	referrals.GET("/stats", privileged, referralHandler.Stats)
	referrals.GET("/export", privileged, referralHandler.Export)
	referrals.GET("", privileged, referralHandler.ListAll)

	referrals.GET("/:id", referralHandler.Get)
	referrals.PUT("/:id", referralHandler.Update)
	referrals.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), referralHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
