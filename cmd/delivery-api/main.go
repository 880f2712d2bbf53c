package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/foodforall-dc/delivery-api/api/swagger"
	"github.com/foodforall-dc/delivery-api/internal/handler"
	"github.com/foodforall-dc/delivery-api/internal/middleware"
	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/internal/repository"
	"github.com/foodforall-dc/delivery-api/internal/service"
	"github.com/foodforall-dc/delivery-api/pkg/cache"
	"github.com/foodforall-dc/delivery-api/pkg/config"
	"github.com/foodforall-dc/delivery-api/pkg/database"
	"github.com/foodforall-dc/delivery-api/pkg/logger"
	corsmiddleware "github.com/foodforall-dc/delivery-api/pkg/middleware/cors"
	reqidmiddleware "github.com/foodforall-dc/delivery-api/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

// @title Food For All Delivery API
// @version 1.0.0
// @description Recurring delivery scheduling with daily capacity limits.
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	// Redis only backs the calendar cache and the cross-instance capacity channel.
	var rdb redis.UniversalClient
	if client, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, running without cache and capacity relay", "error", err)
	} else {
		rdb = client
		defer client.Close()
	}

	instanceID := cfg.InstanceID
	if instanceID == "" {
		host, _ := os.Hostname()
		instanceID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	metrics := service.NewMetricsService()
	validate := service.NewValidator()

	capacityRepo := repository.NewCapacityRepository(db)
	seriesRepo := repository.NewSeriesRepository(db)
	eventRepo := repository.NewDeliveryEventRepository(db)

	var cacheSvc *service.CacheService
	if rdb != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(rdb, logr), metrics, cfg.Calendar.CacheTTL, logr, cfg.Calendar.CacheEnabled)
	} else {
		cacheSvc = service.NewCacheService(nil, metrics, cfg.Calendar.CacheTTL, logr, false)
	}

	hub := service.NewCapacityHub(metrics, logr)
	capacitySvc := service.NewCapacityService(capacityRepo, eventRepo, db, hub, cacheSvc, metrics, validate, logr, service.CapacityServiceConfig{
		WeeklySeed: cfg.Capacity.WeeklyDefaults,
		NearRatio:  cfg.Capacity.NearRatio,
		InstanceID: instanceID,
	})
	engine := service.NewRecurrenceEngine(cfg.Series.MaxOccurrences)
	seriesSvc := service.NewSeriesService(seriesRepo, eventRepo, db, engine, capacitySvc, cacheSvc, metrics, validate, logr, service.SeriesServiceConfig{
		WriteTimeout: cfg.Series.WriteTimeout,
	})
	calendarSvc := service.NewCalendarService(eventRepo, capacitySvc, cacheSvc, cfg.Calendar.CacheTTL, logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	})

	relay, err := service.NewCapacityRelay(hub, repository.NewCapacityChannelRepository(rdb, cfg.Capacity.Channel, logr), capacitySvc, metrics, logr, service.CapacityRelayConfig{
		InstanceID:       instanceID,
		ResyncSpec:       cfg.Capacity.ResyncCron,
		Workers:          cfg.Jobs.Workers,
		MaxRetries:       cfg.Jobs.MaxRetries,
		RetryDelay:       cfg.Jobs.RetryDelay,
		SubscriberBuffer: cfg.Capacity.SubscriberBuf,
	})
	if err != nil {
		logr.Sugar().Fatalw("invalid capacity relay config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := relay.Start(ctx); err != nil {
		logr.Sugar().Fatalw("failed to start capacity relay", "error", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/metrics", "/health"))
	r.Use(middleware.WithResponseMeta())

	checks := map[string]handler.Pinger{"postgres": db}
	if rdb != nil {
		checks["redis"] = handler.PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeDeps{
		auth:     authSvc,
		series:   handler.NewSeriesHandler(seriesSvc),
		capacity: handler.NewCapacityHandler(capacitySvc, hub, cfg.Capacity.SubscriberBuf, logr),
		calendar: handler.NewCalendarHandler(calendarSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "instance", instanceID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	// Open event streams only end when the hub closes, so close it before waiting on the server.
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown incomplete", zap.Error(err))
	}
	relay.Stop()
}

type routeDeps struct {
	auth     middleware.TokenValidator
	series   *handler.SeriesHandler
	capacity *handler.CapacityHandler
	calendar *handler.CalendarHandler
}

func registerRoutes(api *gin.RouterGroup, deps routeDeps) {
	api.Use(middleware.JWT(deps.auth), middleware.RequireScheduler())

	api.POST("/series", deps.series.Create)
	api.GET("/series/:id", deps.series.Get)
	api.PUT("/events/:id", deps.series.Edit)
	api.DELETE("/events/:id", deps.series.Delete)

	api.GET("/calendar", deps.calendar.View)

	capacity := api.Group("/capacity")
	capacity.GET("", deps.capacity.List)
	capacity.POST("", deps.capacity.Set)
	capacity.GET("/stream", deps.capacity.Stream)
	capacity.GET("/weekly", deps.capacity.Weekly)
	capacity.PUT("/overrides/:date", deps.capacity.SetOverride)
	capacity.POST("/overrides", deps.capacity.BulkOverride)

	admin := capacity.Group("/weekly", middleware.RequireRoles(models.RoleAdmin))
	admin.PUT("/:weekday", deps.capacity.SetWeekday)
	admin.POST("/rewrite", deps.capacity.RewriteWeekdays)
}
