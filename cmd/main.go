package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vinakademin/vinakademin-backend/config"
	"github.com/vinakademin/vinakademin-backend/controllers"
	"github.com/vinakademin/vinakademin-backend/logger"
	"github.com/vinakademin/vinakademin-backend/routes"
	"github.com/vinakademin/vinakademin-backend/services"
	"github.com/vinakademin/vinakademin-backend/utils"
	"github.com/vinakademin/vinakademin-backend/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("kunde inte läsa konfigurationen: %v", err)
	}

	zlog, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("kunde inte skapa logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck
	zap.ReplaceGlobals(zlog)

	if err := config.InitDB(cfg); err != nil {
		zlog.Fatal("database init failed", zap.Error(err))
	}

	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			zlog.Warn("redis unavailable, using in-memory idempotency and no catalog cache", zap.Error(err))
		} else {
			services.Idempotency = services.NewRedisIdempotencyStore(rdb)
			services.Catalog = services.NewCatalogCache(rdb, zlog)
			defer rdb.Close()
		}
	}

	if cfg.Stripe.SecretKey != "" {
		services.Payments = services.NewStripeGateway(cfg.Stripe.SecretKey, zlog)
	} else {
		zlog.Warn("STRIPE_SECRET_KEY not set, checkout disabled")
	}
	if cfg.Mux.TokenID != "" && cfg.Mux.TokenSecret != "" {
		services.Mux = services.NewMuxClient(cfg.Mux.APIURL, cfg.Mux.TokenID, cfg.Mux.TokenSecret)
	}
	if cfg.Email.SendGridAPIKey != "" {
		services.Email = services.NewMailer(cfg.Email.SendGridAPIKey, cfg.Email.From, cfg.Email.FromName, cfg.FrontendURL, zlog)
	}
	if cfg.PostHog.APIKey != "" {
		tracker, err := services.NewTracker(cfg.PostHog.APIKey, cfg.PostHog.Host, zlog)
		if err != nil {
			zlog.Warn("posthog disabled", zap.Error(err))
		} else {
			services.Analytics = tracker
			defer tracker.Close() //nolint:errcheck
		}
	}

	if err := controllers.RegisterValidators(); err != nil {
		zlog.Fatal("register validators", zap.Error(err))
	}

	announceExpired := func(id uuid.UUID) {
		ws.BroadcastSessionEvent(id.String(), ws.EventSessionExpired, nil)
	}
	services.OnSessionExpired = announceExpired
	scheduler, err := utils.StartScheduler(config.DB, zlog, announceExpired)
	if err != nil {
		zlog.Fatal("scheduler failed to start", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logger.RequestID(), logger.GinMiddleware(zlog), logger.Recovery(zlog))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Auth-Token", logger.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", logger.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	routes.SetupRouter(r, config.DB)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server listening", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down")

	<-scheduler.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
