package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/audit"
	"github.com/suteetoe/shopfleet/internal/catalog"
	"github.com/suteetoe/shopfleet/internal/handler"
	"github.com/suteetoe/shopfleet/internal/identity"
	mid "github.com/suteetoe/shopfleet/internal/middleware"
	"github.com/suteetoe/shopfleet/internal/model"
	"github.com/suteetoe/shopfleet/internal/notify"
	"github.com/suteetoe/shopfleet/internal/provisioning"
	"github.com/suteetoe/shopfleet/internal/registry"
	"github.com/suteetoe/shopfleet/internal/storage/gormstore"
	"github.com/suteetoe/shopfleet/internal/template"
	"github.com/suteetoe/shopfleet/internal/tenancy"
	"github.com/suteetoe/shopfleet/pkg/config"
	"github.com/suteetoe/shopfleet/pkg/database"
	"github.com/suteetoe/shopfleet/pkg/jwtutil"
	"github.com/suteetoe/shopfleet/pkg/logger"
	"github.com/suteetoe/shopfleet/pkg/metrics"
)

const serviceName = "shopfleet"

func main() {
	// Load configuration
	appConfig, err := config.Load(serviceName)
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       appConfig.Log.Level,
		Environment: appConfig.Server.Env,
		ServiceName: appConfig.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting "+serviceName, appConfig.LogConfig()...)

	// Initialize database
	db, err := database.InitDB(&appConfig.DB)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close(db)

	if appConfig.DB.AutoMigrate {
		if err := database.MigrateModels(db, model.All()...); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
		log.Info("Database migrations applied")
	}

	// Storage: the gorm engine behind the tenancy interceptor
	engine := gormstore.New(db)
	recorder := audit.NewRecorder(engine, 1024)
	defer recorder.Close()
	policy := tenancy.DefaultPolicy()
	client := tenancy.New(engine, policy, tenancy.WithAuditHook(recorder.Hook()))
	log.Info("Tenancy policy loaded", zap.String("policy", policy.String()))

	// Tenant resolution cache
	var cache registry.Cache = registry.NewMemoryCache()
	if appConfig.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     appConfig.Redis.Addr,
			Password: appConfig.Redis.Password,
			DB:       appConfig.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("Redis unreachable, lookups fall back to storage", zap.Error(err))
		}
		cache = registry.NewRedisCache(rdb, appConfig.Redis.TTL)
		log.Info("Redis tenant cache enabled", zap.String("addr", appConfig.Redis.Addr))
	}
	reg := registry.New(client,
		registry.WithCache(cache),
		registry.WithBaseDomain(appConfig.Tenancy.BaseDomain))

	templates := template.NewResolver(client)
	if n, err := templates.Seed(context.Background()); err != nil {
		log.Fatal("Failed to seed templates", zap.Error(err))
	} else if n > 0 {
		log.Info("Templates seeded", zap.Int("inserted", n))
	}

	// Notifications
	var sender notify.Sender = notify.LogSender{}
	if appConfig.Notify.RelayURL != "" {
		sender = notify.NewHTTPSender(appConfig.Notify.RelayURL, appConfig.Notify.Timeout)
	}
	notifier := notify.NewNotifier(sender, client, appConfig.Notify.Timeout)

	idp := identity.NewHTTPClient(identity.HTTPConfig{
		BaseURL:    appConfig.Identity.BaseURL,
		APIKey:     appConfig.Identity.APIKey,
		Timeout:    appConfig.Identity.Timeout,
		RetryCount: appConfig.Identity.RetryCount,
	})

	prov := provisioning.NewService(client, reg, idp, templates, notifier, provisioning.Config{
		StrictCrossLink: appConfig.Provisioning.StrictCrossLink,
		IdentityTimeout: appConfig.Identity.Timeout,
	})

	// Initialize Echo instance
	e := echo.New()
	e.HideBanner = true

	httpMetrics := metrics.NewHTTPMetrics(serviceName)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(mid.RequestIDMiddleware())
	e.Use(httpMetrics.Middleware())
	e.Use(logger.Middleware())

	// Metrics endpoint
	e.GET("/metrics", echo.WrapHandler(metrics.GetPrometheusHandler()))

	h := &handler.Handler{
		ServiceName:  serviceName,
		Provisioning: prov,
		Registry:     reg,
		Products:     catalog.NewProducts(client),
		Templates:    templates,
		Client:       client,
	}
	h.Register(e, handler.RouteConfig{
		JWT: jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
			SigningKey:      appConfig.JWT.SigningKey,
			ExpirationHours: appConfig.JWT.ExpirationHours,
		}),
		ProvisionLimiter: mid.NewIPRateLimiter(appConfig.Provisioning.RateLimit, appConfig.Provisioning.RateBurst),
		WebhookSecret:    appConfig.Identity.WebhookSecret,
	})

	// Start server
	go func() {
		port := appConfig.Server.Port
		log.Info("Starting server", zap.String("port", port))
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	prov.Wait()
}
