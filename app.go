package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"qrtrack/internal/api"
	"qrtrack/internal/authz"
	"qrtrack/internal/cache"
	"qrtrack/internal/config"
	"qrtrack/internal/db"
	"qrtrack/internal/imagestore"
	"qrtrack/internal/logging"
	"qrtrack/internal/memstore"
	"qrtrack/internal/middleware"
	"qrtrack/internal/qrimage"
	"qrtrack/internal/router"
	"qrtrack/internal/service"
	"qrtrack/models"
)

// app owns every long-lived dependency of the process.
type app struct {
	cfg      *config.Config
	gormDB   *gorm.DB
	images   *imagestore.Store
	redis    *redis.Client
	services api.Services
	ping     api.Pinger
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	var store service.Store
	switch cfg.Database.Driver {
	case "memory":
		logging.Warn().Msg("Using in-memory store; data is lost on exit")
		store = memstore.New()
	default:
		gdb, err := db.ConnectDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.gormDB = gdb
		a.ping = func(context.Context) error { return db.Ping(gdb) }
		store = db.NewStore(gdb)
		logging.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.Name).Msg("Connected to database")
	}

	images, err := imagestore.Open(imagestore.Config{
		Path:      cfg.Images.Path,
		InMemory:  cfg.Images.InMemory,
		Namespace: cfg.Images.Namespace,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.images = images

	var resolver service.Resolver = service.NewStoreResolver(store)
	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logging.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable; lookups fall back to the database")
		}
		storeResolver := resolver
		resolver = cache.NewRedisCache(a.redis, cache.Config{
			FreshTTL: cfg.Redis.FreshTTL,
			StaleTTL: cfg.Redis.StaleTTL,
			Beta:     cfg.Redis.Beta,
		}, func(ctx context.Context, codeID string) (*models.QRTarget, error) {
			return storeResolver.Resolve(ctx, codeID)
		})
	}

	scans := service.NewScanService(store, store, resolver)
	scans.SetSettleWindow(cfg.Reconcile.SettleWindow)

	a.services = api.Services{
		QRCodes: service.NewQRCodeService(store, store, store, images,
			qrimage.NewEncoder(cfg.Images.Size), resolver, cfg.Server.PublicBaseURL),
		Scans:      scans,
		Analytics:  service.NewAnalyticsService(store),
		Categories: service.NewCategoryService(store),
		Users:      service.NewUserService(store),
	}
	return a, nil
}

// Serve runs the HTTP server until ctx is done, then drains in-flight requests.
func (a *app) Serve(ctx context.Context, policyPath string) error {
	cfg := a.cfg

	enforcer, err := authz.NewEnforcer(policyPath)
	if err != nil {
		return err
	}

	var limit gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		limit, err = middleware.RateLimit(cfg.RateLimit.Rate, a.redis)
		if err != nil {
			return err
		}
	}
	if cfg.Auth.JWTSecret == "" {
		logging.Warn().Msg("auth.jwt_secret is empty; every /api request will be rejected")
	}

	gin.SetMode(cfg.Server.Mode)
	engine := router.NewEngine()
	router.SetupRoutes(engine, api.NewHandler(a.services, a.ping), router.Options{
		ImageNamespace: cfg.Images.Namespace,
		JWTSecret:      cfg.Auth.JWTSecret,
		JWTIssuer:      cfg.Auth.Issuer,
		Authorizer:     enforcer,
		RateLimit:      limit,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	if cfg.Reconcile.Interval > 0 {
		go a.services.Scans.RunReconcileLoop(loopCtx, cfg.Reconcile.Interval)
		logging.Info().Dur("interval", cfg.Reconcile.Interval).Msg("Scan count reconcile loop started")
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info().Msg("Shutting down")
	stopLoop()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if a.images != nil {
		if err := a.images.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close image store")
		}
	}
	if a.gormDB != nil {
		if err := db.Close(a.gormDB); err != nil {
			logging.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
