// Command server runs the pollcord bridge: the interactions webhook, the
// internal API and the queue workers behind them.
//
// @title                      pollcord internal API
// @version                    1.0
// @description                Endpoints the scheduling application calls to publish notification events, keep poll cards in sync and link groups to chat channels.
// @BasePath                   /internal
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/pollcord/docs"
	"github.com/tbourn/pollcord/internal/app"
	"github.com/tbourn/pollcord/internal/config"
	httpapi "github.com/tbourn/pollcord/internal/http"
	"github.com/tbourn/pollcord/internal/observability"
	"github.com/tbourn/pollcord/internal/repo"
	"github.com/tbourn/pollcord/internal/sysutil"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	gin.SetMode(cfg.GinMode)

	version := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), app.Version)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DBDriver, cfg.DBPath, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database connection failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	a, err := app.New(cfg, db, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("wiring failed")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, a.Deps(), cfg)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		a.Run(ctx)
	}()

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("version", app.BuildVersion()).
			Str("region", cfg.Queue.Region).
			Msg("pollcord listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("workers did not stop before the shutdown deadline")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown error")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
