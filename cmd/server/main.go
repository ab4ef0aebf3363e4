package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cleancity/internal/cache"
	"github.com/iliyamo/cleancity/internal/config"
	"github.com/iliyamo/cleancity/internal/database"
	"github.com/iliyamo/cleancity/internal/handler"
	"github.com/iliyamo/cleancity/internal/jobs"
	"github.com/iliyamo/cleancity/internal/logger"
	"github.com/iliyamo/cleancity/internal/metrics"
	"github.com/iliyamo/cleancity/internal/middleware"
	"github.com/iliyamo/cleancity/internal/queue"
	"github.com/iliyamo/cleancity/internal/repository"
	"github.com/iliyamo/cleancity/internal/repository/memory"
	"github.com/iliyamo/cleancity/internal/router"
	"github.com/iliyamo/cleancity/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("cleancity", cfg.LogLevel)

	store, db := openStore(cfg, log)
	if db != nil {
		defer db.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Redis backed cache and rate limit ----
	rdb := config.NewRedisClient(log)
	cacheCfg := config.LoadCacheConfig()
	var (
		counter   cache.Counter
		responses middleware.ResponseStore
	)
	if rdb != nil {
		defer rdb.Close()
		counter, responses = rdb, rdb
	}
	gen := cache.NewGeneration(counter, cacheCfg.Prefix, log)

	// ---- Services ----
	m := metrics.New()
	var pub service.EventPublisher = service.NopPublisher{}
	if cfg.RabbitURL != "" {
		pub = &service.AMQPPublisher{URL: cfg.RabbitURL, Log: log}
	}
	reports := service.NewReportService(store, pub, m, gen, log)
	users := service.NewUserService(store, gen, log)
	onboarding := service.NewOnboardingService(store, cfg.AdminLimitPerCity, m, gen, log)

	seed, err := service.LoadSeedCodes(cfg.AdminCodesFile)
	if err != nil {
		log.WithError(err).Fatal("load admin codes")
	}
	if _, err := onboarding.SeedCodes(ctx, seed); err != nil {
		log.WithError(err).Fatal("seed admin codes")
	}

	// ---- Background work ----
	if cfg.RabbitURL != "" && cfg.NotifyConsumer {
		consumer := &queue.Consumer{URL: cfg.RabbitURL, LogPath: cfg.NotifyLogPath, Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("notification consumer stopped")
			}
		}()
	}
	if cfg.TokenPurgeSchedule != "" {
		cron, err := jobs.Schedule(cfg.TokenPurgeSchedule, &jobs.PurgeJob{Store: store, Log: log}, log)
		if err != nil {
			log.WithError(err).Fatal("token purge schedule")
		}
		defer cron.Stop()
	}

	// ---- HTTP ----
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(log))
	e.Use(m.Middleware())

	var pinger handler.Pinger
	if db != nil {
		pinger = db
	}
	router.RegisterRoutes(e, pinger, m)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, store, store, onboarding, log), cfg.JWTSecret)
	router.RegisterReports(e, handler.NewReportHandler(reports, store, log), cfg.JWTSecret)
	router.RegisterAdmin(e,
		handler.NewAdminHandler(reports, users, store, onboarding, log),
		cfg.JWTSecret,
		middleware.NewRateLimiter(config.LoadRateLimitConfig(), rdb, log),
		middleware.NewResponseCache(cacheCfg, responses, gen),
	)

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "storage": cfg.StorageDriver}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

// openStore returns the configured persistence gateway. db is nil for the
// memory driver.
func openStore(cfg config.Config, log logrus.FieldLogger) (repository.Store, *sql.DB) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("using in-memory storage, data is lost on exit")
		return memory.New(), nil
	}
	db, err := database.Open(database.Config{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("migrate database")
	}
	return repository.NewSQLStore(db), db
}
