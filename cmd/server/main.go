// backend-go/cmd/server/main.go
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

	"github.com/andresuchdata/wasteflow/backend-go/internal/api"
	"github.com/andresuchdata/wasteflow/backend-go/internal/cache"
	"github.com/andresuchdata/wasteflow/backend-go/internal/config"
	"github.com/andresuchdata/wasteflow/backend-go/internal/forecast"
	"github.com/andresuchdata/wasteflow/backend-go/internal/pipeline"
	"github.com/andresuchdata/wasteflow/backend-go/internal/recommend"
	"github.com/andresuchdata/wasteflow/backend-go/internal/repository"
	"github.com/andresuchdata/wasteflow/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/wasteflow/backend-go/internal/service"
	"github.com/andresuchdata/wasteflow/backend-go/pkg/logger"
)

func main() {
	cfg := config.Load()

	logger.Configure(cfg.Server.Mode, cfg.Server.LogLevel)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	recCache, err := cache.NewRecommendationCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Recommendation cache unavailable, continuing without it")
		recCache = cache.NewNoopRecommendationCache()
	}

	settings := service.SettingsFromConfig(cfg)
	receipts := repository.NewReceiptRepository(db)
	forecastService := service.NewForecastService(
		receipts,
		cache.NewModelCache(),
		recCache,
		forecast.NewTrainer(service.ForecastOptions(cfg.Forecast)),
		recommend.NewEngine(service.EngineConfig(cfg.Recommend, settings.Workers)),
		settings,
	)
	efficiencyService := service.NewEfficiencyService(receipts, settings, cfg.Recommend.Sizes)
	usageService := service.NewUsageService(receipts, settings)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := pipeline.NewWorker(forecastService.Train, pipeline.NewRepository(db), pipeline.DefaultWorkerConfig())
	worker.Start(ctx)
	forecastService.UseRunner(worker)

	var scheduler *pipeline.Scheduler
	if cfg.Forecast.RetrainCron != "" {
		scheduler, err = pipeline.NewScheduler(cfg.Forecast.RetrainCron, cfg.Forecast.RetrainWindowDays, worker)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to configure retrain schedule")
		}
		scheduler.Start()
		logger.Log.Info().Str("schedule", cfg.Forecast.RetrainCron).Msg("Scheduled retrain enabled")
	}

	router := api.NewRouter(&api.Services{
		ForecastService:   forecastService,
		EfficiencyService: efficiencyService,
		UsageService:      usageService,
		TrainingWorker:    worker,
	}, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	cancel()
	worker.Stop()

	logger.Log.Info().Msg("Server exiting")
}
