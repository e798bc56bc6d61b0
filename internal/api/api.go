// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/wasteflow/backend-go/internal/api/handlers"
	"github.com/andresuchdata/wasteflow/backend-go/internal/api/middleware"
	"github.com/andresuchdata/wasteflow/backend-go/internal/pipeline"
	"github.com/andresuchdata/wasteflow/backend-go/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	ForecastService   *service.ForecastService
	EfficiencyService *service.EfficiencyService
	UsageService      *service.UsageService
	TrainingWorker    *pipeline.Worker
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil {
		if services.ForecastService != nil {
			forecastHandler := handlers.NewForecastHandler(services.ForecastService, services.TrainingWorker)
			forecastGroup := apiGroup.Group("/forecast")
			{
				forecastGroup.POST("/train", forecastHandler.Train)
				forecastGroup.GET("/model", forecastHandler.GetModel)
				forecastGroup.GET("/runs", forecastHandler.ListRuns)
				forecastGroup.GET("/runs/:id", forecastHandler.GetRun)
			}

			recommendationGroup := apiGroup.Group("/recommendations")
			{
				recommendationGroup.GET("", forecastHandler.RecommendAll)
				recommendationGroup.GET("/:entity", forecastHandler.RecommendForEntity)
			}

			apiGroup.POST("/fill/calc", forecastHandler.Fill)
		}

		if services.EfficiencyService != nil {
			efficiencyHandler := handlers.NewEfficiencyHandler(services.EfficiencyService)
			efficiencyGroup := apiGroup.Group("/efficiency")
			{
				efficiencyGroup.GET("/summary", efficiencyHandler.GetSummary)
				efficiencyGroup.GET("/summary/all", efficiencyHandler.GetSummaryAll)
				efficiencyGroup.GET("/:entity", efficiencyHandler.GetCustomer)
			}
		}

		if services.UsageService != nil {
			usageHandler := handlers.NewUsageHandler(services.UsageService)
			usageGroup := apiGroup.Group("/usage")
			{
				usageGroup.GET("/customers", usageHandler.GetCustomers)
				usageGroup.GET("/customers/:entity/daily", usageHandler.GetCustomerDaily)
			}
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
