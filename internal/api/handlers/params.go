package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
	"github.com/andresuchdata/wasteflow/backend-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const defaultRangeDays = 365

// clock is swapped in tests.
var clock = time.Now

// parseRange reads from/to (YYYY-MM-DD). Missing bounds default to the last
// year ending today.
func parseRange(c *gin.Context) (time.Time, time.Time, error) {
	now := clock().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -defaultRangeDays)

	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q", raw)
		}
		to = t
		if strings.TrimSpace(c.Query("from")) == "" {
			from = to.AddDate(0, 0, -defaultRangeDays)
		}
	}
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q", raw)
		}
		from = t
	}
	if to.Before(from) {
		from, to = to, from
	}
	return from, to, nil
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return 0
	}
	return v
}

func queryFloat(c *gin.Context, key string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(c.Query(key)), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseRecommendOptions(c *gin.Context) service.RecommendOptions {
	return service.RecommendOptions{
		FrequencyDays:     queryInt(c, "frequency_days"),
		MinFrequencyDays:  queryInt(c, "min_frequency_days"),
		MaxFrequencyDays:  queryInt(c, "max_frequency_days"),
		TargetFill:        queryFloat(c, "target_fill"),
		MinFill:           queryFloat(c, "min_fill"),
		MaxFill:           queryFloat(c, "max_fill"),
		MaxContainers:     queryInt(c, "max_containers"),
		DensityKgPerLiter: queryFloat(c, "density"),
	}
}

// respondError maps sentinel errors onto status codes.
func respondError(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNoRecommendation):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(message)
	}
	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}
