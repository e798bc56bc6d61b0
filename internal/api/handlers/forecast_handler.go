package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/wasteflow/backend-go/internal/pipeline"
	"github.com/andresuchdata/wasteflow/backend-go/internal/service"
	"github.com/gin-gonic/gin"
)

type ForecastHandler struct {
	service *service.ForecastService
	worker  *pipeline.Worker
}

// NewForecastHandler wires the handler. worker may be nil, in which case
// training runs in-line and run history is unavailable.
func NewForecastHandler(service *service.ForecastService, worker *pipeline.Worker) *ForecastHandler {
	return &ForecastHandler{service: service, worker: worker}
}

// Train retrains over the range. With async=true it returns the queued run
// immediately for polling.
func (h *ForecastHandler) Train(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	if h.worker == nil {
		result, err := h.service.Train(ctx, from, to)
		if err != nil {
			respondError(c, err, "failed to train model")
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": result})
		return
	}

	if async, _ := strconv.ParseBool(c.DefaultQuery("async", "false")); async {
		run, err := h.worker.Submit(ctx, from, to)
		if err != nil {
			respondError(c, err, "failed to queue training run")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"run": run})
		return
	}

	run, result, err := h.worker.Run(ctx, from, to)
	if err != nil {
		respondError(c, err, "failed to train model")
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "result": result})
}

func (h *ForecastHandler) GetRun(c *gin.Context) {
	if h.worker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is not enabled"})
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := h.worker.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to fetch training run")
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *ForecastHandler) ListRuns(c *gin.Context) {
	if h.worker == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []pipeline.TrainingRun{}})
		return
	}
	runs, err := h.worker.List(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		respondError(c, err, "failed to list training runs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *ForecastHandler) GetModel(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.ModelStatus())
}

func (h *ForecastHandler) RecommendAll(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	topN := 50
	if raw := strings.TrimSpace(c.Query("top_n")); raw != "" {
		topN = queryInt(c, "top_n")
	}

	recs, err := h.service.RecommendAll(c.Request.Context(), from, to, topN, parseRecommendOptions(c))
	if err != nil {
		respondError(c, err, "failed to compute recommendations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": recs, "total": len(recs)})
}

func (h *ForecastHandler) RecommendForEntity(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.service.RecommendForEntity(c.Request.Context(), from, to, c.Param("entity"), parseRecommendOptions(c))
	if err != nil {
		respondError(c, err, "failed to compute recommendation")
		return
	}
	c.JSON(http.StatusOK, rec)
}

type fillRequest struct {
	KgPerDay          float64 `json:"kg_per_day"`
	DensityKgPerLiter float64 `json:"density_kg_per_liter"`
	FrequencyDays     int     `json:"frequency_days" binding:"required"`
	SizeLiters        int     `json:"size_liters" binding:"required"`
	Count             int     `json:"count"`
}

// Fill computes the expected fill of a given setup.
func (h *ForecastHandler) Fill(c *gin.Context) {
	var req fillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	fill := h.service.Fill(req.KgPerDay, req.DensityKgPerLiter, req.FrequencyDays, req.SizeLiters, req.Count)
	c.JSON(http.StatusOK, gin.H{
		"fill_fraction": fill,
		"fill_percent":  fill * 100,
	})
}
