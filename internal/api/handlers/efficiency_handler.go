package handlers

import (
	"net/http"

	"github.com/andresuchdata/wasteflow/backend-go/internal/recommend"
	"github.com/andresuchdata/wasteflow/backend-go/internal/service"
	"github.com/gin-gonic/gin"
)

type EfficiencyHandler struct {
	service *service.EfficiencyService
}

func NewEfficiencyHandler(service *service.EfficiencyService) *EfficiencyHandler {
	return &EfficiencyHandler{service: service}
}

func (h *EfficiencyHandler) params(c *gin.Context) recommend.EfficiencyParams {
	return recommend.EfficiencyParams{
		Liters:       queryInt(c, "liters"),
		ThresholdPct: queryInt(c, "threshold_pct"),
		Density:      queryFloat(c, "density"),
	}
}

func (h *EfficiencyHandler) GetSummary(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items, err := h.service.Summary(c.Request.Context(), from, to, h.params(c))
	if err != nil {
		respondError(c, err, "failed to fetch efficiency summary")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// GetSummaryAll reports every catalog size per customer; liters is ignored.
func (h *EfficiencyHandler) GetSummaryAll(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items, err := h.service.SummaryAll(c.Request.Context(), from, to, h.params(c))
	if err != nil {
		respondError(c, err, "failed to fetch efficiency summary")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *EfficiencyHandler) GetCustomer(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.service.Customer(c.Request.Context(), c.Param("entity"), from, to, h.params(c))
	if err != nil {
		respondError(c, err, "failed to fetch customer efficiency")
		return
	}
	c.JSON(http.StatusOK, summary)
}
