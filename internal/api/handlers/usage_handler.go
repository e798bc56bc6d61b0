package handlers

import (
	"net/http"

	"github.com/andresuchdata/wasteflow/backend-go/internal/service"
	"github.com/gin-gonic/gin"
)

type UsageHandler struct {
	service *service.UsageService
}

func NewUsageHandler(service *service.UsageService) *UsageHandler {
	return &UsageHandler{service: service}
}

func (h *UsageHandler) GetCustomers(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	overview, err := h.service.Customers(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err, "failed to fetch customer usage")
		return
	}
	c.JSON(http.StatusOK, overview)
}

// GetCustomerDaily accepts repeated stream parameters to narrow the series.
func (h *UsageHandler) GetCustomerDaily(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	series, err := h.service.CustomerDaily(c.Request.Context(), c.Param("entity"), c.QueryArray("stream"), from, to)
	if err != nil {
		respondError(c, err, "failed to fetch customer series")
		return
	}
	c.JSON(http.StatusOK, series)
}
