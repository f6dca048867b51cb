package handlers

import (
	"context"
	"net/http"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// ExperimentManager assigns variants and manages experiment configuration
type ExperimentManager interface {
	List(ctx context.Context) ([]*models.Experiment, error)
	SetActive(ctx context.Context, name string, active bool) error
	Assign(ctx context.Context, userID, testName string) (models.ExperimentVariant, error)
	Optimize(ctx context.Context) ([]services.OptimizationOutcome, error)
}

// ExperimentHandler handles A/B experiment requests
type ExperimentHandler struct {
	experiments ExperimentManager
}

// NewExperimentHandler creates a new ExperimentHandler
func NewExperimentHandler(experiments ExperimentManager) *ExperimentHandler {
	return &ExperimentHandler{experiments: experiments}
}

// ListExperiments handles GET /experiments
func (h *ExperimentHandler) ListExperiments(c *gin.Context) {
	list, err := h.experiments.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiments": list})
}

// SetExperimentActive handles PUT /experiments/:name/active
func (h *ExperimentHandler) SetExperimentActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.experiments.SetActive(c.Request.Context(), c.Param("name"), *req.Active); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "active": *req.Active})
}

// AssignVariant handles GET /experiments/:name/assignment?userId=
func (h *ExperimentHandler) AssignVariant(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	variant, err := h.experiments.Assign(c.Request.Context(), userID, c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, variant)
}

// OptimizeExperiments handles POST /experiments/optimize
func (h *ExperimentHandler) OptimizeExperiments(c *gin.Context) {
	outcomes, err := h.experiments.Optimize(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}
