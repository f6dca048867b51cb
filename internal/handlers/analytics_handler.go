package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/scheduler"
	"github.com/ArowuTest/telegram-marketing-backend/internal/services"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AnalyticsReporter builds the reporting views
type AnalyticsReporter interface {
	Track(ctx context.Context, e *models.AnalyticsEvent) error
	Dashboard(ctx context.Context) (*services.Dashboard, error)
	CampaignPerformance(ctx context.Context, limit int) ([]*services.CampaignStats, error)
	Funnel(ctx context.Context) (*services.FunnelReport, error)
	Experiments(ctx context.Context) (*services.ExperimentReport, error)
}

// JobTrigger runs a named scheduled job on demand
type JobTrigger interface {
	Trigger(ctx context.Context, name string) error
}

// AnalyticsHandler handles analytics and reporting requests
type AnalyticsHandler struct {
	analytics AnalyticsReporter
	jobs      JobTrigger
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(analytics AnalyticsReporter, jobs JobTrigger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, jobs: jobs}
}

// TrackEvent handles POST /analytics/events
func (h *AnalyticsHandler) TrackEvent(c *gin.Context) {
	var event models.AnalyticsEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event.ID = primitive.NilObjectID
	if err := h.analytics.Track(c.Request.Context(), &event); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// GetDashboard handles GET /analytics/dashboard
func (h *AnalyticsHandler) GetDashboard(c *gin.Context) {
	dash, err := h.analytics.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

// GetCampaignPerformance handles GET /analytics/campaigns?limit=
func (h *AnalyticsHandler) GetCampaignPerformance(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	stats, err := h.analytics.CampaignPerformance(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": stats})
}

// GetFunnel handles GET /analytics/funnel
func (h *AnalyticsHandler) GetFunnel(c *gin.Context) {
	report, err := h.analytics.Funnel(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetExperimentReport handles GET /analytics/experiments
func (h *AnalyticsHandler) GetExperimentReport(c *gin.Context) {
	report, err := h.analytics.Experiments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// RunJob handles POST /jobs/:name/run
func (h *AnalyticsHandler) RunJob(c *gin.Context) {
	name := c.Param("name")
	if err := h.jobs.Trigger(c.Request.Context(), name); err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job " + name + " completed"})
}
