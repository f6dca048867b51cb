package handlers

import (
	"context"
	"net/http"

	"github.com/ArowuTest/telegram-marketing-backend/internal/middleware"
	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// CampaignManager is the campaign lifecycle used by the admin API
type CampaignManager interface {
	Create(ctx context.Context, req services.CampaignRequest, createdBy string) (*models.Campaign, error)
	Update(ctx context.Context, campaignID string, req services.CampaignRequest) (*models.Campaign, error)
	Get(ctx context.Context, campaignID string) (*models.Campaign, error)
	List(ctx context.Context, status models.CampaignStatus, page, limit int) ([]*models.Campaign, error)
	Schedule(ctx context.Context, campaignID string, sched models.Scheduling) (*models.Campaign, error)
	Pause(ctx context.Context, campaignID string) (*models.Campaign, error)
	Resume(ctx context.Context, campaignID string) (*models.Campaign, error)
	Cancel(ctx context.Context, campaignID string) (*models.Campaign, error)
	SendNow(ctx context.Context, campaignID string) error
	Stats(ctx context.Context, campaignID string) (*services.CampaignStats, error)
}

// CampaignHandler handles campaign administration requests
type CampaignHandler struct {
	campaigns CampaignManager
}

// NewCampaignHandler creates a new CampaignHandler
func NewCampaignHandler(campaigns CampaignManager) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns}
}

// CreateCampaign handles POST /campaigns
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req services.CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	campaign, err := h.campaigns.Create(c.Request.Context(), req, c.GetString(middleware.ContextAdminEmail))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

// UpdateCampaign handles PUT /campaigns/:id
func (h *CampaignHandler) UpdateCampaign(c *gin.Context) {
	var req services.CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	campaign, err := h.campaigns.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// GetCampaign handles GET /campaigns/:id
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	campaign, err := h.campaigns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// ListCampaigns handles GET /campaigns?status=&page=&limit=
func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	page, limit := pagination(c)
	campaigns, err := h.campaigns.List(c.Request.Context(), models.CampaignStatus(c.Query("status")), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns, "page": page, "limit": limit})
}

// ScheduleCampaign handles POST /campaigns/:id/schedule
func (h *CampaignHandler) ScheduleCampaign(c *gin.Context) {
	var sched models.Scheduling
	if err := c.ShouldBindJSON(&sched); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	campaign, err := h.campaigns.Schedule(c.Request.Context(), c.Param("id"), sched)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// PauseCampaign handles POST /campaigns/:id/pause
func (h *CampaignHandler) PauseCampaign(c *gin.Context) {
	h.transition(c, h.campaigns.Pause)
}

// ResumeCampaign handles POST /campaigns/:id/resume
func (h *CampaignHandler) ResumeCampaign(c *gin.Context) {
	h.transition(c, h.campaigns.Resume)
}

// CancelCampaign handles POST /campaigns/:id/cancel
func (h *CampaignHandler) CancelCampaign(c *gin.Context) {
	h.transition(c, h.campaigns.Cancel)
}

func (h *CampaignHandler) transition(c *gin.Context, fn func(context.Context, string) (*models.Campaign, error)) {
	campaign, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// SendCampaign handles POST /campaigns/:id/send. Delivery continues in the background.
func (h *CampaignHandler) SendCampaign(c *gin.Context) {
	if err := h.campaigns.SendNow(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Campaign delivery started"})
}

// GetCampaignStats handles GET /campaigns/:id/stats
func (h *CampaignHandler) GetCampaignStats(c *gin.Context) {
	stats, err := h.campaigns.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
