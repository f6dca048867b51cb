package handlers

import (
	"context"
	"net/http"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// AffiliateManager runs the affiliate program
type AffiliateManager interface {
	Register(ctx context.Context, externalID, name, email string) (*models.Affiliate, error)
	Get(ctx context.Context, affiliateID string) (*models.Affiliate, error)
	List(ctx context.Context, status models.AffiliateStatus, page, limit int) ([]*models.Affiliate, error)
	SetStatus(ctx context.Context, affiliateID string, status models.AffiliateStatus) (*models.Affiliate, error)
	RequestPayout(ctx context.Context, affiliateID string, amount float64, method string) (*models.Payout, error)
	CompletePayout(ctx context.Context, affiliateID, payoutID, transactionID string) (*models.Affiliate, error)
	FailPayout(ctx context.Context, affiliateID, payoutID, reason string) (*models.Affiliate, error)
	Stats(ctx context.Context, affiliateID string) (*services.AffiliateStats, error)
}

// AffiliateHandler handles affiliate program requests
type AffiliateHandler struct {
	affiliates AffiliateManager
}

// NewAffiliateHandler creates a new AffiliateHandler
func NewAffiliateHandler(affiliates AffiliateManager) *AffiliateHandler {
	return &AffiliateHandler{affiliates: affiliates}
}

// RegisterAffiliate handles POST /affiliates
func (h *AffiliateHandler) RegisterAffiliate(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
		Name   string `json:"name" binding:"required"`
		Email  string `json:"email" binding:"omitempty,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.affiliates.Register(c.Request.Context(), req.UserID, req.Name, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// ListAffiliates handles GET /affiliates?status=
func (h *AffiliateHandler) ListAffiliates(c *gin.Context) {
	page, limit := pagination(c)
	affiliates, err := h.affiliates.List(c.Request.Context(), models.AffiliateStatus(c.Query("status")), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affiliates": affiliates, "page": page, "limit": limit})
}

// GetAffiliate handles GET /affiliates/:id
func (h *AffiliateHandler) GetAffiliate(c *gin.Context) {
	a, err := h.affiliates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// GetAffiliateStats handles GET /affiliates/:id/stats
func (h *AffiliateHandler) GetAffiliateStats(c *gin.Context) {
	stats, err := h.affiliates.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// SetAffiliateStatus handles PUT /affiliates/:id/status
func (h *AffiliateHandler) SetAffiliateStatus(c *gin.Context) {
	var req struct {
		Status models.AffiliateStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.affiliates.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// RequestPayout handles POST /affiliates/:id/payouts
func (h *AffiliateHandler) RequestPayout(c *gin.Context) {
	var req struct {
		Amount float64 `json:"amount" binding:"required"`
		Method string  `json:"method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payout, err := h.affiliates.RequestPayout(c.Request.Context(), c.Param("id"), req.Amount, req.Method)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payout)
}

// CompletePayout handles POST /affiliates/:id/payouts/:payoutId/complete
func (h *AffiliateHandler) CompletePayout(c *gin.Context) {
	var req struct {
		TransactionID string `json:"transactionId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.affiliates.CompletePayout(c.Request.Context(), c.Param("id"), c.Param("payoutId"), req.TransactionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// FailPayout handles POST /affiliates/:id/payouts/:payoutId/fail
func (h *AffiliateHandler) FailPayout(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.affiliates.FailPayout(c.Request.Context(), c.Param("id"), c.Param("payoutId"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
