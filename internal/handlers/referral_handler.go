package handlers

import (
	"context"
	"net/http"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReferralManager reads and cancels user referrals
type ReferralManager interface {
	Stats(ctx context.Context, referrerUserID string) (*models.ReferralStats, []*models.Referral, error)
	Cancel(ctx context.Context, id primitive.ObjectID, reason string) (*models.Referral, error)
}

// ReferralHandler handles referral program requests
type ReferralHandler struct {
	referrals ReferralManager
}

// NewReferralHandler creates a new ReferralHandler
func NewReferralHandler(referrals ReferralManager) *ReferralHandler {
	return &ReferralHandler{referrals: referrals}
}

// GetUserReferrals handles GET /users/:id/referrals
func (h *ReferralHandler) GetUserReferrals(c *gin.Context) {
	stats, referrals, err := h.referrals.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "referrals": referrals})
}

// CancelReferral handles POST /referrals/:id/cancel
func (h *ReferralHandler) CancelReferral(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	referral, err := h.referrals.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, referral)
}
