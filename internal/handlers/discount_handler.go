package handlers

import (
	"context"
	"net/http"

	"github.com/ArowuTest/telegram-marketing-backend/internal/discount"
	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/services"
	"github.com/gin-gonic/gin"
)

const maxBatchSize = 1000

// DiscountManager issues and checks discount codes
type DiscountManager interface {
	Create(ctx context.Context, opts discount.Options) (*models.DiscountCode, error)
	CreatePersonalized(ctx context.Context, userID string, opts discount.Options) (*models.DiscountCode, error)
	CreateTimeLimited(ctx context.Context, opts discount.Options) (*models.DiscountCode, error)
	CreateBatch(ctx context.Context, count int, opts discount.Options) ([]*models.DiscountCode, error)
	Lookup(ctx context.Context, code string) (*models.DiscountCode, error)
	Check(ctx context.Context, code string, orderValue float64) (*services.Redemption, error)
}

// DiscountHandler handles discount code requests
type DiscountHandler struct {
	discounts DiscountManager
}

// NewDiscountHandler creates a new DiscountHandler
func NewDiscountHandler(discounts DiscountManager) *DiscountHandler {
	return &DiscountHandler{discounts: discounts}
}

type discountRequest struct {
	Kind          string   `json:"kind"` // "", "personalized" or "time_limited"
	UserID        string   `json:"userId"`
	Count         int      `json:"count"`
	Percentage    *float64 `json:"percentage"`
	FixedAmount   *float64 `json:"fixedAmount"`
	MinOrderValue float64  `json:"minOrderValue"`
	MaxUses       *int     `json:"maxUses"`
	ExpiryDays    int      `json:"expiryDays"`
	Segments      []string `json:"segments"`
	CampaignID    string   `json:"campaignId"`
	Prefix        string   `json:"prefix"`
	Length        int      `json:"length"`
}

func (r discountRequest) options() discount.Options {
	return discount.Options{
		Percentage:    r.Percentage,
		FixedAmount:   r.FixedAmount,
		MinOrderValue: r.MinOrderValue,
		MaxUses:       r.MaxUses,
		ExpiryDays:    r.ExpiryDays,
		Segments:      r.Segments,
		CampaignID:    r.CampaignID,
		Code:          discount.CodeOptions{Prefix: r.Prefix, Length: r.Length},
	}
}

// CreateDiscount handles POST /discounts
func (h *DiscountHandler) CreateDiscount(c *gin.Context) {
	var req discountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var (
		dc  *models.DiscountCode
		err error
	)
	switch req.Kind {
	case "":
		dc, err = h.discounts.Create(ctx, req.options())
	case "personalized":
		if req.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required for personalized codes"})
			return
		}
		dc, err = h.discounts.CreatePersonalized(ctx, req.UserID, req.options())
	case "time_limited":
		dc, err = h.discounts.CreateTimeLimited(ctx, req.options())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown discount kind"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dc)
}

// CreateDiscountBatch handles POST /discounts/batch
func (h *DiscountHandler) CreateDiscountBatch(c *gin.Context) {
	var req discountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Count < 1 || req.Count > maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be between 1 and 1000"})
		return
	}
	codes, err := h.discounts.CreateBatch(c.Request.Context(), req.Count, req.options())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"codes": codes, "count": len(codes)})
}

// GetDiscount handles GET /discounts/:code
func (h *DiscountHandler) GetDiscount(c *gin.Context) {
	dc, err := h.discounts.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dc)
}

// CheckDiscount handles POST /discounts/check, pricing an order without redeeming
func (h *DiscountHandler) CheckDiscount(c *gin.Context) {
	var req struct {
		Code       string  `json:"code" binding:"required"`
		OrderValue float64 `json:"orderValue" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.discounts.Check(c.Request.Context(), req.Code, req.OrderValue)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
