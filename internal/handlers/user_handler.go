package handlers

import (
	"context"
	"net/http"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/gin-gonic/gin"
)

// SubscriberManager reads and manages bot subscribers
type SubscriberManager interface {
	Get(ctx context.Context, externalID string) (*models.User, error)
	List(ctx context.Context, page, limit int) ([]*models.User, int64, error)
	Unsubscribe(ctx context.Context, externalID string) (*models.User, error)
	SetPreference(ctx context.Context, externalID, key string, enabled bool) (*models.User, error)
	Erase(ctx context.Context, externalID string) error
}

// UserHandler handles subscriber administration requests
type UserHandler struct {
	subscribers SubscriberManager
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(subscribers SubscriberManager) *UserHandler {
	return &UserHandler{subscribers: subscribers}
}

// GetUser handles GET /users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.subscribers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetAllUsers handles GET /users
func (h *UserHandler) GetAllUsers(c *gin.Context) {
	page, limit := pagination(c)
	users, total, err := h.subscribers.List(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": total, "page": page, "limit": limit})
}

// OptOut handles POST /users/:id/opt-out
func (h *UserHandler) OptOut(c *gin.Context) {
	user, err := h.subscribers.Unsubscribe(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// SetPreference handles PUT /users/:id/preferences/:key
func (h *UserHandler) SetPreference(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.subscribers.SetPreference(c.Request.Context(), c.Param("id"), c.Param("key"), *req.Enabled)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// EraseUser handles DELETE /users/:id, removing the subscriber and their history
func (h *UserHandler) EraseUser(c *gin.Context) {
	if err := h.subscribers.Erase(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}
