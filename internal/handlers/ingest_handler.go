package handlers

import (
	"context"
	"net/http"

	"github.com/ArowuTest/telegram-marketing-backend/internal/services"
	"github.com/gin-gonic/gin"
)

const maxIngestBatch = 500

// EventIngester applies inbound events
type EventIngester interface {
	Handle(ctx context.Context, env services.Envelope) error
}

// IngestHandler receives events from the bot and the shop over HTTP
type IngestHandler struct {
	ingest EventIngester
}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler(ingest EventIngester) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

// IngestEvent handles POST /events
func (h *IngestHandler) IngestEvent(c *gin.Context) {
	var env services.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ingest.Handle(c.Request.Context(), env); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type batchResult struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// IngestBatch handles POST /events/batch. Every event is applied; failures are
// reported per index.
func (h *IngestHandler) IngestBatch(c *gin.Context) {
	var req struct {
		Events []services.Envelope `json:"events" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Events) > maxIngestBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many events in one batch"})
		return
	}

	failed := []batchResult{}
	for i, env := range req.Events {
		if err := h.ingest.Handle(c.Request.Context(), env); err != nil {
			if statusFor(err) == http.StatusInternalServerError {
				_ = c.Error(err)
			}
			failed = append(failed, batchResult{Index: i, Error: err.Error()})
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"accepted": len(req.Events) - len(failed),
		"failed":   failed,
	})
}
