package services

import (
	"context"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
)

// eventRecorder appends analytics events on behalf of other services.
// A failed append is logged and never fails the operation that produced it.
type eventRecorder struct {
	events repositories.EventRepository
	logger *observability.Logger
	now    func() time.Time
}

func (r eventRecorder) record(ctx context.Context, eventType models.EventType, userID, campaignID string, data map[string]interface{}) {
	e := &models.AnalyticsEvent{
		Type:       eventType,
		UserID:     userID,
		CampaignID: campaignID,
		Data:       data,
		Source:     "system",
		Timestamp:  r.now(),
	}
	if err := r.events.Append(ctx, e); err != nil {
		r.logger.Error(observability.WithFields(ctx,
			observability.Field{Key: "event_type", Value: eventType},
			observability.Field{Key: "user_id", Value: userID},
		), "failed to append analytics event", err)
	}
}
