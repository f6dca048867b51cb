package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/config"
	"github.com/ArowuTest/telegram-marketing-backend/internal/discount"
	"github.com/ArowuTest/telegram-marketing-backend/internal/experiments"
	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"github.com/ArowuTest/telegram-marketing-backend/internal/scheduler"
	"github.com/google/uuid"
)

const (
	maxMessageLength   = 4096
	welcomeExpiryDays  = 7
	welcomeFallbackMsg = "Welcome to Digi-King!"
)

// RecurringScheduler installs and removes keyed recurring triggers
type RecurringScheduler interface {
	ScheduleRecurring(key, spec string, run func(ctx context.Context) error) error
	Unschedule(key string) bool
}

// DiscountRequest describes the discount to embed in a campaign
type DiscountRequest struct {
	Percentage    *float64 `json:"percentage,omitempty"`
	FixedAmount   *float64 `json:"fixedAmount,omitempty"`
	MinOrderValue float64  `json:"minOrderValue"`
	MaxUses       *int     `json:"maxUses,omitempty"`
	ExpiryDays    int      `json:"expiryDays"`
	Prefix        string   `json:"prefix,omitempty"`
}

// CampaignRequest holds the editable fields of a campaign
type CampaignRequest struct {
	Name           string              `json:"name"`
	Description    string              `json:"description"`
	Type           models.CampaignType `json:"type"`
	TargetSegments []string            `json:"targetSegments"`
	TargetUserIDs  []string            `json:"targetUserIds"`
	Message        models.Message      `json:"message"`
	Discount       *DiscountRequest    `json:"discount,omitempty"`
}

// CampaignStats is a campaign's analytics with derived rates
type CampaignStats struct {
	CampaignID     string                   `json:"campaignId"`
	Name           string                   `json:"name"`
	Status         models.CampaignStatus    `json:"status"`
	Analytics      models.CampaignAnalytics `json:"analytics"`
	DeliveryRate   float64                  `json:"deliveryRate"`
	CTR            float64                  `json:"ctr"`
	ConversionRate float64                  `json:"conversionRate"`
	CanUseDiscount bool                     `json:"canUseDiscount"`
	LastRunAt      *time.Time               `json:"lastRunAt,omitempty"`
	NextRunAt      *time.Time               `json:"nextRunAt,omitempty"`
}

// CampaignService manages the campaign lifecycle. Delivery itself is left to the Dispatcher.
type CampaignService struct {
	campaigns   repositories.CampaignRepository
	dispatcher  *Dispatcher
	experiments *ExperimentService
	generator   *discount.Generator
	recurring   RecurringScheduler
	welcome     config.WelcomeConfig
	timezone    string
	retention   time.Duration
	recorder    eventRecorder
	logger      *observability.Logger
	now         func() time.Time
}

// NewCampaignService creates a new CampaignService
func NewCampaignService(
	campaigns repositories.CampaignRepository,
	events repositories.EventRepository,
	dispatcher *Dispatcher,
	experimentService *ExperimentService,
	generator *discount.Generator,
	recurring RecurringScheduler,
	cfg *config.Config,
	logger *observability.Logger,
) *CampaignService {
	return &CampaignService{
		campaigns:   campaigns,
		dispatcher:  dispatcher,
		experiments: experimentService,
		generator:   generator,
		recurring:   recurring,
		welcome:     cfg.Welcome,
		timezone:    cfg.Scheduler.Timezone,
		retention:   time.Duration(cfg.Analytics.CompletedCampaignRetentionDays) * 24 * time.Hour,
		recorder:    eventRecorder{events: events, logger: logger, now: time.Now},
		logger:      logger,
		now:         time.Now,
	}
}

func (s *CampaignService) build(c *models.Campaign, req CampaignRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCampaign)
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCampaign, req.Type)
	}
	if strings.TrimSpace(req.Message.Text) == "" {
		return fmt.Errorf("%w: message text is required", ErrInvalidCampaign)
	}
	if len(req.Message.Text) > maxMessageLength {
		return fmt.Errorf("%w: message text exceeds %d characters", ErrInvalidCampaign, maxMessageLength)
	}
	for _, b := range req.Message.Buttons {
		if b.Text == "" || b.URL == "" {
			return fmt.Errorf("%w: buttons need text and url", ErrInvalidCampaign)
		}
	}

	c.Name = name
	c.Description = req.Description
	c.Type = req.Type
	c.TargetSegments = req.TargetSegments
	if len(c.TargetSegments) == 0 {
		c.TargetSegments = []string{models.SegmentAll}
	}
	c.TargetUserIDs = req.TargetUserIDs
	c.Message = req.Message
	c.DiscountCode = nil

	if req.Discount != nil {
		dc, err := s.generator.Generate(discount.Options{
			Percentage:    req.Discount.Percentage,
			FixedAmount:   req.Discount.FixedAmount,
			MinOrderValue: req.Discount.MinOrderValue,
			MaxUses:       req.Discount.MaxUses,
			ExpiryDays:    req.Discount.ExpiryDays,
			Segments:      c.TargetSegments,
			CampaignID:    c.CampaignID,
			Code:          discount.CodeOptions{Prefix: req.Discount.Prefix},
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCampaign, err)
		}
		c.DiscountCode = dc
	}
	return nil
}

// Create stores a new draft campaign
func (s *CampaignService) Create(ctx context.Context, req CampaignRequest, createdBy string) (*models.Campaign, error) {
	now := s.now()
	c := &models.Campaign{
		CampaignID: uuid.NewString(),
		Status:     models.CampaignStatusDraft,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.build(c, req); err != nil {
		return nil, err
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	s.logger.Info(observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: c.CampaignID}), "campaign created")
	return c, nil
}

// Update replaces the editable fields of a draft
func (s *CampaignService) Update(ctx context.Context, campaignID string, req CampaignRequest) (*models.Campaign, error) {
	c, err := s.campaigns.FindByCampaignID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CampaignStatusDraft {
		return nil, ErrCampaignNotEditable
	}
	if err := s.build(c, req); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now()
	if err := s.campaigns.UpdateDraft(ctx, c); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, ErrCampaignNotEditable
		}
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}
	return c, nil
}

// Get returns a campaign
func (s *CampaignService) Get(ctx context.Context, campaignID string) (*models.Campaign, error) {
	return s.campaigns.FindByCampaignID(ctx, campaignID)
}

// List returns campaigns, optionally filtered by status
func (s *CampaignService) List(ctx context.Context, status models.CampaignStatus, page, limit int) ([]*models.Campaign, error) {
	return s.campaigns.FindAll(ctx, status, page, limit)
}

// Schedule sets a one-time send or a recurrence and moves the campaign to scheduled
func (s *CampaignService) Schedule(ctx context.Context, campaignID string, sched models.Scheduling) (*models.Campaign, error) {
	recurring := sched.Recurring != nil && sched.Recurring.Enabled
	if recurring == (sched.SendAt != nil) {
		return nil, fmt.Errorf("%w: set either sendAt or an enabled recurrence", scheduler.ErrInvalidRecurrence)
	}
	var spec string
	if recurring {
		var err error
		if spec, err = scheduler.RecurrenceSpec(*sched.Recurring, s.zone(sched)); err != nil {
			return nil, err
		}
	}

	if err := s.campaigns.SetScheduling(ctx, campaignID, sched); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, ErrCampaignNotEditable
		}
		return nil, fmt.Errorf("failed to store scheduling: %w", err)
	}
	c, err := s.transition(ctx, campaignID, models.CampaignStatusScheduled,
		models.CampaignStatusDraft, models.CampaignStatusPaused, models.CampaignStatusScheduled)
	if err != nil {
		return nil, err
	}

	if recurring {
		if err := s.installTrigger(c.CampaignID, spec); err != nil {
			return nil, err
		}
	} else {
		s.recurring.Unschedule(c.CampaignID)
	}
	s.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: c.CampaignID},
		observability.Field{Key: "recurring", Value: recurring},
	), "campaign scheduled")
	return c, nil
}

// Pause stops a scheduled or running campaign from firing
func (s *CampaignService) Pause(ctx context.Context, campaignID string) (*models.Campaign, error) {
	return s.transition(ctx, campaignID, models.CampaignStatusPaused,
		models.CampaignStatusScheduled, models.CampaignStatusActive)
}

// Resume puts a paused campaign back on its schedule
func (s *CampaignService) Resume(ctx context.Context, campaignID string) (*models.Campaign, error) {
	c, err := s.transition(ctx, campaignID, models.CampaignStatusScheduled, models.CampaignStatusPaused)
	if err != nil {
		return nil, err
	}
	if c.IsRecurring() {
		spec, err := scheduler.RecurrenceSpec(*c.Scheduling.Recurring, s.zone(c.Scheduling))
		if err != nil {
			return nil, err
		}
		if err := s.installTrigger(c.CampaignID, spec); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Cancel ends a campaign for good
func (s *CampaignService) Cancel(ctx context.Context, campaignID string) (*models.Campaign, error) {
	c, err := s.transition(ctx, campaignID, models.CampaignStatusCancelled,
		models.CampaignStatusDraft, models.CampaignStatusScheduled, models.CampaignStatusActive, models.CampaignStatusPaused)
	if err != nil {
		return nil, err
	}
	s.recurring.Unschedule(campaignID)
	return c, nil
}

// SendNow delivers a campaign immediately instead of waiting for its schedule
func (s *CampaignService) SendNow(ctx context.Context, campaignID string) error {
	if _, err := s.campaigns.FindByCampaignID(ctx, campaignID); err != nil {
		return err
	}
	return s.dispatcher.SendNow(ctx, campaignID)
}

// Stats returns a campaign's counters with derived rates
func (s *CampaignService) Stats(ctx context.Context, campaignID string) (*CampaignStats, error) {
	c, err := s.campaigns.FindByCampaignID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	stats := statsOf(c, s.now())
	if next, ok := s.nextRun(campaignID); ok {
		stats.NextRunAt = &next
	}
	return stats, nil
}

func (s *CampaignService) nextRun(campaignID string) (time.Time, bool) {
	if n, ok := s.recurring.(interface {
		Next(key string) (time.Time, bool)
	}); ok {
		return n.Next(campaignID)
	}
	return time.Time{}, false
}

func statsOf(c *models.Campaign, now time.Time) *CampaignStats {
	a := c.Analytics
	return &CampaignStats{
		CampaignID:     c.CampaignID,
		Name:           c.Name,
		Status:         c.Status,
		Analytics:      a,
		DeliveryRate:   experiments.Rate(a.Delivered, a.Sent+a.Failed),
		CTR:            experiments.Rate(a.Clicks, a.Delivered),
		ConversionRate: experiments.Rate(a.Conversions, a.Clicks),
		CanUseDiscount: c.CanUseDiscount(now),
		LastRunAt:      c.LastRunAt,
	}
}

// TrackClick counts a button click on a delivered campaign
func (s *CampaignService) TrackClick(ctx context.Context, campaignID, userID, button string) error {
	if _, err := s.campaigns.FindByCampaignID(ctx, campaignID); err != nil {
		return err
	}
	if err := s.campaigns.IncrementAnalytics(ctx, campaignID, models.CampaignAnalytics{Clicks: 1}); err != nil {
		return fmt.Errorf("failed to count click: %w", err)
	}
	s.recorder.record(ctx, models.EventButtonClick, userID, campaignID, map[string]interface{}{"button": button})
	s.recorder.record(ctx, models.EventFunnelProgression, userID, campaignID, map[string]interface{}{"stage": models.StageInterest})
	return nil
}

// CreateWelcome schedules the personal welcome message for a new subscriber.
// The greeting comes from the welcome experiment and carries a single-use code.
func (s *CampaignService) CreateWelcome(ctx context.Context, user *models.User) (*models.Campaign, error) {
	if !s.welcome.Enabled {
		return nil, nil
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "user_id", Value: user.ExternalID})

	greeting := welcomeFallbackMsg
	variant, err := s.experiments.AssignAndView(ctx, user.ExternalID, WelcomeMessageTest)
	if err != nil {
		s.logger.Warn(ctx, fmt.Sprintf("welcome experiment unavailable, using default greeting: %v", err))
	} else if variant.Message != "" {
		greeting = variant.Message
	}

	now := s.now()
	campaignID := uuid.NewString()
	pct := s.welcome.Percentage
	maxUses := 1
	dc, err := s.generator.Generate(discount.Options{
		Percentage: &pct,
		MaxUses:    &maxUses,
		ExpiryDays: welcomeExpiryDays,
		CampaignID: campaignID,
		UserID:     user.ExternalID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate welcome discount: %w", err)
	}
	if dc.Code, err = s.generator.PersonalizedCode(*user, discount.CodeOptions{}); err != nil {
		return nil, fmt.Errorf("failed to generate welcome code: %w", err)
	}

	sendAt := now.Add(s.welcome.Delay)
	c := &models.Campaign{
		CampaignID:     campaignID,
		Name:           "Welcome " + user.ExternalID,
		Type:           models.CampaignTypePersonalized,
		Status:         models.CampaignStatusScheduled,
		TargetSegments: []string{models.SegmentAll},
		TargetUserIDs:  []string{user.ExternalID},
		Message: models.Message{
			Text: fmt.Sprintf("%s\n\nUse code <b>%s</b> for %.0f%% off your first purchase. Valid for %d days.",
				greeting, dc.Code, pct, welcomeExpiryDays),
			ParseMode: "HTML",
		},
		DiscountCode: dc,
		Scheduling:   models.Scheduling{SendAt: &sendAt},
		CreatedBy:    "system",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create welcome campaign: %w", err)
	}
	s.logger.Info(observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: c.CampaignID}), "welcome campaign scheduled")
	return c, nil
}

// RestoreRecurring reinstalls the triggers of scheduled recurring campaigns after a restart
func (s *CampaignService) RestoreRecurring(ctx context.Context) (int, error) {
	campaigns, err := s.campaigns.FindRecurring(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load recurring campaigns: %w", err)
	}
	restored := 0
	for _, c := range campaigns {
		spec, err := scheduler.RecurrenceSpec(*c.Scheduling.Recurring, s.zone(c.Scheduling))
		if err != nil {
			s.logger.Error(observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: c.CampaignID}),
				"stored recurrence is invalid", err)
			continue
		}
		if err := s.installTrigger(c.CampaignID, spec); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

// PurgeCompleted deletes completed campaigns that finished before the retention window
func (s *CampaignService) PurgeCompleted(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	n, err := s.campaigns.DeleteCompletedBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed campaigns: %w", err)
	}
	return n, nil
}

func (s *CampaignService) installTrigger(campaignID, spec string) error {
	return s.recurring.ScheduleRecurring(campaignID, spec, func(ctx context.Context) error {
		return s.dispatcher.RunRecurring(ctx, campaignID)
	})
}

func (s *CampaignService) zone(sched models.Scheduling) string {
	if sched.Timezone != "" {
		return sched.Timezone
	}
	return s.timezone
}

func (s *CampaignService) transition(ctx context.Context, campaignID string, to models.CampaignStatus, from ...models.CampaignStatus) (*models.Campaign, error) {
	c, err := s.campaigns.Transition(ctx, campaignID, repositories.CampaignTransition{
		From: from,
		To:   to,
		At:   s.now(),
	})
	if errors.Is(err, repositories.ErrConflict) {
		if _, ferr := s.campaigns.FindByCampaignID(ctx, campaignID); ferr != nil {
			return nil, ferr
		}
		return nil, fmt.Errorf("%w: cannot move to %s", ErrCampaignNotSendable, to)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
