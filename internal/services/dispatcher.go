package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/config"
	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"github.com/ArowuTest/telegram-marketing-backend/pkg/telegram"
)

const finalizeTimeout = 30 * time.Second

// DeliveryResult summarises one execution of a campaign
type DeliveryResult struct {
	CampaignID string        `json:"campaignId"`
	Audience   int           `json:"audience"`
	Sent       int           `json:"sent"`
	Failed     int           `json:"failed"`
	Blocked    int           `json:"blocked"`
	Duration   time.Duration `json:"duration"`
}

// FilterAudience keeps users that may receive a campaign of type t
func FilterAudience(users []*models.User, t models.CampaignType) []*models.User {
	out := make([]*models.User, 0, len(users))
	for _, u := range users {
		if u.Deliverable() && u.AllowsCampaign(t) {
			out = append(out, u)
		}
	}
	return out
}

// Dispatcher executes campaigns. A claimed campaign is delivered on its own
// goroutine so the caller, usually a scheduler tick, returns immediately.
type Dispatcher struct {
	campaigns repositories.CampaignRepository
	users     repositories.UserRepository
	events    repositories.EventRepository
	gateway   telegram.Gateway
	recorder  eventRecorder
	logger    *observability.Logger

	messageDelay    time.Duration
	deliveryTimeout time.Duration
	maxFailures     int
	admins          []string

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(
	campaigns repositories.CampaignRepository,
	users repositories.UserRepository,
	events repositories.EventRepository,
	gateway telegram.Gateway,
	cfg *config.Config,
	logger *observability.Logger,
) *Dispatcher {
	base, cancel := context.WithCancel(context.Background())
	maxFailures := cfg.Delivery.MaxConsecutiveFailures
	if maxFailures <= 0 {
		maxFailures = 3
	}
	timeout := cfg.Telegram.DeliveryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		campaigns:       campaigns,
		users:           users,
		events:          events,
		gateway:         gateway,
		recorder:        eventRecorder{events: events, logger: logger, now: time.Now},
		logger:          logger,
		messageDelay:    cfg.Telegram.MessageDelay,
		deliveryTimeout: timeout,
		maxFailures:     maxFailures,
		admins:          cfg.Admin.TelegramIDs,
		base:            base,
		cancel:          cancel,
		now:             time.Now,
	}
}

// Dispatch claims a scheduled campaign and starts delivering it
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID string) error {
	return d.start(ctx, campaignID, models.CampaignStatusScheduled)
}

// SendNow starts delivering a draft, scheduled or paused campaign immediately
func (d *Dispatcher) SendNow(ctx context.Context, campaignID string) error {
	return d.start(ctx, campaignID,
		models.CampaignStatusDraft, models.CampaignStatusScheduled, models.CampaignStatusPaused)
}

// DispatchDue starts every one-shot campaign whose send time has arrived
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	due, err := d.campaigns.FindDue(ctx, d.now())
	if err != nil {
		return 0, fmt.Errorf("failed to find due campaigns: %w", err)
	}
	started := 0
	for _, c := range due {
		err := d.Dispatch(ctx, c.CampaignID)
		if errors.Is(err, ErrCampaignNotSendable) {
			continue
		}
		if err != nil {
			return started, err
		}
		started++
	}
	return started, nil
}

// RunRecurring is the body of a recurring trigger. The campaign is re-read on
// every firing and nothing happens unless it is still scheduled.
func (d *Dispatcher) RunRecurring(ctx context.Context, campaignID string) error {
	c, err := d.campaigns.FindByCampaignID(ctx, campaignID)
	if err != nil {
		return err
	}
	if c.Status != models.CampaignStatusScheduled {
		d.logger.Debug(observability.WithFields(ctx,
			observability.Field{Key: "campaign_id", Value: campaignID},
			observability.Field{Key: "status", Value: c.Status},
		), "recurring campaign not scheduled, skipping")
		return nil
	}
	err = d.Dispatch(ctx, campaignID)
	if errors.Is(err, ErrCampaignNotSendable) {
		return nil
	}
	return err
}

// Wait blocks until every running delivery has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops running deliveries and waits for them to wind down. Interrupted
// campaigns go back to scheduled; a one-shot campaign resumes on the next
// dispatch tick without messaging the users it already reached.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) start(ctx context.Context, campaignID string, from ...models.CampaignStatus) error {
	now := d.now()
	c, err := d.campaigns.Transition(ctx, campaignID, repositories.CampaignTransition{
		From:      from,
		To:        models.CampaignStatusActive,
		At:        now,
		StartedAt: &now,
	})
	if errors.Is(err, repositories.ErrConflict) {
		return ErrCampaignNotSendable
	}
	if err != nil {
		return fmt.Errorf("failed to claim campaign: %w", err)
	}

	runCtx := observability.WithFields(d.base, observability.Field{Key: "campaign_id", Value: c.CampaignID})
	d.logger.Info(runCtx, "campaign delivery started")
	d.wg.Add(1)
	go d.run(runCtx, c)
	return nil
}

func (d *Dispatcher) run(ctx context.Context, c *models.Campaign) {
	defer d.wg.Done()
	result := &DeliveryResult{CampaignID: c.CampaignID}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.abort(ctx, c, result, fmt.Errorf("panic during delivery: %v", r))
		}
	}()

	if err := d.deliver(ctx, c, result); err != nil {
		if d.base.Err() != nil && errors.Is(err, context.Canceled) {
			d.suspend(ctx, c, result)
			return
		}
		d.abort(ctx, c, result, err)
		return
	}
	result.Duration = time.Since(start)
	d.finish(ctx, c, result)
}

func (d *Dispatcher) deliver(ctx context.Context, c *models.Campaign, result *DeliveryResult) error {
	var segments []string
	if !c.TargetsAll() {
		segments = c.TargetSegments
	}
	users, err := d.users.FindAudience(ctx, segments, c.TargetUserIDs)
	if err != nil {
		return fmt.Errorf("failed to resolve audience: %w", err)
	}
	audience := FilterAudience(users, c.Type)
	if !c.IsRecurring() {
		if audience, err = d.skipReached(ctx, c, audience); err != nil {
			return err
		}
	}
	result.Audience = len(audience)

	for i, u := range audience {
		if i > 0 {
			if err := sleep(ctx, d.messageDelay); err != nil {
				return err
			}
		}
		sendCtx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
		err := d.gateway.Send(sendCtx, u.ExternalID, c.Message)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			result.Failed++
			if d.recordFailure(ctx, c, u, err) {
				result.Blocked++
			}
			continue
		}
		result.Sent++
		d.recordSuccess(ctx, c, u)
	}
	return nil
}

// skipReached drops the users a resumed one-shot campaign was already sent to
func (d *Dispatcher) skipReached(ctx context.Context, c *models.Campaign, audience []*models.User) ([]*models.User, error) {
	reached, err := d.events.FindRecipients(ctx, c.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous recipients: %w", err)
	}
	if len(reached) == 0 {
		return audience, nil
	}
	skip := make(map[string]bool, len(reached))
	for _, id := range reached {
		skip[id] = true
	}
	out := audience[:0]
	for _, u := range audience {
		if !skip[u.ExternalID] {
			out = append(out, u)
		}
	}
	d.logger.Info(ctx, fmt.Sprintf("resuming delivery, %d users already reached", len(audience)-len(out)))
	return out, nil
}

func (d *Dispatcher) recordSuccess(ctx context.Context, c *models.Campaign, u *models.User) {
	if u.DeliveryFailures > 0 {
		if err := d.users.ResetDeliveryFailures(ctx, u.ExternalID); err != nil {
			d.logger.Error(ctx, "failed to reset delivery failures", err)
		}
	}
	d.recorder.record(ctx, models.EventMessageSent, u.ExternalID, c.CampaignID, map[string]interface{}{
		"campaignType": string(c.Type),
	})
}

// recordFailure counts a failed send and reports whether the user is now blocked
func (d *Dispatcher) recordFailure(ctx context.Context, c *models.Campaign, u *models.User, sendErr error) bool {
	userCtx := observability.WithFields(ctx, observability.Field{Key: "user_id", Value: u.ExternalID})
	d.logger.Warn(userCtx, fmt.Sprintf("delivery failed: %v", sendErr))
	d.recorder.record(ctx, models.EventMessageFailed, u.ExternalID, c.CampaignID, map[string]interface{}{
		"reason": sendErr.Error(),
	})

	block := errors.Is(sendErr, telegram.ErrRecipientUnreachable)
	if !block {
		streak, err := d.users.RecordDeliveryFailure(ctx, u.ExternalID)
		if err != nil {
			d.logger.Error(userCtx, "failed to record delivery failure", err)
			return false
		}
		block = streak >= d.maxFailures
	}
	if !block {
		return false
	}
	if err := d.users.MarkBotBlocked(ctx, u.ExternalID); err != nil {
		d.logger.Error(userCtx, "failed to mark user as blocked", err)
		return false
	}
	d.logger.Info(userCtx, "user marked as bot-blocked")
	return true
}

func (d *Dispatcher) persistCounters(ctx context.Context, c *models.Campaign, result *DeliveryResult) {
	delta := models.CampaignAnalytics{Sent: result.Sent, Delivered: result.Sent, Failed: result.Failed}
	if delta.Sent == 0 && delta.Failed == 0 {
		return
	}
	if err := d.campaigns.IncrementAnalytics(ctx, c.CampaignID, delta); err != nil {
		d.logger.Error(ctx, "failed to persist delivery counters", err)
	}
}

func (d *Dispatcher) finish(ctx context.Context, c *models.Campaign, result *DeliveryResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	d.persistCounters(ctx, c, result)

	now := d.now()
	t := repositories.CampaignTransition{
		From:      []models.CampaignStatus{models.CampaignStatusActive},
		To:        models.CampaignStatusCompleted,
		At:        now,
		LastRunAt: &now,
	}
	if c.IsRecurring() {
		t.To = models.CampaignStatusScheduled
	} else {
		t.CompletedAt = &now
	}
	if _, err := d.campaigns.Transition(ctx, c.CampaignID, t); err != nil {
		// paused or cancelled while running
		d.logger.Warn(ctx, fmt.Sprintf("campaign left active state during delivery: %v", err))
	}

	d.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "audience", Value: result.Audience},
		observability.Field{Key: "sent", Value: result.Sent},
		observability.Field{Key: "failed", Value: result.Failed},
		observability.Field{Key: "blocked", Value: result.Blocked},
		observability.Field{Key: "duration", Value: result.Duration.String()},
	), "campaign delivery finished")
	d.notifyAdmins(ctx, c, result)
}

func (d *Dispatcher) abort(ctx context.Context, c *models.Campaign, result *DeliveryResult, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	d.logger.Error(ctx, "campaign delivery aborted", cause)
	d.persistCounters(ctx, c, result)
	now := d.now()
	_, err := d.campaigns.Transition(ctx, c.CampaignID, repositories.CampaignTransition{
		From: []models.CampaignStatus{models.CampaignStatusActive},
		To:   models.CampaignStatusCancelled,
		At:   now,
	})
	if err != nil {
		d.logger.Error(ctx, "failed to cancel aborted campaign", err)
	}
}

// suspend hands a campaign interrupted by shutdown back to the scheduler
func (d *Dispatcher) suspend(ctx context.Context, c *models.Campaign, result *DeliveryResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	d.persistCounters(ctx, c, result)
	_, err := d.campaigns.Transition(ctx, c.CampaignID, repositories.CampaignTransition{
		From: []models.CampaignStatus{models.CampaignStatusActive},
		To:   models.CampaignStatusScheduled,
		At:   d.now(),
	})
	if err != nil {
		d.logger.Error(ctx, "failed to return interrupted campaign to scheduled", err)
		return
	}
	d.logger.Warn(observability.WithFields(ctx, observability.Field{Key: "sent", Value: result.Sent}),
		"campaign delivery interrupted by shutdown, returned to scheduled")
}

func (d *Dispatcher) notifyAdmins(ctx context.Context, c *models.Campaign, result *DeliveryResult) {
	if len(d.admins) == 0 {
		return
	}
	msg := models.Message{Text: fmt.Sprintf(
		"Campaign %q finished\nAudience: %d\nSent: %d\nFailed: %d\nBlocked: %d",
		c.Name, result.Audience, result.Sent, result.Failed, result.Blocked,
	)}
	for _, admin := range d.admins {
		sendCtx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
		err := d.gateway.Send(sendCtx, admin, msg)
		cancel()
		if err != nil {
			d.logger.Warn(observability.WithFields(ctx, observability.Field{Key: "admin_id", Value: admin}),
				fmt.Sprintf("failed to notify admin: %v", err))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
