package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func validCampaignRequest() CampaignRequest {
	pct := 20.0
	return CampaignRequest{
		Name:    "Spring sale",
		Type:    models.CampaignTypeDiscount,
		Message: models.Message{Text: "20% off everything", Buttons: []models.MessageButton{{Text: "Shop", URL: "https://shop.example.com"}}},
		Discount: &DiscountRequest{
			Percentage:    &pct,
			MinOrderValue: 50,
			ExpiryDays:    3,
		},
	}
}

func TestCampaignService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.campaignSvc.Create(ctx, validCampaignRequest(), "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusDraft, c.Status)
	assert.Equal(t, []string{models.SegmentAll}, c.TargetSegments)
	require.NotNil(t, c.DiscountCode)
	assert.Equal(t, c.CampaignID, c.DiscountCode.CampaignID)
	assert.Equal(t, 20.0, *c.DiscountCode.Percentage)
	assert.Equal(t, 50.0, c.DiscountCode.MinOrderValue)
	assert.True(t, c.DiscountCode.IsActive)

	stored, err := env.campaignSvc.Get(ctx, c.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, "Spring sale", stored.Name)
}

func TestCampaignService_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CampaignRequest)
	}{
		{name: "missing name", mutate: func(r *CampaignRequest) { r.Name = "  " }},
		{name: "unknown type", mutate: func(r *CampaignRequest) { r.Type = "spam" }},
		{name: "empty text", mutate: func(r *CampaignRequest) { r.Message.Text = "" }},
		{name: "text too long", mutate: func(r *CampaignRequest) { r.Message.Text = strings.Repeat("x", maxMessageLength+1) }},
		{name: "button without url", mutate: func(r *CampaignRequest) { r.Message.Buttons = []models.MessageButton{{Text: "Go"}} }},
		{name: "bad discount", mutate: func(r *CampaignRequest) {
			pct := 150.0
			r.Discount.Percentage = &pct
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := validCampaignRequest()
			tt.mutate(&req)
			_, err := env.campaignSvc.Create(context.Background(), req, "admin")
			assert.ErrorIs(t, err, ErrInvalidCampaign)
		})
	}
}

func TestCampaignService_UpdateOnlyDrafts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c, err := env.campaignSvc.Create(ctx, validCampaignRequest(), "admin")
	require.NoError(t, err)

	req := validCampaignRequest()
	req.Name = "Summer sale"
	req.TargetSegments = []string{models.SegmentVIP}
	updated, err := env.campaignSvc.Update(ctx, c.CampaignID, req)
	require.NoError(t, err)
	assert.Equal(t, "Summer sale", updated.Name)
	assert.Equal(t, []string{models.SegmentVIP}, env.campaigns.campaign(c.CampaignID).TargetSegments)

	sendAt := testNow.Add(time.Hour)
	_, err = env.campaignSvc.Schedule(ctx, c.CampaignID, models.Scheduling{SendAt: &sendAt})
	require.NoError(t, err)
	_, err = env.campaignSvc.Update(ctx, c.CampaignID, req)
	assert.ErrorIs(t, err, ErrCampaignNotEditable)
}

func TestCampaignService_ScheduleOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c, err := env.campaignSvc.Create(ctx, validCampaignRequest(), "admin")
	require.NoError(t, err)

	sendAt := testNow.Add(time.Hour)
	scheduled, err := env.campaignSvc.Schedule(ctx, c.CampaignID, models.Scheduling{SendAt: &sendAt})
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusScheduled, scheduled.Status)
	env.recurring.AssertCalled(t, "Unschedule", c.CampaignID)
	env.recurring.AssertNotCalled(t, "ScheduleRecurring", mock.Anything, mock.Anything, mock.Anything)

	// not due yet
	started, err := env.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, started)
}

func TestCampaignService_ScheduleRecurring(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c, err := env.campaignSvc.Create(ctx, validCampaignRequest(), "admin")
	require.NoError(t, err)

	day := 1
	sched := models.Scheduling{Recurring: &models.Recurring{
		Enabled: true, Frequency: models.FrequencyWeekly, DayOfWeek: &day, Time: "09:30",
	}}
	env.recurring.On("ScheduleRecurring", c.CampaignID, "CRON_TZ=UTC 30 9 * * 1", mock.Anything).Return(nil).Twice()

	_, err = env.campaignSvc.Schedule(ctx, c.CampaignID, sched)
	require.NoError(t, err)

	paused, err := env.campaignSvc.Pause(ctx, c.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusPaused, paused.Status)

	resumed, err := env.campaignSvc.Resume(ctx, c.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusScheduled, resumed.Status)

	env.recurring.AssertExpectations(t)
}

func TestCampaignService_ScheduleRejectsAmbiguousScheduling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c, err := env.campaignSvc.Create(ctx, validCampaignRequest(), "admin")
	require.NoError(t, err)

	sendAt := testNow.Add(time.Hour)
	both := models.Scheduling{SendAt: &sendAt, Recurring: &models.Recurring{Enabled: true, Frequency: models.FrequencyDaily, Time: "10:00"}}
	_, err = env.campaignSvc.Schedule(ctx, c.CampaignID, both)
	assert.ErrorIs(t, err, scheduler.ErrInvalidRecurrence)

	_, err = env.campaignSvc.Schedule(ctx, c.CampaignID, models.Scheduling{})
	assert.ErrorIs(t, err, scheduler.ErrInvalidRecurrence)

	badTime := models.Scheduling{Recurring: &models.Recurring{Enabled: true, Frequency: models.FrequencyDaily, Time: "25:00"}}
	_, err = env.campaignSvc.Schedule(ctx, c.CampaignID, badTime)
	assert.ErrorIs(t, err, scheduler.ErrInvalidRecurrence)

	assert.Equal(t, models.CampaignStatusDraft, env.campaigns.campaign(c.CampaignID).Status)
}

func TestCampaignService_CancelIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c, err := env.campaignSvc.Create(ctx, validCampaignRequest(), "admin")
	require.NoError(t, err)

	_, err = env.campaignSvc.Cancel(ctx, c.CampaignID)
	require.NoError(t, err)
	env.recurring.AssertCalled(t, "Unschedule", c.CampaignID)

	_, err = env.campaignSvc.Resume(ctx, c.CampaignID)
	assert.ErrorIs(t, err, ErrCampaignNotSendable)
	assert.ErrorIs(t, env.campaignSvc.SendNow(ctx, c.CampaignID), ErrCampaignNotSendable)

	_, err = env.campaignSvc.Pause(ctx, "missing")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCampaignNotSendable)
}

func TestCampaignService_SendNowDeliversDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUsers(subscribedUser("1"), subscribedUser("2"))

	c, err := env.campaignSvc.Create(ctx, validCampaignRequest(), "admin")
	require.NoError(t, err)
	require.NoError(t, env.campaignSvc.SendNow(ctx, c.CampaignID))
	env.dispatcher.Wait()

	assert.Len(t, env.gateway.Messages(), 2)
	assert.Equal(t, models.CampaignStatusCompleted, env.campaigns.campaign(c.CampaignID).Status)
}

func TestCampaignService_StatsAndClicks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c, err := env.campaignSvc.Create(ctx, validCampaignRequest(), "admin")
	require.NoError(t, err)

	empty, err := env.campaignSvc.Stats(ctx, c.CampaignID)
	require.NoError(t, err)
	assert.Zero(t, empty.DeliveryRate)
	assert.Zero(t, empty.CTR)
	assert.Zero(t, empty.ConversionRate)
	assert.True(t, empty.CanUseDiscount)

	require.NoError(t, env.campaigns.IncrementAnalytics(ctx, c.CampaignID, models.CampaignAnalytics{Sent: 8, Delivered: 8, Failed: 2}))
	for i := 0; i < 4; i++ {
		require.NoError(t, env.campaignSvc.TrackClick(ctx, c.CampaignID, "1", "Shop"))
	}
	require.NoError(t, env.campaigns.IncrementAnalytics(ctx, c.CampaignID, models.CampaignAnalytics{Conversions: 1}))

	stats, err := env.campaignSvc.Stats(ctx, c.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Analytics.Clicks)
	assert.Equal(t, 80.0, stats.DeliveryRate)
	assert.Equal(t, 50.0, stats.CTR)
	assert.Equal(t, 25.0, stats.ConversionRate)
	assert.Len(t, env.events.ofType(models.EventButtonClick), 4)
	assert.Len(t, env.events.ofType(models.EventFunnelProgression), 4)

	assert.Error(t, env.campaignSvc.TrackClick(ctx, "missing", "1", "Shop"))
}

func TestCampaignService_CreateWelcome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.experimentSvc.EnsureDefaults(ctx))

	user := subscribedUser("123456")
	c, err := env.campaignSvc.CreateWelcome(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, models.CampaignTypePersonalized, c.Type)
	assert.Equal(t, models.CampaignStatusScheduled, c.Status)
	assert.Equal(t, []string{"123456"}, c.TargetUserIDs)
	require.NotNil(t, c.Scheduling.SendAt)
	assert.Equal(t, testNow.Add(5*time.Minute), *c.Scheduling.SendAt)

	require.NotNil(t, c.DiscountCode)
	assert.Equal(t, 15.0, *c.DiscountCode.Percentage)
	require.NotNil(t, c.DiscountCode.MaxUses)
	assert.Equal(t, 1, *c.DiscountCode.MaxUses)
	assert.True(t, strings.HasPrefix(c.DiscountCode.Code, "WELCOME"))
	assert.True(t, strings.HasSuffix(c.DiscountCode.Code, "456"))
	assert.Contains(t, c.Message.Text, c.DiscountCode.Code)
	assert.Equal(t, "HTML", c.Message.ParseMode)

	variant, err := env.experimentSvc.Assign(ctx, "123456", WelcomeMessageTest)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.Message.Text, variant.Message))
	assert.Len(t, env.events.ofType(models.EventABTest), 1)

	// due five minutes later
	env.dispatcher.now = func() time.Time { return testNow.Add(6 * time.Minute) }
	env.seedUsers(user)
	started, err := env.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	env.dispatcher.Wait()
	require.Len(t, env.gateway.Messages(), 1)
	assert.Equal(t, "123456", env.gateway.Messages()[0].ChatID)
}

func TestCampaignService_CreateWelcomeDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.campaignSvc.welcome.Enabled = false

	c, err := env.campaignSvc.CreateWelcome(context.Background(), subscribedUser("1"))
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestCampaignService_RestoreRecurring(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	daily := scheduledCampaign("daily", models.CampaignTypeNewsletter)
	daily.Scheduling = models.Scheduling{Recurring: &models.Recurring{Enabled: true, Frequency: models.FrequencyDaily, Time: "08:00"}}
	paused := scheduledCampaign("paused", models.CampaignTypeNewsletter)
	paused.Status = models.CampaignStatusPaused
	paused.Scheduling = daily.Scheduling
	broken := scheduledCampaign("broken", models.CampaignTypeNewsletter)
	broken.Scheduling = models.Scheduling{Recurring: &models.Recurring{Enabled: true, Frequency: "hourly", Time: "08:00"}}
	env.seedCampaigns(daily, paused, broken, scheduledCampaign("once", models.CampaignTypeNewsletter))

	env.recurring.On("ScheduleRecurring", "daily", "CRON_TZ=UTC 0 8 * * *", mock.Anything).Return(nil).Once()

	restored, err := env.campaignSvc.RestoreRecurring(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	env.recurring.AssertExpectations(t)
}

func TestCampaignService_PurgeCompleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	oldDone := testNow.Add(-31 * 24 * time.Hour)
	recentDone := testNow.Add(-2 * 24 * time.Hour)
	old := scheduledCampaign("old", models.CampaignTypeNewsletter)
	old.Status, old.CompletedAt = models.CampaignStatusCompleted, &oldDone
	recent := scheduledCampaign("recent", models.CampaignTypeNewsletter)
	recent.Status, recent.CompletedAt = models.CampaignStatusCompleted, &recentDone
	env.seedCampaigns(old, recent, scheduledCampaign("pending", models.CampaignTypeNewsletter))

	n, err := env.campaignSvc.PurgeCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = env.campaignSvc.Get(ctx, "old")
	assert.True(t, IsNotFound(err))
	_, err = env.campaignSvc.Get(ctx, "recent")
	assert.NoError(t, err)
}
