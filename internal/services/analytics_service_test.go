package services

import (
	"context"
	"testing"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFunnel(t *testing.T) {
	since := testNow.Add(-7 * 24 * time.Hour)

	t.Run("no events", func(t *testing.T) {
		report := BuildFunnel(nil, since)
		require.Len(t, report.Stages, len(models.FunnelStages))
		require.Len(t, report.Conversions, len(models.FunnelStages)-1)
		for _, c := range report.Conversions {
			assert.Zero(t, c.Rate)
		}
		assert.Zero(t, report.TotalUsers)
	})

	t.Run("conversion by unique users", func(t *testing.T) {
		report := BuildFunnel([]models.StageCounts{
			{Stage: models.StagePurchase, Events: 9, UniqueUsers: 5},
			{Stage: models.StageAwareness, Events: 40, UniqueUsers: 20},
			{Stage: models.StageInterest, Events: 30, UniqueUsers: 10},
		}, since)

		assert.Equal(t, models.StageAwareness, report.Stages[0].Stage)
		assert.Equal(t, 20, report.TotalUsers)
		assert.Equal(t, 5, report.Purchasers)
		assert.Equal(t, FunnelConversion{From: models.StageAwareness, To: models.StageInterest, Rate: 50}, report.Conversions[0])
		// consideration is empty, so purchase/consideration is guarded
		assert.Zero(t, report.Conversions[1].Rate)
		assert.Zero(t, report.Conversions[2].Rate)
	})
}

func TestAnalyticsService_Track(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCampaigns(scheduledCampaign("c1", models.CampaignTypeNewsletter))

	require.NoError(t, env.analyticsSvc.Track(ctx, &models.AnalyticsEvent{
		Type: models.EventButtonClick, UserID: "1", CampaignID: "c1",
	}))
	assert.Equal(t, 1, env.campaigns.campaign("c1").Analytics.Clicks)
	clicks := env.events.ofType(models.EventButtonClick)
	require.Len(t, clicks, 1)
	assert.Equal(t, "api", clicks[0].Source)
	assert.Equal(t, testNow, clicks[0].Timestamp)

	err := env.analyticsSvc.Track(ctx, &models.AnalyticsEvent{Type: models.EventCustom})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	err = env.analyticsSvc.Track(ctx, &models.AnalyticsEvent{
		Type: models.EventFunnelProgression, UserID: "1", Data: map[string]interface{}{"stage": "bored"},
	})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestAnalyticsService_Dashboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.experimentSvc.EnsureDefaults(ctx))

	best := scheduledCampaign("best", models.CampaignTypeDiscount)
	best.Analytics = models.CampaignAnalytics{Sent: 10, Delivered: 10, Clicks: 5, Conversions: 3}
	other := scheduledCampaign("other", models.CampaignTypeDiscount)
	other.Analytics = models.CampaignAnalytics{Sent: 10, Delivered: 10, Clicks: 2, Conversions: 1}
	env.seedCampaigns(other, best)

	_, err := env.subscriberSvc.Subscribe(ctx, "1", models.UserProfile{})
	require.NoError(t, err)
	_, err = env.subscriberSvc.RecordPurchase(ctx, "1", 40)
	require.NoError(t, err)

	dash, err := env.analyticsSvc.Dashboard(ctx)
	require.NoError(t, err)
	require.Len(t, dash.Campaigns, 3)
	assert.Equal(t, "best", dash.Campaigns[0].CampaignID)
	assert.Equal(t, 60.0, dash.Campaigns[0].ConversionRate)
	assert.Equal(t, int64(1), dash.EventCounts[models.EventSubscription])
	assert.Equal(t, 1, dash.Funnel.TotalUsers)
	assert.Equal(t, 1, dash.Funnel.Purchasers)
	assert.Equal(t, 1, dash.Funnel.Stages[0].UniqueUsers)
	require.NotNil(t, dash.Experiments)
	assert.Len(t, dash.Experiments.Results, 1)
}

func TestAnalyticsService_PurgeExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.events.Append(ctx, &models.AnalyticsEvent{Type: models.EventCustom, UserID: "1", Timestamp: testNow.Add(-91 * 24 * time.Hour)}))
	require.NoError(t, env.events.Append(ctx, &models.AnalyticsEvent{Type: models.EventCustom, UserID: "1", Timestamp: testNow.Add(-89 * 24 * time.Hour)}))

	n, err := env.analyticsSvc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, env.events.ofType(models.EventCustom), 1)
}

func TestSegmentService_Refresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	vip := subscribedUser("vip")
	vip.TotalPurchases, vip.TotalSpent = 12, 1500
	idle := subscribedUser("idle")
	idle.LastInteraction = testNow.Add(-45 * 24 * time.Hour)
	fresh := subscribedUser("fresh")
	env.seedUsers(vip, idle, fresh)

	result, err := env.segmentSvc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 2, result.Members[models.SegmentNewCustomer])
	assert.Equal(t, 1, result.Members[models.SegmentVIP])

	assert.Equal(t, []string{models.SegmentReturningCustomer, models.SegmentVIP}, env.users.user("vip").Segments)
	assert.Equal(t, []string{models.SegmentNewCustomer, models.SegmentInactive}, env.users.user("idle").Segments)

	again, err := env.segmentSvc.Refresh(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Updated)
}

func TestSubscriberService_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.experimentSvc.EnsureDefaults(ctx))

	u, err := env.subscriberSvc.Subscribe(ctx, "555", models.UserProfile{Username: "neo"})
	require.NoError(t, err)
	assert.True(t, u.IsSubscribed)
	assert.Equal(t, UserReferralCode("555"), u.ReferralCode)
	assert.Regexp(t, `^USER[0-9A-F]{6}$`, u.ReferralCode)

	welcome, err := env.campaigns.FindAll(ctx, models.CampaignStatusScheduled, 1, 10)
	require.NoError(t, err)
	require.Len(t, welcome, 1)
	assert.Equal(t, []string{"555"}, welcome[0].TargetUserIDs)

	// resubscribing after an opt-out does not send a second welcome
	_, err = env.subscriberSvc.Unsubscribe(ctx, "555")
	require.NoError(t, err)
	_, err = env.subscriberSvc.Subscribe(ctx, "555", models.UserProfile{})
	require.NoError(t, err)
	all, err := env.campaigns.FindAll(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = env.subscriberSvc.SetPreference(ctx, "555", "promotions", false)
	require.NoError(t, err)
	assert.False(t, env.users.user("555").Preferences.Promotions)
	_, err = env.subscriberSvc.SetPreference(ctx, "555", "sms", true)
	assert.ErrorIs(t, err, ErrInvalidPreference)

	bought, err := env.subscriberSvc.RecordPurchase(ctx, "555", 1200)
	require.NoError(t, err)
	assert.Equal(t, []string{models.SegmentReturningCustomer, models.SegmentVIP}, bought.Segments)
	_, err = env.subscriberSvc.RecordPurchase(ctx, "555", 0)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestSubscriberService_TouchClearsBlock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	blocked := subscribedUser("1")
	blocked.BotBlocked = true
	blocked.DeliveryFailures = 3
	env.seedUsers(blocked)

	u, err := env.subscriberSvc.Touch(ctx, "1", models.UserProfile{})
	require.NoError(t, err)
	assert.False(t, u.BotBlocked)
	assert.Zero(t, u.DeliveryFailures)
}

func TestSubscriberService_TouchRetriesTakenReferralCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.Equal(t, UserReferralCode("100000603"), UserReferralCode("100003906"))

	first, err := env.subscriberSvc.Touch(ctx, "100000603", models.UserProfile{})
	require.NoError(t, err)
	second, err := env.subscriberSvc.Touch(ctx, "100003906", models.UserProfile{})
	require.NoError(t, err)

	assert.Equal(t, "USER81175E", first.ReferralCode)
	assert.Equal(t, referralCodeCandidate("100003906", 1), second.ReferralCode)
	assert.Len(t, second.ReferralCode, len("USER")+8)

	// later contacts keep the stored code and it resolves to its owner
	again, err := env.subscriberSvc.Touch(ctx, "100003906", models.UserProfile{})
	require.NoError(t, err)
	assert.Equal(t, second.ReferralCode, again.ReferralCode)
	owner, err := env.users.FindByReferralCode(ctx, second.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, "100003906", owner.ExternalID)
}

func TestSubscriberService_RecordOrderCountsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUsers(subscribedUser("1"))

	_, counted, err := env.subscriberSvc.RecordOrder(ctx, "1", "o-1", 40)
	require.NoError(t, err)
	assert.True(t, counted)
	u, counted, err := env.subscriberSvc.RecordOrder(ctx, "1", "o-1", 40)
	require.NoError(t, err)
	assert.False(t, counted)
	assert.Equal(t, 1, u.TotalPurchases)
	assert.Equal(t, 40.0, u.TotalSpent)
}

func TestSubscriberService_Erase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUsers(subscribedUser("U"), subscribedUser("V"))
	_, err := env.referralSvc.Create(ctx, UserReferralCode("U"), "V")
	require.NoError(t, err)

	require.NoError(t, env.subscriberSvc.Erase(ctx, "V"))
	_, err = env.subscriberSvc.Get(ctx, "V")
	assert.True(t, IsNotFound(err))
	_, refs, err := env.referralSvc.Stats(ctx, "U")
	require.NoError(t, err)
	assert.Empty(t, refs)
	for _, e := range env.events.events {
		assert.NotEqual(t, "V", e.UserID)
	}

	assert.True(t, IsNotFound(env.subscriberSvc.Erase(ctx, "V")))
}

func TestSubscriberService_Import(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.subscriberSvc.Import(ctx, ImportRecord{ExternalID: "77", Username: "trinity", Subscribed: true, TotalPurchases: 3, TotalSpent: 2000})
	require.NoError(t, err)
	assert.True(t, created)

	u := env.users.user("77")
	assert.True(t, u.IsSubscribed)
	assert.Equal(t, 2000.0, u.TotalSpent)
	assert.Contains(t, u.Segments, models.SegmentVIP)

	all, err := env.campaigns.FindAll(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, all)

	created, err = env.subscriberSvc.Import(ctx, ImportRecord{ExternalID: "77", Subscribed: false})
	require.NoError(t, err)
	assert.False(t, created)
	assert.False(t, env.users.user("77").IsSubscribed)
}
