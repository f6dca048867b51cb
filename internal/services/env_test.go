package services

import (
	"testing"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/config"
	"github.com/ArowuTest/telegram-marketing-backend/internal/discount"
	"github.com/ArowuTest/telegram-marketing-backend/internal/ledger"
	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/pkg/telegram"
	"github.com/stretchr/testify/mock"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	cfg         *config.Config
	users       *memUsers
	referrals   *memReferrals
	affiliates  *memAffiliates
	campaigns   *memCampaigns
	discounts   *memDiscounts
	events      *memEvents
	experiments *memExperiments
	gateway     *telegram.MockGateway
	recurring   *MockRecurringScheduler

	subscriberSvc *SubscriberService
	referralSvc   *ReferralService
	affiliateSvc  *AffiliateService
	discountSvc   *DiscountService
	experimentSvc *ExperimentService
	analyticsSvc  *AnalyticsService
	segmentSvc    *SegmentService
	dispatcher    *Dispatcher
	campaignSvc   *CampaignService
	ingest        *EventIngestService
}

func testConfig() *config.Config {
	return &config.Config{
		Telegram:  config.TelegramConfig{DeliveryTimeout: time.Second},
		Delivery:  config.DeliveryConfig{MaxConsecutiveFailures: 3},
		Scheduler: config.SchedulerConfig{Timezone: "UTC"},
		Discount:  config.DiscountConfig{Prefix: "DIGI", Length: 8, ExpiryDays: 7, DefaultPercentage: 10},
		Analytics: config.AnalyticsConfig{WindowDays: 7, RetentionDays: 90, AutoOptimize: true, MinSampleSize: 50, PromotedSplit: 80, CompletedCampaignRetentionDays: 30},
		Welcome:   config.WelcomeConfig{Enabled: true, Percentage: 15, Delay: 5 * time.Minute},
	}
}

// newTestEnv wires every service over in-memory repositories with a fixed clock
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()
	logger := observability.NewNopLogger()
	clock := func() time.Time { return testNow }

	e := &testEnv{
		cfg:         cfg,
		users:       newMemUsers(),
		referrals:   &memReferrals{},
		affiliates:  &memAffiliates{},
		campaigns:   newMemCampaigns(),
		discounts:   newMemDiscounts(),
		events:      &memEvents{},
		experiments: newMemExperiments(),
		gateway:     telegram.NewMockGateway(),
		recurring:   &MockRecurringScheduler{},
	}
	e.recurring.On("Unschedule", mock.Anything).Return(false).Maybe()

	generator := discount.NewGenerator(cfg.Discount, logger)

	e.experimentSvc = NewExperimentService(e.experiments, e.events, cfg.Analytics, logger)
	e.experimentSvc.now = clock
	e.dispatcher = NewDispatcher(e.campaigns, e.users, e.events, e.gateway, cfg, logger)
	e.dispatcher.now = clock
	e.campaignSvc = NewCampaignService(e.campaigns, e.events, e.dispatcher, e.experimentSvc, generator, e.recurring, cfg, logger)
	e.campaignSvc.now = clock
	e.subscriberSvc = NewSubscriberService(e.users, e.referrals, e.events, e.campaignSvc, logger)
	e.subscriberSvc.now = clock
	e.referralSvc = NewReferralService(e.referrals, e.users, e.events, ledger.DefaultRewardPolicy(), logger)
	e.referralSvc.now = clock
	e.affiliateSvc = NewAffiliateService(e.affiliates, e.users, e.events, generator, 100, logger)
	e.affiliateSvc.now = clock
	e.discountSvc = NewDiscountService(e.discounts, e.campaigns, e.users, e.events, generator, logger)
	e.discountSvc.now = clock
	e.analyticsSvc = NewAnalyticsService(e.events, e.campaigns, e.experimentSvc, 7, 90, logger)
	e.analyticsSvc.now = clock
	e.segmentSvc = NewSegmentService(e.users, logger)
	e.segmentSvc.now = clock
	e.ingest = NewEventIngestService(e.subscriberSvc, e.referralSvc, e.affiliateSvc, e.discountSvc,
		e.experimentSvc, e.analyticsSvc, e.campaignSvc, logger)

	t.Cleanup(e.dispatcher.Close)
	return e
}

func subscribedUser(id string, segments ...string) *models.User {
	if len(segments) == 0 {
		segments = []string{models.SegmentNewCustomer}
	}
	subscribedAt := testNow.Add(-48 * time.Hour)
	return &models.User{
		ExternalID:      id,
		IsSubscribed:    true,
		SubscribedAt:    &subscribedAt,
		Preferences:     models.DefaultPreferences(),
		Segments:        segments,
		ReferralCode:    UserReferralCode(id),
		LastInteraction: testNow.Add(-time.Hour),
	}
}

func (e *testEnv) seedUsers(users ...*models.User) {
	e.users.mu.Lock()
	defer e.users.mu.Unlock()
	for _, u := range users {
		e.users.users[u.ExternalID] = u
	}
}

func (e *testEnv) seedCampaigns(campaigns ...*models.Campaign) {
	e.campaigns.mu.Lock()
	defer e.campaigns.mu.Unlock()
	for _, c := range campaigns {
		e.campaigns.campaigns[c.CampaignID] = c
	}
}
