package jobs

import (
	"context"

	"github.com/ArowuTest/telegram-marketing-backend/internal/services"
)

// Job names, also used as scheduler log fields
const (
	CampaignDispatchName      = "campaign-dispatch"
	MaintenanceName           = "maintenance"
	SegmentRefreshName        = "segment-refresh"
	AnalyticsRollupDailyName  = "analytics-rollup-daily"
	AnalyticsRollupWeeklyName = "analytics-rollup-weekly"
)

// CampaignDispatcher starts campaigns whose send time has arrived
type CampaignDispatcher interface {
	DispatchDue(ctx context.Context) (int, error)
}

// EventPurger removes analytics events past retention
type EventPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// DiscountExpirer deactivates expired discount codes
type DiscountExpirer interface {
	DeactivateExpired(ctx context.Context) (standalone, embedded int64, err error)
}

// CampaignPurger deletes old completed campaigns
type CampaignPurger interface {
	PurgeCompleted(ctx context.Context) (int64, error)
}

// ReferralHousekeeper cancels pending referrals past their expiry and credits
// completed referrals whose rewards were not applied
type ReferralHousekeeper interface {
	ExpirePending(ctx context.Context) (int, error)
	SettleCredits(ctx context.Context) (int, error)
}

// SegmentRefresher recomputes user segments
type SegmentRefresher interface {
	Refresh(ctx context.Context) (*services.SegmentRefreshResult, error)
}

// ExperimentAnalyzer reports on and optimises running experiments
type ExperimentAnalyzer interface {
	Report(ctx context.Context) (*services.ExperimentReport, error)
	Optimize(ctx context.Context) ([]services.OptimizationOutcome, error)
}
