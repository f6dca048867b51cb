package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/experiments"
	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
)

const defaultTopCampaigns = 10

// FunnelStep is one stage of the conversion funnel
type FunnelStep struct {
	Stage       string `json:"stage"`
	Events      int    `json:"events"`
	UniqueUsers int    `json:"uniqueUsers"`
}

// FunnelConversion is the share of users reaching To among those who reached From
type FunnelConversion struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Rate float64 `json:"rate"`
}

// FunnelReport is the funnel over a trailing window
type FunnelReport struct {
	Since       time.Time          `json:"since"`
	Stages      []FunnelStep       `json:"stages"`
	Conversions []FunnelConversion `json:"conversions"`
	TotalUsers  int                `json:"totalUsers"`
	Purchasers  int                `json:"purchasers"`
}

// Dashboard bundles the admin overview
type Dashboard struct {
	Since       time.Time                  `json:"since"`
	EventCounts map[models.EventType]int64 `json:"eventCounts"`
	Campaigns   []*CampaignStats           `json:"campaigns"`
	Funnel      *FunnelReport              `json:"funnel"`
	Experiments *ExperimentReport          `json:"experiments"`
}

// AnalyticsService records events and builds the reporting views
type AnalyticsService struct {
	events      repositories.EventRepository
	campaigns   repositories.CampaignRepository
	experiments *ExperimentService
	window      time.Duration
	retention   time.Duration
	logger      *observability.Logger
	now         func() time.Time
}

// NewAnalyticsService creates a new AnalyticsService
func NewAnalyticsService(
	events repositories.EventRepository,
	campaigns repositories.CampaignRepository,
	experimentService *ExperimentService,
	windowDays, retentionDays int,
	logger *observability.Logger,
) *AnalyticsService {
	if windowDays <= 0 {
		windowDays = 7
	}
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &AnalyticsService{
		events:      events,
		campaigns:   campaigns,
		experiments: experimentService,
		window:      time.Duration(windowDays) * 24 * time.Hour,
		retention:   time.Duration(retentionDays) * 24 * time.Hour,
		logger:      logger,
		now:         time.Now,
	}
}

// Track appends an event reported from outside. Button clicks on a campaign
// also count towards its clicks.
func (s *AnalyticsService) Track(ctx context.Context, e *models.AnalyticsEvent) error {
	if e.Type == "" || e.UserID == "" {
		return fmt.Errorf("%w: type and userId are required", ErrInvalidEvent)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if e.Source == "" {
		e.Source = "api"
	}
	if e.Type == models.EventFunnelProgression {
		if stage, _ := e.Data["stage"].(string); !knownStage(stage) {
			return fmt.Errorf("%w: unknown funnel stage %q", ErrInvalidEvent, stage)
		}
	}
	if err := s.events.Append(ctx, e); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	if e.Type == models.EventButtonClick && e.CampaignID != "" {
		if err := s.campaigns.IncrementAnalytics(ctx, e.CampaignID, models.CampaignAnalytics{Clicks: 1}); err != nil {
			s.logger.Error(observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: e.CampaignID}),
				"failed to count campaign click", err)
		}
	}
	return nil
}

func knownStage(stage string) bool {
	for _, s := range models.FunnelStages {
		if s == stage {
			return true
		}
	}
	return false
}

// CampaignPerformance returns the campaigns with most conversions
func (s *AnalyticsService) CampaignPerformance(ctx context.Context, limit int) ([]*CampaignStats, error) {
	if limit <= 0 {
		limit = defaultTopCampaigns
	}
	campaigns, err := s.campaigns.TopByConversions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign performance: %w", err)
	}
	now := s.now()
	stats := make([]*CampaignStats, 0, len(campaigns))
	for _, c := range campaigns {
		stats = append(stats, statsOf(c, now))
	}
	return stats, nil
}

// Funnel counts funnel events per stage in the window
func (s *AnalyticsService) Funnel(ctx context.Context) (*FunnelReport, error) {
	since := s.now().Add(-s.window)
	rows, err := s.events.AggregateFunnel(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate funnel: %w", err)
	}
	return BuildFunnel(rows, since), nil
}

// BuildFunnel orders stage rows and derives stage-to-stage conversion.
// Stages without events are reported with zero counts.
func BuildFunnel(rows []models.StageCounts, since time.Time) *FunnelReport {
	byStage := make(map[string]models.StageCounts, len(rows))
	for _, r := range rows {
		byStage[r.Stage] = r
	}

	report := &FunnelReport{
		Since:       since,
		Stages:      make([]FunnelStep, 0, len(models.FunnelStages)),
		Conversions: make([]FunnelConversion, 0, len(models.FunnelStages)-1),
	}
	for i, stage := range models.FunnelStages {
		r := byStage[stage]
		report.Stages = append(report.Stages, FunnelStep{Stage: stage, Events: r.Events, UniqueUsers: r.UniqueUsers})
		if r.UniqueUsers > report.TotalUsers {
			report.TotalUsers = r.UniqueUsers
		}
		if i > 0 {
			prev := byStage[models.FunnelStages[i-1]]
			report.Conversions = append(report.Conversions, FunnelConversion{
				From: models.FunnelStages[i-1],
				To:   stage,
				Rate: experiments.Rate(r.UniqueUsers, prev.UniqueUsers),
			})
		}
	}
	report.Purchasers = byStage[models.StagePurchase].UniqueUsers
	return report
}

// Experiments returns the experiment report
func (s *AnalyticsService) Experiments(ctx context.Context) (*ExperimentReport, error) {
	return s.experiments.Report(ctx)
}

// Dashboard builds the admin overview
func (s *AnalyticsService) Dashboard(ctx context.Context) (*Dashboard, error) {
	since := s.now().Add(-s.window)
	counts, err := s.events.CountByType(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	campaigns, err := s.CampaignPerformance(ctx, defaultTopCampaigns)
	if err != nil {
		return nil, err
	}
	funnel, err := s.Funnel(ctx)
	if err != nil {
		return nil, err
	}
	report, err := s.experiments.Report(ctx)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Since:       since,
		EventCounts: counts,
		Campaigns:   campaigns,
		Funnel:      funnel,
		Experiments: report,
	}, nil
}

// PurgeExpired deletes events older than the retention window
func (s *AnalyticsService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.events.DeleteOlderThan(ctx, s.now().Add(-s.retention))
}
