package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/bucketing"
	"github.com/ArowuTest/telegram-marketing-backend/internal/config"
	"github.com/ArowuTest/telegram-marketing-backend/internal/experiments"
	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
)

// Seeded experiments
const (
	WelcomeMessageTest = "welcome_message_test"
	DiscountOfferTest  = "discount_offer_test"
)

const defaultTrafficSplit = 50

// DefaultExperiments are seeded on startup unless already stored
func DefaultExperiments(now time.Time) []models.Experiment {
	return []models.Experiment{
		{
			Name:        WelcomeMessageTest,
			Description: "Greeting sent with the welcome campaign",
			Variants: []models.ExperimentVariant{
				{ID: "A", Name: "Exclusive deals", Message: "Welcome to Digi-King! 🎉 Get exclusive deals!"},
				{ID: "B", Name: "Digital products", Message: "Join Digi-King for amazing digital products! 🚀"},
			},
			Active:       true,
			TrafficSplit: defaultTrafficSplit,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		{
			Name:        DiscountOfferTest,
			Description: "First purchase discount offer",
			Variants: []models.ExperimentVariant{
				{ID: "A", Name: "10 percent", Discount: 10, Message: "Get 10% off your first purchase!"},
				{ID: "B", Name: "15 percent", Discount: 15, Message: "Special 15% discount just for you!"},
			},
			Active:       true,
			TrafficSplit: defaultTrafficSplit,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
}

// ExperimentReport is the experiment section of the analytics dashboard
type ExperimentReport struct {
	Since           time.Time                    `json:"since"`
	Results         []experiments.TestResult     `json:"results"`
	Recommendations []experiments.Recommendation `json:"recommendations"`
	GeneratedAt     time.Time                    `json:"generatedAt"`
}

// OptimizationOutcome is the decision for one test and whether it changed the live configuration
type OptimizationOutcome struct {
	experiments.Decision
	Promoted bool `json:"promoted"`
}

// ExperimentService assigns variants, tracks experiment events and applies
// the optimisation policy to the live configuration.
type ExperimentService struct {
	experiments  repositories.ExperimentRepository
	events       repositories.EventRepository
	policy       experiments.Policy
	autoOptimize bool
	window       time.Duration
	logger       *observability.Logger
	now          func() time.Time
}

// NewExperimentService creates a new ExperimentService
func NewExperimentService(
	experimentRepo repositories.ExperimentRepository,
	events repositories.EventRepository,
	cfg config.AnalyticsConfig,
	logger *observability.Logger,
) *ExperimentService {
	policy := experiments.DefaultPolicy()
	if cfg.MinSampleSize > 0 {
		policy.MinSampleSize = cfg.MinSampleSize
	}
	if cfg.PromotedSplit > 0 && cfg.PromotedSplit <= 100 {
		policy.PromotedSplit = cfg.PromotedSplit
	}
	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = 7
	}
	return &ExperimentService{
		experiments:  experimentRepo,
		events:       events,
		policy:       policy,
		autoOptimize: cfg.AutoOptimize,
		window:       time.Duration(windowDays) * 24 * time.Hour,
		logger:       logger,
		now:          time.Now,
	}
}

// EnsureDefaults seeds the default experiments
func (s *ExperimentService) EnsureDefaults(ctx context.Context) error {
	for _, e := range DefaultExperiments(s.now()) {
		e := e
		created, err := s.experiments.InsertIfAbsent(ctx, &e)
		if err != nil {
			return fmt.Errorf("failed to seed experiment %s: %w", e.Name, err)
		}
		if created {
			s.logger.Info(observability.WithFields(ctx, observability.Field{Key: "test_name", Value: e.Name}), "experiment seeded")
		}
	}
	return nil
}

// List returns every experiment
func (s *ExperimentService) List(ctx context.Context) ([]*models.Experiment, error) {
	return s.experiments.FindAll(ctx)
}

// SetActive starts or stops an experiment
func (s *ExperimentService) SetActive(ctx context.Context, name string, active bool) error {
	return s.experiments.SetActive(ctx, name, active)
}

// Assign returns the variant userID sees in testName. Inactive experiments
// always serve their first variant.
func (s *ExperimentService) Assign(ctx context.Context, userID, testName string) (models.ExperimentVariant, error) {
	e, err := s.experiments.FindByName(ctx, testName)
	if err != nil {
		return models.ExperimentVariant{}, err
	}
	if len(e.Variants) == 0 {
		return models.ExperimentVariant{}, ErrExperimentNotRunning
	}
	if !e.Active {
		return e.Variants[0], nil
	}
	id := bucketing.AssignWeighted(userID, e.Name, e.VariantIDs(), e.PromotedVariant, e.TrafficSplit)
	if v, ok := e.Variant(id); ok {
		return v, nil
	}
	return e.Variants[0], nil
}

// Track appends an ab_test event for a view, click or conversion
func (s *ExperimentService) Track(ctx context.Context, userID, testName, variant, action string) error {
	switch action {
	case models.ActionView, models.ActionClick, models.ActionConversion:
	default:
		return fmt.Errorf("%w: unknown experiment action %q", ErrInvalidEvent, action)
	}
	if userID == "" || testName == "" || variant == "" {
		return fmt.Errorf("%w: userId, testName and variant are required", ErrInvalidEvent)
	}
	return s.events.Append(ctx, &models.AnalyticsEvent{
		Type:   models.EventABTest,
		UserID: userID,
		Data: map[string]interface{}{
			"testName": testName,
			"variant":  variant,
			"action":   action,
		},
		Source:    "system",
		Timestamp: s.now(),
	})
}

// AssignAndView assigns a variant and records that the user saw it
func (s *ExperimentService) AssignAndView(ctx context.Context, userID, testName string) (models.ExperimentVariant, error) {
	v, err := s.Assign(ctx, userID, testName)
	if err != nil {
		return v, err
	}
	if err := s.Track(ctx, userID, testName, v.ID, models.ActionView); err != nil {
		s.logger.Error(observability.WithFields(ctx, observability.Field{Key: "test_name", Value: testName}),
			"failed to track experiment view", err)
	}
	return v, nil
}

// Report summarises experiment events in the trailing window
func (s *ExperimentService) Report(ctx context.Context) (*ExperimentReport, error) {
	now := s.now()
	since := now.Add(-s.window)
	rows, err := s.events.AggregateVariants(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate experiment events: %w", err)
	}
	results := experiments.Summarize(rows, s.policy)
	return &ExperimentReport{
		Since:           since,
		Results:         results,
		Recommendations: experiments.Recommend(results, s.policy),
		GeneratedAt:     now,
	}, nil
}

// Optimize decides per test whether traffic should move to the winner and,
// when auto-optimisation is on, promotes it. A winner already promoted is left alone.
func (s *ExperimentService) Optimize(ctx context.Context) ([]OptimizationOutcome, error) {
	report, err := s.Report(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]OptimizationOutcome, 0, len(report.Results))
	for _, r := range report.Results {
		out := OptimizationOutcome{Decision: experiments.Decide(r, s.policy)}
		testCtx := observability.WithFields(ctx, observability.Field{Key: "test_name", Value: r.TestName})

		if out.Apply && s.autoOptimize {
			promoted, err := s.experiments.Promote(ctx, r.TestName, out.Winner, out.Split, s.now())
			if err != nil {
				return outcomes, fmt.Errorf("failed to promote %s/%s: %w", r.TestName, out.Winner, err)
			}
			out.Promoted = promoted
			if promoted {
				s.logger.Info(testCtx, fmt.Sprintf("promoted variant %s with %d%% of traffic", out.Winner, out.Split))
			} else {
				s.logger.Debug(testCtx, "winner already promoted")
			}
		} else {
			s.logger.Debug(testCtx, out.Reason)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
