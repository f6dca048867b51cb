package jobs

import (
	"context"
	"fmt"

	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
)

// DailyAnalyticsJob logs the experiment report and its recommendations.
// It never changes experiment configuration.
type DailyAnalyticsJob struct {
	experiments ExperimentAnalyzer
	logger      *observability.Logger
	spec        string
}

// NewDailyAnalyticsJob creates a new daily analytics rollup
func NewDailyAnalyticsJob(experiments ExperimentAnalyzer, spec string, logger *observability.Logger) *DailyAnalyticsJob {
	if spec == "" {
		spec = "0 9 * * *"
	}
	return &DailyAnalyticsJob{experiments: experiments, logger: logger, spec: spec}
}

// Name returns the job name
func (j *DailyAnalyticsJob) Name() string {
	return AnalyticsRollupDailyName
}

// Schedule returns the cron spec
func (j *DailyAnalyticsJob) Schedule() string {
	return j.spec
}

// Run builds the report
func (j *DailyAnalyticsJob) Run(ctx context.Context) error {
	report, err := j.experiments.Report(ctx)
	if err != nil {
		return fmt.Errorf("experiment report failed: %w", err)
	}
	j.logger.Info(ctx, fmt.Sprintf("experiment report: %d tests, %d recommendations", len(report.Results), len(report.Recommendations)))
	for _, rec := range report.Recommendations {
		j.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "test_name", Value: rec.TestName},
			observability.Field{Key: "variant", Value: rec.Variant},
			observability.Field{Key: "confidence", Value: rec.Confidence},
		), rec.Message)
	}
	return nil
}

// WeeklyAnalyticsJob applies the optimisation policy, promoting winners when
// auto-optimisation is enabled.
type WeeklyAnalyticsJob struct {
	experiments ExperimentAnalyzer
	logger      *observability.Logger
	spec        string
}

// NewWeeklyAnalyticsJob creates a new weekly analytics rollup
func NewWeeklyAnalyticsJob(experiments ExperimentAnalyzer, spec string, logger *observability.Logger) *WeeklyAnalyticsJob {
	if spec == "" {
		spec = "0 0 * * 0"
	}
	return &WeeklyAnalyticsJob{experiments: experiments, logger: logger, spec: spec}
}

// Name returns the job name
func (j *WeeklyAnalyticsJob) Name() string {
	return AnalyticsRollupWeeklyName
}

// Schedule returns the cron spec
func (j *WeeklyAnalyticsJob) Schedule() string {
	return j.spec
}

// Run executes the optimisation pass
func (j *WeeklyAnalyticsJob) Run(ctx context.Context) error {
	outcomes, err := j.experiments.Optimize(ctx)
	promoted := 0
	for _, o := range outcomes {
		if o.Promoted {
			promoted++
		}
	}
	if err != nil {
		return fmt.Errorf("experiment optimisation failed after %d promotions: %w", promoted, err)
	}
	j.logger.Info(ctx, fmt.Sprintf("experiment optimisation: %d tests evaluated, %d promoted", len(outcomes), promoted))
	return nil
}
