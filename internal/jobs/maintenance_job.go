package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
)

// MaintenanceJob runs the daily housekeeping tasks. A failing task is logged
// and the remaining tasks still run.
type MaintenanceJob struct {
	events    EventPurger
	discounts DiscountExpirer
	campaigns CampaignPurger
	referrals ReferralHousekeeper
	logger    *observability.Logger
	spec      string
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(
	events EventPurger,
	discounts DiscountExpirer,
	campaigns CampaignPurger,
	referrals ReferralHousekeeper,
	spec string,
	logger *observability.Logger,
) *MaintenanceJob {
	if spec == "" {
		spec = "0 2 * * *"
	}
	return &MaintenanceJob{
		events:    events,
		discounts: discounts,
		campaigns: campaigns,
		referrals: referrals,
		logger:    logger,
		spec:      spec,
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return MaintenanceName
}

// Schedule returns the cron spec
func (j *MaintenanceJob) Schedule() string {
	return j.spec
}

// Run executes every maintenance task and returns the joined failures
func (j *MaintenanceJob) Run(ctx context.Context) error {
	tasks := []struct {
		name string
		run  func(ctx context.Context) (string, error)
	}{
		{"purge-events", func(ctx context.Context) (string, error) {
			n, err := j.events.PurgeExpired(ctx)
			return fmt.Sprintf("purged %d analytics events", n), err
		}},
		{"expire-discounts", func(ctx context.Context) (string, error) {
			standalone, embedded, err := j.discounts.DeactivateExpired(ctx)
			return fmt.Sprintf("deactivated %d standalone and %d campaign discount codes", standalone, embedded), err
		}},
		{"purge-campaigns", func(ctx context.Context) (string, error) {
			n, err := j.campaigns.PurgeCompleted(ctx)
			return fmt.Sprintf("deleted %d completed campaigns", n), err
		}},
		{"expire-referrals", func(ctx context.Context) (string, error) {
			n, err := j.referrals.ExpirePending(ctx)
			return fmt.Sprintf("cancelled %d expired referrals", n), err
		}},
		{"settle-referral-credits", func(ctx context.Context) (string, error) {
			n, err := j.referrals.SettleCredits(ctx)
			return fmt.Sprintf("credited %d completed referrals", n), err
		}},
	}

	var errs []error
	for _, task := range tasks {
		taskCtx := observability.WithFields(ctx, observability.Field{Key: "task", Value: task.name})
		summary, err := task.run(taskCtx)
		if err != nil {
			j.logger.Error(taskCtx, "maintenance task failed", err)
			errs = append(errs, fmt.Errorf("%s: %w", task.name, err))
			continue
		}
		j.logger.Info(taskCtx, summary)
	}
	return errors.Join(errs...)
}
