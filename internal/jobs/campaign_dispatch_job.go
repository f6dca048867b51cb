package jobs

import (
	"context"
	"fmt"

	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
)

// CampaignDispatchJob starts due one-shot campaigns. Delivery runs detached,
// so a tick only waits for the status transition of each campaign.
type CampaignDispatchJob struct {
	dispatcher CampaignDispatcher
	logger     *observability.Logger
	spec       string
}

// NewCampaignDispatchJob creates a new campaign dispatch job
func NewCampaignDispatchJob(dispatcher CampaignDispatcher, spec string, logger *observability.Logger) *CampaignDispatchJob {
	if spec == "" {
		spec = "* * * * *"
	}
	return &CampaignDispatchJob{dispatcher: dispatcher, logger: logger, spec: spec}
}

// Name returns the job name
func (j *CampaignDispatchJob) Name() string {
	return CampaignDispatchName
}

// Schedule returns the cron spec
func (j *CampaignDispatchJob) Schedule() string {
	return j.spec
}

// Run starts every due campaign
func (j *CampaignDispatchJob) Run(ctx context.Context) error {
	started, err := j.dispatcher.DispatchDue(ctx)
	if started > 0 {
		j.logger.Info(ctx, fmt.Sprintf("started %d due campaigns", started))
	}
	if err != nil {
		return fmt.Errorf("campaign dispatch stopped after %d campaigns: %w", started, err)
	}
	return nil
}
