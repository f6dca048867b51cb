package jobs

import (
	"context"
	"fmt"

	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
)

// SegmentRefreshJob recomputes every user's segments from current totals and activity
type SegmentRefreshJob struct {
	segments SegmentRefresher
	logger   *observability.Logger
	spec     string
}

// NewSegmentRefreshJob creates a new segment refresh job
func NewSegmentRefreshJob(segments SegmentRefresher, spec string, logger *observability.Logger) *SegmentRefreshJob {
	if spec == "" {
		spec = "0 3 * * 0"
	}
	return &SegmentRefreshJob{segments: segments, logger: logger, spec: spec}
}

// Name returns the job name
func (j *SegmentRefreshJob) Name() string {
	return SegmentRefreshName
}

// Schedule returns the cron spec
func (j *SegmentRefreshJob) Schedule() string {
	return j.spec
}

// Run executes the refresh
func (j *SegmentRefreshJob) Run(ctx context.Context) error {
	result, err := j.segments.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("segment refresh failed: %w", err)
	}
	j.logger.Info(observability.WithFields(ctx, observability.Field{Key: "members", Value: result.Members}),
		fmt.Sprintf("segments refreshed: %d users scanned, %d updated", result.Scanned, result.Updated))
	return nil
}
