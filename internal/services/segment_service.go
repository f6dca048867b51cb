package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
)

// SegmentRefreshResult reports one full recomputation
type SegmentRefreshResult struct {
	Scanned int            `json:"scanned"`
	Updated int            `json:"updated"`
	Members map[string]int `json:"members"`
}

// SegmentService recomputes segment membership from user totals and activity
type SegmentService struct {
	users  repositories.UserRepository
	logger *observability.Logger
	now    func() time.Time
}

// NewSegmentService creates a new SegmentService
func NewSegmentService(users repositories.UserRepository, logger *observability.Logger) *SegmentService {
	return &SegmentService{users: users, logger: logger, now: time.Now}
}

// Refresh streams every user and rewrites segments that changed
func (s *SegmentService) Refresh(ctx context.Context) (*SegmentRefreshResult, error) {
	now := s.now()
	result := &SegmentRefreshResult{Members: make(map[string]int)}
	err := s.users.Each(ctx, func(u *models.User) error {
		result.Scanned++
		segments := u.ComputeSegments(now)
		for _, seg := range segments {
			result.Members[seg]++
		}
		if sameSegments(u.Segments, segments) {
			return nil
		}
		if err := s.users.SetSegments(ctx, u.ExternalID, segments); err != nil {
			return fmt.Errorf("failed to update segments of %s: %w", u.ExternalID, err)
		}
		result.Updated++
		return nil
	})
	if err != nil {
		return result, err
	}
	s.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "scanned", Value: result.Scanned},
		observability.Field{Key: "updated", Value: result.Updated},
	), "segments refreshed")
	return result, nil
}

func sameSegments(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
