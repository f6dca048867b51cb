package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/discount"
	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"github.com/shopspring/decimal"
)

// Redemption is the outcome of a successful discount redemption
type Redemption struct {
	Code           string  `json:"code"`
	CampaignID     string  `json:"campaignId,omitempty"`
	OrderValue     float64 `json:"orderValue"`
	DiscountAmount float64 `json:"discountAmount"`
	FinalAmount    float64 `json:"finalAmount"`
	UsedCount      int     `json:"usedCount"`
}

// DiscountService issues and redeems discount codes, both standalone and
// embedded in campaigns.
type DiscountService struct {
	discounts repositories.DiscountRepository
	campaigns repositories.CampaignRepository
	users     repositories.UserRepository
	generator *discount.Generator
	recorder  eventRecorder
	logger    *observability.Logger
	now       func() time.Time
}

// NewDiscountService creates a new DiscountService
func NewDiscountService(
	discounts repositories.DiscountRepository,
	campaigns repositories.CampaignRepository,
	users repositories.UserRepository,
	events repositories.EventRepository,
	generator *discount.Generator,
	logger *observability.Logger,
) *DiscountService {
	return &DiscountService{
		discounts: discounts,
		campaigns: campaigns,
		users:     users,
		generator: generator,
		recorder:  eventRecorder{events: events, logger: logger, now: time.Now},
		logger:    logger,
		now:       time.Now,
	}
}

// Create generates and stores a standalone code, regenerating on collision
func (s *DiscountService) Create(ctx context.Context, opts discount.Options) (*models.DiscountCode, error) {
	return s.store(ctx, func() (*models.DiscountCode, error) {
		return s.generator.Generate(opts)
	})
}

// CreatePersonalized issues a code tied to one user, prefixed by their primary segment
func (s *DiscountService) CreatePersonalized(ctx context.Context, userID string, opts discount.Options) (*models.DiscountCode, error) {
	user, err := s.users.FindByExternalID(ctx, userID)
	if err != nil {
		return nil, err
	}
	opts.UserID = userID
	return s.store(ctx, func() (*models.DiscountCode, error) {
		dc, err := s.generator.Generate(opts)
		if err != nil {
			return nil, err
		}
		if dc.Code, err = s.generator.PersonalizedCode(*user, opts.Code); err != nil {
			return nil, err
		}
		return dc, nil
	})
}

// CreateTimeLimited issues a code whose suffix encodes its creation time
func (s *DiscountService) CreateTimeLimited(ctx context.Context, opts discount.Options) (*models.DiscountCode, error) {
	return s.store(ctx, func() (*models.DiscountCode, error) {
		dc, err := s.generator.Generate(opts)
		if err != nil {
			return nil, err
		}
		code, expiry, err := s.generator.TimeLimitedCode(opts.ExpiryDays, opts.Code)
		if err != nil {
			return nil, err
		}
		dc.Code = code
		dc.ExpiryDate = expiry
		return dc, nil
	})
}

func (s *DiscountService) store(ctx context.Context, build func() (*models.DiscountCode, error)) (*models.DiscountCode, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		dc, err := build()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCampaign, err)
		}
		err = s.discounts.Create(ctx, dc)
		if errors.Is(err, repositories.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to store discount code: %w", err)
		}
		return dc, nil
	}
	return nil, fmt.Errorf("failed to allocate a unique discount code after %d attempts", maxCodeAttempts)
}

// CreateBatch issues count distinct codes sharing the same terms. Codes that
// collide with stored ones are skipped, so fewer than count may be returned.
func (s *DiscountService) CreateBatch(ctx context.Context, count int, opts discount.Options) ([]*models.DiscountCode, error) {
	template, err := s.generator.Generate(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCampaign, err)
	}
	codes, err := s.generator.GenerateBatch(ctx, count, opts.Code)
	if err != nil {
		return nil, err
	}

	batch := make([]*models.DiscountCode, 0, len(codes))
	for _, code := range codes {
		dc := *template
		dc.Code = code
		batch = append(batch, &dc)
	}
	inserted, err := s.discounts.CreateMany(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to store discount batch: %w", err)
	}
	if inserted < len(batch) {
		s.logger.Warn(observability.WithFields(ctx,
			observability.Field{Key: "requested", Value: count},
			observability.Field{Key: "inserted", Value: inserted},
		), "some generated codes already existed and were skipped")
		kept := make([]*models.DiscountCode, 0, inserted)
		for _, dc := range batch {
			stored, err := s.discounts.FindByCode(ctx, dc.Code)
			if err == nil && stored.ID == dc.ID {
				kept = append(kept, dc)
			}
		}
		batch = kept
	}
	return batch, nil
}

// Lookup finds a code among standalone codes, then among campaign codes
func (s *DiscountService) Lookup(ctx context.Context, code string) (*models.DiscountCode, error) {
	clean, err := discount.Validate(code)
	if err != nil {
		return nil, err
	}
	dc, err := s.discounts.FindByCode(ctx, clean)
	if err == nil {
		return dc, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	c, err := s.campaigns.FindByDiscountCode(ctx, clean)
	if err != nil {
		return nil, err
	}
	embedded := *c.DiscountCode
	embedded.CampaignID = c.CampaignID
	return &embedded, nil
}

// Check reports what redeeming code against orderValue would give, without redeeming it
func (s *DiscountService) Check(ctx context.Context, code string, orderValue float64) (*Redemption, error) {
	dc, err := s.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.checkUsable(*dc, orderValue); err != nil {
		return nil, err
	}
	return redemptionOf(*dc, orderValue), nil
}

// Redeem counts one use of code for userID's order. The use is recorded with a
// conditional update, so concurrent redemptions never exceed maxUses.
// A personalized code is only redeemable by its owner.
func (s *DiscountService) Redeem(ctx context.Context, code, userID string, orderValue float64) (*Redemption, error) {
	if orderValue <= 0 {
		return nil, ErrInvalidOrder
	}
	dc, err := s.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if dc.UserID != "" && dc.UserID != userID {
		return nil, ErrDiscountNotOwned
	}
	if err := s.checkUsable(*dc, orderValue); err != nil {
		return nil, err
	}

	now := s.now()
	embedded := dc.ID.IsZero() && dc.CampaignID != ""
	if embedded {
		c, err := s.campaigns.RedeemDiscount(ctx, dc.Code, orderValue, now)
		if err != nil {
			return nil, redeemError(err)
		}
		dc = c.DiscountCode
		dc.CampaignID = c.CampaignID
	} else {
		if dc, err = s.discounts.Redeem(ctx, dc.Code, orderValue, now); err != nil {
			return nil, redeemError(err)
		}
		if dc.CampaignID != "" {
			delta := models.CampaignAnalytics{Conversions: 1, Revenue: orderValue}
			if err := s.campaigns.IncrementAnalytics(ctx, dc.CampaignID, delta); err != nil {
				s.logger.Error(observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: dc.CampaignID}),
					"failed to count campaign conversion", err)
			}
		}
	}

	r := redemptionOf(*dc, orderValue)
	s.recorder.record(ctx, models.EventDiscountUsed, userID, dc.CampaignID, map[string]interface{}{
		"code":           dc.Code,
		"orderValue":     orderValue,
		"discountAmount": r.DiscountAmount,
		"campaignId":     dc.CampaignID,
	})
	return r, nil
}

// DeactivateExpired marks expired standalone and campaign codes inactive
func (s *DiscountService) DeactivateExpired(ctx context.Context) (standalone, embedded int64, err error) {
	now := s.now()
	if standalone, err = s.discounts.DeactivateExpired(ctx, now); err != nil {
		return 0, 0, fmt.Errorf("failed to deactivate discount codes: %w", err)
	}
	if embedded, err = s.campaigns.DeactivateExpiredDiscounts(ctx, now); err != nil {
		return standalone, 0, fmt.Errorf("failed to deactivate campaign discount codes: %w", err)
	}
	return standalone, embedded, nil
}

func (s *DiscountService) checkUsable(dc models.DiscountCode, orderValue float64) error {
	if !dc.Usable(s.now()) {
		return ErrDiscountNotUsable
	}
	if orderValue < dc.MinOrderValue {
		return fmt.Errorf("%w: minimum is %.2f", ErrOrderBelowMinimum, dc.MinOrderValue)
	}
	return nil
}

func redeemError(err error) error {
	if errors.Is(err, repositories.ErrConflict) {
		return ErrDiscountNotUsable
	}
	return fmt.Errorf("failed to redeem discount code: %w", err)
}

// redemptionOf prices the order. A fixed amount never exceeds the order value.
func redemptionOf(dc models.DiscountCode, orderValue float64) *Redemption {
	value := decimal.NewFromFloat(orderValue)
	var off decimal.Decimal
	switch {
	case dc.FixedAmount != nil:
		off = decimal.Min(decimal.NewFromFloat(*dc.FixedAmount), value)
	case dc.Percentage != nil:
		off = value.Mul(decimal.NewFromFloat(*dc.Percentage)).Div(decimal.NewFromInt(100))
	}
	off = off.Round(2)
	discountAmount, _ := off.Float64()
	final, _ := value.Sub(off).Round(2).Float64()
	return &Redemption{
		Code:           dc.Code,
		CampaignID:     dc.CampaignID,
		OrderValue:     orderValue,
		DiscountAmount: discountAmount,
		FinalAmount:    final,
		UsedCount:      dc.UsedCount,
	}
}
