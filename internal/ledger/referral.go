package ledger

import (
	"errors"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/config"
	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrReferralNotPending = errors.New("referral is not pending")
	ErrReferralExpired    = errors.New("referral has expired")
	ErrInvalidOrderValue  = errors.New("order value must not be negative")
)

// RewardPolicy is the user-to-user referral reward rule: a rate of the order
// value for each side, each capped.
type RewardPolicy struct {
	ReferrerRate decimal.Decimal
	ReferrerCap  decimal.Decimal
	ReferredRate decimal.Decimal
	ReferredCap  decimal.Decimal
	Validity     time.Duration
}

// DefaultRewardPolicy is 10% capped at 50 for the referrer, 5% capped at 25
// for the referred user, valid for 30 days.
func DefaultRewardPolicy() RewardPolicy {
	return RewardPolicy{
		ReferrerRate: decimal.RequireFromString("0.10"),
		ReferrerCap:  decimal.NewFromInt(50),
		ReferredRate: decimal.RequireFromString("0.05"),
		ReferredCap:  decimal.NewFromInt(25),
		Validity:     30 * 24 * time.Hour,
	}
}

// RewardPolicyFromConfig builds the policy from configuration
func RewardPolicyFromConfig(cfg config.ReferralConfig) RewardPolicy {
	p := DefaultRewardPolicy()
	if cfg.ReferrerRate > 0 {
		p.ReferrerRate = dec(cfg.ReferrerRate)
	}
	if cfg.ReferrerCap > 0 {
		p.ReferrerCap = dec(cfg.ReferrerCap)
	}
	if cfg.ReferredRate > 0 {
		p.ReferredRate = dec(cfg.ReferredRate)
	}
	if cfg.ReferredCap > 0 {
		p.ReferredCap = dec(cfg.ReferredCap)
	}
	if cfg.ExpiryDays > 0 {
		p.Validity = time.Duration(cfg.ExpiryDays) * 24 * time.Hour
	}
	return p
}

// Rewards computes both sides' rewards for an order
func (p RewardPolicy) Rewards(orderValue float64) (referrer, referred float64) {
	v := dec(orderValue)
	referrer = cents(decimal.Min(v.Mul(p.ReferrerRate), p.ReferrerCap))
	referred = cents(decimal.Min(v.Mul(p.ReferredRate), p.ReferredCap))
	return referrer, referred
}

// NewReferral builds a pending record expiring after the policy's validity window
func (p RewardPolicy) NewReferral(code, referrerID, referredID string, now time.Time) models.Referral {
	return models.Referral{
		ReferralCode:   code,
		ReferrerUserID: referrerID,
		ReferredUserID: referredID,
		Status:         models.ReferralPending,
		ExpiresAt:      now.Add(p.Validity),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// CompleteReferral returns the completed record for a qualifying purchase.
// An expired referral comes back cancelled together with ErrReferralExpired;
// expiry is checked before anything else about the order.
func CompleteReferral(r models.Referral, orderValue float64, orderID string, now time.Time, p RewardPolicy) (models.Referral, error) {
	if r.Status != models.ReferralPending {
		return r, ErrReferralNotPending
	}
	if r.Expired(now) {
		cancelled, _ := CancelReferral(r, "expired", now)
		return cancelled, ErrReferralExpired
	}
	if orderValue < 0 {
		return r, ErrInvalidOrderValue
	}

	next := r
	next.ReferrerReward, next.ReferredReward = p.Rewards(orderValue)
	next.OrderValue = orderValue
	next.OrderID = orderID
	next.Status = models.ReferralCompleted
	completedAt := now
	next.CompletedAt = &completedAt
	next.UpdatedAt = now
	return next, nil
}

// CancelReferral voids a pending referral
func CancelReferral(r models.Referral, reason string, now time.Time) (models.Referral, error) {
	if r.Status != models.ReferralPending {
		return r, ErrReferralNotPending
	}
	next := r
	next.Status = models.ReferralCancelled
	next.ReferrerReward, next.ReferredReward = 0, 0
	cancelledAt := now
	next.CancelledAt = &cancelledAt
	next.CancelReason = reason
	next.UpdatedAt = now
	return next, nil
}
