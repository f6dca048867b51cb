package ledger

import (
	"errors"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrAffiliateNotActive   = errors.New("affiliate is not active")
	ErrDuplicateOrder       = errors.New("order already attributed to affiliate")
	ErrNoMatchingReferral   = errors.New("no matching pending affiliate referral")
	ErrAmbiguousReferral    = errors.New("more than one pending affiliate referral matches")
	ErrInvalidPayoutAmount  = errors.New("payout amount must be positive")
	ErrInsufficientEarnings = errors.New("insufficient earnings for payout")
	ErrPayoutBelowThreshold = errors.New("minimum payout amount not reached")
	ErrPayoutNotFound       = errors.New("payout not found")
	ErrPayoutNotPending     = errors.New("payout is not pending")
)

// DefaultPayoutThreshold is the minimum totalEarnings before a payout can be requested
const DefaultPayoutThreshold = 100.0

type tierRule struct {
	min  float64
	tier models.AffiliateTier
	rate float64
}

// ordered highest first
var tierRules = []tierRule{
	{min: 10000, tier: models.TierPlatinum, rate: 0.20},
	{min: 5000, tier: models.TierGold, rate: 0.15},
	{min: 1000, tier: models.TierSilver, rate: 0.12},
	{min: 0, tier: models.TierBronze, rate: 0.10},
}

// TierFor maps cumulative earnings to a tier and its commission rate
func TierFor(totalEarnings float64) (models.AffiliateTier, float64) {
	for _, r := range tierRules {
		if totalEarnings >= r.min {
			return r.tier, r.rate
		}
	}
	return models.TierBronze, 0.10
}

// NewAffiliate builds a pending bronze affiliate
func NewAffiliate(affiliateID, externalID, referralCode string, now time.Time) models.Affiliate {
	tier, rate := TierFor(0)
	return models.Affiliate{
		AffiliateID:    affiliateID,
		ExternalID:     externalID,
		ReferralCode:   referralCode,
		Status:         models.AffiliatePending,
		Tier:           tier,
		CommissionRate: rate,
		Referrals:      []models.AffiliateReferral{},
		Payouts:        []models.Payout{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// recompute derives tier, commission rate and conversion rate from the counters
func recompute(a *models.Affiliate) {
	a.Tier, a.CommissionRate = TierFor(a.Performance.TotalEarnings)
	if a.Performance.TotalReferrals > 0 {
		a.Performance.ConversionRate = decimal.NewFromInt(int64(a.Performance.SuccessfulReferrals)).
			Div(decimal.NewFromInt(int64(a.Performance.TotalReferrals))).Round(4).InexactFloat64()
	} else {
		a.Performance.ConversionRate = 0
	}
}

// AddReferral attributes a sale to the affiliate. The commission uses the rate
// in force now; later tier changes do not touch this line item.
func AddReferral(a models.Affiliate, userID, orderID string, orderValue float64, now time.Time) (models.Affiliate, models.AffiliateReferral, error) {
	if a.Status != models.AffiliateActive {
		return a, models.AffiliateReferral{}, ErrAffiliateNotActive
	}
	if orderValue < 0 {
		return a, models.AffiliateReferral{}, ErrInvalidOrderValue
	}
	if orderID != "" {
		for _, r := range a.Referrals {
			if r.UserID == userID && r.OrderID == orderID {
				return a, models.AffiliateReferral{}, ErrDuplicateOrder
			}
		}
	}

	commission := dec(orderValue).Mul(dec(a.CommissionRate))
	item := models.AffiliateReferral{
		UserID:         userID,
		OrderID:        orderID,
		OrderValue:     orderValue,
		CommissionRate: a.CommissionRate,
		Commission:     cents(commission),
		Status:         models.AffiliateReferralPending,
		CreatedAt:      now,
	}

	next := a.Clone()
	next.Referrals = append(next.Referrals, item)
	next.Performance.TotalReferrals++
	next.Performance.PendingEarnings = cents(dec(next.Performance.PendingEarnings).Add(dec(item.Commission)))
	next.UpdatedAt = now
	recompute(&next)
	return next, item, nil
}

// ConfirmReferral confirms the pending line item for userID. It matches on
// orderID when one is given and on orderValue otherwise; more than one match
// is ErrAmbiguousReferral.
func ConfirmReferral(a models.Affiliate, userID, orderID string, orderValue float64, now time.Time) (models.Affiliate, models.AffiliateReferral, error) {
	idx := -1
	for i, r := range a.Referrals {
		if r.UserID != userID || r.Status != models.AffiliateReferralPending {
			continue
		}
		if orderID != "" && r.OrderID != orderID {
			continue
		}
		if orderID == "" && !dec(r.OrderValue).Equal(dec(orderValue)) {
			continue
		}
		if idx >= 0 {
			return a, models.AffiliateReferral{}, ErrAmbiguousReferral
		}
		idx = i
	}
	if idx < 0 {
		return a, models.AffiliateReferral{}, ErrNoMatchingReferral
	}

	next := a.Clone()
	item := next.Referrals[idx]
	item.Status = models.AffiliateReferralConfirmed
	confirmedAt := now
	item.ConfirmedAt = &confirmedAt
	next.Referrals[idx] = item

	commission := dec(item.Commission)
	next.Performance.SuccessfulReferrals++
	next.Performance.PendingEarnings = cents(dec(next.Performance.PendingEarnings).Sub(commission))
	next.Performance.TotalEarnings = cents(dec(next.Performance.TotalEarnings).Add(commission))
	next.UpdatedAt = now
	recompute(&next)
	return next, item, nil
}

// CanRequestPayout reports whether earnings have reached threshold
func CanRequestPayout(a models.Affiliate, threshold float64) bool {
	return a.Performance.TotalEarnings >= threshold
}

// RequestPayout moves amount from totalEarnings into pendingEarnings and
// records a pending payout. Tier and commission rate are left as they are;
// only new earnings move them.
func RequestPayout(a models.Affiliate, payoutID string, amount float64, method string, threshold float64, now time.Time) (models.Affiliate, models.Payout, error) {
	if amount <= 0 {
		return a, models.Payout{}, ErrInvalidPayoutAmount
	}
	if amount > a.Performance.TotalEarnings {
		return a, models.Payout{}, ErrInsufficientEarnings
	}
	if !CanRequestPayout(a, threshold) {
		return a, models.Payout{}, ErrPayoutBelowThreshold
	}

	payout := models.Payout{
		PayoutID:    payoutID,
		Amount:      amount,
		Method:      method,
		Status:      models.PayoutPending,
		RequestedAt: now,
	}

	next := a.Clone()
	next.Payouts = append(next.Payouts, payout)
	next.Performance.TotalEarnings = cents(dec(next.Performance.TotalEarnings).Sub(dec(amount)))
	next.Performance.PendingEarnings = cents(dec(next.Performance.PendingEarnings).Add(dec(amount)))
	next.UpdatedAt = now
	return next, payout, nil
}

// CompletePayout settles a pending payout: pending earnings become paid earnings
func CompletePayout(a models.Affiliate, payoutID, transactionID string, now time.Time) (models.Affiliate, error) {
	return settlePayout(a, payoutID, now, func(next *models.Affiliate, p *models.Payout) {
		p.Status = models.PayoutCompleted
		p.TransactionID = transactionID
		next.Performance.PaidEarnings = cents(dec(next.Performance.PaidEarnings).Add(dec(p.Amount)))
	})
}

// FailPayout returns a pending payout's amount to totalEarnings
func FailPayout(a models.Affiliate, payoutID, reason string, now time.Time) (models.Affiliate, error) {
	return settlePayout(a, payoutID, now, func(next *models.Affiliate, p *models.Payout) {
		p.Status = models.PayoutFailed
		p.FailureReason = reason
		next.Performance.TotalEarnings = cents(dec(next.Performance.TotalEarnings).Add(dec(p.Amount)))
	})
}

func settlePayout(a models.Affiliate, payoutID string, now time.Time, apply func(*models.Affiliate, *models.Payout)) (models.Affiliate, error) {
	idx := -1
	for i, p := range a.Payouts {
		if p.PayoutID == payoutID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return a, ErrPayoutNotFound
	}
	status := a.Payouts[idx].Status
	if status != models.PayoutPending && status != models.PayoutProcessing {
		return a, ErrPayoutNotPending
	}

	next := a.Clone()
	p := next.Payouts[idx]
	processedAt := now
	p.ProcessedAt = &processedAt
	next.Performance.PendingEarnings = cents(dec(next.Performance.PendingEarnings).Sub(dec(p.Amount)))
	apply(&next, &p)
	next.Payouts[idx] = p
	next.UpdatedAt = now
	return next, nil
}
