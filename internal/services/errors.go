package services

import (
	"errors"

	"github.com/ArowuTest/telegram-marketing-backend/internal/discount"
	"github.com/ArowuTest/telegram-marketing-backend/internal/ledger"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"github.com/ArowuTest/telegram-marketing-backend/internal/scheduler"
)

// Validation errors
var (
	ErrInvalidCampaign    = errors.New("invalid campaign")
	ErrInvalidEvent       = errors.New("invalid event")
	ErrInvalidPreference  = errors.New("unknown preference")
	ErrInvalidOrder       = errors.New("order value must be positive")
	ErrDuplicateReferral  = errors.New("referral already exists for this pair")
	ErrSelfReferral       = errors.New("users cannot refer themselves")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Business rule violations
var (
	ErrReferrerIneligible   = errors.New("referrer not found or not subscribed")
	ErrReferralNotPending   = ledger.ErrReferralNotPending
	ErrReferralExpired      = ledger.ErrReferralExpired
	ErrCampaignNotSendable  = errors.New("campaign is not in a sendable state")
	ErrCampaignNotEditable  = errors.New("campaign can only be edited while in draft")
	ErrDiscountNotUsable    = errors.New("discount code is inactive, expired or used up")
	ErrOrderBelowMinimum    = errors.New("order value is below the discount minimum")
	ErrDiscountNotOwned     = errors.New("discount code belongs to another user")
	ErrAffiliateExists      = errors.New("user is already an affiliate")
	ErrAffiliateTerminated  = errors.New("terminated affiliates cannot change status")
	ErrNotAttributed        = errors.New("user was not referred by an affiliate")
	ErrEmailTaken           = errors.New("email is already registered")
	ErrExperimentNotRunning = errors.New("experiment is not active")
)

// Kind groups errors by how a caller should react to them
type Kind int

const (
	// KindInternal covers storage and infrastructure faults. Retrying may succeed.
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindRule
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{
		ErrInvalidCampaign, ErrInvalidEvent, ErrInvalidPreference, ErrInvalidOrder, ErrSelfReferral,
		ErrInvalidCredentials, discount.ErrInvalidCode, discount.ErrInvalidOptions, discount.ErrEmptyCharset,
		scheduler.ErrInvalidRecurrence, ledger.ErrInvalidOrderValue, ledger.ErrInvalidPayoutAmount,
	}},
	{KindNotFound, []error{repositories.ErrNotFound, ledger.ErrPayoutNotFound, ledger.ErrNoMatchingReferral}},
	{KindConflict, []error{
		ErrDuplicateReferral, ErrAffiliateExists, ErrEmailTaken, ledger.ErrDuplicateOrder,
		repositories.ErrDuplicate, repositories.ErrConflict, repositories.ErrVersionConflict,
	}},
	{KindRule, []error{
		ErrReferrerIneligible, ErrReferralNotPending, ErrReferralExpired, ErrCampaignNotSendable,
		ErrCampaignNotEditable, ErrDiscountNotUsable, ErrOrderBelowMinimum, ErrDiscountNotOwned, ErrAffiliateTerminated,
		ErrNotAttributed, ErrExperimentNotRunning, ledger.ErrAffiliateNotActive, ledger.ErrAmbiguousReferral,
		ledger.ErrInsufficientEarnings, ledger.ErrPayoutBelowThreshold, ledger.ErrPayoutNotPending,
	}},
}

// KindOf classifies err by the sentinel it wraps
func KindOf(err error) Kind {
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindInternal
}
