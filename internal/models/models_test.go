package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUser_ComputeSegments(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		user User
		want []string
	}{
		{
			name: "no purchases",
			user: User{LastInteraction: now},
			want: []string{SegmentNewCustomer},
		},
		{
			name: "returning",
			user: User{TotalPurchases: 2, TotalSpent: 150, LastInteraction: now},
			want: []string{SegmentReturningCustomer},
		},
		{
			name: "vip",
			user: User{TotalPurchases: 9, TotalSpent: 1000.01, LastInteraction: now},
			want: []string{SegmentReturningCustomer, SegmentVIP},
		},
		{
			name: "exactly 1000 is not vip",
			user: User{TotalPurchases: 3, TotalSpent: 1000, LastInteraction: now},
			want: []string{SegmentReturningCustomer},
		},
		{
			name: "inactive new customer",
			user: User{LastInteraction: now.Add(-31 * 24 * time.Hour)},
			want: []string{SegmentNewCustomer, SegmentInactive},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.ComputeSegments(now))
		})
	}
}

func TestUser_AllowsCampaign(t *testing.T) {
	u := User{Preferences: Preferences{Notifications: true, Promotions: false, NewProducts: true}}

	assert.False(t, u.AllowsCampaign(CampaignTypeDiscount))
	assert.False(t, u.AllowsCampaign(CampaignTypePersonalized))
	assert.True(t, u.AllowsCampaign(CampaignTypeNewProduct))
	assert.True(t, u.AllowsCampaign(CampaignTypeNewsletter))
	assert.True(t, u.AllowsCampaign(CampaignTypeAnnouncement))
	assert.True(t, u.AllowsCampaign(CampaignType("flash_sale")))
}

func TestDiscountCode_Usable(t *testing.T) {
	now := time.Now()
	one := 1

	active := DiscountCode{IsActive: true, ExpiryDate: now.Add(time.Hour)}
	assert.True(t, active.Usable(now))

	expired := active
	expired.ExpiryDate = now.Add(-time.Second)
	assert.False(t, expired.Usable(now))

	inactive := active
	inactive.IsActive = false
	assert.False(t, inactive.Usable(now))

	usedUp := active
	usedUp.MaxUses = &one
	usedUp.UsedCount = 1
	assert.False(t, usedUp.Usable(now))
}

func TestCampaign_Predicates(t *testing.T) {
	c := Campaign{Status: CampaignStatusScheduled}
	assert.True(t, c.CanSend())
	c.Status = CampaignStatusPaused
	assert.False(t, c.CanSend())

	assert.True(t, Campaign{}.TargetsAll())
	assert.True(t, Campaign{TargetSegments: []string{SegmentVIP, SegmentAll}}.TargetsAll())
	assert.False(t, Campaign{TargetSegments: []string{SegmentVIP}}.TargetsAll())

	assert.False(t, c.CanUseDiscount(time.Now()))
}

func TestAffiliate_CloneDoesNotShareSlices(t *testing.T) {
	a := Affiliate{Referrals: []AffiliateReferral{{UserID: "u1"}}}
	b := a.Clone()
	b.Referrals[0].UserID = "changed"
	assert.Equal(t, "u1", a.Referrals[0].UserID)
}
