package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repositories with the same conditional-update semantics as the
// Mongo implementations.

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
	// creditFailures makes the next n AddCredits calls for a user fail
	creditFailures map[string]int
}

var errCreditsUnavailable = errors.New("credits store unavailable")

func newMemUsers(users ...*models.User) *memUsers {
	m := &memUsers{users: map[string]*models.User{}, creditFailures: map[string]int{}}
	for _, u := range users {
		m.users[u.ExternalID] = u
	}
	return m
}

func (m *memUsers) get(id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return u, nil
}

func copyUser(u *models.User) *models.User {
	c := *u
	c.Segments = append([]string(nil), u.Segments...)
	c.CreditKeys = append([]string(nil), u.CreditKeys...)
	c.RecentOrders = append([]string(nil), u.RecentOrders...)
	return &c
}

func (m *memUsers) Touch(ctx context.Context, externalID string, profile models.UserProfile, referralCode string, now time.Time) (*models.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[externalID]
	if !ok {
		for _, other := range m.users {
			if referralCode != "" && other.ReferralCode == referralCode {
				return nil, false, repositories.ErrDuplicate
			}
		}
		u = &models.User{
			ExternalID:   externalID,
			Preferences:  models.DefaultPreferences(),
			Segments:     []string{models.SegmentNewCustomer},
			ReferralCode: referralCode,
			CreatedAt:    now,
		}
		m.users[externalID] = u
	}
	if profile.Username != "" {
		u.Username = profile.Username
	}
	u.LastInteraction = now
	u.BotBlocked = false
	u.DeliveryFailures = 0
	u.UpdatedAt = now
	return copyUser(u), !ok, nil
}

func (m *memUsers) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(externalID)
	if err != nil {
		return nil, err
	}
	return copyUser(u), nil
}

func (m *memUsers) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ReferralCode == code {
			return copyUser(u), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memUsers) FindAll(ctx context.Context, page, limit int) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.User{}
	for _, u := range m.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (m *memUsers) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func (m *memUsers) SetSubscription(ctx context.Context, externalID string, subscribed bool, now time.Time) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(externalID)
	if err != nil {
		return nil, err
	}
	u.IsSubscribed = subscribed
	if subscribed {
		u.SubscribedAt = &now
		u.Consent = models.Consent{Marketing: true, ConsentedAt: &now}
	} else {
		u.UnsubscribedAt = &now
	}
	return copyUser(u), nil
}

func (m *memUsers) SetPreference(ctx context.Context, externalID, key string, enabled bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(externalID)
	if err != nil {
		return nil, err
	}
	switch key {
	case "notifications":
		u.Preferences.Notifications = enabled
	case "promotions":
		u.Preferences.Promotions = enabled
	case "newProducts":
		u.Preferences.NewProducts = enabled
	}
	return copyUser(u), nil
}

func (m *memUsers) SetAffiliateCode(ctx context.Context, externalID, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(externalID)
	if err != nil {
		return false, err
	}
	if u.AffiliateCode != "" {
		return false, nil
	}
	u.AffiliateCode = code
	return true, nil
}

func (m *memUsers) RecordPurchase(ctx context.Context, externalID, orderID string, amount float64, now time.Time) (*models.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(externalID)
	if err != nil {
		return nil, false, err
	}
	if orderID != "" {
		if contains(u.RecentOrders, orderID) {
			return copyUser(u), false, nil
		}
		u.RecentOrders = append(u.RecentOrders, orderID)
	}
	u.TotalPurchases++
	u.TotalSpent += amount
	u.LastPurchaseDate = &now
	return copyUser(u), true, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func (m *memUsers) SetTotals(ctx context.Context, externalID string, purchases int, spent float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(externalID)
	if err != nil {
		return err
	}
	u.TotalPurchases, u.TotalSpent = purchases, spent
	return nil
}

func (m *memUsers) SetSegments(ctx context.Context, externalID string, segments []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(externalID)
	if err != nil {
		return err
	}
	u.Segments = append([]string(nil), segments...)
	return nil
}

func (m *memUsers) AddCredits(ctx context.Context, externalID string, amount float64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creditFailures[externalID] > 0 {
		m.creditFailures[externalID]--
		return errCreditsUnavailable
	}
	u, err := m.get(externalID)
	if err != nil {
		return err
	}
	if contains(u.CreditKeys, key) {
		return nil
	}
	u.CreditKeys = append(u.CreditKeys, key)
	u.Credits += amount
	return nil
}

func (m *memUsers) FindAudience(ctx context.Context, segments []string, userIDs []string) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.User{}
	for _, u := range m.users {
		if !u.IsSubscribed || u.BotBlocked {
			continue
		}
		if segments != nil && !anyOf(u.Segments, segments) {
			continue
		}
		if len(userIDs) > 0 && !anyOf([]string{u.ExternalID}, userIDs) {
			continue
		}
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func anyOf(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func (m *memUsers) RecordDeliveryFailure(ctx context.Context, externalID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(externalID)
	if err != nil {
		return 0, err
	}
	u.DeliveryFailures++
	return u.DeliveryFailures, nil
}

func (m *memUsers) ResetDeliveryFailures(ctx context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(externalID)
	if err != nil {
		return err
	}
	u.DeliveryFailures = 0
	return nil
}

func (m *memUsers) MarkBotBlocked(ctx context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(externalID)
	if err != nil {
		return err
	}
	u.BotBlocked = true
	return nil
}

func (m *memUsers) Each(ctx context.Context, fn func(*models.User) error) error {
	users, _ := m.FindAll(ctx, 0, 0)
	for _, u := range users {
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}

func (m *memUsers) Delete(ctx context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[externalID]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.users, externalID)
	return nil
}

func (m *memUsers) user(id string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

type memReferrals struct {
	mu   sync.Mutex
	refs []*models.Referral
}

func (m *memReferrals) CreateIfAbsent(ctx context.Context, r *models.Referral) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.refs {
		if existing.ReferrerUserID == r.ReferrerUserID && existing.ReferredUserID == r.ReferredUserID &&
			existing.Status != models.ReferralCancelled {
			return false, nil
		}
	}
	r.ID = primitive.NewObjectID()
	c := *r
	m.refs = append(m.refs, &c)
	return true, nil
}

func (m *memReferrals) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refs {
		if r.ID == id {
			c := *r
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memReferrals) FindPendingByReferred(ctx context.Context, referredUserID string) (*models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refs {
		if r.ReferredUserID == referredUserID && r.Status == models.ReferralPending {
			c := *r
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memReferrals) FindByReferrer(ctx context.Context, referrerUserID string) ([]*models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Referral{}
	for _, r := range m.refs {
		if r.ReferrerUserID == referrerUserID {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memReferrals) FindExpiredPending(ctx context.Context, now time.Time) ([]*models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Referral{}
	for _, r := range m.refs {
		if r.Status == models.ReferralPending && r.Expired(now) {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memReferrals) replaceIfPending(next *models.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.refs {
		if r.ID == next.ID {
			if r.Status != models.ReferralPending {
				return repositories.ErrConflict
			}
			c := *next
			m.refs[i] = &c
			return nil
		}
	}
	return repositories.ErrConflict
}

func (m *memReferrals) CompleteIfPending(ctx context.Context, next *models.Referral) error {
	return m.replaceIfPending(next)
}

func (m *memReferrals) CancelIfPending(ctx context.Context, next *models.Referral) error {
	return m.replaceIfPending(next)
}

func (m *memReferrals) FindUncredited(ctx context.Context, referredUserID string) ([]*models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Referral{}
	for _, r := range m.refs {
		if r.Status == models.ReferralCompleted && !r.Credited &&
			(referredUserID == "" || r.ReferredUserID == referredUserID) {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memReferrals) MarkCredited(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refs {
		if r.ID == id && r.Status == models.ReferralCompleted {
			r.Credited = true
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (m *memReferrals) live(referrerUserID, referredUserID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.refs {
		if r.ReferrerUserID == referrerUserID && r.ReferredUserID == referredUserID &&
			r.Status != models.ReferralCancelled {
			n++
		}
	}
	return n
}

func (m *memReferrals) DeleteByUser(ctx context.Context, externalID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.refs[:0]
	var n int64
	for _, r := range m.refs {
		if r.ReferrerUserID == externalID || r.ReferredUserID == externalID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.refs = kept
	return n, nil
}

type memAffiliates struct {
	mu sync.Mutex
	as []*models.Affiliate
	// conflicts makes the next n Replace calls fail with a version conflict
	conflicts int
}

func (m *memAffiliates) find(match func(*models.Affiliate) bool) (*models.Affiliate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.as {
		if match(a) {
			c := a.Clone()
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memAffiliates) Create(ctx context.Context, a *models.Affiliate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.as {
		if existing.ExternalID == a.ExternalID || existing.ReferralCode == a.ReferralCode {
			return repositories.ErrDuplicate
		}
	}
	a.ID = primitive.NewObjectID()
	a.Version = 1
	c := a.Clone()
	m.as = append(m.as, &c)
	return nil
}

func (m *memAffiliates) FindByAffiliateID(ctx context.Context, id string) (*models.Affiliate, error) {
	return m.find(func(a *models.Affiliate) bool { return a.AffiliateID == id })
}

func (m *memAffiliates) FindByExternalID(ctx context.Context, id string) (*models.Affiliate, error) {
	return m.find(func(a *models.Affiliate) bool { return a.ExternalID == id })
}

func (m *memAffiliates) FindByReferralCode(ctx context.Context, code string) (*models.Affiliate, error) {
	return m.find(func(a *models.Affiliate) bool { return a.ReferralCode == code })
}

func (m *memAffiliates) FindByPendingReferral(ctx context.Context, userID, orderID string) (*models.Affiliate, error) {
	return m.find(func(a *models.Affiliate) bool {
		for _, r := range a.Referrals {
			if r.UserID == userID && r.Status == models.AffiliateReferralPending && (orderID == "" || r.OrderID == orderID) {
				return true
			}
		}
		return false
	})
}

func (m *memAffiliates) FindAll(ctx context.Context, status models.AffiliateStatus, page, limit int) ([]*models.Affiliate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Affiliate{}
	for _, a := range m.as {
		if status == "" || a.Status == status {
			c := a.Clone()
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memAffiliates) Replace(ctx context.Context, a *models.Affiliate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return repositories.ErrVersionConflict
	}
	for i, existing := range m.as {
		if existing.ID == a.ID {
			if existing.Version != a.Version {
				return repositories.ErrVersionConflict
			}
			a.Version++
			c := a.Clone()
			m.as[i] = &c
			return nil
		}
	}
	return repositories.ErrNotFound
}

type memCampaigns struct {
	mu        sync.Mutex
	campaigns map[string]*models.Campaign
}

func newMemCampaigns(cs ...*models.Campaign) *memCampaigns {
	m := &memCampaigns{campaigns: map[string]*models.Campaign{}}
	for _, c := range cs {
		m.campaigns[c.CampaignID] = c
	}
	return m
}

func copyCampaign(c *models.Campaign) *models.Campaign {
	out := *c
	if c.DiscountCode != nil {
		dc := *c.DiscountCode
		out.DiscountCode = &dc
	}
	return &out
}

func (m *memCampaigns) Create(ctx context.Context, c *models.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = primitive.NewObjectID()
	m.campaigns[c.CampaignID] = copyCampaign(c)
	return nil
}

func (m *memCampaigns) FindByCampaignID(ctx context.Context, id string) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return copyCampaign(c), nil
}

func (m *memCampaigns) FindAll(ctx context.Context, status models.CampaignStatus, page, limit int) ([]*models.Campaign, error) {
	return m.filter(func(c *models.Campaign) bool { return status == "" || c.Status == status }), nil
}

func (m *memCampaigns) filter(match func(*models.Campaign) bool) []*models.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Campaign{}
	for _, c := range m.campaigns {
		if match(c) {
			out = append(out, copyCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CampaignID < out[j].CampaignID })
	return out
}

func (m *memCampaigns) UpdateDraft(ctx context.Context, c *models.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.campaigns[c.CampaignID]
	if !ok || existing.Status != models.CampaignStatusDraft {
		return repositories.ErrConflict
	}
	m.campaigns[c.CampaignID] = copyCampaign(c)
	return nil
}

func (m *memCampaigns) SetScheduling(ctx context.Context, id string, s models.Scheduling) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || (c.Status != models.CampaignStatusDraft && c.Status != models.CampaignStatusPaused && c.Status != models.CampaignStatusScheduled) {
		return repositories.ErrConflict
	}
	c.Scheduling = s
	return nil
}

func (m *memCampaigns) Transition(ctx context.Context, id string, t repositories.CampaignTransition) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, repositories.ErrConflict
	}
	allowed := false
	for _, from := range t.From {
		if c.Status == from {
			allowed = true
		}
	}
	if !allowed {
		return nil, repositories.ErrConflict
	}
	c.Status = t.To
	c.UpdatedAt = t.At
	if t.StartedAt != nil {
		c.StartedAt = t.StartedAt
	}
	if t.CompletedAt != nil {
		c.CompletedAt = t.CompletedAt
	}
	if t.LastRunAt != nil {
		c.LastRunAt = t.LastRunAt
	}
	if t.SendAt != nil {
		c.Scheduling.SendAt = t.SendAt
	}
	return copyCampaign(c), nil
}

func (m *memCampaigns) IncrementAnalytics(ctx context.Context, id string, d models.CampaignAnalytics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return repositories.ErrNotFound
	}
	c.Analytics.Sent += d.Sent
	c.Analytics.Delivered += d.Delivered
	c.Analytics.Failed += d.Failed
	c.Analytics.Clicks += d.Clicks
	c.Analytics.Conversions += d.Conversions
	c.Analytics.Revenue += d.Revenue
	return nil
}

func (m *memCampaigns) FindDue(ctx context.Context, now time.Time) ([]*models.Campaign, error) {
	return m.filter(func(c *models.Campaign) bool {
		return c.Status == models.CampaignStatusScheduled && !c.IsRecurring() &&
			c.Scheduling.SendAt != nil && !c.Scheduling.SendAt.After(now)
	}), nil
}

func (m *memCampaigns) FindRecurring(ctx context.Context) ([]*models.Campaign, error) {
	return m.filter(func(c *models.Campaign) bool {
		return c.Status == models.CampaignStatusScheduled && c.IsRecurring()
	}), nil
}

func (m *memCampaigns) TopByConversions(ctx context.Context, limit int) ([]*models.Campaign, error) {
	out := m.filter(func(*models.Campaign) bool { return true })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Analytics.Conversions > out[j].Analytics.Conversions })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memCampaigns) FindByDiscountCode(ctx context.Context, code string) (*models.Campaign, error) {
	out := m.filter(func(c *models.Campaign) bool { return c.DiscountCode != nil && c.DiscountCode.Code == code })
	if len(out) == 0 {
		return nil, repositories.ErrNotFound
	}
	return out[0], nil
}

func (m *memCampaigns) RedeemDiscount(ctx context.Context, code string, orderValue float64, now time.Time) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.campaigns {
		if c.DiscountCode == nil || c.DiscountCode.Code != code {
			continue
		}
		if !c.DiscountCode.Usable(now) || orderValue < c.DiscountCode.MinOrderValue {
			return nil, repositories.ErrConflict
		}
		c.DiscountCode.UsedCount++
		c.Analytics.Conversions++
		c.Analytics.Revenue += orderValue
		return copyCampaign(c), nil
	}
	return nil, repositories.ErrConflict
}

func (m *memCampaigns) DeactivateExpiredDiscounts(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.campaigns {
		if c.DiscountCode != nil && c.DiscountCode.IsActive && c.DiscountCode.Expired(now) {
			c.DiscountCode.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memCampaigns) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.campaigns {
		if c.Status == models.CampaignStatusCompleted && c.CompletedAt != nil && c.CompletedAt.Before(cutoff) {
			delete(m.campaigns, id)
			n++
		}
	}
	return n, nil
}

func (m *memCampaigns) campaign(id string) models.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.campaigns[id]
}

type memDiscounts struct {
	mu    sync.Mutex
	codes map[string]*models.DiscountCode
}

func newMemDiscounts() *memDiscounts {
	return &memDiscounts{codes: map[string]*models.DiscountCode{}}
}

func (m *memDiscounts) Create(ctx context.Context, d *models.DiscountCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[d.Code]; ok {
		return repositories.ErrDuplicate
	}
	d.ID = primitive.NewObjectID()
	c := *d
	m.codes[d.Code] = &c
	return nil
}

func (m *memDiscounts) CreateMany(ctx context.Context, codes []*models.DiscountCode) (int, error) {
	n := 0
	for _, d := range codes {
		if err := m.Create(ctx, d); err == nil {
			n++
		}
	}
	return n, nil
}

func (m *memDiscounts) FindByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.codes[code]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *d
	return &c, nil
}

func (m *memDiscounts) Redeem(ctx context.Context, code string, orderValue float64, now time.Time) (*models.DiscountCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.codes[code]
	if !ok || !d.Usable(now) || orderValue < d.MinOrderValue {
		return nil, repositories.ErrConflict
	}
	d.UsedCount++
	c := *d
	return &c, nil
}

func (m *memDiscounts) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.codes {
		if d.IsActive && d.Expired(now) {
			d.IsActive = false
			n++
		}
	}
	return n, nil
}

type memEvents struct {
	mu     sync.Mutex
	events []*models.AnalyticsEvent
}

func (m *memEvents) Append(ctx context.Context, e *models.AnalyticsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = primitive.NewObjectID()
	c := *e
	m.events = append(m.events, &c)
	return nil
}

func (m *memEvents) AggregateVariants(ctx context.Context, since time.Time) ([]models.VariantCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index := map[[2]string]*models.VariantCounts{}
	var keys [][2]string
	for _, e := range m.events {
		if e.Type != models.EventABTest || e.Timestamp.Before(since) {
			continue
		}
		test, _ := e.Data["testName"].(string)
		variant, _ := e.Data["variant"].(string)
		key := [2]string{test, variant}
		row, ok := index[key]
		if !ok {
			row = &models.VariantCounts{TestName: test, Variant: variant}
			index[key] = row
			keys = append(keys, key)
		}
		switch e.Data["action"] {
		case models.ActionView:
			row.Views++
		case models.ActionClick:
			row.Clicks++
		case models.ActionConversion:
			row.Conversions++
		}
		row.Total++
	}
	out := make([]models.VariantCounts, 0, len(keys))
	for _, k := range keys {
		out = append(out, *index[k])
	}
	return out, nil
}

func (m *memEvents) AggregateFunnel(ctx context.Context, since time.Time) ([]models.StageCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := map[string]map[string]bool{}
	counts := map[string]int{}
	for _, e := range m.events {
		if e.Type != models.EventFunnelProgression || e.Timestamp.Before(since) {
			continue
		}
		stage, _ := e.Data["stage"].(string)
		counts[stage]++
		if users[stage] == nil {
			users[stage] = map[string]bool{}
		}
		users[stage][e.UserID] = true
	}
	out := []models.StageCounts{}
	for stage, n := range counts {
		out = append(out, models.StageCounts{Stage: stage, Events: n, UniqueUsers: len(users[stage])})
	}
	return out, nil
}

func (m *memEvents) CountByType(ctx context.Context, since time.Time) (map[models.EventType]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[models.EventType]int64{}
	for _, e := range m.events {
		if !e.Timestamp.Before(since) {
			out[e.Type]++
		}
	}
	return out, nil
}

func (m *memEvents) FindRecipients(ctx context.Context, campaignID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for _, e := range m.events {
		if e.Type == models.EventMessageSent && e.CampaignID == campaignID && !contains(ids, e.UserID) {
			ids = append(ids, e.UserID)
		}
	}
	return ids, nil
}

func (m *memEvents) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.deleteWhere(func(e *models.AnalyticsEvent) bool { return e.Timestamp.Before(cutoff) }), nil
}

func (m *memEvents) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return m.deleteWhere(func(e *models.AnalyticsEvent) bool { return e.UserID == userID }), nil
}

func (m *memEvents) deleteWhere(match func(*models.AnalyticsEvent) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	var n int64
	for _, e := range m.events {
		if match(e) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return n
}

func (m *memEvents) ofType(t models.EventType) []*models.AnalyticsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AnalyticsEvent
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type memExperiments struct {
	mu          sync.Mutex
	experiments map[string]*models.Experiment
}

func newMemExperiments() *memExperiments {
	return &memExperiments{experiments: map[string]*models.Experiment{}}
}

func (m *memExperiments) FindByName(ctx context.Context, name string) (*models.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[name]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (m *memExperiments) FindAll(ctx context.Context) ([]*models.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Experiment{}
	for _, e := range m.experiments {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memExperiments) InsertIfAbsent(ctx context.Context, e *models.Experiment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.experiments[e.Name]; ok {
		return false, nil
	}
	c := *e
	m.experiments[e.Name] = &c
	return true, nil
}

func (m *memExperiments) SetActive(ctx context.Context, name string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[name]
	if !ok {
		return repositories.ErrNotFound
	}
	e.Active = active
	return nil
}

func (m *memExperiments) Promote(ctx context.Context, name, variant string, split int, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[name]
	if !ok || e.PromotedVariant == variant {
		return false, nil
	}
	e.PromotedVariant = variant
	e.TrafficSplit = split
	e.PromotedAt = &now
	return true, nil
}

// MockRecurringScheduler is a testify mock of RecurringScheduler
type MockRecurringScheduler struct {
	mock.Mock
}

func (m *MockRecurringScheduler) ScheduleRecurring(key, spec string, run func(ctx context.Context) error) error {
	args := m.Called(key, spec, run)
	return args.Error(0)
}

func (m *MockRecurringScheduler) Unschedule(key string) bool {
	args := m.Called(key)
	return args.Bool(0)
}

// MockAdminUserRepository is a testify mock of repositories.AdminUserRepository
type MockAdminUserRepository struct {
	mock.Mock
}

func (m *MockAdminUserRepository) Create(ctx context.Context, adminUser *models.AdminUser) error {
	args := m.Called(ctx, adminUser)
	return args.Error(0)
}

func (m *MockAdminUserRepository) FindByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdminUser), args.Error(1)
}

func (m *MockAdminUserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.AdminUser, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdminUser), args.Error(1)
}

var (
	_ repositories.UserRepository       = (*memUsers)(nil)
	_ repositories.ReferralRepository   = (*memReferrals)(nil)
	_ repositories.AffiliateRepository  = (*memAffiliates)(nil)
	_ repositories.CampaignRepository   = (*memCampaigns)(nil)
	_ repositories.DiscountRepository   = (*memDiscounts)(nil)
	_ repositories.EventRepository      = (*memEvents)(nil)
	_ repositories.ExperimentRepository = (*memExperiments)(nil)
)
