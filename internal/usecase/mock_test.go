//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/adapter"
	"telegram-channel-paywall/internal/domain/ports/repository"
	"telegram-channel-paywall/internal/infra/i18n"
)

// =============================
// In-memory store
// =============================

// memStore backs every repository port with maps. FailOn injects an error
// into the named operation ("subs.Create", "ledger.IncrementBalance", ...).
type memStore struct {
	mu  sync.Mutex
	seq int64

	users       map[int64]*model.User
	creators    map[int64]*model.Creator
	channels    map[int64]*model.Channel
	plans       map[int64]*model.SubscriptionPlan
	bundles     map[int64]*model.Bundle
	bundlePlans map[int64]*model.BundlePlan
	subs        map[int64]*model.Subscription
	bundleSubs  map[int64]*model.BundleSubscription
	partners    map[int64]*model.Partner
	previews    map[int64]*model.PreviewAccess
	txs         map[int64]*model.Transaction
	bundleTxs   map[int64]*model.BundleTransaction
	balances    map[int64]int64
	payouts     map[int64]*model.Payout

	FailOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[int64]*model.User{},
		creators:    map[int64]*model.Creator{},
		channels:    map[int64]*model.Channel{},
		plans:       map[int64]*model.SubscriptionPlan{},
		bundles:     map[int64]*model.Bundle{},
		bundlePlans: map[int64]*model.BundlePlan{},
		subs:        map[int64]*model.Subscription{},
		bundleSubs:  map[int64]*model.BundleSubscription{},
		partners:    map[int64]*model.Partner{},
		previews:    map[int64]*model.PreviewAccess{},
		txs:         map[int64]*model.Transaction{},
		bundleTxs:   map[int64]*model.BundleTransaction{},
		balances:    map[int64]int64{},
		payouts:     map[int64]*model.Payout{},
		FailOn:      map[string]error{},
	}
}

func (s *memStore) next() int64 {
	s.seq++
	return s.seq
}

func (s *memStore) fail(op string) error { return s.FailOn[op] }

func cloneMap[K comparable, V any](m map[K]*V) map[K]*V {
	out := make(map[K]*V, len(m))
	for k, v := range m {
		c := *v
		out[k] = &c
	}
	return out
}

type memSnapshot struct {
	users       map[int64]*model.User
	creators    map[int64]*model.Creator
	channels    map[int64]*model.Channel
	plans       map[int64]*model.SubscriptionPlan
	bundles     map[int64]*model.Bundle
	bundlePlans map[int64]*model.BundlePlan
	subs        map[int64]*model.Subscription
	bundleSubs  map[int64]*model.BundleSubscription
	partners    map[int64]*model.Partner
	previews    map[int64]*model.PreviewAccess
	txs         map[int64]*model.Transaction
	bundleTxs   map[int64]*model.BundleTransaction
	balances    map[int64]int64
	payouts     map[int64]*model.Payout
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := make(map[int64]int64, len(s.balances))
	for k, v := range s.balances {
		bal[k] = v
	}
	bundles := cloneMap(s.bundles)
	for _, b := range bundles {
		b.ChannelIDs = append([]int64(nil), b.ChannelIDs...)
	}
	return memSnapshot{
		users:       cloneMap(s.users),
		creators:    cloneMap(s.creators),
		channels:    cloneMap(s.channels),
		plans:       cloneMap(s.plans),
		bundles:     bundles,
		bundlePlans: cloneMap(s.bundlePlans),
		subs:        cloneMap(s.subs),
		bundleSubs:  cloneMap(s.bundleSubs),
		partners:    cloneMap(s.partners),
		previews:    cloneMap(s.previews),
		txs:         cloneMap(s.txs),
		bundleTxs:   cloneMap(s.bundleTxs),
		balances:    bal,
		payouts:     cloneMap(s.payouts),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users, s.creators, s.channels, s.plans = snap.users, snap.creators, snap.channels, snap.plans
	s.bundles, s.bundlePlans, s.subs, s.bundleSubs = snap.bundles, snap.bundlePlans, snap.subs, snap.bundleSubs
	s.partners, s.previews, s.txs, s.bundleTxs = snap.partners, snap.previews, snap.txs, snap.bundleTxs
	s.balances, s.payouts = snap.balances, snap.payouts
}

// ---- MockTxManager: snapshot on begin, restore on error ----

type MockTxManager struct {
	store   *memStore
	Commits int
	Aborts  int
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func newMockTxManager(s *memStore) *MockTxManager { return &MockTxManager{store: s} }

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	snap := m.store.snapshot()
	if err := fn(ctx, "tx"); err != nil {
		m.store.restore(snap)
		m.Aborts++
		return err
	}
	m.Commits++
	return nil
}

// ---- Users ----

type memUsers struct{ *memStore }

var _ repository.UserRepository = memUsers{}

func (r memUsers) Upsert(ctx context.Context, tx repository.Tx, p model.UserProfile) (*model.User, error) {
	if err := r.fail("users.Upsert"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, u := range r.users {
		if u.TelegramID == p.TelegramID {
			u.Username, u.FirstName, u.LastName = p.Username, p.FirstName, p.LastName
			if p.Language != "" {
				u.Language = p.Language
			}
			u.UpdatedAt = now
			c := *u
			return &c, nil
		}
	}
	u := &model.User{
		ID: r.next(), TelegramID: p.TelegramID, Username: p.Username, FirstName: p.FirstName,
		LastName: p.LastName, Language: p.Language, CreatedAt: now, UpdatedAt: now,
	}
	r.users[u.ID] = u
	c := *u
	return &c, nil
}

func (r memUsers) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TelegramID == tgID {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r memUsers) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r memUsers) SetLanguage(ctx context.Context, tx repository.Tx, tgID int64, lang string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TelegramID == tgID {
			u.Language = lang
			return nil
		}
	}
	return domain.ErrUserNotFound
}

// ---- Creators ----

type memCreators struct{ *memStore }

var _ repository.CreatorRepository = memCreators{}

func (r memCreators) EnsureForUser(ctx context.Context, tx repository.Tx, userID int64) (*model.Creator, error) {
	if err := r.fail("creators.EnsureForUser"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.creators {
		if c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	c := &model.Creator{ID: r.next(), UserID: userID, CreatedAt: time.Now()}
	r.creators[c.ID] = c
	cp := *c
	return &cp, nil
}

func (r memCreators) FindByUserID(ctx context.Context, tx repository.Tx, userID int64) (*model.Creator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.creators {
		if c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrCreatorNotFound
}

func (r memCreators) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Creator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creators[id]
	if !ok {
		return nil, domain.ErrCreatorNotFound
	}
	cp := *c
	return &cp, nil
}

// ---- Channels ----

type memChannels struct{ *memStore }

var _ repository.ChannelRepository = memChannels{}

func (r memChannels) Create(ctx context.Context, tx repository.Tx, c *model.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.channels {
		if ch.TelegramChannelID == c.TelegramChannelID {
			return domain.ErrAlreadyExists
		}
	}
	c.ID = r.next()
	cp := *c
	r.channels[c.ID] = &cp
	return nil
}

func (r memChannels) Update(ctx context.Context, tx repository.Tx, c *model.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[c.ID]; !ok {
		return domain.ErrChannelNotFound
	}
	cp := *c
	r.channels[c.ID] = &cp
	return nil
}

func (r memChannels) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[id]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memChannels) FindByTelegramID(ctx context.Context, tx repository.Tx, tgChannelID int64) (*model.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.channels {
		if c.TelegramChannelID == tgChannelID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrChannelNotFound
}

func (r memChannels) ListByCreator(ctx context.Context, tx repository.Tx, creatorID int64) ([]*model.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Channel
	for _, c := range r.channels {
		if c.CreatorID == creatorID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- Plans ----

type memPlans struct{ *memStore }

var _ repository.PlanRepository = memPlans{}

func (r memPlans) Create(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.next()
	cp := *p
	r.plans[p.ID] = &cp
	return nil
}

func (r memPlans) Update(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plans[p.ID]; !ok {
		return domain.ErrPlanNotFound
	}
	cp := *p
	r.plans[p.ID] = &cp
	return nil
}

func (r memPlans) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPlans) ListByChannel(ctx context.Context, tx repository.Tx, channelID int64, activeOnly bool) ([]*model.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.SubscriptionPlan
	for _, p := range r.plans {
		if p.ChannelID == channelID && (!activeOnly || p.IsActive) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- Bundles ----

type memBundles struct{ *memStore }

var _ repository.BundleRepository = memBundles{}

func (r memBundles) Create(ctx context.Context, tx repository.Tx, b *model.Bundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = r.next()
	cp := *b
	cp.ChannelIDs = append([]int64(nil), b.ChannelIDs...)
	r.bundles[b.ID] = &cp
	return nil
}

func (r memBundles) AddChannel(ctx context.Context, tx repository.Tx, bundleID, channelID int64) error {
	if err := r.fail("bundles.AddChannel"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bundles[bundleID]
	if !ok {
		return domain.ErrBundleNotFound
	}
	if !b.Has(channelID) {
		b.ChannelIDs = append(b.ChannelIDs, channelID)
	}
	return nil
}

func (r memBundles) SetFolderLink(ctx context.Context, tx repository.Tx, bundleID int64, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bundles[bundleID]
	if !ok {
		return domain.ErrBundleNotFound
	}
	b.FolderLink = link
	return nil
}

func (r memBundles) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bundles[id]
	if !ok {
		return nil, domain.ErrBundleNotFound
	}
	cp := *b
	cp.ChannelIDs = append([]int64(nil), b.ChannelIDs...)
	return &cp, nil
}

func (r memBundles) ListByCreator(ctx context.Context, tx repository.Tx, creatorID int64) ([]*model.Bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Bundle
	for _, b := range r.bundles {
		if b.CreatorID == creatorID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memBundles) CreatePlan(ctx context.Context, tx repository.Tx, p *model.BundlePlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.next()
	cp := *p
	r.bundlePlans[p.ID] = &cp
	return nil
}

func (r memBundles) FindPlanByID(ctx context.Context, tx repository.Tx, id int64) (*model.BundlePlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.bundlePlans[id]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memBundles) ListPlans(ctx context.Context, tx repository.Tx, bundleID int64, activeOnly bool) ([]*model.BundlePlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.BundlePlan
	for _, p := range r.bundlePlans {
		if p.BundleID == bundleID && (!activeOnly || p.IsActive) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- Subscriptions ----

type memSubs struct{ *memStore }

var _ repository.SubscriptionRepository = memSubs{}

func (r memSubs) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if err := r.fail("subs.Create"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.subs {
		if x.PaymentID == s.PaymentID {
			return domain.ErrAlreadyExists
		}
	}
	s.ID = r.next()
	cp := *s
	r.subs[s.ID] = &cp
	return nil
}

func (r memSubs) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, fmt.Errorf("subscription: %w", domain.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (r memSubs) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.PaymentID == paymentID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("subscription: %w", domain.ErrNotFound)
}

// detail must be called with mu held.
func (r memSubs) detail(s *model.Subscription) *model.SubscriptionDetail {
	d := &model.SubscriptionDetail{Subscription: *s}
	if u, ok := r.users[s.UserID]; ok {
		d.User = *u
	}
	if p, ok := r.plans[s.PlanID]; ok {
		d.Plan = *p
		if c, ok := r.channels[p.ChannelID]; ok {
			d.Channel = *c
		}
	}
	if s.PartnerID != nil {
		if p, ok := r.partners[*s.PartnerID]; ok {
			cp := *p
			d.Partner = &cp
		}
	}
	return d
}

func (r memSubs) FindDetail(ctx context.Context, tx repository.Tx, id int64) (*model.SubscriptionDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, fmt.Errorf("subscription: %w", domain.ErrNotFound)
	}
	return r.detail(s), nil
}

func (r memSubs) HasActive(ctx context.Context, tx repository.Tx, userID, channelID int64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		p, ok := r.plans[s.PlanID]
		if ok && s.UserID == userID && p.ChannelID == channelID && s.IsActiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r memSubs) sorted(keep func(s *model.Subscription) bool) []*model.SubscriptionDetail {
	var out []*model.SubscriptionDetail
	for _, s := range r.subs {
		if keep(s) {
			out = append(out, r.detail(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memSubs) FindExpired(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.SubscriptionDetail, error) {
	if err := r.fail("subs.FindExpired"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(s *model.Subscription) bool {
		return s.Status == model.SubscriptionStatusActive && s.EndDate.Before(now)
	}), nil
}

func (r memSubs) FindForReminder(ctx context.Context, tx repository.Tx, h model.ReminderHorizon, now time.Time) ([]*model.SubscriptionDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	after, until := h.Window(now)
	return r.sorted(func(s *model.Subscription) bool {
		flag := s.Reminded1d
		if h == model.Reminder3d {
			flag = s.Reminded3d
		}
		return s.Status == model.SubscriptionStatusActive && !flag &&
			s.EndDate.After(after) && !s.EndDate.After(until)
	}), nil
}

func (r memSubs) MarkReminded(ctx context.Context, tx repository.Tx, id int64, h model.ReminderHorizon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return fmt.Errorf("subscription: %w", domain.ErrNotFound)
	}
	if h == model.Reminder3d {
		s.Reminded3d = true
	} else {
		s.Reminded1d = true
	}
	return nil
}

func (r memSubs) MarkExpired(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok || s.Status != model.SubscriptionStatusActive {
		return false, nil
	}
	s.Status = model.SubscriptionStatusExpired
	return true, nil
}

// ---- Bundle subscriptions ----

type memBundleSubs struct{ *memStore }

var _ repository.BundleSubscriptionRepository = memBundleSubs{}

func (r memBundleSubs) Create(ctx context.Context, tx repository.Tx, s *model.BundleSubscription) error {
	if err := r.fail("bundleSubs.Create"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.bundleSubs {
		if x.PaymentID == s.PaymentID {
			return domain.ErrAlreadyExists
		}
	}
	s.ID = r.next()
	cp := *s
	r.bundleSubs[s.ID] = &cp
	return nil
}

func (r memBundleSubs) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.BundleSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.bundleSubs {
		if s.PaymentID == paymentID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("bundle subscription: %w", domain.ErrNotFound)
}

func (r memBundleSubs) detail(s *model.BundleSubscription) *model.BundleSubscriptionDetail {
	d := &model.BundleSubscriptionDetail{BundleSubscription: *s}
	if u, ok := r.users[s.UserID]; ok {
		d.User = *u
	}
	if p, ok := r.bundlePlans[s.BundlePlanID]; ok {
		d.Plan = *p
		if b, ok := r.bundles[p.BundleID]; ok {
			d.Bundle = *b
		}
	}
	return d
}

func (r memBundleSubs) FindDetail(ctx context.Context, tx repository.Tx, id int64) (*model.BundleSubscriptionDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.bundleSubs[id]
	if !ok {
		return nil, fmt.Errorf("bundle subscription: %w", domain.ErrNotFound)
	}
	return r.detail(s), nil
}

func (r memBundleSubs) FindExpired(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.BundleSubscriptionDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.BundleSubscriptionDetail
	for _, s := range r.bundleSubs {
		if s.Status == model.SubscriptionStatusActive && s.EndDate.Before(now) {
			out = append(out, r.detail(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memBundleSubs) MarkExpired(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.bundleSubs[id]
	if !ok || s.Status != model.SubscriptionStatusActive {
		return false, nil
	}
	s.Status = model.SubscriptionStatusExpired
	return true, nil
}

// ---- Partners ----

type memPartners struct{ *memStore }

var _ repository.PartnerRepository = memPartners{}

func (r memPartners) Request(ctx context.Context, tx repository.Tx, userID, channelID int64) (*model.Partner, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.partners {
		if p.UserID == userID && p.ChannelID == channelID {
			cp := *p
			return &cp, false, nil
		}
	}
	p := &model.Partner{
		ID: r.next(), UserID: userID, ChannelID: channelID,
		Status: model.PartnerStatusPending, CreatedAt: time.Now(),
	}
	r.partners[p.ID] = p
	cp := *p
	return &cp, true, nil
}

func (r memPartners) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.partners[id]
	if !ok {
		return nil, domain.ErrPartnerNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPartners) FindByUserChannel(ctx context.Context, tx repository.Tx, userID, channelID int64) (*model.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.partners {
		if p.UserID == userID && p.ChannelID == channelID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPartnerNotFound
}

func (r memPartners) Decide(ctx context.Context, tx repository.Tx, id int64, status model.PartnerStatus, rate float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.partners[id]
	if !ok {
		return domain.ErrPartnerNotFound
	}
	p.Status = status
	if status == model.PartnerStatusApproved {
		p.CommissionRate = rate
	}
	p.DecidedAt = &at
	return nil
}

func (r memPartners) list(keep func(p *model.Partner, ch *model.Channel) bool) []*model.PartnerDetail {
	var out []*model.PartnerDetail
	for _, p := range r.partners {
		ch, ok := r.channels[p.ChannelID]
		if !ok || !keep(p, ch) {
			continue
		}
		d := &model.PartnerDetail{Partner: *p, Channel: *ch}
		if u, ok := r.users[p.UserID]; ok {
			d.User = *u
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memPartners) ListByCreator(ctx context.Context, tx repository.Tx, creatorID int64, status model.PartnerStatus) ([]*model.PartnerDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(p *model.Partner, ch *model.Channel) bool {
		return ch.CreatorID == creatorID && p.Status == status
	}), nil
}

func (r memPartners) ListByUser(ctx context.Context, tx repository.Tx, userID int64, status model.PartnerStatus) ([]*model.PartnerDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(p *model.Partner, _ *model.Channel) bool {
		return p.UserID == userID && p.Status == status
	}), nil
}

// ---- Previews ----

type memPreviews struct{ *memStore }

var _ repository.PreviewRepository = memPreviews{}

func (r memPreviews) Create(ctx context.Context, tx repository.Tx, p *model.PreviewAccess) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.previews {
		if x.UserID == p.UserID && x.ChannelID == p.ChannelID && x.Status == model.PreviewStatusActive {
			return domain.ErrAlreadyExists
		}
	}
	p.ID = r.next()
	cp := *p
	r.previews[p.ID] = &cp
	return nil
}

func (r memPreviews) FindActive(ctx context.Context, tx repository.Tx, userID, channelID int64, now time.Time) (*model.PreviewAccess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.previews {
		if p.UserID == userID && p.ChannelID == channelID && p.Status == model.PreviewStatusActive && p.EndDate.After(now) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("preview: %w", domain.ErrNotFound)
}

func (r memPreviews) FindLatest(ctx context.Context, tx repository.Tx, userID, channelID int64) (*model.PreviewAccess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.PreviewAccess
	for _, p := range r.previews {
		if p.UserID != userID || p.ChannelID != channelID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("preview: %w", domain.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (r memPreviews) FindExpiredActive(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.PreviewDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PreviewDetail
	for _, p := range r.previews {
		if p.Status != model.PreviewStatusActive || !p.EndDate.Before(now) {
			continue
		}
		d := &model.PreviewDetail{PreviewAccess: *p}
		if u, ok := r.users[p.UserID]; ok {
			d.User = *u
		}
		if c, ok := r.channels[p.ChannelID]; ok {
			d.Channel = *c
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memPreviews) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, from, to model.PreviewStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.previews[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (r memPreviews) MarkConverted(ctx context.Context, tx repository.Tx, userID, channelID int64) (int, error) {
	if err := r.fail("previews.MarkConverted"); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.previews {
		if p.UserID == userID && p.ChannelID == channelID && p.Status == model.PreviewStatusActive {
			p.Status = model.PreviewStatusConverted
			n++
		}
	}
	return n, nil
}

// ---- Ledger ----

type memLedger struct{ *memStore }

var _ repository.LedgerRepository = memLedger{}

func (r memLedger) InsertTransaction(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if err := r.fail("ledger.InsertTransaction"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.txs {
		if x.SubscriptionID == t.SubscriptionID {
			return domain.ErrAlreadyExists
		}
	}
	t.ID = r.next()
	cp := *t
	r.txs[t.ID] = &cp
	return nil
}

func (r memLedger) FindTransactionBySubscription(ctx context.Context, tx repository.Tx, subscriptionID int64) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.txs {
		if t.SubscriptionID == subscriptionID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("transaction: %w", domain.ErrNotFound)
}

func (r memLedger) InsertBundleTransaction(ctx context.Context, tx repository.Tx, t *model.BundleTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.bundleTxs {
		if x.BundleSubscriptionID == t.BundleSubscriptionID {
			return domain.ErrAlreadyExists
		}
	}
	t.ID = r.next()
	cp := *t
	r.bundleTxs[t.ID] = &cp
	return nil
}

func (r memLedger) FindBundleTransaction(ctx context.Context, tx repository.Tx, bundleSubscriptionID int64) (*model.BundleTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.bundleTxs {
		if t.BundleSubscriptionID == bundleSubscriptionID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("bundle transaction: %w", domain.ErrNotFound)
}

func (r memLedger) IncrementBalance(ctx context.Context, tx repository.Tx, creatorID, amount int64) error {
	if err := r.fail("ledger.IncrementBalance"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[creatorID] += amount
	return nil
}

func (r memLedger) DecrementBalance(ctx context.Context, tx repository.Tx, creatorID, amount int64) error {
	if err := r.fail("ledger.DecrementBalance"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balances[creatorID] < amount {
		return domain.ErrInsufficientBalance
	}
	r.balances[creatorID] -= amount
	return nil
}

func (r memLedger) GetBalance(ctx context.Context, tx repository.Tx, creatorID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[creatorID], nil
}

// ---- Payouts ----

type memPayouts struct{ *memStore }

var _ repository.PayoutRepository = memPayouts{}

func (r memPayouts) Create(ctx context.Context, tx repository.Tx, p *model.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.next()
	cp := *p
	r.payouts[p.ID] = &cp
	return nil
}

func (r memPayouts) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok {
		return nil, domain.ErrPayoutNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPayouts) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, from, to model.PayoutStatus, note string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status, p.AdminNote, p.ProcessedAt = to, note, &at
	return true, nil
}

func (r memPayouts) filter(keep func(p *model.Payout) bool, limit int) []*model.Payout {
	var out []*model.Payout
	for _, p := range r.payouts {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r memPayouts) ListByCreator(ctx context.Context, tx repository.Tx, creatorID int64, since time.Time, limit int) ([]*model.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(p *model.Payout) bool {
		return p.CreatorID == creatorID && !p.RequestedAt.Before(since)
	}, limit), nil
}

func (r memPayouts) ListByStatus(ctx context.Context, tx repository.Tx, status model.PayoutStatus, limit int) ([]*model.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(p *model.Payout) bool { return p.Status == status }, limit), nil
}

func (r memPayouts) SumByCreator(ctx context.Context, tx repository.Tx, creatorID int64, statuses []model.PayoutStatus, excludeID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, p := range r.payouts {
		if p.CreatorID != creatorID || p.ID == excludeID {
			continue
		}
		for _, st := range statuses {
			if p.Status == st {
				sum += p.Amount
			}
		}
	}
	return sum, nil
}

// ---- Stats ----

type MockStatsRepo struct {
	CreatorAnalyticsFunc func(ctx context.Context, creatorID int64, dayStart time.Time) (*model.CreatorAnalytics, error)
	PartnerSummaryFunc   func(ctx context.Context, userID int64, dayStart time.Time) (*model.PartnerSummary, error)
	PlatformSnapshotFunc func(ctx context.Context, since, now time.Time) (*model.PlatformStats, error)
}

var _ repository.StatsRepository = (*MockStatsRepo)(nil)

func (m *MockStatsRepo) CreatorAnalytics(ctx context.Context, tx repository.Tx, creatorID int64, dayStart time.Time) (*model.CreatorAnalytics, error) {
	if m.CreatorAnalyticsFunc != nil {
		return m.CreatorAnalyticsFunc(ctx, creatorID, dayStart)
	}
	return &model.CreatorAnalytics{}, nil
}

func (m *MockStatsRepo) PartnerSummary(ctx context.Context, tx repository.Tx, userID int64, dayStart time.Time) (*model.PartnerSummary, error) {
	if m.PartnerSummaryFunc != nil {
		return m.PartnerSummaryFunc(ctx, userID, dayStart)
	}
	return &model.PartnerSummary{}, nil
}

func (m *MockStatsRepo) PlatformSnapshot(ctx context.Context, tx repository.Tx, since, now time.Time) (*model.PlatformStats, error) {
	if m.PlatformSnapshotFunc != nil {
		return m.PlatformSnapshotFunc(ctx, since, now)
	}
	return &model.PlatformStats{Since: since}, nil
}

// =============================
// Adapters
// =============================

// ---- Mock ChannelManager ----

type removal struct {
	ChatID int64
	UserID int64
}

type MockChannelManager struct {
	mu      sync.Mutex
	seq     int
	Links   []adapter.InviteLinkRequest
	Revoked []string
	Removed []removal

	BotID  int64
	Admins map[int64][]int64

	// CreateInviteLinkFunc may fail a call; successful links are numbered by the mock.
	CreateInviteLinkFunc func(ctx context.Context, req adapter.InviteLinkRequest) (string, error)
	RemoveMemberFunc     func(ctx context.Context, chatID, userID int64) error
}

var _ adapter.ChannelManager = (*MockChannelManager)(nil)

func (m *MockChannelManager) CreateInviteLink(ctx context.Context, req adapter.InviteLinkRequest) (string, error) {
	if m.CreateInviteLinkFunc != nil {
		if _, err := m.CreateInviteLinkFunc(ctx, req); err != nil {
			return "", err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.Links = append(m.Links, req)
	return fmt.Sprintf("https://t.me/+invite%d", m.seq), nil
}

func (m *MockChannelManager) RevokeInviteLink(ctx context.Context, chatID int64, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Revoked = append(m.Revoked, link)
	return nil
}

func (m *MockChannelManager) RemoveMember(ctx context.Context, chatID, userID int64) error {
	if m.RemoveMemberFunc != nil {
		if err := m.RemoveMemberFunc(ctx, chatID, userID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removed = append(m.Removed, removal{ChatID: chatID, UserID: userID})
	return nil
}

func (m *MockChannelManager) ListAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	admins, ok := m.Admins[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %d not found", chatID)
	}
	return admins, nil
}

func (m *MockChannelManager) BotIdentity(ctx context.Context) (adapter.BotIdentity, error) {
	return adapter.BotIdentity{ID: m.BotID, Username: "paywall_bot"}, nil
}

// ---- Mock Notifier ----

type sentMessage struct {
	ChatID int64
	Text   string
	Rows   [][]adapter.InlineButton
}

type MockNotifier struct {
	mu   sync.Mutex
	Sent []sentMessage

	// SendMessageFunc is consulted for both plain and button messages.
	SendMessageFunc func(ctx context.Context, chatID int64, text string) error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	return m.SendButtons(ctx, chatID, text, nil)
}

func (m *MockNotifier) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	if m.SendMessageFunc != nil {
		if err := m.SendMessageFunc(ctx, chatID, text); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentMessage{ChatID: chatID, Text: text, Rows: rows})
	return nil
}

func (m *MockNotifier) To(chatID int64) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, s := range m.Sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

// ---- Mock AuditLog ----

type MockAuditLog struct {
	mu     sync.Mutex
	Events []string
}

var _ adapter.AuditLog = (*MockAuditLog)(nil)

func (m *MockAuditLog) LogEvent(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, text)
	return nil
}

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	CreateTransactionFunc func(ctx context.Context, amount int64, redirectURL, comment string) (adapter.GatewayTransaction, error)
	CheckTransactionFunc  func(ctx context.Context, id string) (adapter.PaymentStatus, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string { return "mock" }

func (m *MockPaymentGateway) CreateTransaction(ctx context.Context, amount int64, redirectURL, comment string) (adapter.GatewayTransaction, error) {
	if m.CreateTransactionFunc != nil {
		return m.CreateTransactionFunc(ctx, amount, redirectURL, comment)
	}
	return adapter.GatewayTransaction{ID: "cheque-1", PaymentURL: "https://pay.example/cheque-1", Status: "pending"}, nil
}

func (m *MockPaymentGateway) CheckTransaction(ctx context.Context, id string) (adapter.PaymentStatus, error) {
	if m.CheckTransactionFunc != nil {
		return m.CheckTransactionFunc(ctx, id)
	}
	return adapter.PaymentStatus{ID: id, Paid: true, Status: "paid"}, nil
}

// ---- Mock RateLimiter ----

type MockRateLimiter struct {
	Keys      []string
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.Keys = append(m.Keys, key)
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key, limit, window)
	}
	return true, nil
}

// =============================
// Helpers
// =============================

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// newTestTranslator renders keys as short, predictable strings.
func newTestTranslator() *i18n.Translator {
	testFS := fstest.MapFS{
		"locales/en.yaml": {Data: []byte(`
button.renew: "Renew"
subscription.expired: "expired {channel}"
subscription.reminder_3d: "3d {channel} {end_date}"
subscription.reminder_1d: "1d {channel} {end_date}"
bundle.expired: "bundle expired {bundle}"
preview.expired: "preview over {channel}"
payout.status.paid: "paid #{id} {amount}"
payout.status.rejected: "rejected #{id} {amount} {note}"
payout.status.processing: "processing #{id}"
partner.requested: "request {user} {channel}"
partner.approved: "approved {channel} {rate} {link}"
partner.rejected: "rejected {channel}"
`)},
		"locales/ru.yaml": {Data: []byte(`subscription.expired: "истекла {channel}"`)},
	}
	translator, _ := i18n.NewTranslator(testFS, "en")
	return translator
}

// testEnv wires every repository over one memStore.
type testEnv struct {
	store      *memStore
	tm         *MockTxManager
	users      memUsers
	creators   memCreators
	channels   memChannels
	plans      memPlans
	bundles    memBundles
	subs       memSubs
	bundleSubs memBundleSubs
	partners   memPartners
	previews   memPreviews
	ledger     memLedger
	payouts    memPayouts
	stats      *MockStatsRepo

	chans    *MockChannelManager
	notifier *MockNotifier
	audit    *MockAuditLog
}

func newTestEnv() *testEnv {
	s := newMemStore()
	return &testEnv{
		store:      s,
		tm:         newMockTxManager(s),
		users:      memUsers{s},
		creators:   memCreators{s},
		channels:   memChannels{s},
		plans:      memPlans{s},
		bundles:    memBundles{s},
		subs:       memSubs{s},
		bundleSubs: memBundleSubs{s},
		partners:   memPartners{s},
		previews:   memPreviews{s},
		ledger:     memLedger{s},
		payouts:    memPayouts{s},
		stats:      &MockStatsRepo{},
		chans:      &MockChannelManager{BotID: 999, Admins: map[int64][]int64{}},
		notifier:   &MockNotifier{},
		audit:      &MockAuditLog{},
	}
}

const (
	ownerTgID   int64 = 100
	channelTgID int64 = -1001000
)

// seeded is a creator with one channel and a 30-day plan priced 50000.
type seeded struct {
	owner   *model.User
	creator *model.Creator
	channel *model.Channel
	plan    *model.SubscriptionPlan
}

func (e *testEnv) seed() seeded {
	ctx := context.Background()
	owner, _ := e.users.Upsert(ctx, nil, model.UserProfile{TelegramID: ownerTgID, FirstName: "Owner"})
	creator, _ := e.creators.EnsureForUser(ctx, nil, owner.ID)
	ch, _ := model.NewChannel(creator.ID, channelTgID, "Premium")
	_ = e.channels.Create(ctx, nil, ch)
	plan, _ := model.NewSubscriptionPlan(ch.ID, "Monthly", 50000, model.Days(30))
	_ = e.plans.Create(ctx, nil, plan)
	e.chans.Admins[channelTgID] = []int64{e.chans.BotID}
	return seeded{owner: owner, creator: creator, channel: ch, plan: plan}
}

// addUser stores a subscriber with the given Telegram id.
func (e *testEnv) addUser(tgID int64) *model.User {
	u, _ := e.users.Upsert(context.Background(), nil, model.UserProfile{TelegramID: tgID, FirstName: fmt.Sprintf("U%d", tgID)})
	return u
}

// addSub stores an ACTIVE subscription of u to plan ending at end.
func (e *testEnv) addSub(u *model.User, plan *model.SubscriptionPlan, end time.Time, partnerID *int64) *model.Subscription {
	s := &model.Subscription{
		UserID: u.ID, PlanID: plan.ID, PaymentID: fmt.Sprintf("pay-%d-%d", u.ID, end.UnixNano()),
		Status: model.SubscriptionStatusActive, StartDate: end.Add(-24 * time.Hour), EndDate: end,
		InviteLink: "https://t.me/+old", PartnerID: partnerID, CreatedAt: time.Now(),
	}
	_ = e.subs.Create(context.Background(), nil, s)
	return s
}

// addPartner stores a partner row of u for channelID in the given status.
func (e *testEnv) addPartner(u *model.User, channelID int64, st model.PartnerStatus, rate float64) *model.Partner {
	p, _, _ := e.partners.Request(context.Background(), nil, u.ID, channelID)
	if st != model.PartnerStatusPending {
		_ = e.partners.Decide(context.Background(), nil, p.ID, st, rate, time.Now())
		p.Status, p.CommissionRate = st, rate
	}
	return p
}

func (e *testEnv) balance(creatorID int64) int64 {
	b, _ := e.ledger.GetBalance(context.Background(), nil, creatorID)
	return b
}

func ptr[T any](v T) *T { return &v }
