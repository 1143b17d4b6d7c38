package model

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusPending SubscriptionStatus = "PENDING"
	SubscriptionStatusActive  SubscriptionStatus = "ACTIVE"
	SubscriptionStatusExpired SubscriptionStatus = "EXPIRED"
)

// Subscription is one paid access grant of a user to a plan's channel.
type Subscription struct {
	ID         int64
	UserID     int64
	PlanID     int64
	PaymentID  string
	Status     SubscriptionStatus
	StartDate  time.Time
	EndDate    time.Time
	InviteLink string
	PartnerID  *int64
	Reminded3d bool
	Reminded1d bool
	CreatedAt  time.Time
}

// IsActiveAt reports whether the subscription grants access at t.
func (s *Subscription) IsActiveAt(t time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.EndDate.After(t)
}

// SubscriptionDetail is a subscription with its related rows eagerly loaded.
type SubscriptionDetail struct {
	Subscription
	User    User
	Plan    SubscriptionPlan
	Channel Channel
	Partner *Partner
}

// ReminderHorizon selects one of the two reminder windows.
type ReminderHorizon int

const (
	Reminder1d ReminderHorizon = 1
	Reminder3d ReminderHorizon = 3
)

// Window returns the (after, until] bounds of the reminder window at now.
// Windows do not overlap, so a subscription falls into at most one of them
// at any instant.
func (h ReminderHorizon) Window(now time.Time) (after, until time.Time) {
	switch h {
	case Reminder3d:
		return now.Add(24 * time.Hour), now.Add(72 * time.Hour)
	default:
		return now, now.Add(24 * time.Hour)
	}
}

func (h ReminderHorizon) Key() string {
	if h == Reminder3d {
		return "reminder_3d"
	}
	return "reminder_1d"
}

// BundleInviteLink is the per-channel outcome of a bundle activation.
type BundleInviteLink struct {
	ChannelID         int64  `json:"channel_id"`
	TelegramChannelID int64  `json:"telegram_channel_id"`
	Title             string `json:"title"`
	InviteLink        string `json:"invite_link,omitempty"`
	Error             string `json:"error,omitempty"`
}

func (l BundleInviteLink) OK() bool { return l.InviteLink != "" && l.Error == "" }

type BundleSubscription struct {
	ID           int64
	UserID       int64
	BundlePlanID int64
	PaymentID    string
	Status       SubscriptionStatus
	StartDate    time.Time
	EndDate      time.Time
	Links        []BundleInviteLink
	CreatedAt    time.Time
}

// Failed counts channels whose invite link could not be issued.
func (b *BundleSubscription) Failed() int {
	n := 0
	for _, l := range b.Links {
		if !l.OK() {
			n++
		}
	}
	return n
}

type BundleSubscriptionDetail struct {
	BundleSubscription
	User   User
	Plan   BundlePlan
	Bundle Bundle
}

type PartnerStatus string

const (
	PartnerStatusPending  PartnerStatus = "PENDING"
	PartnerStatusApproved PartnerStatus = "APPROVED"
	PartnerStatusRejected PartnerStatus = "REJECTED"
)

const DefaultPartnerRate = 0.40

// Partner is a user's request (and, once approved, right) to earn commission
// for referring subscribers to one channel.
type Partner struct {
	ID             int64
	UserID         int64
	ChannelID      int64
	Status         PartnerStatus
	CommissionRate float64
	CreatedAt      time.Time
	DecidedAt      *time.Time
}

func (p *Partner) IsApproved() bool {
	return p != nil && p.Status == PartnerStatusApproved
}

type PartnerDetail struct {
	Partner
	User    User
	Channel Channel
}

type PreviewStatus string

const (
	PreviewStatusActive    PreviewStatus = "ACTIVE"
	PreviewStatusExpired   PreviewStatus = "EXPIRED"
	PreviewStatusConverted PreviewStatus = "CONVERTED"
)

// PreviewCooldown is the minimum gap between the end of one preview and the next.
const PreviewCooldown = 30 * 24 * time.Hour

type PreviewAccess struct {
	ID         int64
	UserID     int64
	ChannelID  int64
	Status     PreviewStatus
	StartDate  time.Time
	EndDate    time.Time
	InviteLink string
	CreatedAt  time.Time
}

// CooldownRemaining returns the whole days (rounded up) until a new preview is
// allowed, or 0 when it already is.
func (p *PreviewAccess) CooldownRemaining(now time.Time) int {
	until := p.EndDate.Add(PreviewCooldown)
	if !until.After(now) {
		return 0
	}
	left := until.Sub(now)
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days
}

type PreviewDetail struct {
	PreviewAccess
	User    User
	Channel Channel
}
