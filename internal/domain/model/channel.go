package model

import (
	"strings"
	"time"

	"telegram-channel-paywall/internal/domain"
)

const MaxPreviewMinutes = 15

// Channel is a Telegram channel owned by one creator.
type Channel struct {
	ID                 int64
	CreatorID          int64
	TelegramChannelID  int64
	Title              string
	CommissionRate     *float64
	IsFree             bool
	FreePlanID         *int64
	PreviewEnabled     bool
	PreviewDurationMin int
	CreatedAt          time.Time
}

func NewChannel(creatorID, tgChannelID int64, title string) (*Channel, error) {
	title = strings.TrimSpace(title)
	if creatorID <= 0 || tgChannelID >= 0 || title == "" || len(title) > 255 {
		return nil, domain.ErrInvalidArgument
	}
	return &Channel{
		CreatorID:         creatorID,
		TelegramChannelID: tgChannelID,
		Title:             title,
		CreatedAt:         time.Now(),
	}, nil
}

// PlatformPercent is the channel override or the platform default.
func (c *Channel) PlatformPercent(def float64) float64 {
	if c.CommissionRate != nil {
		return *c.CommissionRate
	}
	return def
}

// PreviewMinutes returns the effective preview length, capped platform-wide.
// Zero means previews are unavailable.
func (c *Channel) PreviewMinutes() int {
	if !c.PreviewEnabled || c.PreviewDurationMin <= 0 {
		return 0
	}
	if c.PreviewDurationMin > MaxPreviewMinutes {
		return MaxPreviewMinutes
	}
	return c.PreviewDurationMin
}

// Bundle sells access to several channels of one creator under shared plans.
type Bundle struct {
	ID         int64
	CreatorID  int64
	Title      string
	FolderLink string
	ChannelIDs []int64
	CreatedAt  time.Time
}

func (b *Bundle) Has(channelID int64) bool {
	for _, id := range b.ChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

// BundlePlan is the bundle analogue of SubscriptionPlan.
type BundlePlan struct {
	ID        int64
	BundleID  int64
	Name      string
	Price     int64
	Duration  Duration
	IsActive  bool
	CreatedAt time.Time
}

func NewBundlePlan(bundleID int64, name string, price int64, d Duration) (*BundlePlan, error) {
	if err := validatePlan(name, price, d); err != nil {
		return nil, err
	}
	if bundleID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &BundlePlan{
		BundleID:  bundleID,
		Name:      strings.TrimSpace(name),
		Price:     price,
		Duration:  d,
		IsActive:  true,
		CreatedAt: time.Now(),
	}, nil
}
