package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"telegram-channel-paywall/internal/domain"
)

const (
	MinPlanPrice   int64 = 1000
	MaxPlanDays          = 365
	MinPlanMinutes       = 30
	MaxPlanMinutes       = 1440
)

type DurationUnit int

const (
	UnitDays DurationUnit = iota + 1
	UnitMinutes
)

// Duration is either a whole number of days or of minutes, never both.
// The zero value is invalid; build one with Days or Minutes.
type Duration struct {
	unit DurationUnit
	n    int
}

func Days(n int) Duration    { return Duration{unit: UnitDays, n: n} }
func Minutes(n int) Duration { return Duration{unit: UnitMinutes, n: n} }

func (d Duration) Unit() DurationUnit { return d.unit }
func (d Duration) Value() int         { return d.n }
func (d Duration) IsZero() bool       { return d.unit == 0 }

// AddTo returns t advanced by the duration. Day plans use calendar days.
func (d Duration) AddTo(t time.Time) time.Time {
	switch d.unit {
	case UnitDays:
		return t.AddDate(0, 0, d.n)
	case UnitMinutes:
		return t.Add(time.Duration(d.n) * time.Minute)
	default:
		return t
	}
}

// Validate enforces the per-unit bounds for purchasable plans.
func (d Duration) Validate() error {
	switch d.unit {
	case UnitDays:
		if d.n < 1 || d.n > MaxPlanDays {
			return domain.ErrInvalidDuration
		}
	case UnitMinutes:
		if d.n < MinPlanMinutes || d.n > MaxPlanMinutes {
			return domain.ErrInvalidDuration
		}
	default:
		return domain.ErrInvalidDuration
	}
	return nil
}

// Columns splits the duration into the (days, minutes) storage pair.
func (d Duration) Columns() (days, minutes *int) {
	n := d.n
	switch d.unit {
	case UnitDays:
		return &n, nil
	case UnitMinutes:
		return nil, &n
	}
	return nil, nil
}

// DurationFromColumns is the inverse of Columns.
func DurationFromColumns(days, minutes *int) (Duration, error) {
	switch {
	case days != nil && minutes == nil && *days > 0:
		return Days(*days), nil
	case minutes != nil && days == nil && *minutes > 0:
		return Minutes(*minutes), nil
	}
	return Duration{}, domain.ErrInvalidDuration
}

func (d Duration) String() string {
	switch d.unit {
	case UnitDays:
		return fmt.Sprintf("%dd", d.n)
	case UnitMinutes:
		return fmt.Sprintf("%dm", d.n)
	}
	return "invalid"
}

// ParseDuration accepts "30" or "30d" for days, "90m" for minutes and "2h" for hours.
func ParseDuration(s string) (Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Duration{}, domain.ErrInvalidDuration
	}
	unit := s[len(s)-1]
	body := s
	if unit == 'd' || unit == 'm' || unit == 'h' {
		body = s[:len(s)-1]
	} else {
		unit = 'd'
	}
	n, err := strconv.Atoi(body)
	if err != nil {
		return Duration{}, domain.ErrInvalidDuration
	}
	var d Duration
	switch unit {
	case 'd':
		d = Days(n)
	case 'm':
		d = Minutes(n)
	case 'h':
		d = Minutes(n * 60)
	}
	if err := d.Validate(); err != nil {
		return Duration{}, err
	}
	return d, nil
}

// SubscriptionPlan is a priced, timed access grant to one channel.
type SubscriptionPlan struct {
	ID        int64
	ChannelID int64
	Name      string
	Price     int64
	Duration  Duration
	IsActive  bool
	CreatedAt time.Time
}

// NewSubscriptionPlan validates and constructs an active plan.
func NewSubscriptionPlan(channelID int64, name string, price int64, d Duration) (*SubscriptionPlan, error) {
	if err := validatePlan(name, price, d); err != nil {
		return nil, err
	}
	if channelID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &SubscriptionPlan{
		ChannelID: channelID,
		Name:      strings.TrimSpace(name),
		Price:     price,
		Duration:  d,
		IsActive:  true,
		CreatedAt: time.Now(),
	}, nil
}

func validatePlan(name string, price int64, d Duration) error {
	if strings.TrimSpace(name) == "" || len(name) > 100 {
		return domain.ErrInvalidArgument
	}
	if price < MinPlanPrice {
		return domain.ErrPriceTooLow
	}
	return d.Validate()
}
