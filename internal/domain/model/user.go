package model

import (
	"strings"
	"time"

	"telegram-channel-paywall/internal/domain"
)

const DefaultLanguage = "en"

// User is a Telegram account known to the bot, keyed by its Telegram id.
type User struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Language   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UserProfile carries the profile fields refreshed on every interaction.
type UserProfile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Language   string
}

func (p UserProfile) Validate() error {
	if p.TelegramID <= 0 {
		return domain.ErrInvalidArgument
	}
	return nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == 0 }

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "user"
}

// Lang returns the selected language or the default one.
func (u *User) Lang() string {
	if u == nil || u.Language == "" {
		return DefaultLanguage
	}
	return u.Language
}

// Creator is the channel-owning role of a user.
type Creator struct {
	ID        int64
	UserID    int64
	CreatedAt time.Time
}
