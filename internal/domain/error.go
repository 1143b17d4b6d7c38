package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every concrete error below wraps exactly one of them so callers
// can branch with errors.Is on the class or on the specific sentinel.
var (
	ErrNotFound           = errors.New("entity not found")
	ErrValidation         = errors.New("validation failed")
	ErrPolicy             = errors.New("policy violation")
	ErrExternalDependency = errors.New("external dependency failed")
)

var (
	ErrPlanNotFound    = fmt.Errorf("plan: %w", ErrNotFound)
	ErrChannelNotFound = fmt.Errorf("channel: %w", ErrNotFound)
	ErrCreatorNotFound = fmt.Errorf("creator: %w", ErrNotFound)
	ErrPartnerNotFound = fmt.Errorf("partner: %w", ErrNotFound)
	ErrBundleNotFound  = fmt.Errorf("bundle: %w", ErrNotFound)
	ErrPayoutNotFound  = fmt.Errorf("payout: %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user: %w", ErrNotFound)
)

var (
	ErrInvalidArgument = fmt.Errorf("invalid argument: %w", ErrValidation)
	ErrInvalidAmount   = fmt.Errorf("invalid amount: %w", ErrValidation)
	ErrInvalidDuration = fmt.Errorf("invalid duration: %w", ErrValidation)
	ErrInvalidCard     = fmt.Errorf("card number must be 16 digits: %w", ErrValidation)
	ErrPriceTooLow     = fmt.Errorf("price below minimum: %w", ErrValidation)
)

var (
	ErrInsufficientBalance = fmt.Errorf("insufficient balance: %w", ErrPolicy)
	ErrBelowMinWithdrawal  = fmt.Errorf("below minimum withdrawal: %w", ErrPolicy)
	ErrAlreadySubscribed   = fmt.Errorf("already subscribed: %w", ErrPolicy)
	ErrPreviewDisabled     = fmt.Errorf("preview disabled: %w", ErrPolicy)
	ErrPreviewCooldown     = fmt.Errorf("preview cooldown active: %w", ErrPolicy)
	ErrChannelTaken        = fmt.Errorf("channel registered by another creator: %w", ErrPolicy)
	ErrNotChannelOwner     = fmt.Errorf("not the channel owner: %w", ErrPolicy)
	ErrBotNotAdmin         = fmt.Errorf("bot is not a channel administrator: %w", ErrPolicy)
	ErrInvalidTransition   = fmt.Errorf("invalid status transition: %w", ErrPolicy)
	ErrRateLimited         = fmt.Errorf("too many requests: %w", ErrPolicy)
	ErrPaymentNotConfirmed = fmt.Errorf("payment not confirmed: %w", ErrPolicy)
)

// ErrRecipientBlocked is returned by notifiers when the user blocked the bot.
var ErrRecipientBlocked = fmt.Errorf("recipient blocked the bot: %w", ErrExternalDependency)

// Store errors.
var (
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
)

// CooldownError reports how long a user has to wait before the next preview.
type CooldownError struct {
	RemainingDays int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("preview available again in %d day(s)", e.RemainingDays)
}

func (e *CooldownError) Unwrap() error { return ErrPreviewCooldown }

// ExternalError wraps a failure of a collaborator call (telegram, payment gateway).
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *ExternalError) Unwrap() []error { return []error{ErrExternalDependency, e.Err} }

// External wraps err as an ExternalError unless it already carries that class.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExternalDependency) {
		return err
	}
	return &ExternalError{Op: op, Err: err}
}
