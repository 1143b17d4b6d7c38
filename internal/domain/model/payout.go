package model

import (
	"time"

	"telegram-channel-paywall/internal/domain"
)

// MinWithdrawal is the smallest payout a creator may request.
const MinWithdrawal int64 = 10000

type PayoutStatus string

const (
	PayoutStatusRequested  PayoutStatus = "REQUESTED"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusPaid       PayoutStatus = "PAID"
	PayoutStatusRejected   PayoutStatus = "REJECTED"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusRequested:  {PayoutStatusProcessing, PayoutStatusPaid, PayoutStatusRejected},
	PayoutStatusProcessing: {PayoutStatusPaid, PayoutStatusRejected},
}

// CanTransition reports whether an admin may move a payout from s to next.
func (s PayoutStatus) CanTransition(next PayoutStatus) bool {
	for _, st := range payoutTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

func ParsePayoutStatus(s string) (PayoutStatus, error) {
	switch st := PayoutStatus(s); st {
	case PayoutStatusRequested, PayoutStatusProcessing, PayoutStatusPaid, PayoutStatusRejected:
		return st, nil
	}
	return "", domain.ErrInvalidArgument
}

type Payout struct {
	ID          int64
	CreatorID   int64
	Amount      int64
	CardNumber  string
	Status      PayoutStatus
	RequestedAt time.Time
	ProcessedAt *time.Time
	AdminNote   string
}

// MaskedCard shows only the last four digits.
func (p *Payout) MaskedCard() string {
	if len(p.CardNumber) < 4 {
		return "****"
	}
	return "**** " + p.CardNumber[len(p.CardNumber)-4:]
}

// ValidateCardNumber accepts exactly 16 ASCII digits.
func ValidateCardNumber(card string) error {
	if len(card) != 16 {
		return domain.ErrInvalidCard
	}
	for _, r := range card {
		if r < '0' || r > '9' {
			return domain.ErrInvalidCard
		}
	}
	return nil
}
