package model

import (
	"math"
	"math/big"
	"strconv"
	"time"
)

const (
	// ProviderPercent is the payment gateway fee applied to every payment.
	ProviderPercent = 0.05
	// DefaultPlatformPercent applies to channels without a commission override.
	DefaultPlatformPercent = 0.05
)

// FeeSplit is the breakdown of one gross payment. The four parts always sum to Gross.
type FeeSplit struct {
	Gross        int64
	ProviderFee  int64
	PlatformFee  int64
	PartnerShare int64
	CreatorShare int64
}

// Remaining is what is left after the provider and platform fees.
func (s FeeSplit) Remaining() int64 { return s.Gross - s.ProviderFee - s.PlatformFee }

// ComputeSplit divides gross between the provider, the platform, an optional
// partner and the creator. Percents are fractions in [0,1] taken at their
// shortest decimal form, so 0.12345 of 100000 is exactly 12345. Every share is
// floored; the creator receives the residual.
func ComputeSplit(gross int64, platformPercent, partnerPercent float64) FeeSplit {
	if gross <= 0 {
		return FeeSplit{Gross: gross, CreatorShare: gross}
	}
	s := FeeSplit{Gross: gross}
	s.ProviderFee = share(gross, ProviderPercent)
	s.PlatformFee = share(gross, platformPercent)
	if s.PlatformFee > gross-s.ProviderFee {
		s.PlatformFee = gross - s.ProviderFee
	}
	remaining := s.Remaining()
	s.PartnerShare = share(remaining, partnerPercent)
	s.CreatorShare = remaining - s.PartnerShare
	return s
}

// percentRat clamps p to [0,1] and returns the decimal it prints as.
func percentRat(p float64) *big.Rat {
	if math.IsNaN(p) || p <= 0 {
		return new(big.Rat)
	}
	if p >= 1 {
		return big.NewRat(1, 1)
	}
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(p, 'f', -1, 64))
	if !ok {
		return new(big.Rat)
	}
	return r
}

// share returns floor(amount*p) for amount >= 0.
func share(amount int64, p float64) int64 {
	prod := new(big.Rat).Mul(new(big.Rat).SetInt64(amount), percentRat(p))
	return new(big.Int).Quo(prod.Num(), prod.Denom()).Int64()
}

type TransactionStatus string

const TransactionStatusCompleted TransactionStatus = "COMPLETED"

// Transaction is the immutable fee breakdown of one subscription payment.
type Transaction struct {
	ID             int64
	SubscriptionID int64
	FeeSplit
	PartnerID *int64
	Status    TransactionStatus
	CreatedAt time.Time
}

type BundleTransaction struct {
	ID                   int64
	BundleSubscriptionID int64
	FeeSplit
	Status    TransactionStatus
	CreatedAt time.Time
}

type CreatorBalance struct {
	CreatorID        int64
	AvailableBalance int64
	UpdatedAt        time.Time
}
