package application

import (
	"context"

	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/adapter"
	"telegram-channel-paywall/internal/usecase"
)

// ---- small interfaces to decouple the facade from concrete usecase structs ----
// These describe the minimal surface that the facade needs.

type PaymentFlow interface {
	QuotePlan(ctx context.Context, planID int64) (*usecase.Quote, error)
	QuoteBundlePlan(ctx context.Context, bundlePlanID int64) (*usecase.Quote, error)
	Open(ctx context.Context, q *usecase.Quote, comment string) (*usecase.Checkout, error)
	Confirm(ctx context.Context, tgID int64, paymentID string, expected int64) (adapter.PaymentStatus, error)
}

type Activator interface {
	Activate(ctx context.Context, req usecase.ActivationRequest) (*model.Subscription, error)
	ActivateBundle(ctx context.Context, req usecase.BundleActivationRequest) (*model.BundleSubscription, error)
}

type Ledger interface {
	RecordTransaction(ctx context.Context, subscriptionID, gross, creatorID int64) (*model.Transaction, error)
	RecordBundleTransaction(ctx context.Context, bundleSubscriptionID, gross, creatorID int64, platformPercent float64) (*model.BundleTransaction, error)
}
