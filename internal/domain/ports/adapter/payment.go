package adapter

import "context"

// GatewayTransaction is a payment created at the provider.
type GatewayTransaction struct {
	ID         string
	PaymentURL string
	Status     string
}

// PaymentStatus is the provider's view of a transaction.
type PaymentStatus struct {
	ID     string
	Paid   bool
	Amount int64
	Status string
}

// PaymentGateway is the hex port for the payment provider.
type PaymentGateway interface {
	Name() string
	CreateTransaction(ctx context.Context, amount int64, redirectURL, comment string) (GatewayTransaction, error)
	CheckTransaction(ctx context.Context, id string) (PaymentStatus, error)
}
