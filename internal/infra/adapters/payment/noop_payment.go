package payment

import (
	"context"
	"fmt"
	"sync"

	"telegram-channel-paywall/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory gateway for local runs. Every
// transaction it creates is reported as paid for the full amount.
type NoopPaymentGateway struct {
	mu      sync.Mutex
	seq     int64
	amounts map[string]int64 // payment id -> amount
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		amounts: make(map[string]int64),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next() string {
	g.seq++
	return fmt.Sprintf("noop-%d", g.seq)
}

func (g *NoopPaymentGateway) CreateTransaction(ctx context.Context, amount int64, redirectURL, comment string) (adapter.GatewayTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next()
	g.amounts[id] = amount
	return adapter.GatewayTransaction{ID: id, PaymentURL: "https://example.test/pay/" + id, Status: "pending"}, nil
}

func (g *NoopPaymentGateway) CheckTransaction(ctx context.Context, id string) (adapter.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	amount, ok := g.amounts[id]
	if !ok {
		return adapter.PaymentStatus{ID: id, Status: "not_found"}, nil
	}
	return adapter.PaymentStatus{ID: id, Paid: true, Amount: amount, Status: "paid"}, nil
}
