package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ledgerTransactionsTotal,
		ledgerAmountTotal,
		payoutsTotal,
		payoutAmountTotal,
		paymentChecksTotal,
	)
}

var (
	ledgerTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Ledger entries by kind (subscription, bundle) and result (recorded, replayed, error).",
		},
		[]string{"kind", "result"},
	)

	ledgerAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_amount_total",
			Help: "Booked amounts by split part (gross, provider, platform, partner, creator).",
		},
		[]string{"part"},
	)

	payoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payouts_total",
			Help: "Payout workflow transitions by resulting status.",
		},
		[]string{"status"},
	)

	payoutAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_amount_total",
			Help: "Payout amounts by resulting status.",
		},
		[]string{"status"},
	)

	paymentChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_checks_total",
			Help: "Gateway status checks by outcome (paid, unpaid, error).",
		},
		[]string{"provider", "outcome"},
	)
)

// ObserveSplit books one recorded split.
func ObserveSplit(kind string, gross, provider, platform, partner, creator int64) {
	ledgerTransactionsTotal.WithLabelValues(norm(kind), "recorded").Inc()
	ledgerAmountTotal.WithLabelValues("gross").Add(float64(gross))
	ledgerAmountTotal.WithLabelValues("provider").Add(float64(provider))
	ledgerAmountTotal.WithLabelValues("platform").Add(float64(platform))
	ledgerAmountTotal.WithLabelValues("partner").Add(float64(partner))
	ledgerAmountTotal.WithLabelValues("creator").Add(float64(creator))
}

func IncLedger(kind, res string) {
	ledgerTransactionsTotal.WithLabelValues(norm(kind), norm(res)).Inc()
}

func IncPayout(status string, amount int64) {
	payoutsTotal.WithLabelValues(norm(status)).Inc()
	payoutAmountTotal.WithLabelValues(norm(status)).Add(float64(amount))
}

func IncPaymentCheck(provider, outcome string) {
	paymentChecksTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}
