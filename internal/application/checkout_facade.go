package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
	"telegram-channel-paywall/internal/infra/metrics"
	"telegram-channel-paywall/internal/usecase"

	"github.com/rs/zerolog"
)

const stepCheckout = "checkout"

// state keys of a pending checkout
const (
	keyKind      = "checkout_kind"
	keyPlanID    = "checkout_plan_id"
	keyPaymentID = "checkout_payment_id"
	keyAmount    = "checkout_amount"
	keyCreatorID = "checkout_creator_id"
	keyPercent   = "checkout_platform_percent"
	keyTitle     = "checkout_title"
	keyFolder    = "checkout_folder_link"
)

// ErrNoPendingCheckout is returned by Complete when the user has no open payment.
var ErrNoPendingCheckout = fmt.Errorf("pending checkout: %w", domain.ErrNotFound)

// Completion is the outcome of a confirmed checkout. Exactly one of
// Subscription and Bundle is set.
type Completion struct {
	Kind  usecase.QuoteKind
	Title string
	// FolderLink is the bundle folder, empty for channel plans.
	FolderLink   string
	Subscription *model.Subscription
	Bundle       *model.BundleSubscription
	// LedgerErr is set when access was granted but booking the split failed.
	LedgerErr error
}

// CheckoutFacade composes payment, activation and ledger into the two
// steps the bot exposes: open a payment, then confirm it.
type CheckoutFacade struct {
	Payments PaymentFlow
	Act      Activator
	Ledger   Ledger
	State    repository.StateRepository
	Provider string
	log      *zerolog.Logger
}

func NewCheckoutFacade(
	payments PaymentFlow,
	act Activator,
	ledger Ledger,
	state repository.StateRepository,
	provider string,
	logger *zerolog.Logger,
) *CheckoutFacade {
	return &CheckoutFacade{
		Payments: payments,
		Act:      act,
		Ledger:   ledger,
		State:    state,
		Provider: provider,
		log:      logger,
	}
}

// Open prices the plan, opens the provider payment and remembers it as the
// user's pending checkout. A referrer already in the user's state is kept.
func (f *CheckoutFacade) Open(ctx context.Context, tgID int64, kind usecase.QuoteKind, planID int64) (*usecase.Checkout, error) {
	var (
		q   *usecase.Quote
		err error
	)
	switch kind {
	case usecase.QuotePlan:
		q, err = f.Payments.QuotePlan(ctx, planID)
	case usecase.QuoteBundlePlan:
		q, err = f.Payments.QuoteBundlePlan(ctx, planID)
	default:
		return nil, domain.ErrInvalidArgument
	}
	if err != nil {
		return nil, err
	}

	c, err := f.Payments.Open(ctx, q, fmt.Sprintf("%s %d by %d", kind, planID, tgID))
	if err != nil {
		return nil, err
	}

	st, err := f.State.GetState(ctx, tgID)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if st == nil {
		st = &repository.ConversationState{}
	}
	if st.Data == nil {
		st.Data = map[string]string{}
	}
	st.Step = stepCheckout
	st.Data[keyKind] = string(c.Kind)
	st.Data[keyPlanID] = strconv.FormatInt(c.PlanID, 10)
	st.Data[keyPaymentID] = c.PaymentID
	st.Data[keyAmount] = strconv.FormatInt(c.Price, 10)
	st.Data[keyCreatorID] = strconv.FormatInt(c.CreatorID, 10)
	st.Data[keyPercent] = strconv.FormatFloat(c.PlatformPercent, 'f', -1, 64)
	st.Data[keyTitle] = c.Title
	st.Data[keyFolder] = c.FolderLink
	if err := f.State.SetState(ctx, tgID, st); err != nil {
		return nil, fmt.Errorf("save checkout: %w", err)
	}
	return c, nil
}

// Complete confirms the user's pending checkout with the provider, grants
// access and books the ledger split. A ledger failure does not undo access;
// it is reported in Completion.LedgerErr and logged.
func (f *CheckoutFacade) Complete(ctx context.Context, payer model.UserProfile) (*Completion, error) {
	st, err := f.State.GetState(ctx, payer.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	p, ok := pendingFrom(st)
	if !ok {
		return nil, ErrNoPendingCheckout
	}

	if _, err := f.Payments.Confirm(ctx, payer.TelegramID, p.paymentID, p.amount); err != nil {
		metrics.IncPaymentCheck(f.Provider, checkOutcome(err))
		return nil, err
	}
	metrics.IncPaymentCheck(f.Provider, "paid")

	out := &Completion{Kind: p.kind, Title: p.title, FolderLink: p.folder}
	switch p.kind {
	case usecase.QuotePlan:
		sub, err := f.Act.Activate(ctx, usecase.ActivationRequest{
			PlanID:             p.planID,
			PaymentID:          p.paymentID,
			Payer:              payer,
			ReferrerTelegramID: p.referrer,
		})
		metrics.IncActivation("subscription", resultOf(err))
		if err != nil {
			return nil, err
		}
		out.Subscription = sub

		t, err := f.Ledger.RecordTransaction(ctx, sub.ID, p.amount, p.creatorID)
		if err != nil {
			metrics.IncLedger("subscription", "error")
			f.log.Warn().Err(err).Int64("subscription_id", sub.ID).Str("payment_id", p.paymentID).Msg("ledger entry not recorded")
			out.LedgerErr = err
		} else {
			metrics.ObserveSplit("subscription", t.Gross, t.ProviderFee, t.PlatformFee, t.PartnerShare, t.CreatorShare)
		}

	case usecase.QuoteBundlePlan:
		bs, err := f.Act.ActivateBundle(ctx, usecase.BundleActivationRequest{
			BundlePlanID: p.planID,
			PaymentID:    p.paymentID,
			Payer:        payer,
		})
		metrics.IncActivation("bundle", resultOf(err))
		if err != nil {
			return nil, err
		}
		out.Bundle = bs

		t, err := f.Ledger.RecordBundleTransaction(ctx, bs.ID, p.amount, p.creatorID, p.percent)
		if err != nil {
			metrics.IncLedger("bundle", "error")
			f.log.Warn().Err(err).Int64("bundle_subscription_id", bs.ID).Str("payment_id", p.paymentID).Msg("bundle ledger entry not recorded")
			out.LedgerErr = err
		} else {
			metrics.ObserveSplit("bundle", t.Gross, t.ProviderFee, t.PlatformFee, t.PartnerShare, t.CreatorShare)
		}
	}

	if err := f.State.ClearState(ctx, payer.TelegramID); err != nil {
		f.log.Warn().Err(err).Int64("tg_id", payer.TelegramID).Msg("clear checkout state failed")
	}
	return out, nil
}

// Pending reports whether the user has an open checkout.
func (f *CheckoutFacade) Pending(ctx context.Context, tgID int64) (bool, error) {
	st, err := f.State.GetState(ctx, tgID)
	if err != nil {
		return false, err
	}
	_, ok := pendingFrom(st)
	return ok, nil
}

type pending struct {
	kind      usecase.QuoteKind
	planID    int64
	paymentID string
	amount    int64
	creatorID int64
	percent   float64
	title     string
	folder    string
	referrer  *int64
}

func pendingFrom(st *repository.ConversationState) (pending, bool) {
	if st == nil || st.Step != stepCheckout || st.Data[keyPaymentID] == "" {
		return pending{}, false
	}
	p := pending{
		kind:      usecase.QuoteKind(st.Data[keyKind]),
		paymentID: st.Data[keyPaymentID],
		title:     st.Data[keyTitle],
		folder:    st.Data[keyFolder],
	}
	var err error
	if p.planID, err = strconv.ParseInt(st.Data[keyPlanID], 10, 64); err != nil {
		return pending{}, false
	}
	if p.amount, err = strconv.ParseInt(st.Data[keyAmount], 10, 64); err != nil {
		return pending{}, false
	}
	p.creatorID, _ = strconv.ParseInt(st.Data[keyCreatorID], 10, 64)
	p.percent, _ = strconv.ParseFloat(st.Data[keyPercent], 64)
	if ref, err := strconv.ParseInt(st.Data[repository.StateReferrerID], 10, 64); err == nil && ref > 0 {
		p.referrer = &ref
	}
	return p, true
}

func checkOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrPaymentNotConfirmed):
		return "unpaid"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "created"
}
