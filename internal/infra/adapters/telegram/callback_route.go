package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/ports/adapter"
	"telegram-channel-paywall/internal/infra/metrics"
	"telegram-channel-paywall/internal/usecase"
)

const cbPaid = "paid"

type cbHandler func(ctx context.Context, req *request) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

// Exact-match callbacks
func (b *Bot) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		cbPaid: b.paidCBRoute,
	}
}

// Prefix-match callbacks; req.args holds the data after the prefix.
func (b *Bot) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: "channel:", Fn: b.channelPrefixCBRoute},
		{Prefix: "bundle:", Fn: b.bundlePrefixCBRoute},
		{Prefix: "plan:", Fn: b.planPrefixCBRoute},
		{Prefix: "bplan:", Fn: b.bundlePlanPrefixCBRoute},
		{Prefix: "preview:", Fn: b.previewPrefixCBRoute},
		{Prefix: "free:", Fn: b.freePrefixCBRoute},
		{Prefix: "partner:apply:", Fn: b.partnerApplyPrefixCBRoute},
		{Prefix: "partner:approve:", Fn: b.partnerApprovePrefixCBRoute},
		{Prefix: "partner:reject:", Fn: b.partnerRejectPrefixCBRoute},
	}
}

func (b *Bot) channelPrefixCBRoute(ctx context.Context, req *request) error {
	id, err := strconv.ParseInt(req.args, 10, 64)
	if err != nil {
		return b.reply(ctx, req, "error.not_found", nil)
	}
	return b.sendChannelOffer(ctx, req, id)
}

func (b *Bot) bundlePrefixCBRoute(ctx context.Context, req *request) error {
	id, err := strconv.ParseInt(req.args, 10, 64)
	if err != nil {
		return b.reply(ctx, req, "error.not_found", nil)
	}
	return b.sendBundleOffer(ctx, req, id)
}

func (b *Bot) planPrefixCBRoute(ctx context.Context, req *request) error {
	return b.openCheckout(ctx, req, usecase.QuotePlan)
}

func (b *Bot) bundlePlanPrefixCBRoute(ctx context.Context, req *request) error {
	return b.openCheckout(ctx, req, usecase.QuoteBundlePlan)
}

func (b *Bot) openCheckout(ctx context.Context, req *request, kind usecase.QuoteKind) error {
	id, err := strconv.ParseInt(req.args, 10, 64)
	if err != nil {
		return b.reply(ctx, req, "error.not_found", nil)
	}
	c, err := b.deps.Checkout.Open(ctx, req.profile.TelegramID, kind, id)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	text := b.t(req, "payment.open", map[string]any{
		"name":   c.Title + " - " + c.Name,
		"amount": c.Price,
	})
	rows := [][]adapter.InlineButton{
		{{Text: b.t(req, "button.pay", nil), URL: c.PaymentURL}},
		{{Text: b.t(req, "button.paid", nil), Data: cbPaid}},
	}
	return b.replyButtons(ctx, req, text, rows)
}

// paidCBRoute confirms the pending checkout and hands out the invite links.
func (b *Bot) paidCBRoute(ctx context.Context, req *request) error {
	out, err := b.deps.Checkout.Complete(ctx, req.profile)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	if out.Subscription != nil {
		return b.reply(ctx, req, "payment.confirmed", map[string]any{
			"channel": out.Title,
			"link":    out.Subscription.InviteLink,
		})
	}
	if out.Bundle == nil {
		return errors.New("checkout completed without access")
	}

	var links []string
	for _, l := range out.Bundle.Links {
		if l.OK() {
			links = append(links, l.Title+": "+l.InviteLink)
		}
	}
	parts := []string{b.t(req, "payment.bundle_confirmed", map[string]any{"links": strings.Join(links, "\n")})}
	if out.FolderLink != "" {
		parts = append(parts, b.t(req, "bundle.folder", map[string]any{"link": out.FolderLink}))
	}
	if out.Bundle.Failed() > 0 {
		parts = append(parts, b.t(req, "bundle.link_failed", nil))
	}
	return b.client.SendMessage(ctx, req.chatID, strings.Join(parts, "\n\n"))
}

func (b *Bot) previewPrefixCBRoute(ctx context.Context, req *request) error {
	id, err := strconv.ParseInt(req.args, 10, 64)
	if err != nil {
		return b.reply(ctx, req, "error.not_found", nil)
	}
	p, err := b.deps.Previews.StartPreview(ctx, req.profile, id)
	if err != nil {
		metrics.AddPreviews("refused", 1)
		return b.replyError(ctx, req, err)
	}
	metrics.AddPreviews("started", 1)
	return b.reply(ctx, req, "preview.started", map[string]any{
		"minutes": int(p.EndDate.Sub(p.StartDate).Minutes()),
		"link":    p.InviteLink,
	})
}

func (b *Bot) freePrefixCBRoute(ctx context.Context, req *request) error {
	id, err := strconv.ParseInt(req.args, 10, 64)
	if err != nil {
		return b.reply(ctx, req, "error.not_found", nil)
	}
	sub, err := b.deps.Activation.JoinFree(ctx, req.profile, id)
	if errors.Is(err, domain.ErrInvalidArgument) {
		return b.reply(ctx, req, "free.not_free", nil)
	}
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "free.joined", map[string]any{"link": sub.InviteLink})
}

func (b *Bot) partnerApplyPrefixCBRoute(ctx context.Context, req *request) error {
	id, err := strconv.ParseInt(req.args, 10, 64)
	if err != nil {
		return b.reply(ctx, req, "error.not_found", nil)
	}
	_, created, err := b.deps.Partners.Request(ctx, req.profile, id)
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return b.reply(ctx, req, "partner.self", nil)
	case err != nil:
		return b.replyError(ctx, req, err)
	case !created:
		return b.reply(ctx, req, "partner.request_exists", nil)
	}
	return b.reply(ctx, req, "partner.request_sent", nil)
}

func (b *Bot) partnerApprovePrefixCBRoute(ctx context.Context, req *request) error {
	id, err := strconv.ParseInt(req.args, 10, 64)
	if err != nil {
		return b.reply(ctx, req, "error.not_found", nil)
	}
	if _, err := b.deps.Partners.Approve(ctx, req.profile.TelegramID, id, nil); err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "partner.decided", nil)
}

func (b *Bot) partnerRejectPrefixCBRoute(ctx context.Context, req *request) error {
	id, err := strconv.ParseInt(req.args, 10, 64)
	if err != nil {
		return b.reply(ctx, req, "error.not_found", nil)
	}
	if _, err := b.deps.Partners.Reject(ctx, req.profile.TelegramID, id); err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "partner.decided", nil)
}

// sendChannelOffer shows the channel with one button per active plan plus the
// free, preview and partner actions the channel allows.
func (b *Bot) sendChannelOffer(ctx context.Context, req *request, channelID int64) error {
	offer, err := b.deps.Creators.ChannelOffer(ctx, channelID)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	ch := offer.Channel

	rows := make([][]adapter.InlineButton, 0, len(offer.Plans)+3)
	for _, p := range offer.Plans {
		rows = append(rows, []adapter.InlineButton{{
			Text: b.t(req, "button.plan", map[string]any{"name": p.Name, "price": p.Price, "duration": p.Duration.String()}),
			Data: fmt.Sprintf("plan:%d", p.ID),
		}})
	}
	if ch.IsFree && ch.FreePlanID != nil {
		rows = append(rows, []adapter.InlineButton{{Text: b.t(req, "button.join_free", nil), Data: fmt.Sprintf("free:%d", ch.ID)}})
	}
	if m := ch.PreviewMinutes(); m > 0 {
		rows = append(rows, []adapter.InlineButton{{
			Text: b.t(req, "button.preview", map[string]any{"minutes": m}),
			Data: fmt.Sprintf("preview:%d", ch.ID),
		}})
	}
	rows = append(rows, []adapter.InlineButton{{Text: b.t(req, "button.partner_apply", nil), Data: fmt.Sprintf("partner:apply:%d", ch.ID)}})

	key := "channel.offer"
	if len(offer.Plans) == 0 {
		key = "channel.no_plans"
	}
	return b.replyButtons(ctx, req, b.t(req, key, map[string]any{"title": ch.Title}), rows)
}

func (b *Bot) sendBundleOffer(ctx context.Context, req *request, bundleID int64) error {
	offer, err := b.deps.Creators.BundleOffer(ctx, bundleID)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	if len(offer.Plans) == 0 {
		return b.reply(ctx, req, "bundle.no_plans", map[string]any{"title": offer.Bundle.Title})
	}
	rows := make([][]adapter.InlineButton, 0, len(offer.Plans))
	for _, p := range offer.Plans {
		rows = append(rows, []adapter.InlineButton{{
			Text: b.t(req, "button.plan", map[string]any{"name": p.Name, "price": p.Price, "duration": p.Duration.String()}),
			Data: fmt.Sprintf("bplan:%d", p.ID),
		}})
	}
	text := b.t(req, "bundle.offer", map[string]any{"title": offer.Bundle.Title, "count": len(offer.Bundle.ChannelIDs)})
	return b.replyButtons(ctx, req, text, rows)
}

func (b *Bot) partnerButtons(req *request, partnerID int64) [][]adapter.InlineButton {
	return [][]adapter.InlineButton{{
		{Text: b.t(req, "button.approve", nil), Data: fmt.Sprintf("partner:approve:%d", partnerID)},
		{Text: b.t(req, "button.reject", nil), Data: fmt.Sprintf("partner:reject:%d", partnerID)},
	}}
}
