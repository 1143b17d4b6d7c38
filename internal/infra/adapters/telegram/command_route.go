package telegram

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
	"telegram-channel-paywall/internal/infra/metrics"
)

type commandHandler func(ctx context.Context, req *request) error

// commandRoutes maps command names (without the slash) to handlers.
func (b *Bot) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":   b.handleStartCommand,
		"help":    b.handleHelpCommand,
		"lang":    b.handleLangCommand,
		"partner": b.handlePartnerCommand,

		"addchannel": b.handleAddChannelCommand,
		"mychannels": b.handleMyChannelsCommand,
		"plan":       b.handlePlanCommand,
		"preview":    b.handlePreviewCommand,
		"free":       b.handleFreeCommand,
		"bundle":     b.handleBundleCommand,
		"bundleplan": b.handleBundlePlanCommand,
		"folder":     b.handleFolderCommand,
		"partners":   b.handlePartnersCommand,
		"approve":    b.handleApproveCommand,
		"reject":     b.handleRejectCommand,
		"stats":      b.handleStatsCommand,
		"balance":    b.handleBalanceCommand,
		"withdraw":   b.handleWithdrawCommand,
		"payouts":    b.handlePayoutsCommand,

		// These handlers are wrapped in our adminOnly middleware.
		"commission": b.adminOnly(b.handleCommissionCommand),
		"report":     b.adminOnly(b.handleReportCommand),
	}
}

func (b *Bot) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, req *request) error {
		if !b.isAdmin(req.profile.TelegramID) {
			metrics.IncTelegramUpdate("admin_command", "unauthorized")
			return b.reply(ctx, req, "error.unauthorized", nil)
		}
		return next(ctx, req)
	}
}

// handleStartCommand remembers the referrer of a deep link and opens the
// channel or bundle it points to.
func (b *Bot) handleStartCommand(ctx context.Context, req *request) error {
	p := ParseStartPayload(req.args)
	if p.ReferrerID > 0 && p.ReferrerID != req.profile.TelegramID {
		if err := b.rememberReferrer(ctx, req.profile.TelegramID, p.ReferrerID); err != nil {
			b.log.Warn().Err(err).Int64("tg_id", req.profile.TelegramID).Msg("referrer not stored")
		}
	}
	switch {
	case p.ChannelID > 0:
		return b.sendChannelOffer(ctx, req, p.ChannelID)
	case p.BundleID > 0:
		return b.sendBundleOffer(ctx, req, p.BundleID)
	}
	return b.reply(ctx, req, "start.welcome", nil)
}

func (b *Bot) rememberReferrer(ctx context.Context, tgID, referrer int64) error {
	if b.deps.State == nil {
		return nil
	}
	st, err := b.deps.State.GetState(ctx, tgID)
	if err != nil {
		return err
	}
	if st == nil {
		st = &repository.ConversationState{}
	}
	if st.Data == nil {
		st.Data = map[string]string{}
	}
	st.Data[repository.StateReferrerID] = strconv.FormatInt(referrer, 10)
	return b.deps.State.SetState(ctx, tgID, st)
}

func (b *Bot) handleHelpCommand(ctx context.Context, req *request) error {
	return b.reply(ctx, req, "help.text", nil)
}

func (b *Bot) handleLangCommand(ctx context.Context, req *request) error {
	lang := strings.ToLower(strings.TrimSpace(req.args))
	if lang == "" || !b.deps.Translator.Has(lang) {
		return b.reply(ctx, req, "lang.unknown", nil)
	}
	if err := b.deps.Users.SetLanguage(ctx, repository.NoTX, req.profile.TelegramID, lang); err != nil {
		return b.replyError(ctx, req, err)
	}
	req.user.Language = lang
	return b.reply(ctx, req, "lang.changed", nil)
}

func (b *Bot) handlePartnerCommand(ctx context.Context, req *request) error {
	s, err := b.deps.Partners.Summary(ctx, req.profile.TelegramID)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	text := b.t(req, "partner.summary", map[string]any{
		"earnings":    s.Earnings,
		"balance":     s.Balance,
		"conversions": s.Conversions,
		"active":      s.ActiveReferrals,
		"new_today":   s.NewToday,
		"pending":     s.Pending,
	})
	var sb strings.Builder
	sb.WriteString(text)
	for _, c := range s.Channels {
		fmt.Fprintf(&sb, "\n\n%s: %d / %d UZS\n%s", c.Title, c.Conversions, c.Earnings,
			b.deps.Partners.ReferralLink(c.ChannelID, req.profile.TelegramID))
	}
	return b.client.SendMessage(ctx, req.chatID, sb.String())
}

// /addchannel <channel_id> <title>
func (b *Bot) handleAddChannelCommand(ctx context.Context, req *request) error {
	f := strings.Fields(req.args)
	if len(f) < 2 {
		return b.usage(ctx, req, "/addchannel <channel_id> <title>")
	}
	tgChannelID, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return b.usage(ctx, req, "/addchannel <channel_id> <title>")
	}
	ch, err := b.deps.Creators.RegisterChannel(ctx, req.profile, tgChannelID, strings.Join(f[1:], " "))
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "creator.channel_registered", map[string]any{"title": ch.Title, "id": ch.ID})
}

func (b *Bot) handleMyChannelsCommand(ctx context.Context, req *request) error {
	chans, err := b.deps.Creators.ListChannels(ctx, req.profile.TelegramID)
	if err != nil && !errors.Is(err, domain.ErrCreatorNotFound) {
		return b.replyError(ctx, req, err)
	}
	if len(chans) == 0 {
		return b.reply(ctx, req, "creator.no_channels", nil)
	}
	lines := make([]string, 0, len(chans))
	for _, ch := range chans {
		lines = append(lines, b.t(req, "creator.channel_line", map[string]any{
			"id": ch.ID, "title": ch.Title, "preview": ch.PreviewMinutes(),
		}))
	}
	return b.client.SendMessage(ctx, req.chatID, strings.Join(lines, "\n"))
}

// /plan <channel_id> <price> <duration> <name>
func (b *Bot) handlePlanCommand(ctx context.Context, req *request) error {
	const usage = "/plan <channel_id> <price> <duration> <name>"
	id, price, d, name, ok := parsePlanArgs(req.args)
	if !ok {
		return b.usage(ctx, req, usage)
	}
	p, err := b.deps.Creators.CreatePlan(ctx, req.profile.TelegramID, id, name, price, d)
	if errors.Is(err, domain.ErrValidation) {
		return b.reply(ctx, req, "plan.invalid", nil)
	}
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "plan.created", map[string]any{"id": p.ID, "name": p.Name})
}

// /preview <channel_id> <minutes>
func (b *Bot) handlePreviewCommand(ctx context.Context, req *request) error {
	f := strings.Fields(req.args)
	if len(f) != 2 {
		return b.usage(ctx, req, "/preview <channel_id> <minutes>")
	}
	id, err1 := strconv.ParseInt(f[0], 10, 64)
	minutes, err2 := strconv.Atoi(f[1])
	if err1 != nil || err2 != nil {
		return b.usage(ctx, req, "/preview <channel_id> <minutes>")
	}
	ch, err := b.deps.Creators.SetPreview(ctx, req.profile.TelegramID, id, minutes)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "preview.updated", map[string]any{"minutes": ch.PreviewMinutes()})
}

// /free <channel_id> <plan_id|off>
func (b *Bot) handleFreeCommand(ctx context.Context, req *request) error {
	const usage = "/free <channel_id> <plan_id|off>"
	f := strings.Fields(req.args)
	if len(f) != 2 {
		return b.usage(ctx, req, usage)
	}
	id, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return b.usage(ctx, req, usage)
	}
	var planID *int64
	if !strings.EqualFold(f[1], "off") {
		pid, err := strconv.ParseInt(f[1], 10, 64)
		if err != nil {
			return b.usage(ctx, req, usage)
		}
		planID = &pid
	}
	if _, err := b.deps.Creators.SetFreeChannel(ctx, req.profile.TelegramID, id, planID); err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "free.updated", nil)
}

// /bundle <title> <channel_id,...>
func (b *Bot) handleBundleCommand(ctx context.Context, req *request) error {
	const usage = "/bundle <title> <channel_id,...>"
	f := strings.Fields(req.args)
	if len(f) < 2 {
		return b.usage(ctx, req, usage)
	}
	ids, ok := parseIDList(f[len(f)-1])
	if !ok {
		return b.usage(ctx, req, usage)
	}
	bundle, err := b.deps.Creators.CreateBundle(ctx, req.profile.TelegramID, strings.Join(f[:len(f)-1], " "), ids)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "bundle.created", map[string]any{"id": bundle.ID, "title": bundle.Title})
}

// /bundleplan <bundle_id> <price> <duration> <name>
func (b *Bot) handleBundlePlanCommand(ctx context.Context, req *request) error {
	id, price, d, name, ok := parsePlanArgs(req.args)
	if !ok {
		return b.usage(ctx, req, "/bundleplan <bundle_id> <price> <duration> <name>")
	}
	p, err := b.deps.Creators.CreateBundlePlan(ctx, req.profile.TelegramID, id, name, price, d)
	if errors.Is(err, domain.ErrValidation) {
		return b.reply(ctx, req, "plan.invalid", nil)
	}
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "bundle.plan_created", map[string]any{"id": p.ID})
}

// /folder <bundle_id> <link>
func (b *Bot) handleFolderCommand(ctx context.Context, req *request) error {
	f := strings.Fields(req.args)
	if len(f) != 2 {
		return b.usage(ctx, req, "/folder <bundle_id> <link>")
	}
	id, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return b.usage(ctx, req, "/folder <bundle_id> <link>")
	}
	if err := b.deps.Creators.SetBundleFolderLink(ctx, req.profile.TelegramID, id, f[1]); err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "bundle.folder_updated", nil)
}

func (b *Bot) handlePartnersCommand(ctx context.Context, req *request) error {
	pending, err := b.deps.Partners.ListPending(ctx, req.profile.TelegramID)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	if len(pending) == 0 {
		return b.reply(ctx, req, "partner.none_pending", nil)
	}
	for _, p := range pending {
		text := b.t(req, "partner.pending_line", map[string]any{
			"id": p.ID, "name": p.User.DisplayName(), "channel": p.Channel.Title,
		})
		if err := b.replyButtons(ctx, req, text, b.partnerButtons(req, p.ID)); err != nil {
			return err
		}
	}
	return nil
}

// /approve <partner_id> [rate]
func (b *Bot) handleApproveCommand(ctx context.Context, req *request) error {
	const usage = "/approve <partner_id> [rate]"
	f := strings.Fields(req.args)
	if len(f) < 1 || len(f) > 2 {
		return b.usage(ctx, req, usage)
	}
	id, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return b.usage(ctx, req, usage)
	}
	var rate *float64
	if len(f) == 2 {
		r, ok := parseRate(f[1])
		if !ok {
			return b.usage(ctx, req, usage)
		}
		rate = &r
	}
	if _, err := b.deps.Partners.Approve(ctx, req.profile.TelegramID, id, rate); err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "partner.decided", nil)
}

// /reject <partner_id>
func (b *Bot) handleRejectCommand(ctx context.Context, req *request) error {
	id, err := strconv.ParseInt(strings.TrimSpace(req.args), 10, 64)
	if err != nil {
		return b.usage(ctx, req, "/reject <partner_id>")
	}
	if _, err := b.deps.Partners.Reject(ctx, req.profile.TelegramID, id); err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "partner.decided", nil)
}

func (b *Bot) handleStatsCommand(ctx context.Context, req *request) error {
	a, err := b.deps.Stats.CreatorAnalytics(ctx, req.profile.TelegramID)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "analytics.creator", map[string]any{
		"revenue":     a.GrossRevenue,
		"active":      a.ActiveSubscribers,
		"churn":       a.Churned,
		"new_today":   a.NewToday,
		"ref_count":   a.PartnerConversions,
		"ref_payouts": a.PartnerPayouts,
	})
}

func (b *Bot) handleBalanceCommand(ctx context.Context, req *request) error {
	bal, err := b.deps.Payouts.Balance(ctx, req.profile.TelegramID)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "wallet.balance", map[string]any{"amount": bal})
}

// /withdraw <amount> <card>
func (b *Bot) handleWithdrawCommand(ctx context.Context, req *request) error {
	f := strings.Fields(req.args)
	if len(f) < 2 {
		return b.usage(ctx, req, "/withdraw <amount> <card>")
	}
	amount, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return b.reply(ctx, req, "payout.invalid_amount", nil)
	}
	// cards are often typed in groups of four
	card := strings.Join(f[1:], "")
	p, err := b.deps.Payouts.RequestPayout(ctx, req.profile.TelegramID, amount, card)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	metrics.IncPayout(string(p.Status), p.Amount)
	return b.reply(ctx, req, "payout.requested", map[string]any{"id": p.ID, "amount": p.Amount})
}

func (b *Bot) handlePayoutsCommand(ctx context.Context, req *request) error {
	items, err := b.deps.Payouts.PayoutHistory(ctx, req.profile.TelegramID)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	if len(items) == 0 {
		return b.reply(ctx, req, "payout.history_empty", nil)
	}
	lines := make([]string, 0, len(items))
	for _, p := range items {
		lines = append(lines, b.t(req, "payout.line", map[string]any{
			"id": p.ID, "amount": p.Amount, "status": string(p.Status), "date": p.RequestedAt.Format("2006-01-02"),
		}))
	}
	return b.client.SendMessage(ctx, req.chatID, strings.Join(lines, "\n"))
}

// /commission <channel_id> <rate|off>
func (b *Bot) handleCommissionCommand(ctx context.Context, req *request) error {
	const usage = "/commission <channel_id> <rate|off>"
	f := strings.Fields(req.args)
	if len(f) != 2 {
		return b.usage(ctx, req, usage)
	}
	id, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return b.usage(ctx, req, usage)
	}
	var rate *float64
	if !strings.EqualFold(f[1], "off") {
		r, ok := parseRate(f[1])
		if !ok {
			return b.usage(ctx, req, usage)
		}
		rate = &r
	}
	ch, err := b.deps.Creators.SetCommission(ctx, id, rate)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	shown := "default"
	if ch.CommissionRate != nil {
		shown = formatPercent(*ch.CommissionRate)
	}
	return b.reply(ctx, req, "commission.updated", map[string]any{"channel": ch.Title, "rate": shown})
}

func (b *Bot) handleReportCommand(ctx context.Context, req *request) error {
	now := time.Now()
	err := b.deps.Stats.PublishReport(ctx, now.Add(-12*time.Hour), now)
	metrics.IncReport(err)
	if err != nil {
		return b.replyError(ctx, req, err)
	}
	return b.reply(ctx, req, "report.sent", nil)
}

// parsePlanArgs reads "<id> <price> <duration> <name...>".
func parsePlanArgs(args string) (id, price int64, d model.Duration, name string, ok bool) {
	f := strings.Fields(args)
	if len(f) < 4 {
		return 0, 0, model.Duration{}, "", false
	}
	var err error
	if id, err = strconv.ParseInt(f[0], 10, 64); err != nil {
		return 0, 0, model.Duration{}, "", false
	}
	if price, err = strconv.ParseInt(f[1], 10, 64); err != nil {
		return 0, 0, model.Duration{}, "", false
	}
	if d, err = model.ParseDuration(f[2]); err != nil {
		return 0, 0, model.Duration{}, "", false
	}
	return id, price, d, strings.Join(f[3:], " "), true
}

func parseIDList(s string) ([]int64, bool) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id := positiveID(strings.TrimSpace(p))
		if id == 0 {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, len(ids) > 0
}

// parseRate accepts a fraction ("0.3") or a percentage ("30%", "30").
func parseRate(s string) (float64, bool) {
	pct := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	if pct || v > 1 {
		v /= 100
	}
	return v, v <= 1
}

func formatPercent(r float64) string {
	return strconv.FormatFloat(math.Round(r*10000)/100, 'f', -1, 64) + "%"
}
