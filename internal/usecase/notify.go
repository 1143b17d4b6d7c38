package usecase

import (
	"context"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/adapter"
)

// notifyUser renders key in the user's language and sends it. The outcome is
// a side effect; callers log it and move on.
func notifyUser(ctx context.Context, n adapter.Notifier, tr adapter.Translator, u *model.User, key string, params map[string]any, rows ...[]adapter.InlineButton) domain.SideEffect {
	if n == nil || u == nil {
		return domain.Done(key, nil)
	}
	text := tr.T(u.Lang(), key, params)
	if len(rows) > 0 {
		return domain.Done(key, n.SendButtons(ctx, u.TelegramID, text, rows))
	}
	return domain.Done(key, n.SendMessage(ctx, u.TelegramID, text))
}

func audit(ctx context.Context, a adapter.AuditLog, name, text string) domain.SideEffect {
	if a == nil {
		return domain.Done(name, nil)
	}
	return domain.Done(name, a.LogEvent(ctx, text))
}
