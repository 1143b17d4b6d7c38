package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/infra/logging"
	"telegram-channel-paywall/internal/infra/metrics"
	"telegram-channel-paywall/internal/infra/sched"
)

type errorBody struct {
	Error string `json:"error"`
}

type payoutView struct {
	ID          int64      `json:"id"`
	CreatorID   int64      `json:"creator_id"`
	Amount      int64      `json:"amount"`
	Card        string     `json:"card"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	AdminNote   string     `json:"admin_note,omitempty"`
}

func toPayoutView(p *model.Payout) payoutView {
	return payoutView{
		ID:          p.ID,
		CreatorID:   p.CreatorID,
		Amount:      p.Amount,
		Card:        logging.MaskCard(p.CardNumber),
		Status:      string(p.Status),
		RequestedAt: p.RequestedAt,
		ProcessedAt: p.ProcessedAt,
		AdminNote:   p.AdminNote,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain error classes onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrPolicy), errors.Is(err, sched.ErrSweepBusy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrExternalDependency):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("admin request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.deps.Checks))
	for name := range s.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, checks := http.StatusOK, make(map[string]string, len(names))
	for _, name := range names {
		if err := s.deps.Checks[name](ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

// GET /api/v1/payouts?status=REQUESTED&limit=50
func (s *Server) handleListPayouts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := model.PayoutStatusRequested
	if v := q.Get("status"); v != "" {
		st, err := model.ParsePayoutStatus(v)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		status = st
	}
	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, r, domain.ErrInvalidArgument)
			return
		}
		limit = n
	}

	items, err := s.deps.Payouts.ListByStatus(r.Context(), status, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]payoutView, 0, len(items))
	for _, p := range items {
		out = append(out, toPayoutView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

type processPayoutRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// POST /api/v1/payouts/{id}/status
func (s *Server) handleProcessPayout(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	var req processPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	status, err := model.ParsePayoutStatus(req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.deps.Payouts.ProcessPayout(r.Context(), id, status, req.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.IncPayout(string(p.Status), p.Amount)
	l := logging.With(r.Context(), s.log)
	l.Info().Int64("payout_id", p.ID).Str("status", string(p.Status)).Str("admin", adminSubject(r.Context())).Msg("payout processed")
	writeJSON(w, http.StatusOK, toPayoutView(p))
}

// POST /api/v1/sweep
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue != nil {
		if err := s.deps.Queue.Push(r.Context(), "api"); err != nil {
			s.writeError(w, r, domain.External("enqueue sweep", err))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
		return
	}

	rep, err := s.deps.Sweeper.RunOnce(r.Context(), "api")
	if err != nil && rep.RunID == "" {
		s.writeError(w, r, err)
		return
	}
	body := map[string]any{
		"run_id":             rep.RunID,
		"duration_ms":        rep.Duration.Milliseconds(),
		"previews_expired":   rep.Previews.Expired,
		"previews_converted": rep.Previews.Converted,
		"expired":            rep.Expired,
		"expired_bundles":    rep.ExpiredBundles,
		"expire_errors":      rep.ExpireErrors,
		"reminded_3d":        rep.Reminders3d.Sent,
		"reminded_1d":        rep.Reminders1d.Sent,
	}
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) window(r *http.Request) (since, now time.Time, err error) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		hours, err = strconv.Atoi(v)
		if err != nil || hours <= 0 || hours > 24*366 {
			return since, now, domain.ErrInvalidArgument
		}
	}
	now = s.now()
	return now.Add(-time.Duration(hours) * time.Hour), now, nil
}

// GET /api/v1/stats?hours=24
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	since, now, err := s.window(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.deps.Stats.PlatformSnapshot(r.Context(), since, now)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since":                 st.Since,
		"users":                 st.Users,
		"new_users":             st.NewUsers,
		"creators":              st.Creators,
		"channels":              st.Channels,
		"active_subscriptions":  st.ActiveSubscriptions,
		"new_subscriptions":     st.NewSubscriptions,
		"expired_since":         st.ExpiredSince,
		"active_previews":       st.ActivePreviews,
		"gross_since":           st.GrossSince,
		"platform_fees_since":   st.PlatformFeesSince,
		"pending_payouts":       st.PendingPayouts,
		"pending_payout_amount": st.PendingPayoutAmount,
	})
}

// POST /api/v1/report?hours=12 publishes the report to the log channel now.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("hours") == "" {
		q := r.URL.Query()
		q.Set("hours", "12")
		r.URL.RawQuery = q.Encode()
	}
	since, now, err := s.window(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.deps.Stats.PublishReport(r.Context(), since, now)
	metrics.IncReport(err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
