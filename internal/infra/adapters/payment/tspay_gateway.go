package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-channel-paywall/internal/config"
	"telegram-channel-paywall/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*TsPayGateway)(nil)

// TsPayGateway implements adapter.PaymentGateway over the TsPay REST API.
type TsPayGateway struct {
	baseURL     string
	accessToken string
	redirectURL string
	client      *http.Client
	log         *zerolog.Logger
}

func NewTsPayGateway(cfg config.TsPayConfig, logger *zerolog.Logger) (*TsPayGateway, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("tspay access token empty")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid tspay base url: %w", err)
	}
	l := logger.With().Str("component", "tspay").Logger()
	return &TsPayGateway{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		redirectURL: cfg.RedirectURL,
		client:      &http.Client{Timeout: 15 * time.Second},
		log:         &l,
	}, nil
}

func (g *TsPayGateway) Name() string { return "tspay" }

// CreateTransaction calls /transactions/create/. The cheque id is what the
// check endpoint accepts, so it becomes the transaction ID.
func (g *TsPayGateway) CreateTransaction(ctx context.Context, amount int64, redirectURL, comment string) (adapter.GatewayTransaction, error) {
	if redirectURL == "" {
		redirectURL = g.redirectURL
	}
	b, _ := json.Marshal(map[string]any{
		"amount":       amount,
		"access_token": g.accessToken,
		"redirect_url": redirectURL,
		"comment":      comment,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/transactions/create/", bytes.NewReader(b))
	if err != nil {
		return adapter.GatewayTransaction{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Status      string `json:"status"`
		Transaction struct {
			ID         json.Number `json:"id"`
			ChequeID   string      `json:"cheque_id"`
			PaymentURL string      `json:"payment_url"`
			Status     string      `json:"status"`
		} `json:"transaction"`
	}
	if err := g.do(req, &out); err != nil {
		return adapter.GatewayTransaction{}, fmt.Errorf("tspay create: %w", err)
	}
	id := out.Transaction.ChequeID
	if id == "" {
		id = out.Transaction.ID.String()
	}
	if id == "" || out.Transaction.PaymentURL == "" {
		return adapter.GatewayTransaction{}, fmt.Errorf("tspay create: incomplete response (status %q)", out.Status)
	}
	g.log.Info().Int64("amount", amount).Str("payment_id", id).Msg("transaction created")
	return adapter.GatewayTransaction{ID: id, PaymentURL: out.Transaction.PaymentURL, Status: out.Transaction.Status}, nil
}

// checkDetails appears under "data", under "transaction", or at the top level
// depending on the API version.
type checkDetails struct {
	ID        json.Number `json:"id"`
	Amount    json.Number `json:"amount"`
	PayStatus string      `json:"pay_status"`
}

type checkResponse struct {
	Status      string        `json:"status"`
	Data        *checkDetails `json:"data"`
	Transaction *checkDetails `json:"transaction"`
	checkDetails
}

func (r checkResponse) details() checkDetails {
	switch {
	case r.Data != nil:
		return *r.Data
	case r.Transaction != nil:
		return *r.Transaction
	default:
		return r.checkDetails
	}
}

// CheckTransaction reports Paid when the call succeeded and the pay status is
// "paid" or absent.
func (g *TsPayGateway) CheckTransaction(ctx context.Context, id string) (adapter.PaymentStatus, error) {
	u := fmt.Sprintf("%s/transactions/%s/?access_token=%s", g.baseURL, url.PathEscape(id), url.QueryEscape(g.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return adapter.PaymentStatus{}, err
	}

	var out checkResponse
	if err := g.do(req, &out); err != nil {
		return adapter.PaymentStatus{}, fmt.Errorf("tspay check: %w", err)
	}
	d := out.details()
	st := adapter.PaymentStatus{
		ID:     id,
		Status: d.PayStatus,
		Paid:   out.Status == "success" && (d.PayStatus == "" || d.PayStatus == "paid"),
	}
	if st.Status == "" {
		st.Status = out.Status
	}
	if d.Amount != "" {
		if f, err := strconv.ParseFloat(d.Amount.String(), 64); err == nil {
			st.Amount = int64(f)
		}
	}
	g.log.Debug().Str("payment_id", id).Str("status", st.Status).Bool("paid", st.Paid).Msg("transaction checked")
	return st, nil
}

func (g *TsPayGateway) do(req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		// *url.Error prints the request URL, which carries the access token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, uerr.Err)
		}
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
