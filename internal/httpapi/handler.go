// Package httpapi exposes the lifecycle services over REST. Handlers only
// decode, delegate and encode; every business rule lives in the services.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mailpay-labs/mailpay/internal/apperr"
	"github.com/mailpay-labs/mailpay/internal/domain/asset"
	"github.com/mailpay-labs/mailpay/internal/domain/lending"
	"github.com/mailpay-labs/mailpay/internal/metrics"
	escrowsvc "github.com/mailpay-labs/mailpay/internal/services/escrow"
	lendingsvc "github.com/mailpay-labs/mailpay/internal/services/lending"
	paymentsvc "github.com/mailpay-labs/mailpay/internal/services/payment"
	vestingsvc "github.com/mailpay-labs/mailpay/internal/services/vesting"
	"github.com/mailpay-labs/mailpay/pkg/logger"
)

// Handler routes HTTP traffic to the lifecycle services.
type Handler struct {
	payments *paymentsvc.Service
	escrows  *escrowsvc.Service
	vesting  *vestingsvc.Service
	lending  *lendingsvc.Service
	log      *logger.Logger
}

// New builds the handler.
func New(payments *paymentsvc.Service, escrows *escrowsvc.Service, vesting *vestingsvc.Service, lending *lendingsvc.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{payments: payments, escrows: escrows, vesting: vesting, lending: lending, log: log}
}

// Router assembles the route tree.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.createPayment)
			r.Get("/", h.listPayments)
			r.Get("/{id}", h.getPayment)
			r.Post("/{id}/claim", h.claimPayment)
			r.Post("/{id}/execute", h.executePayment)
		})
		r.Route("/escrows", func(r chi.Router) {
			r.Post("/", h.createEscrow)
			r.Get("/", h.listEscrows)
			r.Get("/{id}", h.getEscrow)
			r.Post("/{id}/release", h.releaseEscrow)
			r.Post("/{id}/cancel", h.cancelEscrow)
			r.Post("/{id}/claim-expired", h.claimExpiredEscrow)
		})
		r.Route("/vesting", func(r chi.Router) {
			r.Post("/", h.createStream)
			r.Get("/{id}", h.getStream)
			r.Post("/{id}/claim", h.claimStream)
			r.Post("/{id}/cancel", h.cancelStream)
		})
		r.Route("/lending", func(r chi.Router) {
			r.Get("/pool", h.getPool)
			r.Post("/supply", h.lendingOp(h.lending.Supply))
			r.Post("/withdraw", h.lendingOp(h.lending.Withdraw))
			r.Post("/borrow", h.borrow)
			r.Post("/repay", h.lendingOp(h.lending.Repay))
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// payments

type createPaymentRequest struct {
	Amount         string `json:"amount"`
	Asset          string `json:"asset"`
	RecipientEmail string `json:"recipient_email"`
	SenderAddress  string `json:"sender_address,omitempty"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := parseAsset(req.Asset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	p, err := h.payments.Create(r.Context(), req.Amount, a, req.RecipientEmail, req.SenderAddress)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	sender := r.URL.Query().Get("sender")
	switch {
	case email != "":
		list, err := h.payments.ListByEmail(r.Context(), email)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case sender != "":
		list, err := h.payments.ListBySender(r.Context(), sender)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		h.writeError(w, apperr.New(apperr.KindValidation, "an email or sender query parameter is required"))
	}
}

func (h *Handler) claimPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientAddress string `json:"recipient_address"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.payments.Claim(r.Context(), chi.URLParam(r, "id"), req.RecipientAddress)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) executePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderAddress string `json:"sender_address,omitempty"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.payments.Execute(r.Context(), chi.URLParam(r, "id"), req.SenderAddress)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// escrows

type createEscrowRequest struct {
	Variant    string     `json:"variant"`
	Sender     string     `json:"sender"`
	Recipient  string     `json:"recipient"`
	Arbitrator string     `json:"arbitrator,omitempty"`
	Amount     string     `json:"amount"`
	Asset      string     `json:"asset"`
	Memo       string     `json:"memo,omitempty"`
	Release    *time.Time `json:"release_time,omitempty"`
	Expiry     *time.Time `json:"expiry_time,omitempty"`
}

func (h *Handler) createEscrow(w http.ResponseWriter, r *http.Request) {
	var req createEscrowRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := parseAsset(req.Asset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var v escrowsvc.View
	switch req.Variant {
	case "standard", "":
		v, err = h.escrows.CreateStandard(r.Context(), req.Sender, req.Recipient, req.Amount, a, req.Memo)
	case "time-locked":
		v, err = h.escrows.CreateTimeLocked(r.Context(), req.Sender, req.Recipient, req.Amount, a, req.Memo,
			timeValue(req.Release), timeValue(req.Expiry))
	case "arbitrated":
		v, err = h.escrows.CreateArbitrated(r.Context(), req.Sender, req.Recipient, req.Arbitrator, req.Amount, a, req.Memo,
			timeValue(req.Release), timeValue(req.Expiry))
	default:
		err = apperr.Newf(apperr.KindValidation, "unknown escrow variant %q", req.Variant)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) getEscrow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	v, err := h.escrows.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) listEscrows(w http.ResponseWriter, r *http.Request) {
	participant := r.URL.Query().Get("participant")
	if participant == "" {
		h.writeError(w, apperr.New(apperr.KindValidation, "a participant query parameter is required"))
		return
	}
	list, err := h.escrows.ListByParticipant(r.Context(), participant)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) releaseEscrow(w http.ResponseWriter, r *http.Request) {
	h.escrowAction(w, r, h.escrows.Release)
}

func (h *Handler) cancelEscrow(w http.ResponseWriter, r *http.Request) {
	h.escrowAction(w, r, h.escrows.Cancel)
}

func (h *Handler) claimExpiredEscrow(w http.ResponseWriter, r *http.Request) {
	h.escrowAction(w, r, h.escrows.ClaimExpired)
}

func (h *Handler) escrowAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id int64, caller string) (escrowsvc.View, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	v, err := action(r.Context(), id, req.Caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// vesting

type createStreamRequest struct {
	Sender    string     `json:"sender"`
	Recipient string     `json:"recipient"`
	Amount    string     `json:"amount"`
	Asset     string     `json:"asset"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	Cliff     *time.Time `json:"cliff,omitempty"`
}

func (h *Handler) createStream(w http.ResponseWriter, r *http.Request) {
	var req createStreamRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := parseAsset(req.Asset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	v, err := h.vesting.Create(r.Context(), req.Sender, req.Recipient, req.Amount, a, req.Start, req.End, timeValue(req.Cliff))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) getStream(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	v, err := h.vesting.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) claimStream(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	v, claimed, err := h.vesting.Claim(r.Context(), id, req.Caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claimed": claimed, "stream": v})
}

func (h *Handler) cancelStream(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	v, refunded, err := h.vesting.Cancel(r.Context(), id, req.Caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refunded": refunded, "stream": v})
}

// lending

type lendingRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
	Asset   string `json:"asset"`
}

func (h *Handler) lendingOp(op func(ctx context.Context, account, amount string, a asset.Asset) (lending.Pool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req lendingRequest
		if !h.decode(w, r, &req) {
			return
		}
		a, err := parseAsset(req.Asset)
		if err != nil {
			h.writeError(w, err)
			return
		}
		pool, err := op(r.Context(), req.Account, req.Amount, a)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pool)
	}
}

func (h *Handler) borrow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		lendingRequest
		// Collateral optionally states the caller's supplied collateral so
		// the loan-to-value cap can be checked before submission.
		Collateral string `json:"collateral"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	a, err := parseAsset(req.Asset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	pool, err := h.lending.Borrow(r.Context(), req.Account, req.Amount, a, req.Collateral)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (h *Handler) getPool(w http.ResponseWriter, r *http.Request) {
	a, err := parseAsset(r.URL.Query().Get("asset"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	pool, err := h.lending.GetPool(r.Context(), a)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// plumbing

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, apperr.New(apperr.KindValidation, "id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindValidation, "malformed request body", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	if status >= 500 {
		h.log.WithError(err).Errorf("request failed")
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"kind":    kind.String(),
			"message": err.Error(),
		},
	})
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPrecondition:
		return http.StatusUnprocessableEntity
	case apperr.KindLedger:
		return http.StatusBadGateway
	case apperr.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// instrument records request counts and latency per route pattern.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(r.Method, route, ww.Status(), time.Since(start))
	})
}

func parseAsset(code string) (asset.Asset, error) {
	a, err := asset.Parse(code)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "unsupported asset", err)
	}
	return a, nil
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
