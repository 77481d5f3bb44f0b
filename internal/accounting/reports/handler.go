package reports

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fincore/internal/accounting"
	"github.com/odyssey-erp/fincore/internal/platform/httpx"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// BalanceSource provides account balances for reports.
type BalanceSource interface {
	TrialBalance(ctx context.Context, tenantID int64, asOf time.Time) ([]accounting.AccountBalance, error)
	PeriodActivity(ctx context.Context, tenantID int64, from, to time.Time) ([]accounting.AccountBalance, error)
}

// Handler serves financial statements.
type Handler struct {
	logger *slog.Logger
	source BalanceSource
	now    func() time.Time
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, source BalanceSource) *Handler {
	return &Handler{logger: logger, source: source, now: time.Now}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/trial-balance", h.trialBalance)
	r.Get("/reports/pl", h.profitAndLoss)
	r.Get("/reports/bs", h.balanceSheet)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, payload any, err error) {
	if err != nil {
		if status, _ := httpx.Classify(err, accounting.ErrorMappings...); status >= http.StatusInternalServerError {
			h.logger.Error("report failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err, accounting.ErrorMappings...)
		return
	}
	httpx.JSON(w, http.StatusOK, payload)
}

func (h *Handler) dateParam(r *http.Request, key string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, httpx.ErrValidation
	}
	return t, nil
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		h.respond(w, r, nil, shared.ErrTenantRequired)
		return
	}
	asOf, err := h.dateParam(r, "as_of", h.now())
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	balances, err := h.source.TrialBalance(r.Context(), tenantID, asOf)
	h.respond(w, r, BuildTrialBalance(balances), err)
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		h.respond(w, r, nil, shared.ErrTenantRequired)
		return
	}
	to, err := h.dateParam(r, "to", h.now())
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	from, err := h.dateParam(r, "from", to.AddDate(0, -1, 0))
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	balances, err := h.source.PeriodActivity(r.Context(), tenantID, from, to)
	h.respond(w, r, BuildProfitAndLoss(balances), err)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		h.respond(w, r, nil, shared.ErrTenantRequired)
		return
	}
	asOf, err := h.dateParam(r, "as_of", h.now())
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	balances, err := h.source.TrialBalance(r.Context(), tenantID, asOf)
	h.respond(w, r, BuildBalanceSheet(balances), err)
}
