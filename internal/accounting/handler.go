package accounting

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/fincore/internal/platform/httpx"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// Handler wires ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// ErrorMappings maps ledger errors to HTTP statuses.
var ErrorMappings = []httpx.ErrorMapping{
	httpx.Map(ErrUnbalanced, http.StatusUnprocessableEntity, "Unbalanced Entry"),
	httpx.Map(ErrTooFewLines, http.StatusUnprocessableEntity, "Insufficient Lines"),
	httpx.Map(ErrInvalidLine, http.StatusUnprocessableEntity, "Invalid Line"),
	httpx.Map(ErrDateOutOfRange, http.StatusUnprocessableEntity, "Date Outside Period"),
	httpx.Map(ErrAccountInactive, http.StatusUnprocessableEntity, "Account Inactive"),
	httpx.Map(ErrParentNotFound, http.StatusUnprocessableEntity, "Parent Account Missing"),
	httpx.Map(ErrInvalidAccount, http.StatusUnprocessableEntity, "Invalid Account"),
	httpx.Map(ErrInvalidPeriod, http.StatusUnprocessableEntity, "Invalid Period"),
	httpx.Map(ErrPeriodLocked, http.StatusConflict, "Period Locked"),
	httpx.Map(ErrInvalidStatus, http.StatusConflict, "Invalid State"),
	httpx.Map(ErrInvalidPeriodTransition, http.StatusConflict, "Invalid Period Transition"),
	httpx.Map(ErrSourceAlreadyLinked, http.StatusConflict, "Source Already Posted"),
	httpx.Map(ErrAccountExists, http.StatusConflict, "Account Exists"),
	httpx.Map(ErrPeriodOverlap, http.StatusConflict, "Period Overlap"),
	httpx.Map(shared.ErrLockHeld, http.StatusConflict, "Period Busy"),
	httpx.Map(ErrJournalNotFound, http.StatusNotFound, "Journal Not Found"),
	httpx.Map(ErrPeriodNotFound, http.StatusNotFound, "Period Not Found"),
	httpx.Map(ErrAccountNotFound, http.StatusNotFound, "Account Not Found"),
	httpx.Map(shared.ErrTenantRequired, http.StatusBadRequest, "Tenant Required"),
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.listAccounts)
		r.Post("/", h.createAccount)
		r.Post("/{code}/deactivate", h.deactivateAccount)
		r.Get("/{code}/balance", h.accountBalance)
	})
	r.Route("/periods", func(r chi.Router) {
		r.Get("/", h.listPeriods)
		r.Post("/", h.createPeriod)
		r.Post("/{id}/close", h.closePeriod)
		r.Post("/{id}/lock", h.lockPeriod)
		r.Post("/{id}/unlock", h.unlockPeriod)
		r.Post("/{id}/reopen", h.reopenPeriod)
	})
	r.Route("/journals", func(r chi.Router) {
		r.Get("/", h.listEntries)
		r.Post("/", h.createEntry)
		r.Get("/{id}", h.getEntry)
		r.Put("/{id}", h.updateEntry)
		r.Post("/{id}/post", h.postEntry)
		r.Post("/{id}/approve", h.approveEntry)
		r.Post("/{id}/reverse", h.reverseEntry)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := httpx.Classify(err, ErrorMappings...)
	if status >= http.StatusInternalServerError {
		h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err, ErrorMappings...)
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (int64, bool) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		h.fail(w, r, shared.ErrTenantRequired)
	}
	return tenantID, ok
}

func entryID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, ErrJournalNotFound
	}
	return id, nil
}

func periodID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, ErrPeriodNotFound
	}
	return id, nil
}

// parseDateParam reads a YYYY-MM-DD query value, defaulting to fallback.
func parseDateParam(r *http.Request, key string, fallback time.Time) (time.Time, error) {
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

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), tenantID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	acc, err := h.service.CreateAccount(r.Context(), tenantID, CreateAccountInput{
		Code:       req.Code,
		Name:       req.Name,
		Type:       AccountType(req.Type),
		ParentCode: req.ParentCode,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(acc))
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	if err := h.service.DeactivateAccount(r.Context(), tenantID, chi.URLParam(r, "code")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	asOf, err := parseDateParam(r, "as_of", time.Now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	code := chi.URLParam(r, "code")
	balance, err := h.service.ComputeAccountBalance(r.Context(), tenantID, code, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"code":    code,
		"as_of":   asOf.Format(time.DateOnly),
		"balance": balance,
	})
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	periods, err := h.service.ListPeriods(r.Context(), tenantID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req periodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	start, _ := time.Parse(time.DateOnly, req.StartDate)
	end, _ := time.Parse(time.DateOnly, req.EndDate)
	p, err := h.service.CreatePeriod(r.Context(), tenantID, PeriodInput{Code: req.Code, StartDate: start, EndDate: end})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPeriodResponse(p))
}

func (h *Handler) periodAction(w http.ResponseWriter, r *http.Request, action func(tenantID, periodID int64) (Period, error)) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, err := periodID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := action(tenantID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(p))
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	h.periodAction(w, r, func(tenantID, id int64) (Period, error) {
		return h.service.ClosePeriod(r.Context(), tenantID, id)
	})
}

func (h *Handler) lockPeriod(w http.ResponseWriter, r *http.Request) {
	h.periodAction(w, r, func(tenantID, id int64) (Period, error) {
		return h.service.LockPeriod(r.Context(), tenantID, id)
	})
}

func (h *Handler) unlockPeriod(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.periodAction(w, r, func(tenantID, id int64) (Period, error) {
		return h.service.UnlockPeriod(r.Context(), tenantID, id, req.Override)
	})
}

func (h *Handler) reopenPeriod(w http.ResponseWriter, r *http.Request) {
	h.periodAction(w, r, func(tenantID, id int64) (Period, error) {
		return h.service.ReopenPeriod(r.Context(), tenantID, id)
	})
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	filter := EntryFilter{Status: EntryStatus(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("period_id"); raw != "" {
		filter.PeriodID, _ = strconv.ParseInt(raw, 10, 64)
	}
	entries, err := h.service.ListEntries(r.Context(), tenantID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	var (
		entry JournalEntry
		err   error
	)
	if req.Post {
		entry, err = h.service.PostNew(r.Context(), tenantID, req.toInput())
	} else {
		entry, err = h.service.CreateDraft(r.Context(), tenantID, req.toInput())
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	h.entryAction(w, r, func(tenantID int64, id uuid.UUID) (JournalEntry, error) {
		return h.service.GetEntry(r.Context(), tenantID, id)
	})
}

func (h *Handler) updateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.entryAction(w, r, func(tenantID int64, id uuid.UUID) (JournalEntry, error) {
		return h.service.UpdateDraft(r.Context(), tenantID, id, req.toInput())
	})
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	h.entryAction(w, r, func(tenantID int64, id uuid.UUID) (JournalEntry, error) {
		return h.service.PostEntry(r.Context(), tenantID, id)
	})
}

func (h *Handler) approveEntry(w http.ResponseWriter, r *http.Request) {
	h.entryAction(w, r, func(tenantID int64, id uuid.UUID) (JournalEntry, error) {
		return h.service.ApproveEntry(r.Context(), tenantID, id)
	})
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.entryAction(w, r, func(tenantID int64, id uuid.UUID) (JournalEntry, error) {
		input := ReverseInput{EntryID: id, PeriodID: req.PeriodID, Memo: req.Memo}
		if req.Date != "" {
			date, _ := time.Parse(time.DateOnly, req.Date)
			input.Date = &date
		}
		return h.service.Reverse(r.Context(), tenantID, input)
	})
}

func (h *Handler) entryAction(w http.ResponseWriter, r *http.Request, action func(tenantID int64, id uuid.UUID) (JournalEntry, error)) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, err := entryID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := action(tenantID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}
