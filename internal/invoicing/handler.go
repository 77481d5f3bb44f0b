package invoicing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/fincore/internal/platform/httpx"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// Handler wires invoice endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// ErrorMappings maps invoicing errors to HTTP statuses.
var ErrorMappings = []httpx.ErrorMapping{
	httpx.Map(ErrNoLines, http.StatusUnprocessableEntity, "Invoice Has No Lines"),
	httpx.Map(ErrInvalidLine, http.StatusUnprocessableEntity, "Invalid Line"),
	httpx.Map(ErrInvalidInvoice, http.StatusUnprocessableEntity, "Invalid Invoice"),
	httpx.Map(ErrInvalidAmount, http.StatusUnprocessableEntity, "Invalid Payment Amount"),
	httpx.Map(ErrOverpayment, http.StatusUnprocessableEntity, "Overpayment"),
	httpx.Map(ErrNotShippable, http.StatusUnprocessableEntity, "Nothing To Ship"),
	httpx.Map(ErrInvalidStatus, http.StatusConflict, "Invalid State"),
	httpx.Map(ErrDuplicatePayment, http.StatusConflict, "Duplicate Payment Reference"),
	httpx.Map(ErrInvoiceNotFound, http.StatusNotFound, "Invoice Not Found"),
	httpx.Map(shared.ErrTenantRequired, http.StatusBadRequest, "Tenant Required"),
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.listInvoices)
		r.Post("/", h.createInvoice)
		r.Get("/overdue", h.listOverdue)
		r.Get("/aging", h.aging)
		r.Get("/{id}", h.getInvoice)
		r.Put("/{id}", h.updateInvoice)
		r.Post("/{id}/send", h.sendInvoice)
		r.Post("/{id}/cancel", h.cancelInvoice)
		r.Post("/{id}/payments", h.applyPayment)
		r.Post("/{id}/ship", h.shipInvoice)
		r.Post("/{id}/repost", h.repostInvoice)
		r.Post("/{id}/next", h.generateNext)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := httpx.Classify(err, ErrorMappings...)
	if status >= http.StatusInternalServerError {
		h.logger.Error("invoice request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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

func invoiceID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, ErrInvoiceNotFound
	}
	return id, nil
}

// respond writes inv, downgrading to 202 when the ledger posting is pending.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, inv Invoice, err error, status int) {
	var pending *LedgerPostError
	if errors.As(err, &pending) {
		h.logger.Warn("ledger posting pending", slog.String("invoice_id", inv.ID.String()), slog.Any("error", pending.Err))
		body := toInvoiceResponse(inv, h.service.now())
		body.LedgerPending = pending.Message
		httpx.JSON(w, http.StatusAccepted, body)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, status, toInvoiceResponse(inv, h.service.now()))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	invoices, err := h.service.ListInvoices(r.Context(), tenantID, ListFilter{
		Side:    Side(q.Get("side")),
		Status:  Status(q.Get("status")),
		PartyID: q.Get("party_id"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if q.Has("page") || q.Has("per_page") {
		invoices = paginate(w, q.Get("page"), q.Get("per_page"), invoices)
	}
	h.writeList(w, invoices)
}

// paginate slices invoices to the requested page and reports the totals in
// response headers.
func paginate(w http.ResponseWriter, rawPage, rawPerPage string, invoices []Invoice) []Invoice {
	page, _ := strconv.Atoi(rawPage)
	perPage, _ := strconv.Atoi(rawPerPage)
	p := shared.NewPagination(page, perPage, len(invoices))
	w.Header().Set("X-Total-Count", strconv.Itoa(p.Total))
	w.Header().Set("X-Page", strconv.Itoa(p.Page))
	w.Header().Set("X-Total-Pages", strconv.Itoa(p.TotalPages))
	start, end := p.Bounds()
	return invoices[start:end]
}

func (h *Handler) writeList(w http.ResponseWriter, invoices []Invoice) {
	now := h.service.now()
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv, now))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), tenantID, req.toInput())
	h.respond(w, r, inv, err, http.StatusCreated)
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.invoiceAction(w, r, func(tenantID int64, id uuid.UUID) (Invoice, error) {
		return h.service.UpdateDraft(r.Context(), tenantID, id, req.toInput())
	})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, func(tenantID int64, id uuid.UUID) (Invoice, error) {
		return h.service.GetInvoice(r.Context(), tenantID, id)
	})
}

func (h *Handler) sendInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, func(tenantID int64, id uuid.UUID) (Invoice, error) {
		return h.service.Send(r.Context(), tenantID, id)
	})
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, func(tenantID int64, id uuid.UUID) (Invoice, error) {
		return h.service.Cancel(r.Context(), tenantID, id)
	})
}

func (h *Handler) shipInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, func(tenantID int64, id uuid.UUID) (Invoice, error) {
		return h.service.Ship(r.Context(), tenantID, id)
	})
}

func (h *Handler) repostInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, func(tenantID int64, id uuid.UUID) (Invoice, error) {
		return h.service.Repost(r.Context(), tenantID, id)
	})
}

func (h *Handler) generateNext(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, func(tenantID int64, id uuid.UUID) (Invoice, error) {
		return h.service.GenerateNext(r.Context(), tenantID, id)
	})
}

func (h *Handler) applyPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.invoiceAction(w, r, func(tenantID int64, id uuid.UUID) (Invoice, error) {
		input := PaymentInput{InvoiceID: id, Reference: req.Reference, Amount: req.Amount}
		if req.PaidAt != "" {
			input.PaidAt, _ = time.Parse(time.DateOnly, req.PaidAt)
		}
		return h.service.ApplyPayment(r.Context(), tenantID, input)
	})
}

func (h *Handler) invoiceAction(w http.ResponseWriter, r *http.Request, action func(tenantID int64, id uuid.UUID) (Invoice, error)) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, err := invoiceID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := action(tenantID, id)
	h.respond(w, r, inv, err, http.StatusOK)
}

func (h *Handler) listOverdue(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	invoices, err := h.service.Overdue(r.Context(), tenantID, Side(r.URL.Query().Get("side")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeList(w, invoices)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	side := Side(r.URL.Query().Get("side"))
	if side == "" {
		side = SideReceivable
	}
	var asOf time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			h.fail(w, r, httpx.ErrValidation)
			return
		}
		asOf = t
	}
	summary, err := h.service.Aging(r.Context(), tenantID, side, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
