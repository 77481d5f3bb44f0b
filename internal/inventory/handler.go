package inventory

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

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// ErrorMappings maps inventory errors to HTTP statuses.
var ErrorMappings = []httpx.ErrorMapping{
	httpx.Map(ErrInsufficientStock, http.StatusUnprocessableEntity, "Insufficient Stock"),
	httpx.Map(ErrInvalidQuantity, http.StatusUnprocessableEntity, "Invalid Quantity"),
	httpx.Map(ErrInvalidUnitCost, http.StatusUnprocessableEntity, "Invalid Unit Cost"),
	httpx.Map(ErrInvalidMovementType, http.StatusUnprocessableEntity, "Invalid Movement Type"),
	httpx.Map(ErrInvalidWarehouse, http.StatusUnprocessableEntity, "Invalid Warehouse"),
	httpx.Map(ErrInvalidCostingMethod, http.StatusUnprocessableEntity, "Invalid Costing Method"),
	httpx.Map(ErrDuplicateSKU, http.StatusConflict, "Duplicate SKU"),
	httpx.Map(ErrConcurrentModification, http.StatusConflict, "Concurrent Modification"),
	httpx.Map(ErrProductNotFound, http.StatusNotFound, "Product Not Found"),
	httpx.Map(shared.ErrTenantRequired, http.StatusBadRequest, "Tenant Required"),
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Post("/products", h.createProduct)
		r.Get("/products/{id}", h.getProduct)
		r.Put("/products/{id}", h.updateProduct)
		r.Get("/products/{id}/valuation", h.valuation)
		r.Get("/products/{id}/variances", h.variances)
		r.Post("/products/{id}/planning", h.planning)
		r.Get("/movements", h.listMovements)
		r.Post("/movements", h.applyMovement)
		r.Get("/levels", h.listLevels)
		r.Get("/levels/verify", h.verifyLevels)
		r.Get("/valuation", h.valuationAll)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := httpx.Classify(err, ErrorMappings...)
	if status >= http.StatusInternalServerError {
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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

func productID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, ErrProductNotFound
	}
	return id, nil
}

func warehouseParam(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("warehouse_id")
	if raw == "" {
		return 0, httpx.ErrValidation
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.ErrValidation
	}
	return id, nil
}

func asOfParam(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, httpx.ErrValidation
	}
	// inclusive of the whole day
	return t.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	products, err := h.service.ListProducts(r.Context(), tenantID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, uuid.Nil, http.StatusCreated)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.saveProduct(w, r, id, http.StatusOK)
}

func (h *Handler) saveProduct(w http.ResponseWriter, r *http.Request, id uuid.UUID, status int) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	product, err := h.service.UpsertProduct(r.Context(), tenantID, ProductInput{
		ID:             id,
		SKU:            req.SKU,
		Name:           req.Name,
		CostingMethod:  CostingMethod(req.CostingMethod),
		CostPrice:      req.CostPrice,
		SalePrice:      req.SalePrice,
		AllowBackorder: req.AllowBackorder,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, status, toProductResponse(product))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, err := productID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), tenantID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) applyMovement(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	level, err := h.service.ApplyMovement(r.Context(), tenantID, req.toInput(r.Header.Get("Idempotency-Key")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toLevelResponse(level))
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	filter := MovementFilter{}
	q := r.URL.Query()
	if raw := q.Get("product_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(w, r, httpx.ErrValidation)
			return
		}
		filter.ProductID = id
	}
	if q.Get("warehouse_id") != "" {
		id, err := warehouseParam(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filter.WarehouseID = id
	}
	until, err := asOfParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filter.Until = until
	movements, err := h.service.ListMovements(r.Context(), tenantID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listLevels(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	levels, err := h.service.ListLevels(r.Context(), tenantID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]levelResponse, 0, len(levels))
	for _, l := range levels {
		out = append(out, toLevelResponse(l))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) verifyLevels(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	mismatches, err := h.service.VerifyLevels(r.Context(), tenantID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]mismatchResponse, 0, len(mismatches))
	for _, m := range mismatches {
		out = append(out, mismatchResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"consistent": len(out) == 0, "mismatches": out})
}

func (h *Handler) valuation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, err := productID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	warehouseID, err := warehouseParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.service.Valuate(r.Context(), tenantID, id, warehouseID, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toValuationResponse(v))
}

func (h *Handler) valuationAll(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	valuations, err := h.service.ValuateAll(r.Context(), tenantID, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]valuationResponse, 0, len(valuations))
	for _, v := range valuations {
		out = append(out, toValuationResponse(v))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) variances(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, err := productID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	warehouseID, err := warehouseParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	variances, err := h.service.Variances(r.Context(), tenantID, id, warehouseID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]varianceResponse, 0, len(variances))
	for _, v := range variances {
		out = append(out, varianceResponse(v))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) planning(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, err := productID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	warehouseID, err := warehouseParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req planningRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	plan, err := h.service.PlanningMetrics(r.Context(), tenantID, id, warehouseID, PlanningInput(req))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}
