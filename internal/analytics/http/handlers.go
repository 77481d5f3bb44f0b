package analytichttp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fincore/internal/analytics"
	"github.com/odyssey-erp/fincore/internal/analytics/export"
	"github.com/odyssey-erp/fincore/internal/invoicing"
	"github.com/odyssey-erp/fincore/internal/platform/httpx"
	"github.com/odyssey-erp/fincore/internal/shared"
)

const trendWindowMonths = 12
const requestTimeout = 5 * time.Second

// AnalyticsService defines the reporting contract used by the handler.
type AnalyticsService interface {
	KPIs(ctx context.Context, req analytics.KPIRequest) (analytics.KPISnapshot, error)
	MonthlyTrend(ctx context.Context, tenantID int64, from, to time.Time) ([]analytics.TrendPoint, error)
	AgingReport(ctx context.Context, tenantID int64, side invoicing.Side, asOf time.Time) (invoicing.AgingSummary, error)
}

// Handler serves the finance reporting endpoints.
type Handler struct {
	logger  *slog.Logger
	service AnalyticsService
	csvPool sync.Pool
	now     func() time.Time
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service AnalyticsService) *Handler {
	h := &Handler{logger: logger, service: service, now: time.Now}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// ErrorMappings maps analytics errors to HTTP statuses.
var ErrorMappings = []httpx.ErrorMapping{
	httpx.Map(analytics.ErrInvalidRange, http.StatusUnprocessableEntity, "Invalid Date Range"),
	httpx.Map(analytics.ErrInvalidSide, http.StatusUnprocessableEntity, "Invalid Side"),
	httpx.Map(shared.ErrTenantRequired, http.StatusBadRequest, "Tenant Required"),
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := httpx.Classify(err, ErrorMappings...)
	if status >= http.StatusInternalServerError {
		h.logger.Error("analytics request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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

func dateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", httpx.ErrValidation, name)
	}
	return t, nil
}

// window reads from/to, defaulting to the month to date.
func (h *Handler) window(r *http.Request) (time.Time, time.Time, error) {
	now := h.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from, err := dateParam(r, "from", time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := dateParam(r, "to", today)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func (h *Handler) handleKPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	from, to, err := h.window(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	snapshot, err := h.service.KPIs(ctx, analytics.KPIRequest{TenantID: tenantID, From: from, To: to})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleTrend(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	to, err := dateParam(r, "to", h.now().UTC())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := dateParam(r, "from", to.AddDate(0, -(trendWindowMonths-1), 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	points, err := h.service.MonthlyTrend(ctx, tenantID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, points)
}

func (h *Handler) handleAging(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	asOf, err := dateParam(r, "as_of", h.now().UTC())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	side := invoicing.Side(r.URL.Query().Get("side"))
	if side == "" {
		side = invoicing.SideReceivable
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	summary, err := h.service.AgingReport(ctx, tenantID, side, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

type reportData struct {
	kpi   analytics.KPISnapshot
	trend []analytics.TrendPoint
	ar    invoicing.AgingSummary
	ap    invoicing.AgingSummary
}

func (h *Handler) loadReport(ctx context.Context, tenantID int64, from, to time.Time) (reportData, error) {
	var data reportData
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data.kpi, err = h.service.KPIs(ctx, analytics.KPIRequest{TenantID: tenantID, From: from, To: to})
		return err
	})
	g.Go(func() error {
		var err error
		data.trend, err = h.service.MonthlyTrend(ctx, tenantID, to.AddDate(0, -(trendWindowMonths-1), 0), to)
		return err
	})
	g.Go(func() error {
		var err error
		data.ar, err = h.service.AgingReport(ctx, tenantID, invoicing.SideReceivable, to)
		return err
	})
	g.Go(func() error {
		var err error
		data.ap, err = h.service.AgingReport(ctx, tenantID, invoicing.SidePayable, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return reportData{}, err
	}
	return data, nil
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	from, to, err := h.window(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	data, err := h.loadReport(ctx, tenantID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WriteKPICSV(buf, data.kpi); err != nil {
		h.fail(w, r, fmt.Errorf("write kpi csv: %w", err))
		return
	}
	buf.WriteString("\n")
	if err := export.WriteTrendCSV(buf, data.trend); err != nil {
		h.fail(w, r, fmt.Errorf("write trend csv: %w", err))
		return
	}
	buf.WriteString("\n")
	if err := export.WriteAgingCSV(buf, data.ar); err != nil {
		h.fail(w, r, fmt.Errorf("write ar csv: %w", err))
		return
	}
	buf.WriteString("\n")
	if err := export.WriteAgingCSV(buf, data.ap); err != nil {
		h.fail(w, r, fmt.Errorf("write ap csv: %w", err))
		return
	}

	filename := fmt.Sprintf("finance-report-%s-%s.csv", from.Format(time.DateOnly), to.Format(time.DateOnly))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}
