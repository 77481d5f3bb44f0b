package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fincore/internal/accounting"
	"github.com/odyssey-erp/fincore/internal/inventory"
	jobmetrics "github.com/odyssey-erp/fincore/internal/jobs"
	_ "github.com/odyssey-erp/fincore/testing"
)

type stubLedger struct {
	rows []accounting.AccountBalance
	err  error
	asOf time.Time
}

func (s *stubLedger) TrialBalance(_ context.Context, _ int64, asOf time.Time) ([]accounting.AccountBalance, error) {
	s.asOf = asOf
	return s.rows, s.err
}

type stubStock struct {
	mismatches []inventory.LevelMismatch
	valuations []inventory.Valuation
}

func (s stubStock) VerifyLevels(context.Context, int64) ([]inventory.LevelMismatch, error) {
	return s.mismatches, nil
}

func (s stubStock) ValuateAll(context.Context, int64, time.Time) ([]inventory.Valuation, error) {
	return s.valuations, nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func task(t *testing.T, build func(int64, time.Time) (*asynq.Task, error), tenantID int64) *asynq.Task {
	t.Helper()
	tk, err := build(tenantID, time.Time{})
	require.NoError(t, err)
	return tk
}

func TestLedgerIntegrityPasses(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	ledger := &stubLedger{rows: []accounting.AccountBalance{
		{Code: "1000", Debit: d("100")},
		{Code: "4000", Credit: d("100.004")},
	}}
	job := NewLedgerIntegrityJob(ledger, stubStock{}, nil, metrics)
	fixed := time.Date(2025, 5, 1, 1, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return fixed }

	require.NoError(t, job.Handle(context.Background(), task(t, NewLedgerIntegrityTask, 3)))
	require.Equal(t, fixed, ledger.asOf)
}

func TestLedgerIntegrityReportsFindingsWithoutRetry(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	ledger := &stubLedger{rows: []accounting.AccountBalance{
		{Code: "1000", Debit: d("100")},
		{Code: "4000", Credit: d("99")},
	}}
	stock := stubStock{mismatches: []inventory.LevelMismatch{
		{ProductID: uuid.New(), WarehouseID: 1, Stored: d("5"), Replayed: d("4")},
	}}
	job := NewLedgerIntegrityJob(ledger, stock, nil, metrics)

	err := job.Handle(context.Background(), task(t, NewLedgerIntegrityTask, 3))
	require.ErrorIs(t, err, asynq.SkipRetry)

	count, err := testutil.GatherAndCount(registry, "fincore_integrity_findings_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	count, err = testutil.GatherAndCount(registry, "fincore_jobs_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestLedgerIntegrityPropagatesReadErrors(t *testing.T) {
	boom := errors.New("boom")
	job := NewLedgerIntegrityJob(&stubLedger{err: boom}, nil, nil, nil)
	err := job.Handle(context.Background(), task(t, NewLedgerIntegrityTask, 3))
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlersRejectBadPayload(t *testing.T) {
	integrity := NewLedgerIntegrityJob(&stubLedger{}, nil, nil, nil)
	reval := NewInventoryRevaluationJob(stubStock{}, nil, nil)
	for _, tk := range []*asynq.Task{
		asynq.NewTask(TaskLedgerIntegrity, []byte("{")),
		asynq.NewTask(TaskLedgerIntegrity, []byte(`{"tenant_id":0}`)),
	} {
		require.ErrorIs(t, integrity.Handle(context.Background(), tk), asynq.SkipRetry)
		require.ErrorIs(t, reval.Handle(context.Background(), tk), asynq.SkipRetry)
	}
}

func TestInventoryRevaluationRuns(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	stock := stubStock{valuations: []inventory.Valuation{
		{ProductID: uuid.New(), WarehouseID: 1, Method: inventory.CostingFIFO, Quantity: d("2"), Value: d("20")},
		{ProductID: uuid.New(), WarehouseID: 2, Method: inventory.CostingLIFO, Quantity: d("1"), Value: d("7.5")},
	}}
	job := NewInventoryRevaluationJob(stock, nil, metrics)
	require.NoError(t, job.Handle(context.Background(), task(t, NewInventoryRevaluationTask, 9)))

	count, err := testutil.GatherAndCount(registry, "fincore_jobs_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestTenantPayloadRoundTrip(t *testing.T) {
	asOf := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	tk, err := NewInventoryRevaluationTask(4, asOf)
	require.NoError(t, err)
	require.Equal(t, TaskInventoryRevaluation, tk.Type())
	payload, err := decodeTenantPayload(tk)
	require.NoError(t, err)
	require.Equal(t, int64(4), payload.TenantID)
	require.True(t, asOf.Equal(payload.AsOf))
}

func TestTenantSchedule(t *testing.T) {
	regs, err := TenantSchedule([]int64{1, 2})
	require.NoError(t, err)
	require.Len(t, regs, 4)
	require.Equal(t, TaskLedgerIntegrity, regs[0].Task.Type())
	require.Equal(t, TaskInventoryRevaluation, regs[1].Task.Type())
	payload, err := decodeTenantPayload(regs[2].Task)
	require.NoError(t, err)
	require.Equal(t, int64(2), payload.TenantID)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

type stubEnqueuer struct {
	tenants []int64
	err     error
}

func (s *stubEnqueuer) EnqueueIntegrityCheck(_ context.Context, tenantID int64, _ time.Time) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tenants = append(s.tenants, tenantID)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func TestEnqueueIntegrityEndpoint(t *testing.T) {
	post := func(h *Handler, path string) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		h.MountRoutes(r)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		return rec
	}

	enqueuer := &stubEnqueuer{}
	rec := post(NewHandler(nil, enqueuer, nil), "/integrity/12")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"task_id":"task-1","queue":"default"}`, rec.Body.String())
	require.Equal(t, []int64{12}, enqueuer.tenants)

	require.Equal(t, http.StatusBadRequest, post(NewHandler(nil, enqueuer, nil), "/integrity/abc").Code)
	require.Equal(t, http.StatusServiceUnavailable, post(NewHandler(nil, &stubEnqueuer{err: errors.New("down")}, nil), "/integrity/12").Code)
	require.Equal(t, http.StatusServiceUnavailable, post(NewHandler(nil, nil, nil), "/integrity/12").Code)
}

func TestHealthEndpoint(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		h.MountRoutes(r)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rec
	}

	rec := serve(NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, nil, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, 3, out.Pending)
	require.Equal(t, 1, out.Retry)

	rec = serve(NewHandler(stubInspector{err: errors.New("redis down")}, nil, nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
