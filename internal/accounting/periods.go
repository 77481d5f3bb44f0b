package accounting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/fincore/internal/shared"
)

// periodLockTTL bounds how long a crashed close run can block the period.
const periodLockTTL = 30 * time.Second

// CreatePeriod opens a new fiscal period that must not overlap existing ones.
func (s *Service) CreatePeriod(ctx context.Context, tenantID int64, input PeriodInput) (Period, error) {
	p := Period{
		TenantID:  tenantID,
		Code:      strings.TrimSpace(input.Code),
		StartDate: dateOnly(input.StartDate),
		EndDate:   dateOnly(input.EndDate),
		Status:    PeriodStatusOpen,
	}
	if p.Code == "" {
		return Period{}, fmt.Errorf("%w: code required", ErrInvalidPeriod)
	}
	if p.EndDate.Before(p.StartDate) {
		return Period{}, fmt.Errorf("%w: end before start", ErrInvalidPeriod)
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	var created Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.ListPeriods(ctx, tenantID)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.Code == p.Code {
				return fmt.Errorf("%w: code %s exists", ErrInvalidPeriod, p.Code)
			}
			if other.Overlaps(p) {
				return fmt.Errorf("%w: %s", ErrPeriodOverlap, other.Code)
			}
		}
		created, err = tx.InsertPeriod(ctx, p)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, shared.AuditLog{TenantID: tenantID, Action: "period.create", Entity: "period", EntityID: fmt.Sprintf("%d", created.ID)})
	return created, nil
}

// ListPeriods retrieves the tenant's periods ordered by start date.
func (s *Service) ListPeriods(ctx context.Context, tenantID int64) ([]Period, error) {
	var periods []Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		periods, err = tx.ListPeriods(ctx, tenantID)
		return err
	})
	return periods, err
}

// PeriodForDate returns the period whose range contains date.
func (s *Service) PeriodForDate(ctx context.Context, tenantID int64, date time.Time) (Period, error) {
	periods, err := s.ListPeriods(ctx, tenantID)
	if err != nil {
		return Period{}, err
	}
	date = dateOnly(date)
	for _, p := range periods {
		if p.Contains(date) {
			return p, nil
		}
	}
	return Period{}, fmt.Errorf("%w: no period covers %s", ErrPeriodNotFound, date.Format(time.DateOnly))
}

// ClosePeriod stops postings and moves approved entries to closed.
func (s *Service) ClosePeriod(ctx context.Context, tenantID, periodID int64) (Period, error) {
	return s.transitionPeriod(ctx, tenantID, periodID, PeriodStatusClosed, false)
}

// LockPeriod makes the period read-only.
func (s *Service) LockPeriod(ctx context.Context, tenantID, periodID int64) (Period, error) {
	return s.transitionPeriod(ctx, tenantID, periodID, PeriodStatusLocked, false)
}

// UnlockPeriod drops a locked period back to closed. Requires an override.
func (s *Service) UnlockPeriod(ctx context.Context, tenantID, periodID int64, override bool) (Period, error) {
	return s.transitionPeriod(ctx, tenantID, periodID, PeriodStatusClosed, override)
}

// ReopenPeriod reopens a closed period for postings.
func (s *Service) ReopenPeriod(ctx context.Context, tenantID, periodID int64) (Period, error) {
	return s.transitionPeriod(ctx, tenantID, periodID, PeriodStatusOpen, false)
}

func (s *Service) transitionPeriod(ctx context.Context, tenantID, periodID int64, target PeriodStatus, override bool) (Period, error) {
	if s.locker != nil {
		unlock, err := s.locker.Acquire(ctx, shared.FinanceLockKey(tenantID, periodID), periodLockTTL)
		if err != nil {
			return Period{}, err
		}
		defer func() {
			_ = unlock(context.WithoutCancel(ctx))
		}()
	}
	var (
		period Period
		from   PeriodStatus
		closed int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPeriodForUpdate(ctx, tenantID, periodID)
		if err != nil {
			return err
		}
		if err := shared.ValidatePeriodTransition(string(current.Status), string(target), override); err != nil {
			return fmt.Errorf("%w: %s to %s", err, current.Status, target)
		}
		if current.Status == PeriodStatusOpen {
			closed, err = tx.CloseApprovedEntries(ctx, tenantID, periodID, s.now())
			if err != nil {
				return err
			}
		}
		if err := tx.UpdatePeriodStatus(ctx, tenantID, periodID, target); err != nil {
			return err
		}
		from = current.Status
		current.Status = target
		current.UpdatedAt = s.now()
		period = current
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, shared.AuditLog{
		TenantID: tenantID,
		Action:   "period.transition",
		Entity:   "period",
		EntityID: fmt.Sprintf("%d", periodID),
		Meta: map[string]any{
			"from":           string(from),
			"to":             string(target),
			"override":       override,
			"closed_entries": closed,
		},
	})
	return period, nil
}
