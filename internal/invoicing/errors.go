package invoicing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvoiceNotFound  = errors.New("invoicing: invoice not found")
	ErrNoLines          = errors.New("invoicing: at least one line required")
	ErrInvalidLine      = errors.New("invoicing: invalid line")
	ErrInvalidInvoice   = errors.New("invoicing: invalid invoice")
	ErrInvalidStatus    = errors.New("invoicing: invalid status for operation")
	ErrInvalidAmount    = errors.New("invoicing: invalid payment amount")
	ErrOverpayment      = errors.New("invoicing: payment exceeds pending amount")
	ErrDuplicatePayment = errors.New("invoicing: payment reference already applied")
	ErrNotShippable     = errors.New("invoicing: invoice has nothing to ship")
)

// InvalidStateError reports a lifecycle action not allowed from the current status.
type InvalidStateError struct {
	From   Status
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invoicing: cannot %s invoice in status %s", e.Action, e.From)
}

// Is matches ErrInvalidStatus.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidStatus }

// OverpaymentError carries the pending amount a payment exceeded.
type OverpaymentError struct {
	Pending decimal.Decimal
	Amount  decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("invoicing: payment %s exceeds pending %s", e.Amount, e.Pending)
}

// Is matches ErrOverpayment.
func (e *OverpaymentError) Is(target error) bool { return target == ErrOverpayment }

// LedgerPostError indicates the invoice change was stored but the ledger
// posting failed and is pending.
type LedgerPostError struct {
	Err     error
	Message string
}

func (e *LedgerPostError) Error() string {
	return e.Message
}

func (e *LedgerPostError) Unwrap() error {
	return e.Err
}

func wrapLedgerPostError(action string, err error) error {
	if err == nil {
		return nil
	}
	return &LedgerPostError{
		Err:     err,
		Message: fmt.Sprintf("%s recorded but journal posting pending: %v", action, err),
	}
}
