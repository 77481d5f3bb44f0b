package accounting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type accountRequest struct {
	Code       string `json:"code" validate:"required,max=64"`
	Name       string `json:"name" validate:"required,max=200"`
	Type       string `json:"type" validate:"required,oneof=asset liability equity revenue expense"`
	ParentCode string `json:"parent_code" validate:"omitempty,max=64"`
}

type periodRequest struct {
	Code      string `json:"code" validate:"required,max=32"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type lineRequest struct {
	AccountCode string          `json:"account_code" validate:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Memo        string          `json:"memo"`
}

type entryRequest struct {
	PeriodID    int64         `json:"period_id" validate:"required,gt=0"`
	Date        string        `json:"date" validate:"required,datetime=2006-01-02"`
	Description string        `json:"description" validate:"max=500"`
	Type        string        `json:"type" validate:"omitempty,oneof=opening standard adjustment closing reversal"`
	Lines       []lineRequest `json:"lines" validate:"required,dive"`
	Post        bool          `json:"post"`
}

type reverseRequest struct {
	PeriodID int64  `json:"period_id" validate:"omitempty,gt=0"`
	Date     string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Memo     string `json:"memo" validate:"max=500"`
}

type unlockRequest struct {
	Override bool `json:"override"`
}

func (r entryRequest) toInput() DraftInput {
	date, _ := time.Parse(time.DateOnly, r.Date)
	lines := make([]JournalLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, JournalLine{AccountCode: l.AccountCode, Debit: l.Debit, Credit: l.Credit, Memo: l.Memo})
	}
	return DraftInput{
		PeriodID:    r.PeriodID,
		Date:        date,
		Description: r.Description,
		Type:        EntryType(r.Type),
		Lines:       lines,
	}
}

type lineResponse struct {
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Memo        string          `json:"memo,omitempty"`
}

type entryResponse struct {
	ID          uuid.UUID      `json:"id"`
	Number      int64          `json:"number,omitempty"`
	PeriodID    int64          `json:"period_id"`
	Date        string         `json:"date"`
	Description string         `json:"description"`
	Type        EntryType      `json:"type"`
	Status      EntryStatus    `json:"status"`
	ReversalOf  *uuid.UUID     `json:"reversal_of,omitempty"`
	Lines       []lineResponse `json:"lines"`
}

func toEntryResponse(e JournalEntry) entryResponse {
	lines := make([]lineResponse, 0, len(e.Lines))
	for _, l := range e.Lines {
		lines = append(lines, lineResponse{AccountCode: l.AccountCode, Debit: l.Debit, Credit: l.Credit, Memo: l.Memo})
	}
	return entryResponse{
		ID:          e.ID,
		Number:      e.Number,
		PeriodID:    e.PeriodID,
		Date:        e.Date.Format(time.DateOnly),
		Description: e.Description,
		Type:        e.Type,
		Status:      e.Status,
		ReversalOf:  e.ReversalOf,
		Lines:       lines,
	}
}

type accountResponse struct {
	Code       string      `json:"code"`
	Name       string      `json:"name"`
	Type       AccountType `json:"type"`
	ParentCode string      `json:"parent_code,omitempty"`
	Level      int         `json:"level"`
	IsActive   bool        `json:"is_active"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{Code: a.Code, Name: a.Name, Type: a.Type, ParentCode: a.ParentCode, Level: a.Level, IsActive: a.IsActive}
}

type periodResponse struct {
	ID        int64        `json:"id"`
	Code      string       `json:"code"`
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	Status    PeriodStatus `json:"status"`
}

func toPeriodResponse(p Period) periodResponse {
	return periodResponse{
		ID:        p.ID,
		Code:      p.Code,
		StartDate: p.StartDate.Format(time.DateOnly),
		EndDate:   p.EndDate.Format(time.DateOnly),
		Status:    p.Status,
	}
}
