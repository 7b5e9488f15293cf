package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the storage and wire format of calendar dates.
const DateLayout = "2006-01-02"

type TransactionKind string

const (
	KindIncome  TransactionKind = "income"
	KindExpense TransactionKind = "expense"
)

// Transaction is a financial obligation owned by the transaction store.
// ScheduledDate is a calendar date at UTC midnight; IsPaid nil means unknown.
type Transaction struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	Kind          TransactionKind `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ScheduledDate *time.Time      `json:"scheduled_date"`
	IsPaid        *bool           `json:"is_paid"`
	IsRecurring   bool            `json:"is_recurring"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Unpaid reports whether the transaction still counts as outstanding.
func (t Transaction) Unpaid() bool {
	return t.IsPaid == nil || !*t.IsPaid
}

// Eligible reports whether the transaction can produce notifications at all.
func (t Transaction) Eligible() bool {
	return t.Unpaid() && t.ScheduledDate != nil
}
