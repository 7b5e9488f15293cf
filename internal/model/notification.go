package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Offset is a named lead time before a transaction's due date.
type Offset string

const (
	Offset7Days   Offset = "7days"
	Offset3Days   Offset = "3days"
	Offset1Day    Offset = "1day"
	OffsetDay     Offset = "day"
	OffsetOverdue Offset = "overdue"
)

// AllOffsets lists every offset in evaluation order.
var AllOffsets = []Offset{Offset7Days, Offset3Days, Offset1Day, OffsetDay, OffsetOverdue}

// Days returns the lead time in days. Overdue has no fixed lead time and
// reports ok=false.
func (o Offset) Days() (days int, ok bool) {
	switch o {
	case Offset7Days:
		return 7, true
	case Offset3Days:
		return 3, true
	case Offset1Day:
		return 1, true
	case OffsetDay:
		return 0, true
	}
	return 0, false
}

type NotificationType string

const (
	NotifScheduled7Days   NotificationType = "scheduled_7days"
	NotifScheduled3Days   NotificationType = "scheduled_3days"
	NotifScheduled1Day    NotificationType = "scheduled_1day"
	NotifScheduledDay     NotificationType = "scheduled_day"
	NotifScheduledOverdue NotificationType = "scheduled_overdue"
	NotifRecurring7Days   NotificationType = "recurring_7days"
	NotifRecurring3Days   NotificationType = "recurring_3days"
	NotifRecurring1Day    NotificationType = "recurring_1day"
	NotifRecurringDay     NotificationType = "recurring_day"
	NotifRecurringOverdue NotificationType = "recurring_overdue"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotifScheduled7Days, NotifScheduled3Days, NotifScheduled1Day, NotifScheduledDay, NotifScheduledOverdue,
		NotifRecurring7Days, NotifRecurring3Days, NotifRecurring1Day, NotifRecurringDay, NotifRecurringOverdue:
		return true
	}
	return false
}

// Channel identifies the delivery path that claimed a ledger entry.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
)

// Candidate is a computed, not-yet-delivered notification.
type Candidate struct {
	TransactionID    int64            `json:"transaction_id"`
	Kind             TransactionKind  `json:"type"`
	Description      string           `json:"description"`
	Amount           decimal.Decimal  `json:"amount"`
	ScheduledDate    string           `json:"scheduled_date"`
	DayOffset        int              `json:"day_offset"`
	NotificationType NotificationType `json:"notification_type"`
	IsOverdue        bool             `json:"is_overdue"`
}

// Key identifies the candidate within one user's notifications.
func (c Candidate) Key() string {
	return fmt.Sprintf("%d|%s|%s", c.TransactionID, c.NotificationType, c.ScheduledDate)
}

// LedgerKey is the four-part uniqueness key of the notification ledger.
type LedgerKey struct {
	UserID           string
	TransactionID    int64
	NotificationType NotificationType
	ScheduledDate    string
}

// KeyFor builds the ledger key for a candidate owned by userID.
func KeyFor(userID string, c Candidate) LedgerKey {
	return LedgerKey{
		UserID:           userID,
		TransactionID:    c.TransactionID,
		NotificationType: c.NotificationType,
		ScheduledDate:    c.ScheduledDate,
	}
}

type NotificationLogEntry struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	TransactionID    int64            `json:"transaction_id"`
	NotificationType NotificationType `json:"notification_type"`
	ScheduledDate    string           `json:"scheduled_date"`
	Channel          Channel          `json:"channel"`
	SentAt           time.Time        `json:"sent_at"`
	ConfirmedAt      *time.Time       `json:"confirmed_at,omitempty"`
}

// NotificationPreference is the single per-user settings row.
type NotificationPreference struct {
	UserID           string    `json:"user_id"`
	Enabled          bool      `json:"notifications_enabled"`
	FinancialEnabled bool      `json:"notifications_financial_enabled"`
	Days7            bool      `json:"notify_7days"`
	Days3            bool      `json:"notify_3days"`
	Days1            bool      `json:"notify_1day"`
	SameDay          bool      `json:"notify_day"`
	Overdue          bool      `json:"notify_overdue"`
	Timezone         string    `json:"timezone"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DefaultPreference is what a user without a stored row gets: everything on.
func DefaultPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:           userID,
		Enabled:          true,
		FinancialEnabled: true,
		Days7:            true,
		Days3:            true,
		Days1:            true,
		SameDay:          true,
		Overdue:          true,
	}
}

// OffsetEnabled reports the raw per-offset switch, ignoring the master and
// category switches.
func (p NotificationPreference) OffsetEnabled(o Offset) bool {
	switch o {
	case Offset7Days:
		return p.Days7
	case Offset3Days:
		return p.Days3
	case Offset1Day:
		return p.Days1
	case OffsetDay:
		return p.SameDay
	case OffsetOverdue:
		return p.Overdue
	}
	return false
}

// ClaimResult is the outcome of an atomic ledger claim.
type ClaimResult string

const (
	Claimed        ClaimResult = "claimed"
	AlreadyClaimed ClaimResult = "already_claimed"
)
