package notify

import (
	"time"

	"github.com/dukerupert/stockbook/internal/model"
)

// NotificationTypeFor returns recurring_<offset> for recurring transactions
// and scheduled_<offset> otherwise.
func NotificationTypeFor(recurring bool, offset model.Offset) model.NotificationType {
	prefix := "scheduled_"
	if recurring {
		prefix = "recurring_"
	}
	return model.NotificationType(prefix + string(offset))
}

// Classify builds the candidate for a matched transaction. The transaction
// must have a scheduled date.
func Classify(tx model.Transaction, offset model.Offset, today time.Time) model.Candidate {
	return model.Candidate{
		TransactionID:    tx.ID,
		Kind:             tx.Kind,
		Description:      tx.Description,
		Amount:           tx.Amount,
		ScheduledDate:    tx.ScheduledDate.Format(model.DateLayout),
		DayOffset:        DayOffset(today, *tx.ScheduledDate),
		NotificationType: NotificationTypeFor(tx.IsRecurring, offset),
		IsOverdue:        offset == model.OffsetOverdue,
	}
}
