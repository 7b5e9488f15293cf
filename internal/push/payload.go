package push

import (
	"fmt"

	"github.com/dukerupert/stockbook/internal/model"
)

// Payload is the JSON sent to the push service.
type Payload struct {
	Title            string                 `json:"title"`
	Body             string                 `json:"body"`
	URL              string                 `json:"url,omitempty"`
	Tag              string                 `json:"tag,omitempty"`
	TransactionID    int64                  `json:"transaction_id,omitempty"`
	NotificationType model.NotificationType `json:"notification_type,omitempty"`
	Urgent           bool                   `json:"-"`
}

// PayloadFor renders a claimed candidate. The deep link opens the
// transaction in the ledger view.
func PayloadFor(c model.Candidate) Payload {
	return Payload{
		Title:            titleFor(c),
		Body:             bodyFor(c),
		URL:              fmt.Sprintf("/transactions?highlight=%d", c.TransactionID),
		Tag:              fmt.Sprintf("txn-%d-%s", c.TransactionID, c.NotificationType),
		TransactionID:    c.TransactionID,
		NotificationType: c.NotificationType,
		Urgent:           c.IsOverdue,
	}
}

func titleFor(c model.Candidate) string {
	noun := "Payment"
	if c.Kind == model.KindIncome {
		noun = "Income"
	}
	switch {
	case c.IsOverdue:
		return noun + " overdue"
	case c.DayOffset == 0:
		return noun + " due today"
	case c.DayOffset == 1:
		return noun + " due tomorrow"
	default:
		return fmt.Sprintf("%s due in %d days", noun, c.DayOffset)
	}
}

func bodyFor(c model.Candidate) string {
	desc := c.Description
	if desc == "" {
		desc = "Scheduled transaction"
	}
	amount := c.Amount.StringFixed(2)
	if c.IsOverdue {
		days := -c.DayOffset
		unit := "days"
		if days == 1 {
			unit = "day"
		}
		return fmt.Sprintf("%s (%s) was due %s, %d %s ago", desc, amount, c.ScheduledDate, days, unit)
	}
	return fmt.Sprintf("%s (%s) on %s", desc, amount, c.ScheduledDate)
}

// TestPayload is sent by the test-push endpoint.
func TestPayload() Payload {
	return Payload{
		Title: "Test notification",
		Body:  "Push notifications are working on this device",
		URL:   "/settings",
		Tag:   "test",
	}
}
