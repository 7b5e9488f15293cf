package notify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dukerupert/stockbook/internal/model"
)

func TestNotificationTypeFor(t *testing.T) {
	tests := []struct {
		recurring bool
		offset    model.Offset
		want      model.NotificationType
	}{
		{false, model.Offset7Days, model.NotifScheduled7Days},
		{false, model.Offset3Days, model.NotifScheduled3Days},
		{false, model.Offset1Day, model.NotifScheduled1Day},
		{false, model.OffsetDay, model.NotifScheduledDay},
		{false, model.OffsetOverdue, model.NotifScheduledOverdue},
		{true, model.Offset7Days, model.NotifRecurring7Days},
		{true, model.OffsetDay, model.NotifRecurringDay},
		{true, model.OffsetOverdue, model.NotifRecurringOverdue},
	}
	for _, tt := range tests {
		got := NotificationTypeFor(tt.recurring, tt.offset)
		assert.Equal(t, tt.want, got)
		assert.True(t, got.Valid(), "%s should be a known type", got)
	}
}

func TestClassify(t *testing.T) {
	today := day("2025-01-17")
	due := day("2025-01-20")
	tx := model.Transaction{
		ID:            9,
		Kind:          model.KindExpense,
		Amount:        decimal.RequireFromString("150.00"),
		Description:   "Rent",
		ScheduledDate: &due,
	}

	c := Classify(tx, model.Offset3Days, today)
	assert.Equal(t, int64(9), c.TransactionID)
	assert.Equal(t, 3, c.DayOffset)
	assert.Equal(t, model.NotifScheduled3Days, c.NotificationType)
	assert.Equal(t, "2025-01-20", c.ScheduledDate)
	assert.False(t, c.IsOverdue)

	past := day("2025-01-16")
	tx.ScheduledDate = &past
	tx.IsRecurring = true
	c = Classify(tx, model.OffsetOverdue, today)
	assert.True(t, c.IsOverdue)
	assert.Equal(t, -1, c.DayOffset)
	assert.Equal(t, model.NotifRecurringOverdue, c.NotificationType)
}
