package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/stockbook/internal/model"
)

// ErrInvalidConfirmation is returned when a confirmation names an unknown
// notification type or an unparseable date.
var ErrInvalidConfirmation = errors.New("invalid confirmation")

// Confirmer records delivery in the notification ledger.
type Confirmer interface {
	Confirm(ctx context.Context, key model.LedgerKey, channel model.Channel, at time.Time) error
}

// Confirmation identifies a rendered in-app notification.
type Confirmation struct {
	TransactionID    int64
	NotificationType model.NotificationType
	ScheduledDate    string
}

// InApp is the polled channel. Whatever ListDue returns is consumed; a
// client that drops the response loses those reminders.
type InApp struct {
	source Source
	ledger Confirmer
	now    func() time.Time
}

func NewInApp(source Source, ledger Confirmer, now func() time.Time) *InApp {
	if now == nil {
		now = time.Now
	}
	return &InApp{source: source, ledger: ledger, now: now}
}

// ListDue claims and returns the user's undelivered candidates.
func (a *InApp) ListDue(ctx context.Context, userID string) ([]model.Candidate, error) {
	candidates, err := a.source.ClaimDue(ctx, userID, model.ChannelInApp)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		candidates = []model.Candidate{}
	}
	return candidates, nil
}

// Confirm records that the client rendered a notification. Confirming an
// entry that already exists succeeds.
func (a *InApp) Confirm(ctx context.Context, userID string, c Confirmation) error {
	if !c.NotificationType.Valid() {
		return fmt.Errorf("%w: unknown notification type %q", ErrInvalidConfirmation, c.NotificationType)
	}
	if _, err := time.Parse(model.DateLayout, c.ScheduledDate); err != nil {
		return fmt.Errorf("%w: scheduled_date %q", ErrInvalidConfirmation, c.ScheduledDate)
	}
	key := model.LedgerKey{
		UserID:           userID,
		TransactionID:    c.TransactionID,
		NotificationType: c.NotificationType,
		ScheduledDate:    c.ScheduledDate,
	}
	if err := a.ledger.Confirm(ctx, key, model.ChannelInApp, a.now()); err != nil {
		return fmt.Errorf("confirm delivery: %w", err)
	}
	return nil
}
