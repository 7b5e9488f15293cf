package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/stockbook/internal/model"
	"github.com/dukerupert/stockbook/internal/store"
)

// TransactionFinder is the read side of the transaction store used by the
// matcher. Implementations may return partial results together with a
// *store.MalformedRowsError.
type TransactionFinder interface {
	DueOn(ctx context.Context, userID string, dates []string) ([]model.Transaction, error)
	OverdueBefore(ctx context.Context, userID, date string) ([]model.Transaction, error)
}

// Match pairs a transaction with the offset that selected it.
type Match struct {
	Transaction model.Transaction
	Offset      model.Offset
}

// Matcher selects unpaid transactions that fall inside a window.
type Matcher struct {
	txs    TransactionFinder
	logger *slog.Logger
}

func NewMatcher(txs TransactionFinder, logger *slog.Logger) *Matcher {
	return &Matcher{txs: txs, logger: logger}
}

// Match returns transactions due exactly on a target date, followed by
// overdue transactions when the window includes them. The two sets are
// disjoint because every target date is today or later.
func (m *Matcher) Match(ctx context.Context, userID string, w Window) ([]Match, error) {
	var matches []Match

	due, err := m.txs.DueOn(ctx, userID, w.Dates())
	if err := m.tolerate(userID, err); err != nil {
		return nil, fmt.Errorf("match due transactions: %w", err)
	}
	for _, tx := range due {
		if !tx.Eligible() {
			continue
		}
		offset, ok := w.Targets[tx.ScheduledDate.Format(model.DateLayout)]
		if !ok {
			continue
		}
		matches = append(matches, Match{Transaction: tx, Offset: offset})
	}

	if !w.Overdue {
		return matches, nil
	}

	overdue, err := m.txs.OverdueBefore(ctx, userID, w.Today.Format(model.DateLayout))
	if err := m.tolerate(userID, err); err != nil {
		return nil, fmt.Errorf("match overdue transactions: %w", err)
	}
	for _, tx := range overdue {
		if !tx.Eligible() || !tx.ScheduledDate.Before(w.Today) {
			continue
		}
		matches = append(matches, Match{Transaction: tx, Offset: model.OffsetOverdue})
	}
	return matches, nil
}

// tolerate logs and drops malformed-row errors so one bad row does not hide
// the rest of the user's transactions.
func (m *Matcher) tolerate(userID string, err error) error {
	if err == nil {
		return nil
	}
	var malformed *store.MalformedRowsError
	if !errors.As(err, &malformed) {
		return err
	}
	for _, r := range malformed.Rows {
		m.logger.Warn("skipping malformed transaction", "user_id", userID, "transaction_id", r.ID, "error", r.Err)
	}
	return nil
}
