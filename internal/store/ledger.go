package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/stockbook/internal/model"
)

// LedgerStore is the notification log. A row's existence is the only record
// that a notification was delivered; rows are never deleted.
type LedgerStore struct {
	db *sqlx.DB
}

func NewLedgerStore(db *sqlx.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

type ledgerRow struct {
	ID               string       `db:"id"`
	UserID           string       `db:"user_id"`
	TransactionID    int64        `db:"transaction_id"`
	NotificationType string       `db:"notification_type"`
	ScheduledDate    string       `db:"scheduled_date"`
	Channel          string       `db:"channel"`
	SentAt           time.Time    `db:"sent_at"`
	ConfirmedAt      sql.NullTime `db:"confirmed_at"`
}

func (r ledgerRow) entry() model.NotificationLogEntry {
	e := model.NotificationLogEntry{
		ID:               r.ID,
		UserID:           r.UserID,
		TransactionID:    r.TransactionID,
		NotificationType: model.NotificationType(r.NotificationType),
		ScheduledDate:    r.ScheduledDate,
		Channel:          model.Channel(r.Channel),
		SentAt:           r.SentAt,
	}
	if r.ConfirmedAt.Valid {
		t := r.ConfirmedAt.Time
		e.ConfirmedAt = &t
	}
	return e
}

// TryClaim inserts the ledger row for key in a single conditional insert.
// A key collision is reported as AlreadyClaimed, not as an error.
func (s *LedgerStore) TryClaim(ctx context.Context, key model.LedgerKey, channel model.Channel, at time.Time) (model.ClaimResult, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_log (id, user_id, transaction_id, notification_type, scheduled_date, channel, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, transaction_id, notification_type, scheduled_date) DO NOTHING`,
		uuid.NewString(), key.UserID, key.TransactionID, string(key.NotificationType), key.ScheduledDate, string(channel), at.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("claim notification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("claim notification: rows affected: %w", err)
	}
	if n == 0 {
		return model.AlreadyClaimed, nil
	}
	return model.Claimed, nil
}

// Confirm records delivery of key at the given time. An existing row,
// typically from the initial claim, is updated rather than rejected.
func (s *LedgerStore) Confirm(ctx context.Context, key model.LedgerKey, channel model.Channel, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_log (id, user_id, transaction_id, notification_type, scheduled_date, channel, sent_at, confirmed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, transaction_id, notification_type, scheduled_date)
		 DO UPDATE SET sent_at = excluded.sent_at, confirmed_at = excluded.confirmed_at`,
		uuid.NewString(), key.UserID, key.TransactionID, string(key.NotificationType), key.ScheduledDate, string(channel), at.UTC(), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("confirm notification: %w", err)
	}
	return nil
}

// Get returns the ledger entry for key, or nil if none exists.
func (s *LedgerStore) Get(ctx context.Context, key model.LedgerKey) (*model.NotificationLogEntry, error) {
	var row ledgerRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, user_id, transaction_id, notification_type, scheduled_date, channel, sent_at, confirmed_at
		 FROM notification_log
		 WHERE user_id = ? AND transaction_id = ? AND notification_type = ? AND scheduled_date = ?`,
		key.UserID, key.TransactionID, string(key.NotificationType), key.ScheduledDate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification log entry: %w", err)
	}
	e := row.entry()
	return &e, nil
}

// ListRecent returns the user's most recent ledger entries, newest first.
func (s *LedgerStore) ListRecent(ctx context.Context, userID string, limit int) ([]model.NotificationLogEntry, error) {
	var rows []ledgerRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, transaction_id, notification_type, scheduled_date, channel, sent_at, confirmed_at
		 FROM notification_log WHERE user_id = ? ORDER BY sent_at DESC, id LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notification log: %w", err)
	}
	entries := make([]model.NotificationLogEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}
