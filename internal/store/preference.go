package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/stockbook/internal/model"
)

type PreferenceStore struct {
	db *sqlx.DB
}

func NewPreferenceStore(db *sqlx.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

type preferenceRow struct {
	UserID           string    `db:"user_id"`
	Enabled          bool      `db:"notifications_enabled"`
	FinancialEnabled bool      `db:"notifications_financial_enabled"`
	Days7            bool      `db:"notify_7days"`
	Days3            bool      `db:"notify_3days"`
	Days1            bool      `db:"notify_1day"`
	SameDay          bool      `db:"notify_day"`
	Overdue          bool      `db:"notify_overdue"`
	Timezone         string    `db:"timezone"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Get returns the user's preference row, or nil if the user never saved one.
func (s *PreferenceStore) Get(ctx context.Context, userID string) (*model.NotificationPreference, error) {
	var row preferenceRow
	err := s.db.GetContext(ctx, &row,
		`SELECT user_id, notifications_enabled, notifications_financial_enabled,
		        notify_7days, notify_3days, notify_1day, notify_day, notify_overdue,
		        timezone, updated_at
		 FROM notification_preferences WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification preferences: %w", err)
	}
	return &model.NotificationPreference{
		UserID:           row.UserID,
		Enabled:          row.Enabled,
		FinancialEnabled: row.FinancialEnabled,
		Days7:            row.Days7,
		Days3:            row.Days3,
		Days1:            row.Days1,
		SameDay:          row.SameDay,
		Overdue:          row.Overdue,
		Timezone:         row.Timezone,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

// Upsert saves the user's single preference row.
func (s *PreferenceStore) Upsert(ctx context.Context, p model.NotificationPreference) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_preferences (user_id, notifications_enabled, notifications_financial_enabled,
		        notify_7days, notify_3days, notify_1day, notify_day, notify_overdue, timezone, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		        notifications_enabled = excluded.notifications_enabled,
		        notifications_financial_enabled = excluded.notifications_financial_enabled,
		        notify_7days = excluded.notify_7days,
		        notify_3days = excluded.notify_3days,
		        notify_1day = excluded.notify_1day,
		        notify_day = excluded.notify_day,
		        notify_overdue = excluded.notify_overdue,
		        timezone = excluded.timezone,
		        updated_at = excluded.updated_at`,
		p.UserID, p.Enabled, p.FinancialEnabled, p.Days7, p.Days3, p.Days1, p.SameDay, p.Overdue,
		p.Timezone, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert notification preferences: %w", err)
	}
	return nil
}
