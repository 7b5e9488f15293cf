package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/stockbook/internal/model"
)

// PushStore is the push subscription registry. One row per (user, endpoint).
type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

const subscriptionColumns = `id, user_id, endpoint, p256dh_key, auth_key, device_name, created_at`

// Register upserts a subscription keyed by (user, endpoint). Registering the
// same endpoint twice refreshes its keys and returns the existing row.
func (s *PushStore) Register(ctx context.Context, userID, endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh_key, auth_key, device_name)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, endpoint) DO UPDATE SET p256dh_key = excluded.p256dh_key, auth_key = excluded.auth_key, device_name = excluded.device_name`,
		userID, endpoint, p256dh, auth, deviceName,
	)
	if err != nil {
		return nil, fmt.Errorf("register push subscription: %w", err)
	}

	// LastInsertId is not reliable after an upsert took the update path.
	sub, err := s.getByUserEndpoint(ctx, userID, endpoint)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("register push subscription: row missing after upsert")
	}
	return sub, nil
}

func (s *PushStore) getByUserEndpoint(ctx context.Context, userID, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM push_subscriptions WHERE user_id = ? AND endpoint = ?`,
		userID, endpoint,
	).Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get push subscription by endpoint: %w", err)
	}
	return &sub, nil
}

func (s *PushStore) ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM push_subscriptions WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions by user: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// Revoke deletes the user's subscription for endpoint on explicit opt-out.
// It reports whether a row was removed.
func (s *PushStore) Revoke(ctx context.Context, userID, endpoint string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = ? AND endpoint = ?`, userID, endpoint)
	if err != nil {
		return false, fmt.Errorf("revoke push subscription: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke push subscription: rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteSubscription deletes a subscription by id, scoped to its owner.
func (s *PushStore) DeleteSubscription(ctx context.Context, id int64, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

// PruneDead deletes every row for an endpoint the push provider reported as
// gone. It returns the number of rows removed.
func (s *PushStore) PruneDead(ctx context.Context, endpoint string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return 0, fmt.Errorf("prune push subscription: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune push subscription: rows affected: %w", err)
	}
	return n, nil
}

// ListUserIDs returns distinct user IDs that have at least one push subscription.
func (s *PushStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM push_subscriptions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list push user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSubscriptions(rows *sql.Rows) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	for rows.Next() {
		var sub model.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
