package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/stockbook/internal/model"
)

// ErrNotFound is returned when a row addressed by id does not exist for the caller.
var ErrNotFound = errors.New("not found")

// MalformedRow is a stored row that could not be decoded.
type MalformedRow struct {
	ID  int64
	Err error
}

// MalformedRowsError is returned alongside the rows that did decode. Callers
// that can tolerate partial results should check for it with errors.As.
type MalformedRowsError struct {
	Rows []MalformedRow
}

func (e *MalformedRowsError) Error() string {
	parts := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		parts = append(parts, fmt.Sprintf("transaction %d: %v", r.ID, r.Err))
	}
	return "malformed transaction rows: " + strings.Join(parts, "; ")
}

const transactionColumns = `id, user_id, kind, amount, description, scheduled_date, is_paid, is_recurring, created_at`

// unpaidClause matches is_paid false or unknown.
const unpaidClause = `(is_paid IS NULL OR is_paid = 0)`

type transactionRow struct {
	ID            int64          `db:"id"`
	UserID        string         `db:"user_id"`
	Kind          string         `db:"kind"`
	Amount        string         `db:"amount"`
	Description   string         `db:"description"`
	ScheduledDate sql.NullString `db:"scheduled_date"`
	IsPaid        sql.NullBool   `db:"is_paid"`
	IsRecurring   bool           `db:"is_recurring"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r transactionRow) decode() (model.Transaction, error) {
	tx := model.Transaction{
		ID:          r.ID,
		UserID:      r.UserID,
		Kind:        model.TransactionKind(r.Kind),
		Description: r.Description,
		IsRecurring: r.IsRecurring,
		CreatedAt:   r.CreatedAt,
	}

	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return tx, fmt.Errorf("parse amount %q: %w", r.Amount, err)
	}
	tx.Amount = amount

	if r.ScheduledDate.Valid {
		d, err := time.Parse(model.DateLayout, r.ScheduledDate.String)
		if err != nil {
			return tx, fmt.Errorf("parse scheduled_date %q: %w", r.ScheduledDate.String, err)
		}
		tx.ScheduledDate = &d
	}
	if r.IsPaid.Valid {
		paid := r.IsPaid.Bool
		tx.IsPaid = &paid
	}
	return tx, nil
}

// TransactionStore reads transactions for the notification engine and
// writes back the settlement flag.
type TransactionStore struct {
	db *sqlx.DB
}

func NewTransactionStore(db *sqlx.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Create inserts a transaction and returns it as stored.
func (s *TransactionStore) Create(ctx context.Context, tx model.Transaction) (*model.Transaction, error) {
	var scheduled any
	if tx.ScheduledDate != nil {
		scheduled = tx.ScheduledDate.Format(model.DateLayout)
	}
	var paid any
	if tx.IsPaid != nil {
		paid = *tx.IsPaid
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, kind, amount, description, scheduled_date, is_paid, is_recurring)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.UserID, string(tx.Kind), tx.Amount.String(), tx.Description, scheduled, paid, tx.IsRecurring,
	)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create transaction: last insert id: %w", err)
	}
	return s.GetByID(ctx, tx.UserID, id)
}

// GetByID returns the user's transaction, or ErrNotFound.
func (s *TransactionStore) GetByID(ctx context.Context, userID string, id int64) (*model.Transaction, error) {
	var row transactionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %d: %w", id, err)
	}
	tx, err := row.decode()
	if err != nil {
		return nil, &MalformedRowsError{Rows: []MalformedRow{{ID: row.ID, Err: err}}}
	}
	return &tx, nil
}

// DueOn returns the user's unpaid transactions scheduled exactly on one of
// the given dates (YYYY-MM-DD).
func (s *TransactionStore) DueOn(ctx context.Context, userID string, dates []string) ([]model.Transaction, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = ? AND scheduled_date IN (?) AND `+unpaidClause+`
		 ORDER BY scheduled_date, id`,
		userID, dates,
	)
	if err != nil {
		return nil, fmt.Errorf("build due-on query: %w", err)
	}

	var rows []transactionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list transactions due on %v: %w", dates, err)
	}
	return decodeTransactions(rows)
}

// OverdueBefore returns the user's unpaid transactions scheduled strictly
// before the given date (YYYY-MM-DD).
func (s *TransactionStore) OverdueBefore(ctx context.Context, userID, date string) ([]model.Transaction, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = ? AND scheduled_date IS NOT NULL AND scheduled_date < ? AND `+unpaidClause+`
		 ORDER BY scheduled_date, id`,
		userID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions overdue before %s: %w", date, err)
	}
	return decodeTransactions(rows)
}

// SetPaid writes the settlement flag. It returns ErrNotFound when the
// transaction does not belong to the user.
func (s *TransactionStore) SetPaid(ctx context.Context, userID string, id int64, paid bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET is_paid = ? WHERE id = ? AND user_id = ?`, paid, id, userID)
	if err != nil {
		return fmt.Errorf("set transaction %d paid: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set transaction %d paid: rows affected: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeTransactions(rows []transactionRow) ([]model.Transaction, error) {
	txs := make([]model.Transaction, 0, len(rows))
	var malformed []MalformedRow
	for _, r := range rows {
		tx, err := r.decode()
		if err != nil {
			malformed = append(malformed, MalformedRow{ID: r.ID, Err: err})
			continue
		}
		txs = append(txs, tx)
	}
	if len(malformed) > 0 {
		return txs, &MalformedRowsError{Rows: malformed}
	}
	return txs, nil
}
