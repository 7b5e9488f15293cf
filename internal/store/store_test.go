package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/stockbook/internal/database"
	"github.com/dukerupert/stockbook/internal/model"
)

func setupTestDB(t *testing.T) (*sql.DB, *sqlx.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, database.X(db)
}

func date(s string) *time.Time {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return &d
}

func boolPtr(b bool) *bool { return &b }

func newTx(userID, scheduled string, paid *bool) model.Transaction {
	tx := model.Transaction{
		UserID:      userID,
		Kind:        model.KindExpense,
		Amount:      decimal.RequireFromString("150.00"),
		Description: "Supplier invoice",
		IsPaid:      paid,
	}
	if scheduled != "" {
		tx.ScheduledDate = date(scheduled)
	}
	return tx
}
