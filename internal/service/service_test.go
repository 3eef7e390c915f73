package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/ledgercore/internal/database"
	"github.com/jask/ledgercore/internal/database/repository"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedAccount(ctx context.Context, t *testing.T, db *sql.DB, id, name string) {
	t.Helper()
	require.NoError(t, repository.NewAccountRepo(db).Upsert(ctx, repository.Account{
		ID:          id,
		Name:        name,
		AccountType: "checking",
	}))
}

func seedTrackingAccount(ctx context.Context, t *testing.T, db *sql.DB, id, name string) {
	t.Helper()
	require.NoError(t, repository.NewAccountRepo(db).Upsert(ctx, repository.Account{
		ID:          id,
		Name:        name,
		AccountType: "investment",
		Tracking:    true,
	}))
}

func seedCategory(ctx context.Context, t *testing.T, db *sql.DB, id, name string) {
	t.Helper()
	groups := repository.NewCategoryGroupRepo(db)
	require.NoError(t, groups.Upsert(ctx, repository.CategoryGroup{
		ID:        "grp-expenses",
		Name:      "Expenses",
		GroupType: repository.GroupExpense,
	}))
	require.NoError(t, repository.NewCategoryRepo(db).Upsert(ctx, repository.Category{
		ID:      id,
		GroupID: "grp-expenses",
		Name:    name,
	}))
}

func createTxn(ctx context.Context, t *testing.T, svc *TransactionService, txn repository.Transaction) repository.Transaction {
	t.Helper()
	created, err := svc.Create(ctx, txn, SourceManual)
	require.NoError(t, err)
	return created
}

func accountBalance(ctx context.Context, t *testing.T, db *sql.DB, id string) decimal.Decimal {
	t.Helper()
	acct, err := repository.NewAccountRepo(db).Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, acct)
	return acct.Balance
}

func categoryActivity(ctx context.Context, t *testing.T, db *sql.DB, id string) decimal.Decimal {
	t.Helper()
	cat, err := repository.NewCategoryRepo(db).Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, cat)
	return cat.Activity
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func strp(s string) *string { return &s }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
