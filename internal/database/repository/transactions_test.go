package repository_test

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
	migrations, err := filepath.Abs("../migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestTransactionRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := newTestDB(t)

	accounts := repository.NewAccountRepo(db)
	require.NoError(t, accounts.Upsert(ctx, repository.Account{ID: "acct-a", Name: "Checking", AccountType: "checking"}))

	txns := repository.NewTransactionRepo(db)
	memo := "weekly shop"
	in := repository.Transaction{
		ID:        "txn-1",
		AccountID: "acct-a",
		Date:      time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		Payee:     "WALMART SUPERCENTER",
		Amount:    mustDec(t, "-120.50"),
		Memo:      &memo,
		Status:    repository.StatusUncleared,
		Kind:      repository.KindStandard,
	}
	require.NoError(t, txns.Insert(ctx, in))

	got, err := txns.Get(ctx, "txn-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "WALMART SUPERCENTER", got.Payee)
	require.True(t, got.Amount.Equal(mustDec(t, "-120.50")))
	require.NotNil(t, got.Memo)
	require.Equal(t, "weekly shop", *got.Memo)
	require.Nil(t, got.CategoryID)
	require.Nil(t, got.TransferID)

	got.Payee = "Walmart"
	got.Status = repository.StatusCleared
	require.NoError(t, txns.Update(ctx, *got))
	again, err := txns.Get(ctx, "txn-1")
	require.NoError(t, err)
	require.Equal(t, "Walmart", again.Payee)
	require.Equal(t, repository.StatusCleared, again.Status)

	require.NoError(t, txns.Delete(ctx, "txn-1"))
	gone, err := txns.Get(ctx, "txn-1")
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestTransactionFilters(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := newTestDB(t)

	accounts := repository.NewAccountRepo(db)
	require.NoError(t, accounts.Upsert(ctx, repository.Account{ID: "acct-a", Name: "Checking", AccountType: "checking"}))
	require.NoError(t, accounts.Upsert(ctx, repository.Account{ID: "acct-b", Name: "Savings", AccountType: "savings"}))

	txns := repository.NewTransactionRepo(db)
	rows := []repository.Transaction{
		{ID: "t1", AccountID: "acct-a", Date: time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC), Payee: "WALMART", Amount: mustDec(t, "-10"), Status: repository.StatusUncleared, Kind: repository.KindStandard},
		{ID: "t2", AccountID: "acct-a", Date: time.Date(2026, time.April, 5, 0, 0, 0, 0, time.UTC), Payee: "COSTCO", Amount: mustDec(t, "-20"), Status: repository.StatusCleared, Kind: repository.KindStandard},
		{ID: "t3", AccountID: "acct-b", Date: time.Date(2026, time.March, 7, 0, 0, 0, 0, time.UTC), Payee: "TRANSFER", Amount: mustDec(t, "300"), Status: repository.StatusUncleared, Kind: repository.KindTransfer},
	}
	for _, r := range rows {
		require.NoError(t, txns.Insert(ctx, r))
	}

	byAccount, err := txns.List(ctx, repository.TransactionFilters{AccountID: "acct-a"})
	require.NoError(t, err)
	require.Len(t, byAccount, 2)

	byMonth, err := txns.List(ctx, repository.TransactionFilters{Month: time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Len(t, byMonth, 2)

	byKind, err := txns.List(ctx, repository.TransactionFilters{Kind: repository.KindTransfer})
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	require.Equal(t, "t3", byKind[0].ID)

	bySearch, err := txns.List(ctx, repository.TransactionFilters{Search: "WAL"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)

	limited, err := txns.List(ctx, repository.TransactionFilters{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestLegsAndParents(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := newTestDB(t)

	accounts := repository.NewAccountRepo(db)
	require.NoError(t, accounts.Upsert(ctx, repository.Account{ID: "acct-a", Name: "Checking", AccountType: "checking"}))

	txns := repository.NewTransactionRepo(db)
	parent := "parent-1"
	require.NoError(t, txns.Insert(ctx, repository.Transaction{
		ID: parent, AccountID: "acct-a", Date: time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC),
		Payee: "WALMART", Amount: mustDec(t, "-60"), Status: repository.StatusUncleared, Kind: repository.KindStandard,
	}))
	for i, amt := range []string{"-40", "-20"} {
		require.NoError(t, txns.Insert(ctx, repository.Transaction{
			ID: "leg-" + string(rune('a'+i)), AccountID: "acct-a",
			Date: time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC),
			Amount: mustDec(t, amt), Status: repository.StatusUncleared, Kind: repository.KindStandard, ParentID: &parent,
		}))
	}

	hasLegs, err := txns.HasLegs(ctx, parent)
	require.NoError(t, err)
	require.True(t, hasLegs)

	legs, err := txns.Legs(ctx, parent)
	require.NoError(t, err)
	require.Len(t, legs, 2)

	parents, err := txns.ParentIDs(ctx)
	require.NoError(t, err)
	require.True(t, parents[parent])

	// Recent listings and month recomputes exclude the parent row.
	recent, err := txns.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	amounts, err := txns.StandardAmountsInMonth(ctx, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, amounts, 2)

	// Deleting the parent cascades over its legs.
	require.NoError(t, txns.Delete(ctx, parent))
	legs, err = txns.Legs(ctx, parent)
	require.NoError(t, err)
	require.Empty(t, legs)
}

func TestMonthlyTotalsDeltaSemantics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := newTestDB(t)

	monthly := repository.NewMonthlyTotalRepo(db)
	march := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	// Deltas against an absent row are dropped; the row stays absent until a
	// full rebuild writes it.
	require.NoError(t, monthly.ApplyDelta(ctx, march, decimal.Zero, mustDec(t, "10"), 1))
	got, err := monthly.Get(ctx, march)
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, monthly.Put(ctx, repository.MonthlyTotal{MonthStart: march, Income: mustDec(t, "100"), Expense: mustDec(t, "40"), TxnCount: 3}))
	require.NoError(t, monthly.ApplyDelta(ctx, march, mustDec(t, "50"), mustDec(t, "-10"), 1))

	got, err = monthly.Get(ctx, march)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "150", got.Income.String())
	require.Equal(t, "30", got.Expense.String())
	require.Equal(t, 4, got.TxnCount)
}

func TestSourceHashUnique(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := newTestDB(t)

	accounts := repository.NewAccountRepo(db)
	require.NoError(t, accounts.Upsert(ctx, repository.Account{ID: "acct-a", Name: "Checking", AccountType: "checking"}))

	txns := repository.NewTransactionRepo(db)
	hash := "abc123"
	base := repository.Transaction{
		ID: "t1", AccountID: "acct-a", Date: time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC),
		Payee: "WALMART", Amount: mustDec(t, "-10"), Status: repository.StatusUncleared, Kind: repository.KindStandard, SourceHash: &hash,
	}
	require.NoError(t, txns.Insert(ctx, base))

	dup := base
	dup.ID = "t2"
	err := txns.Insert(ctx, dup)
	require.Error(t, err)
	require.Contains(t, err.Error(), "UNIQUE")
}
