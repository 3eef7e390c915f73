package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/ledgercore/internal/database/repository"
	"github.com/jask/ledgercore/internal/money"
)

// Reconcile applies the minimal aggregate deltas for one logical mutation:
// a retraction against the snapshot's old values and an application against
// the mutated transaction's new values. It must run inside the same database
// transaction as the mutation itself so both commit or roll back together.
//
// The snapshot is consumed: a second call with the same snapshot returns
// ErrSnapshotConsumed and applies nothing.
func Reconcile(ctx context.Context, db repository.DBTX, snap *Snapshot, after repository.Transaction) error {
	if err := snap.consume(); err != nil {
		return err
	}
	afterParent, err := repository.NewTransactionRepo(db).HasLegs(ctx, after.ID)
	if err != nil {
		return err
	}
	if err := applyDeltas(ctx, db, sideOf(*snap), -1); err != nil {
		return fmt.Errorf("retract: %w", err)
	}
	if err := applyDeltas(ctx, db, sideOfTxn(after, afterParent), +1); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	return nil
}

// ReconcileCreate applies the application half only, for a freshly inserted
// transaction. A new row has no legs yet, so it is never a split parent.
func ReconcileCreate(ctx context.Context, db repository.DBTX, t repository.Transaction) error {
	return applyDeltas(ctx, db, sideOfTxn(t, false), +1)
}

// ReconcileDelete applies the retraction half only, for a deleted
// transaction. The snapshot is consumed like in Reconcile.
func ReconcileDelete(ctx context.Context, db repository.DBTX, snap *Snapshot) error {
	if err := snap.consume(); err != nil {
		return err
	}
	return applyDeltas(ctx, db, sideOf(*snap), -1)
}

// aggSide is one side of a reconcile: the old values from a snapshot or the
// new values from the mutated row.
type aggSide struct {
	accountID   string
	categoryID  *string
	kind        string
	amount      decimal.Decimal
	date        time.Time
	splitParent bool
}

func sideOf(s Snapshot) aggSide {
	return aggSide{
		accountID:   s.AccountID,
		categoryID:  s.CategoryID,
		kind:        s.Kind,
		amount:      s.Amount,
		date:        s.Date,
		splitParent: s.SplitParent,
	}
}

func sideOfTxn(t repository.Transaction, splitParent bool) aggSide {
	return aggSide{
		accountID:   t.AccountID,
		categoryID:  t.CategoryID,
		kind:        t.Kind,
		amount:      t.Amount,
		date:        t.Date,
		splitParent: splitParent,
	}
}

// applyDeltas pushes one side's contribution into the three aggregate
// dimensions, negated when sign is -1. Split parents contribute nothing;
// their legs carry the amounts.
func applyDeltas(ctx context.Context, db repository.DBTX, s aggSide, sign int64) error {
	if s.splitParent {
		return nil
	}
	signed := s.amount.Mul(decimal.NewFromInt(sign))

	accounts := repository.NewAccountRepo(db)
	if err := accounts.AddToBalance(ctx, s.accountID, signed); err != nil {
		return fmt.Errorf("account balance: %w", err)
	}

	if qualified, err := categoryQualified(ctx, accounts, s); err != nil {
		return err
	} else if qualified {
		if err := repository.NewCategoryRepo(db).AddToActivity(ctx, *s.categoryID, signed); err != nil {
			return fmt.Errorf("category activity: %w", err)
		}
	}

	if s.kind == repository.KindStandard {
		income, expense := money.Zero, money.Zero
		if money.IsIncome(s.amount) {
			income = signed
		} else if money.IsExpense(s.amount) {
			expense = s.amount.Abs().Mul(decimal.NewFromInt(sign))
		}
		monthly := repository.NewMonthlyTotalRepo(db)
		if err := monthly.ApplyDelta(ctx, s.date, income, expense, int(sign)); err != nil {
			return fmt.Errorf("monthly cache: %w", err)
		}
	}
	return nil
}

// categoryQualified applies the disqualification rules: kind must be
// standard, a category must be set, and the account must not be
// tracking-only.
func categoryQualified(ctx context.Context, accounts *repository.AccountRepo, s aggSide) (bool, error) {
	if s.kind != repository.KindStandard || s.categoryID == nil {
		return false, nil
	}
	acct, err := accounts.Get(ctx, s.accountID)
	if err != nil {
		return false, err
	}
	if acct == nil || acct.Tracking {
		return false, nil
	}
	return true, nil
}

// MonthTotals reads the cashflow totals for a month, rebuilding the cache row
// from the underlying transactions when it is absent or stale. This is the
// lazy counterpart to the in-place updates performed by reconcile.
func MonthTotals(ctx context.Context, db repository.DBTX, month time.Time) (repository.MonthlyTotal, error) {
	monthly := repository.NewMonthlyTotalRepo(db)
	cached, err := monthly.Get(ctx, month)
	if err != nil {
		return repository.MonthlyTotal{}, err
	}
	if cached != nil {
		return *cached, nil
	}
	rebuilt, err := recomputeMonth(ctx, db, month)
	if err != nil {
		return repository.MonthlyTotal{}, err
	}
	if err := monthly.Put(ctx, rebuilt); err != nil {
		return repository.MonthlyTotal{}, err
	}
	return rebuilt, nil
}

func recomputeMonth(ctx context.Context, db repository.DBTX, month time.Time) (repository.MonthlyTotal, error) {
	amounts, err := repository.NewTransactionRepo(db).StandardAmountsInMonth(ctx, month)
	if err != nil {
		return repository.MonthlyTotal{}, err
	}
	mt := repository.MonthlyTotal{
		MonthStart: repository.MonthStart(month),
		Income:     money.Zero,
		Expense:    money.Zero,
	}
	for _, a := range amounts {
		switch {
		case money.IsIncome(a):
			mt.Income = mt.Income.Add(a)
		case money.IsExpense(a):
			mt.Expense = mt.Expense.Add(a.Abs())
		}
		mt.TxnCount++
	}
	return mt, nil
}
