package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/ledgercore/internal/database"
	"github.com/jask/ledgercore/internal/database/repository"
)

// MaintenanceService verifies and repairs the incrementally maintained
// aggregates against a full recompute from the transaction set, and houses
// destructive ops actions.
type MaintenanceService struct {
	DB *sql.DB
}

// AggregateDrift is one aggregate whose stored value diverged from its
// recomputed truth.
type AggregateDrift struct {
	Kind     string // "account", "category", "month"
	ID       string
	Stored   decimal.Decimal
	Expected decimal.Decimal
}

// IntegrityReport lists every drift found by Verify.
type IntegrityReport struct {
	Drift []AggregateDrift
}

func (r IntegrityReport) Clean() bool { return len(r.Drift) == 0 }

// Verify recomputes every account balance, category activity total, and
// cached month from scratch and compares against the stored values. Absent
// month rows are stale by design and are not reported.
func (s *MaintenanceService) Verify(ctx context.Context) (IntegrityReport, error) {
	report := IntegrityReport{}
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		expected, err := recomputeAggregates(ctx, tx)
		if err != nil {
			return err
		}
		accounts, err := repository.NewAccountRepo(tx).List(ctx)
		if err != nil {
			return err
		}
		for _, a := range accounts {
			want := expected.balances[a.ID]
			if !a.Balance.Equal(want) {
				report.Drift = append(report.Drift, AggregateDrift{Kind: "account", ID: a.ID, Stored: a.Balance, Expected: want})
			}
		}
		categories, err := repository.NewCategoryRepo(tx).List(ctx)
		if err != nil {
			return err
		}
		for _, c := range categories {
			want := expected.activity[c.ID]
			if !c.Activity.Equal(want) {
				report.Drift = append(report.Drift, AggregateDrift{Kind: "category", ID: c.ID, Stored: c.Activity, Expected: want})
			}
		}
		cached, err := repository.NewMonthlyTotalRepo(tx).ListCached(ctx)
		if err != nil {
			return err
		}
		for _, mt := range cached {
			truth, err := recomputeMonth(ctx, tx, mt.MonthStart)
			if err != nil {
				return err
			}
			if !mt.Income.Equal(truth.Income) || !mt.Expense.Equal(truth.Expense) || mt.TxnCount != truth.TxnCount {
				net := mt.Income.Sub(mt.Expense)
				report.Drift = append(report.Drift, AggregateDrift{
					Kind:     "month",
					ID:       repository.MonthKey(mt.MonthStart),
					Stored:   net,
					Expected: truth.Income.Sub(truth.Expense),
				})
			}
		}
		return nil
	})
	if err != nil {
		return IntegrityReport{}, err
	}
	return report, nil
}

// Repair overwrites every stored aggregate with its recomputed truth and
// refreshes every cached month row.
func (s *MaintenanceService) Repair(ctx context.Context) error {
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		expected, err := recomputeAggregates(ctx, tx)
		if err != nil {
			return err
		}
		accountRepo := repository.NewAccountRepo(tx)
		accounts, err := accountRepo.List(ctx)
		if err != nil {
			return err
		}
		for _, a := range accounts {
			if err := accountRepo.SetBalance(ctx, a.ID, expected.balances[a.ID]); err != nil {
				return err
			}
		}
		categoryRepo := repository.NewCategoryRepo(tx)
		categories, err := categoryRepo.List(ctx)
		if err != nil {
			return err
		}
		for _, c := range categories {
			if err := categoryRepo.SetActivity(ctx, c.ID, expected.activity[c.ID]); err != nil {
				return err
			}
		}
		monthly := repository.NewMonthlyTotalRepo(tx)
		cached, err := monthly.ListCached(ctx)
		if err != nil {
			return err
		}
		for _, mt := range cached {
			truth, err := recomputeMonth(ctx, tx, mt.MonthStart)
			if err != nil {
				return err
			}
			if err := monthly.Put(ctx, truth); err != nil {
				return err
			}
		}
		return nil
	})
}

// RefreshMonth drops and rebuilds one cached month.
func (s *MaintenanceService) RefreshMonth(ctx context.Context, month time.Time) (repository.MonthlyTotal, error) {
	var out repository.MonthlyTotal
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		if err := repository.NewMonthlyTotalRepo(tx).Delete(ctx, month); err != nil {
			return err
		}
		var err error
		out, err = MonthTotals(ctx, tx, month)
		return err
	})
	return out, err
}

// Reset wipes all user data. It keeps the schema intact so the host can
// continue running.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		tables := []string{
			"audit_log",
			"rule_applications",
			"rule_payee_exceptions",
			"auto_rules",
			"purchased_items",
			"transaction_tags",
			"transactions",
			"monthly_totals",
			"tags",
			"categories",
			"category_groups",
			"accounts",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}

type recomputed struct {
	balances map[string]decimal.Decimal
	activity map[string]decimal.Decimal
}

// recomputeAggregates derives every account balance and category activity
// total from the raw transaction set: split parents contribute nothing,
// category activity only counts standard transactions on non-tracking
// accounts.
func recomputeAggregates(ctx context.Context, tx *sql.Tx) (recomputed, error) {
	out := recomputed{
		balances: map[string]decimal.Decimal{},
		activity: map[string]decimal.Decimal{},
	}
	txnRepo := repository.NewTransactionRepo(tx)
	all, err := txnRepo.List(ctx, repository.TransactionFilters{})
	if err != nil {
		return recomputed{}, err
	}
	parents, err := txnRepo.ParentIDs(ctx)
	if err != nil {
		return recomputed{}, err
	}
	tracking := map[string]bool{}
	accounts, err := repository.NewAccountRepo(tx).List(ctx)
	if err != nil {
		return recomputed{}, err
	}
	for _, a := range accounts {
		tracking[a.ID] = a.Tracking
		out.balances[a.ID] = decimal.Zero
	}
	categories, err := repository.NewCategoryRepo(tx).List(ctx)
	if err != nil {
		return recomputed{}, err
	}
	for _, c := range categories {
		out.activity[c.ID] = decimal.Zero
	}
	for _, t := range all {
		if parents[t.ID] {
			continue
		}
		out.balances[t.AccountID] = out.balances[t.AccountID].Add(t.Amount)
		if t.Kind == repository.KindStandard && t.CategoryID != nil && !tracking[t.AccountID] {
			out.activity[*t.CategoryID] = out.activity[*t.CategoryID].Add(t.Amount)
		}
	}
	return out, nil
}
