package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyTotalRepo handles the materialized monthly cashflow cache.
//
// A month's row only exists once that month has been read in full; the stats
// coordinator updates existing rows in place and deliberately never creates
// one, so a month untouched by reads stays absent (= stale) until the next
// full read rebuilds it.
type MonthlyTotalRepo struct {
	db DBTX
}

func NewMonthlyTotalRepo(db DBTX) *MonthlyTotalRepo { return &MonthlyTotalRepo{db: db} }

// Get returns the cached row for the month, or nil when the cache is stale.
func (r *MonthlyTotalRepo) Get(ctx context.Context, month time.Time) (*MonthlyTotal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT month_start, income, expense, txn_count FROM monthly_totals WHERE month_start = ?`, MonthKey(month))
	var key, income, expense string
	var count int
	if err := row.Scan(&key, &income, &expense, &count); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	start, err := time.Parse("2006-01", key)
	if err != nil {
		return nil, err
	}
	mt := MonthlyTotal{MonthStart: start, TxnCount: count}
	if mt.Income, err = decFromText(income); err != nil {
		return nil, err
	}
	if mt.Expense, err = decFromText(expense); err != nil {
		return nil, err
	}
	return &mt, nil
}

// Put inserts or replaces the cached row for a month.
func (r *MonthlyTotalRepo) Put(ctx context.Context, mt MonthlyTotal) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO monthly_totals(month_start, income, expense, txn_count)
	VALUES(?, ?, ?, ?)
	ON CONFLICT(month_start) DO UPDATE SET
	 income=excluded.income,
	 expense=excluded.expense,
	 txn_count=excluded.txn_count;
	`, MonthKey(mt.MonthStart), mt.Income.String(), mt.Expense.String(), mt.TxnCount)
	return err
}

// ApplyDelta adjusts an existing month row. When no row exists this is a
// no-op: the month is already stale and will be rebuilt on its next read.
func (r *MonthlyTotalRepo) ApplyDelta(ctx context.Context, month time.Time, income, expense decimal.Decimal, countDelta int) error {
	existing, err := r.Get(ctx, month)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	existing.Income = existing.Income.Add(income)
	existing.Expense = existing.Expense.Add(expense)
	existing.TxnCount += countDelta
	return r.Put(ctx, *existing)
}

// Delete drops a cached month, forcing a rebuild on next read.
func (r *MonthlyTotalRepo) Delete(ctx context.Context, month time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM monthly_totals WHERE month_start = ?`, MonthKey(month))
	return err
}

// ListCached returns every cached month.
func (r *MonthlyTotalRepo) ListCached(ctx context.Context) ([]MonthlyTotal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT month_start, income, expense, txn_count FROM monthly_totals ORDER BY month_start`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MonthlyTotal
	for rows.Next() {
		var key, income, expense string
		var count int
		if err := rows.Scan(&key, &income, &expense, &count); err != nil {
			return nil, err
		}
		start, err := time.Parse("2006-01", key)
		if err != nil {
			return nil, err
		}
		mt := MonthlyTotal{MonthStart: start, TxnCount: count}
		if mt.Income, err = decFromText(income); err != nil {
			return nil, err
		}
		if mt.Expense, err = decFromText(expense); err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}
