package repository

import (
	"context"
	"database/sql"
)

// RuleApplicationRepo stores provenance records for rule-applied fields.
type RuleApplicationRepo struct {
	db DBTX
}

func NewRuleApplicationRepo(db DBTX) *RuleApplicationRepo { return &RuleApplicationRepo{db: db} }

func (r *RuleApplicationRepo) Add(ctx context.Context, a RuleApplication) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO rule_applications(id, transaction_id, rule_id, field, old_value, new_value, source, applied_at, was_overridden)
	VALUES(?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, ?)
	`, a.ID, a.TransactionID, a.RuleID, a.Field, a.OldValue, a.NewValue, a.Source, a.WasOverridden)
	return err
}

func (r *RuleApplicationRepo) Get(ctx context.Context, id string) (*RuleApplication, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, transaction_id, rule_id, field, old_value, new_value, source, applied_at, was_overridden
	FROM rule_applications WHERE id = ?`, id)
	a, err := scanApplication(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ByTransaction returns every application for a transaction, newest first.
func (r *RuleApplicationRepo) ByTransaction(ctx context.Context, transactionID string) ([]RuleApplication, error) {
	return r.queryMany(ctx, `
	SELECT id, transaction_id, rule_id, field, old_value, new_value, source, applied_at, was_overridden
	FROM rule_applications WHERE transaction_id = ? ORDER BY applied_at DESC, id DESC`, transactionID)
}

// LatestForRuleField returns the most recent non-overridden application a
// rule made to the given field, or nil.
func (r *RuleApplicationRepo) LatestForRuleField(ctx context.Context, ruleID, field string) (*RuleApplication, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, transaction_id, rule_id, field, old_value, new_value, source, applied_at, was_overridden
	FROM rule_applications
	WHERE rule_id = ? AND field = ? AND was_overridden = 0
	ORDER BY applied_at DESC, id DESC LIMIT 1`, ruleID, field)
	a, err := scanApplication(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// MarkOverridden flips a single application record.
func (r *RuleApplicationRepo) MarkOverridden(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE rule_applications SET was_overridden = 1 WHERE id = ?`, id)
	return err
}

// MarkOverriddenForField flips every not-yet-overridden record attributing
// the given field of a transaction to a rule. Returns the number flipped.
func (r *RuleApplicationRepo) MarkOverriddenForField(ctx context.Context, transactionID, field string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE rule_applications SET was_overridden = 1
	WHERE transaction_id = ? AND field = ? AND was_overridden = 0`, transactionID, field)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// HasOverriddenForRule reports whether a transaction carries an overridden
// application from the given rule. Overridden records are excluded from
// exception impact counting.
func (r *RuleApplicationRepo) HasOverriddenForRule(ctx context.Context, transactionID, ruleID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM rule_applications
	WHERE transaction_id = ? AND rule_id = ? AND was_overridden = 1`, transactionID, ruleID).Scan(&n)
	return n > 0, err
}

func (r *RuleApplicationRepo) queryMany(ctx context.Context, query string, args ...interface{}) ([]RuleApplication, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RuleApplication
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanApplication(row scanner) (RuleApplication, error) {
	var a RuleApplication
	if err := row.Scan(&a.ID, &a.TransactionID, &a.RuleID, &a.Field, &a.OldValue, &a.NewValue,
		&a.Source, &a.AppliedAt, &a.WasOverridden); err != nil {
		return RuleApplication{}, err
	}
	return a, nil
}
