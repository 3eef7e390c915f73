package repository

import (
	"context"
	"database/sql"
	"strings"
)

// AutoRuleRepo stores rule definitions and their payee exceptions.
type AutoRuleRepo struct {
	db DBTX
}

func NewAutoRuleRepo(db DBTX) *AutoRuleRepo { return &AutoRuleRepo{db: db} }

func (r *AutoRuleRepo) Upsert(ctx context.Context, rule AutoRule) error {
	var amountMin, amountMax, setCategory, setPayee, accountID interface{}
	if rule.AmountMin != nil {
		amountMin = rule.AmountMin.String()
	}
	if rule.AmountMax != nil {
		amountMax = rule.AmountMax.String()
	}
	if rule.SetCategoryID != nil {
		setCategory = *rule.SetCategoryID
	}
	if rule.SetPayee != nil {
		setPayee = *rule.SetPayee
	}
	if rule.AccountID != nil {
		accountID = *rule.AccountID
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO auto_rules(id, name, payee_pattern, pattern_type, account_id, amount_min, amount_max,
	 set_category_id, set_payee, add_tag_ids, enabled, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 payee_pattern=excluded.payee_pattern,
	 pattern_type=excluded.pattern_type,
	 account_id=excluded.account_id,
	 amount_min=excluded.amount_min,
	 amount_max=excluded.amount_max,
	 set_category_id=excluded.set_category_id,
	 set_payee=excluded.set_payee,
	 add_tag_ids=excluded.add_tag_ids,
	 enabled=excluded.enabled;
	`, rule.ID, rule.Name, rule.PayeePattern, rule.PatternType, accountID, amountMin, amountMax,
		setCategory, setPayee, strings.Join(rule.AddTagIDs, ","), rule.Enabled)
	return err
}

func (r *AutoRuleRepo) Get(ctx context.Context, id string) (*AutoRule, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, name, payee_pattern, pattern_type, account_id, amount_min, amount_max,
	 set_category_id, set_payee, add_tag_ids, enabled, created_at
	FROM auto_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	exceptions, err := r.Exceptions(ctx, rule.ID)
	if err != nil {
		return nil, err
	}
	rule.Exceptions = exceptions
	return &rule, nil
}

// ListEnabled returns enabled rules with exceptions loaded, in creation order.
func (r *AutoRuleRepo) ListEnabled(ctx context.Context) ([]AutoRule, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, name, payee_pattern, pattern_type, account_id, amount_min, amount_max,
	 set_category_id, set_payee, add_tag_ids, enabled, created_at
	FROM auto_rules WHERE enabled = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AutoRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		exceptions, err := r.Exceptions(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Exceptions = exceptions
	}
	return out, nil
}

func (r *AutoRuleRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auto_rules WHERE id = ?`, id)
	return err
}

// AddException stores a normalized payee key the rule must never apply to.
func (r *AutoRuleRepo) AddException(ctx context.Context, ruleID, payeeKey string) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO rule_payee_exceptions(rule_id, payee_key) VALUES(?, ?)`, ruleID, payeeKey)
	return err
}

func (r *AutoRuleRepo) Exceptions(ctx context.Context, ruleID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT payee_key FROM rule_payee_exceptions WHERE rule_id = ? ORDER BY payee_key`, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

func scanRule(row scanner) (AutoRule, error) {
	var rule AutoRule
	var accountID, amountMin, amountMax, setCategory, setPayee sql.NullString
	var addTagIDs string
	if err := row.Scan(&rule.ID, &rule.Name, &rule.PayeePattern, &rule.PatternType, &accountID,
		&amountMin, &amountMax, &setCategory, &setPayee, &addTagIDs, &rule.Enabled, &rule.CreatedAt); err != nil {
		return AutoRule{}, err
	}
	if accountID.Valid {
		rule.AccountID = &accountID.String
	}
	var err error
	if rule.AmountMin, err = nullableDecimal(amountMin); err != nil {
		return AutoRule{}, err
	}
	if rule.AmountMax, err = nullableDecimal(amountMax); err != nil {
		return AutoRule{}, err
	}
	if setCategory.Valid {
		rule.SetCategoryID = &setCategory.String
	}
	if setPayee.Valid {
		rule.SetPayee = &setPayee.String
	}
	if addTagIDs != "" {
		rule.AddTagIDs = strings.Split(addTagIDs, ",")
	}
	return rule, nil
}
