package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

// AccountRepo handles accounts.
type AccountRepo struct {
	db DBTX
}

func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Upsert(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, name, institution, account_type, tracking, balance, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 institution=excluded.institution,
	 account_type=excluded.account_type,
	 tracking=excluded.tracking,
	 updated_at=CURRENT_TIMESTAMP;
	`, a.ID, a.Name, a.Institution, a.AccountType, a.Tracking, a.Balance.String())
	return err
}

func (r *AccountRepo) Get(ctx context.Context, id string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, institution, account_type, tracking, balance, created_at, updated_at FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, institution, account_type, tracking, balance, created_at, updated_at FROM accounts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AddToBalance applies a signed delta to the running balance. The read and
// write share the caller's transaction, so the single-writer model keeps
// this race-free.
func (r *AccountRepo) AddToBalance(ctx context.Context, id string, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	var raw string
	if err := r.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, id).Scan(&raw); err != nil {
		return err
	}
	bal, err := decFromText(raw)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `UPDATE accounts SET balance = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, bal.Add(delta).String(), id)
	return err
}

// SetBalance overwrites the running balance. Used by the integrity repairer.
func (r *AccountRepo) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `UPDATE accounts SET balance = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, balance.String(), id)
	return err
}

func scanAccount(row scanner) (Account, error) {
	var a Account
	var balance string
	if err := row.Scan(&a.ID, &a.Name, &a.Institution, &a.AccountType, &a.Tracking, &balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	bal, err := decFromText(balance)
	if err != nil {
		return Account{}, err
	}
	a.Balance = bal
	return a, nil
}
