package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionFilters defines list filters.
type TransactionFilters struct {
	AccountID  string
	CategoryID string
	Status     string
	Kind       string
	Month      time.Time // first day of month; zero time = no month filter
	Search     string
	Limit      int
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db DBTX
}

func NewTransactionRepo(db DBTX) *TransactionRepo { return &TransactionRepo{db: db} }

const txnColumns = `id, account_id, date, payee, amount, memo, status, kind, transfer_id,
 external_label, intended_account_id, transfer_inbox, category_id, parent_id, receipt_path,
 source_hash, created_at, updated_at`

func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, account_id, date, payee, amount, memo, status, kind, transfer_id,
	 external_label, intended_account_id, transfer_inbox, category_id, parent_id, receipt_path,
	 source_hash, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		t.ID, t.AccountID, t.Date, t.Payee, t.Amount.String(), t.Memo, t.Status, t.Kind, t.TransferID,
		t.ExternalLabel, t.IntendedAccountID, t.TransferInbox, t.CategoryID, t.ParentID, t.ReceiptPath,
		t.SourceHash)
	return err
}

// Update overwrites every mutable column from t.
func (r *TransactionRepo) Update(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET
	 account_id = ?, date = ?, payee = ?, amount = ?, memo = ?, status = ?, kind = ?,
	 transfer_id = ?, external_label = ?, intended_account_id = ?, transfer_inbox = ?,
	 category_id = ?, parent_id = ?, receipt_path = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`,
		t.AccountID, t.Date, t.Payee, t.Amount.String(), t.Memo, t.Status, t.Kind,
		t.TransferID, t.ExternalLabel, t.IntendedAccountID, t.TransferInbox,
		t.CategoryID, t.ParentID, t.ReceiptPath, t.ID)
	return err
}

func (r *TransactionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	return err
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+txnColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	tags, err := r.fetchTags(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Tags = tags
	return &t, nil
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []interface{}

	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if !f.Month.IsZero() {
		start := MonthStart(f.Month)
		end := start.AddDate(0, 1, 0)
		where = append(where, "date >= ? AND date < ?")
		args = append(args, start, end)
	}
	if f.Search != "" {
		where = append(where, "payee LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}

	query := `SELECT ` + txnColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return r.queryMany(ctx, query, args...)
}

// ListRecent returns the newest limit transactions, excluding split legs.
// This is the bounded window rule impact previews scan over.
func (r *TransactionRepo) ListRecent(ctx context.Context, limit int) ([]Transaction, error) {
	return r.queryMany(ctx, `SELECT `+txnColumns+` FROM transactions WHERE parent_id IS NULL ORDER BY date DESC, created_at DESC LIMIT ?`, limit)
}

// Legs returns the split legs of a parent, oldest first.
func (r *TransactionRepo) Legs(ctx context.Context, parentID string) ([]Transaction, error) {
	return r.queryMany(ctx, `SELECT `+txnColumns+` FROM transactions WHERE parent_id = ? ORDER BY created_at, id`, parentID)
}

// HasLegs reports whether id is a split parent.
func (r *TransactionRepo) HasLegs(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE parent_id = ?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ByTransferID returns every transaction carrying the given transfer id,
// excluding the one under edit.
func (r *TransactionRepo) ByTransferID(ctx context.Context, transferID, excludeID string) ([]Transaction, error) {
	return r.queryMany(ctx, `SELECT `+txnColumns+` FROM transactions WHERE transfer_id = ? AND id != ?`, transferID, excludeID)
}

// StandardAmountsInMonth returns the amounts of standard, non-split-parent
// transactions dated within the month. Used to rebuild a stale month cache.
func (r *TransactionRepo) StandardAmountsInMonth(ctx context.Context, month time.Time) ([]decimal.Decimal, error) {
	start := MonthStart(month)
	end := start.AddDate(0, 1, 0)
	rows, err := r.db.QueryContext(ctx, `
	SELECT amount FROM transactions
	WHERE kind = ? AND date >= ? AND date < ?
	 AND id NOT IN (SELECT parent_id FROM transactions WHERE parent_id IS NOT NULL)`,
		KindStandard, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []decimal.Decimal
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		d, err := decFromText(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ParentIDs returns the set of transaction ids that currently have legs.
func (r *TransactionRepo) ParentIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT parent_id FROM transactions WHERE parent_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (r *TransactionRepo) AttachTag(ctx context.Context, transactionID, tagID string) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO transaction_tags(transaction_id, tag_id) VALUES(?, ?)`, transactionID, tagID)
	return err
}

func (r *TransactionRepo) RemoveTag(ctx context.Context, transactionID, tagID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transaction_tags WHERE transaction_id = ? AND tag_id = ?`, transactionID, tagID)
	return err
}

func (r *TransactionRepo) queryMany(ctx context.Context, query string, args ...interface{}) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		tags, err := r.fetchTags(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Tags = tags
	}
	return out, nil
}

func (r *TransactionRepo) fetchTags(ctx context.Context, transactionID string) ([]Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT t.id, t.name FROM tags t JOIN transaction_tags tt ON tt.tag_id = t.id WHERE tt.transaction_id = ? ORDER BY t.name`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// scanTransaction handles nullable fields for both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var amount string
	var memo, transferID, externalLabel, intended, category, parent, receipt, source sql.NullString
	if err := row.Scan(&t.ID, &t.AccountID, &t.Date, &t.Payee, &amount, &memo, &t.Status, &t.Kind, &transferID,
		&externalLabel, &intended, &t.TransferInbox, &category, &parent, &receipt,
		&source, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	d, err := decFromText(amount)
	if err != nil {
		return Transaction{}, err
	}
	t.Amount = d
	if memo.Valid {
		t.Memo = &memo.String
	}
	if transferID.Valid {
		t.TransferID = &transferID.String
	}
	if externalLabel.Valid {
		t.ExternalLabel = &externalLabel.String
	}
	if intended.Valid {
		t.IntendedAccountID = &intended.String
	}
	if category.Valid {
		t.CategoryID = &category.String
	}
	if parent.Valid {
		t.ParentID = &parent.String
	}
	if receipt.Valid {
		t.ReceiptPath = &receipt.String
	}
	if source.Valid {
		t.SourceHash = &source.String
	}
	return t, nil
}
