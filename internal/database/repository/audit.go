package repository

import (
	"context"
)

// AuditRepo stores the per-transaction history trail.
type AuditRepo struct {
	db DBTX
}

func NewAuditRepo(db DBTX) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) Add(ctx context.Context, e AuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO audit_log(id, transaction_id, message, source, created_at)
	VALUES(?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, e.ID, e.TransactionID, e.Message, e.Source)
	return err
}

// ByTransaction returns the trail for one transaction, newest first.
func (r *AuditRepo) ByTransaction(ctx context.Context, transactionID string) ([]AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, transaction_id, message, source, created_at
	FROM audit_log WHERE transaction_id = ? ORDER BY created_at DESC, id DESC`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.Message, &e.Source, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
