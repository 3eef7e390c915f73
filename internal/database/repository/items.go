package repository

import (
	"context"
)

// PurchasedItemRepo handles line entries attached to transactions.
type PurchasedItemRepo struct {
	db DBTX
}

func NewPurchasedItemRepo(db DBTX) *PurchasedItemRepo { return &PurchasedItemRepo{db: db} }

func (r *PurchasedItemRepo) Add(ctx context.Context, item PurchasedItem) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO purchased_items(id, transaction_id, name, amount, quantity)
	VALUES(?, ?, ?, ?, ?)
	`, item.ID, item.TransactionID, item.Name, item.Amount.String(), item.Quantity)
	return err
}

func (r *PurchasedItemRepo) ByTransaction(ctx context.Context, transactionID string) ([]PurchasedItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, transaction_id, name, amount, quantity FROM purchased_items WHERE transaction_id = ? ORDER BY name`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchasedItem
	for rows.Next() {
		var item PurchasedItem
		var amount string
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.Name, &amount, &item.Quantity); err != nil {
			return nil, err
		}
		d, err := decFromText(amount)
		if err != nil {
			return nil, err
		}
		item.Amount = d
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *PurchasedItemRepo) DeleteByTransaction(ctx context.Context, transactionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM purchased_items WHERE transaction_id = ?`, transactionID)
	return err
}
