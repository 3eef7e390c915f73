package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/ledgercore/internal/database/repository"
)

// Snapshot captures the aggregate-relevant fields of a transaction before a
// mutation: account, category, kind, amount, date, plus whether the row was a
// split parent at capture time (split parents contribute nothing to
// aggregates, their legs do).
//
// A snapshot is consumed by its first Reconcile; passing it to a second call
// returns ErrSnapshotConsumed instead of corrupting the aggregates.
type Snapshot struct {
	TransactionID string
	AccountID     string
	CategoryID    *string
	Kind          string
	Amount        decimal.Decimal
	Date          time.Time
	SplitParent   bool

	consumed bool
}

// Take captures a snapshot of t. It must be called before the mutation the
// subsequent Reconcile describes.
func Take(ctx context.Context, db repository.DBTX, t repository.Transaction) (*Snapshot, error) {
	isParent, err := repository.NewTransactionRepo(db).HasLegs(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		TransactionID: t.ID,
		AccountID:     t.AccountID,
		CategoryID:    t.CategoryID,
		Kind:          t.Kind,
		Amount:        t.Amount,
		Date:          t.Date,
		SplitParent:   isParent,
	}, nil
}

func (s *Snapshot) consume() error {
	if s.consumed {
		return ErrSnapshotConsumed
	}
	s.consumed = true
	return nil
}
