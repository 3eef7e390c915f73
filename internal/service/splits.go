package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jask/ledgercore/internal/database"
	"github.com/jask/ledgercore/internal/database/repository"
	"github.com/jask/ledgercore/internal/money"
)

// SplitLeg is one leg of a split as edited in the form.
type SplitLeg struct {
	Amount     decimal.Decimal
	CategoryID *string
	Memo       *string
}

// SplitService maintains the split invariant: a parent's legs sum exactly to
// the parent amount and share its sign, and the parent itself carries no
// category.
type SplitService struct {
	DB *sql.DB
}

// NewLegs returns the two default zero-amount legs created when split mode
// is toggled on.
func (s *SplitService) NewLegs() []SplitLeg {
	return []SplitLeg{{Amount: decimal.Zero}, {Amount: decimal.Zero}}
}

// Apply replaces the parent's legs with the given set. Leg amounts are
// normalized onto the parent's sign before validation; the save is rejected
// with a ValidationError unless at least two legs exist and their amounts sum
// exactly to the parent amount. Existing legs are deleted and replaced, never
// diffed.
func (s *SplitService) Apply(ctx context.Context, parentID string, legs []SplitLeg) error {
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		txns := repository.NewTransactionRepo(tx)
		parent, err := txns.Get(ctx, parentID)
		if err != nil {
			return err
		}
		if parent == nil {
			return validationErr("id", "transaction %s not found", parentID)
		}
		if parent.ParentID != nil {
			return validationErr("id", "a split leg cannot itself be split")
		}
		if parent.Kind != repository.KindStandard {
			return validationErr("kind", "only standard transactions can be split")
		}

		if len(legs) < 2 {
			return validationErr("legs", "a split needs at least two legs")
		}
		normalized := make([]SplitLeg, len(legs))
		amounts := make([]decimal.Decimal, len(legs))
		for i, leg := range legs {
			leg.Amount = money.NormalizeLegSign(parent.Amount, leg.Amount)
			normalized[i] = leg
			amounts[i] = leg.Amount
		}
		total := money.Sum(amounts...)
		if !total.Equal(parent.Amount) {
			return validationErr("legs", "legs sum to %s, expected %s", total.String(), parent.Amount.String())
		}

		parentSnap, err := Take(ctx, tx, *parent)
		if err != nil {
			return err
		}
		if err := deleteLegs(ctx, tx, parentID); err != nil {
			return err
		}

		after := *parent
		after.CategoryID = nil
		after.Kind = repository.KindStandard
		if err := txns.Update(ctx, after); err != nil {
			return err
		}

		for _, leg := range normalized {
			row := repository.Transaction{
				ID:         uuid.NewString(),
				AccountID:  parent.AccountID,
				Date:       parent.Date,
				Payee:      parent.Payee,
				Amount:     leg.Amount,
				Memo:       leg.Memo,
				Status:     parent.Status,
				Kind:       repository.KindStandard,
				CategoryID: leg.CategoryID,
				ParentID:   &parentID,
			}
			if err := txns.Insert(ctx, row); err != nil {
				return err
			}
			if err := ReconcileCreate(ctx, tx, row); err != nil {
				return err
			}
		}

		// Legs exist now, so the after side contributes nothing itself.
		if err := Reconcile(ctx, tx, parentSnap, after); err != nil {
			return err
		}
		return addAudit(ctx, tx, parentID, fmt.Sprintf("split into %d legs", len(normalized)), SourceManual)
	})
}

// Remove deletes all legs and restores the parent as a standalone standard
// transaction with no category.
func (s *SplitService) Remove(ctx context.Context, parentID string) error {
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		txns := repository.NewTransactionRepo(tx)
		parent, err := txns.Get(ctx, parentID)
		if err != nil {
			return err
		}
		if parent == nil {
			return validationErr("id", "transaction %s not found", parentID)
		}
		parentSnap, err := Take(ctx, tx, *parent)
		if err != nil {
			return err
		}
		if !parentSnap.SplitParent {
			return validationErr("id", "transaction %s is not split", parentID)
		}
		if err := deleteLegs(ctx, tx, parentID); err != nil {
			return err
		}
		after := *parent
		after.CategoryID = nil
		after.Kind = repository.KindStandard
		if err := txns.Update(ctx, after); err != nil {
			return err
		}
		if err := Reconcile(ctx, tx, parentSnap, after); err != nil {
			return err
		}
		return addAudit(ctx, tx, parentID, "split removed", SourceManual)
	})
}

// deleteLegs retracts and removes every existing leg of a parent.
func deleteLegs(ctx context.Context, tx *sql.Tx, parentID string) error {
	txns := repository.NewTransactionRepo(tx)
	legs, err := txns.Legs(ctx, parentID)
	if err != nil {
		return err
	}
	for _, leg := range legs {
		legSnap, err := Take(ctx, tx, leg)
		if err != nil {
			return err
		}
		if err := ReconcileDelete(ctx, tx, legSnap); err != nil {
			return err
		}
		if err := txns.Delete(ctx, leg.ID); err != nil {
			return err
		}
	}
	return nil
}
