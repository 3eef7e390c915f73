package service

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/jask/ledgercore/internal/database"
	"github.com/jask/ledgercore/internal/database/repository"
)

// TransferService pairs transactions across accounts into matched transfers
// and cleanly unpairs them. Linking and unlinking never change amounts, so
// balances are untouched by the pairing itself; category and kind changes
// still flow through reconcile.
type TransferService struct {
	DB *sql.DB
}

// Link pairs base and match under a newly generated shared transfer id. Both
// sides become transfers, lose their categories and intended-account hints,
// and have any transfer-inbox flag dismissed. Linking fails without mutation
// when both sides share an account or either already holds a transfer id
// with a still-existing reciprocal elsewhere.
func (s *TransferService) Link(ctx context.Context, baseID, matchID string) error {
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		txns := repository.NewTransactionRepo(tx)
		base, err := txns.Get(ctx, baseID)
		if err != nil {
			return err
		}
		match, err := txns.Get(ctx, matchID)
		if err != nil {
			return err
		}
		if base == nil || match == nil {
			return linkErr(LinkNotFound, "both transactions must exist")
		}
		if base.AccountID == match.AccountID {
			return linkErr(LinkSameAccount, "cannot link two transactions in the same account")
		}
		for _, side := range []*repository.Transaction{base, match} {
			if err := requireUnsplit(ctx, txns, side); err != nil {
				return err
			}
			taken, err := holdsLiveLink(ctx, txns, side, map[string]bool{baseID: true, matchID: true})
			if err != nil {
				return err
			}
			if taken {
				return linkErr(LinkAlreadyLinked, "transaction %s is already part of another transfer", side.ID)
			}
		}

		transferID := uuid.NewString()
		for _, side := range []*repository.Transaction{base, match} {
			snap, err := Take(ctx, tx, *side)
			if err != nil {
				return err
			}
			after := *side
			after.Kind = repository.KindTransfer
			after.CategoryID = nil
			after.TransferID = &transferID
			after.IntendedAccountID = nil
			after.TransferInbox = false
			if err := txns.Update(ctx, after); err != nil {
				return err
			}
			if err := Reconcile(ctx, tx, snap, after); err != nil {
				return err
			}
			if err := addAudit(ctx, tx, side.ID, "linked as transfer", SourceManual); err != nil {
				return err
			}
		}
		return nil
	})
}

// Unlink breaks a matched pair. The reciprocal side is converted back to a
// standard transaction with no category (its categorization must be
// re-assigned); the originating side stays a transfer, now unmatched. More
// than one reciprocal sharing the id is a data-integrity condition and is
// surfaced, never silently resolved.
func (s *TransferService) Unlink(ctx context.Context, id string) error {
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		txns := repository.NewTransactionRepo(tx)
		origin, err := txns.Get(ctx, id)
		if err != nil {
			return err
		}
		if origin == nil {
			return linkErr(LinkNotFound, "transaction %s not found", id)
		}
		if origin.TransferID == nil {
			return nil
		}
		recips, err := txns.ByTransferID(ctx, *origin.TransferID, id)
		if err != nil {
			return err
		}
		if len(recips) > 1 {
			return linkErr(LinkAmbiguousPair, "%d transactions share transfer id %s", len(recips)+1, *origin.TransferID)
		}

		originSnap, err := Take(ctx, tx, *origin)
		if err != nil {
			return err
		}
		originAfter := *origin
		originAfter.TransferID = nil
		if err := txns.Update(ctx, originAfter); err != nil {
			return err
		}
		if err := Reconcile(ctx, tx, originSnap, originAfter); err != nil {
			return err
		}
		if err := addAudit(ctx, tx, id, "transfer unlinked", SourceManual); err != nil {
			return err
		}

		if len(recips) == 1 {
			recip := recips[0]
			snap, err := Take(ctx, tx, recip)
			if err != nil {
				return err
			}
			after := recip
			after.TransferID = nil
			after.Kind = repository.KindStandard
			after.CategoryID = nil
			if err := txns.Update(ctx, after); err != nil {
				return err
			}
			if err := Reconcile(ctx, tx, snap, after); err != nil {
				return err
			}
			if err := addAudit(ctx, tx, recip.ID, "transfer unlinked, reverted to standard", SourceManual); err != nil {
				return err
			}
		}
		return nil
	})
}

// ConvertToTransfer flips a transaction's kind to transfer, clearing its
// category and any transfer id; it must be explicitly re-linked.
func (s *TransferService) ConvertToTransfer(ctx context.Context, id string) error {
	return s.convertKind(ctx, id, repository.KindTransfer, "converted to transfer")
}

// ConvertToStandard flips a transfer back to a standard transaction. A still
// linked transfer must be unlinked first.
func (s *TransferService) ConvertToStandard(ctx context.Context, id string) error {
	return s.convertKind(ctx, id, repository.KindStandard, "converted to standard")
}

func (s *TransferService) convertKind(ctx context.Context, id, kind, message string) error {
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		txns := repository.NewTransactionRepo(tx)
		t, err := txns.Get(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return linkErr(LinkNotFound, "transaction %s not found", id)
		}
		if kind == repository.KindTransfer {
			if err := requireUnsplit(ctx, txns, t); err != nil {
				return err
			}
		}
		if t.TransferID != nil {
			live, err := holdsLiveLink(ctx, txns, t, map[string]bool{id: true})
			if err != nil {
				return err
			}
			if live {
				return linkErr(LinkAlreadyLinked, "unlink transaction %s before converting it", id)
			}
		}
		snap, err := Take(ctx, tx, *t)
		if err != nil {
			return err
		}
		after := *t
		after.Kind = kind
		after.CategoryID = nil
		after.TransferID = nil
		if err := txns.Update(ctx, after); err != nil {
			return err
		}
		if err := Reconcile(ctx, tx, snap, after); err != nil {
			return err
		}
		return addAudit(ctx, tx, id, message, SourceManual)
	})
}

// MarkExternal labels a transaction as a transfer to or from an account
// outside the ledger. The label replaces a reciprocal link; the transfer id
// is never touched.
func (s *TransferService) MarkExternal(ctx context.Context, id, label string) error {
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		txns := repository.NewTransactionRepo(tx)
		t, err := txns.Get(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return linkErr(LinkNotFound, "transaction %s not found", id)
		}
		if err := requireUnsplit(ctx, txns, t); err != nil {
			return err
		}
		snap, err := Take(ctx, tx, *t)
		if err != nil {
			return err
		}
		after := *t
		after.Kind = repository.KindTransfer
		after.CategoryID = nil
		after.ExternalLabel = &label
		if err := txns.Update(ctx, after); err != nil {
			return err
		}
		if err := Reconcile(ctx, tx, snap, after); err != nil {
			return err
		}
		return addAudit(ctx, tx, id, "marked external transfer: "+label, SourceManual)
	})
}

// ClearExternal removes the external label, leaving kind and transfer id
// untouched.
func (s *TransferService) ClearExternal(ctx context.Context, id string) error {
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		txns := repository.NewTransactionRepo(tx)
		t, err := txns.Get(ctx, id)
		if err != nil {
			return err
		}
		if t == nil || t.ExternalLabel == nil {
			return nil
		}
		after := *t
		after.ExternalLabel = nil
		if err := txns.Update(ctx, after); err != nil {
			return err
		}
		return addAudit(ctx, tx, id, "external transfer label cleared", SourceManual)
	})
}

// requireUnsplit rejects transfer transitions on split rows: a split parent
// must keep kind standard and its legs never stand alone, so neither side of
// a split can become a transfer.
func requireUnsplit(ctx context.Context, txns *repository.TransactionRepo, t *repository.Transaction) error {
	if t.ParentID != nil {
		return validationErr("kind", "a split leg cannot become a transfer")
	}
	hasLegs, err := txns.HasLegs(ctx, t.ID)
	if err != nil {
		return err
	}
	if hasLegs {
		return validationErr("kind", "remove the split before converting transaction %s to a transfer", t.ID)
	}
	return nil
}

// holdsLiveLink reports whether t carries a transfer id shared with a
// still-existing transaction outside the allowed set.
func holdsLiveLink(ctx context.Context, txns *repository.TransactionRepo, t *repository.Transaction, allowed map[string]bool) (bool, error) {
	if t.TransferID == nil {
		return false, nil
	}
	others, err := txns.ByTransferID(ctx, *t.TransferID, t.ID)
	if err != nil {
		return false, err
	}
	for _, other := range others {
		if !allowed[other.ID] {
			return true, nil
		}
	}
	return false, nil
}
