package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jask/ledgercore/internal/database"
	"github.com/jask/ledgercore/internal/database/repository"
)

// Mutation sources, recorded on audit and provenance rows.
const (
	SourceManual   = "manual"
	SourceImport   = "import"
	SourceBulkEdit = "bulk-edit"
	SourceRule     = "rule"
)

// Fields tracked for rule-override detection.
const (
	FieldPayee    = "payee"
	FieldCategory = "category"
	FieldMemo     = "memo"
	FieldStatus   = "status"
	FieldTags     = "tags"
)

// DefaultMemoMaxLen caps memo length when the host supplies no limit.
const DefaultMemoMaxLen = 500

// TransactionService orchestrates the snapshot → mutate → reconcile → commit
// cycle for direct transaction edits.
type TransactionService struct {
	DB         *sql.DB
	MemoMaxLen int
}

// Create validates and inserts a new transaction, applying its aggregate
// contribution in the same commit.
func (s *TransactionService) Create(ctx context.Context, t repository.Transaction, source string) (repository.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = repository.StatusUncleared
	}
	if t.Kind == "" {
		t.Kind = repository.KindStandard
	}
	if err := s.validate(t); err != nil {
		return repository.Transaction{}, err
	}
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		if err := repository.NewTransactionRepo(tx).Insert(ctx, t); err != nil {
			return err
		}
		if err := ReconcileCreate(ctx, tx, t); err != nil {
			return err
		}
		return addAudit(ctx, tx, t.ID, "created", source)
	})
	if err != nil {
		return repository.Transaction{}, err
	}
	return t, nil
}

// Update overwrites a transaction from its edited form state. The stored row
// is the form-open baseline: any tracked field that differs marks the
// matching not-yet-overridden rule applications as overridden.
func (s *TransactionService) Update(ctx context.Context, after repository.Transaction, source string) error {
	if err := s.validate(after); err != nil {
		return err
	}
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		txns := repository.NewTransactionRepo(tx)
		before, err := txns.Get(ctx, after.ID)
		if err != nil {
			return err
		}
		if before == nil {
			return validationErr("id", "transaction %s not found", after.ID)
		}
		snap, err := Take(ctx, tx, *before)
		if err != nil {
			return err
		}
		if snap.SplitParent && !before.Amount.Equal(after.Amount) {
			return validationErr("amount", "change a split transaction's amount through its legs")
		}
		if snap.SplitParent && (after.CategoryID != nil || after.Kind != repository.KindStandard) {
			return validationErr("category", "a split transaction has no category of its own")
		}
		if before.ParentID != nil && !before.Amount.Equal(after.Amount) {
			return validationErr("amount", "change a split leg's amount through the split editor")
		}
		after.ParentID = before.ParentID
		if err := txns.Update(ctx, after); err != nil {
			return err
		}
		if err := Reconcile(ctx, tx, snap, after); err != nil {
			return err
		}
		changed := changedFields(*before, after)
		if err := markOverrides(ctx, tx, after.ID, changed); err != nil {
			return err
		}
		if len(changed) > 0 {
			return addAudit(ctx, tx, after.ID, "edited "+strings.Join(changed, ", "), source)
		}
		return addAudit(ctx, tx, after.ID, "edited", source)
	})
}

// BulkPatch describes one set of field changes applied to many transactions.
type BulkPatch struct {
	AccountID     *string
	CategoryID    *string
	ClearCategory bool
	Status        *string
	Payee         *string
	Memo          *string
	AddTagIDs     []string
}

// BulkEdit applies the patch to each transaction: one snapshot per
// transaction before its fields change, one reconcile after they are all
// set. The whole batch is one atomic commit; cancellation is honored only at
// item boundaries, never between a snapshot and its reconcile.
func (s *TransactionService) BulkEdit(ctx context.Context, ids []string, patch BulkPatch, source string) (int, error) {
	edited := 0
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		txns := repository.NewTransactionRepo(tx)
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			before, err := txns.Get(ctx, id)
			if err != nil {
				return err
			}
			if before == nil {
				continue
			}
			snap, err := Take(ctx, tx, *before)
			if err != nil {
				return err
			}
			if snap.SplitParent && patch.CategoryID != nil {
				return validationErr("category", "a split transaction has no category of its own")
			}
			if (snap.SplitParent || before.ParentID != nil) && patch.AccountID != nil {
				return validationErr("account", "a split and its legs stay in one account; remove the split first")
			}
			after := *before
			applyPatch(&after, patch)
			if err := s.validate(after); err != nil {
				return err
			}
			if err := txns.Update(ctx, after); err != nil {
				return err
			}
			for _, tagID := range patch.AddTagIDs {
				if err := txns.AttachTag(ctx, id, tagID); err != nil {
					return err
				}
			}
			if err := Reconcile(ctx, tx, snap, after); err != nil {
				return err
			}
			changed := changedFields(*before, after)
			if len(patch.AddTagIDs) > 0 {
				changed = append(changed, FieldTags)
			}
			if err := markOverrides(ctx, tx, id, changed); err != nil {
				return err
			}
			if err := addAudit(ctx, tx, id, "bulk edit: "+strings.Join(changed, ", "), source); err != nil {
				return err
			}
			edited++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return edited, nil
}

// Delete removes a transaction, cascading over its legs and retracting every
// aggregate contribution in the same commit. A linked reciprocal is left as
// an unmatched transfer.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		txns := repository.NewTransactionRepo(tx)
		t, err := txns.Get(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return nil
		}
		if t.ParentID != nil {
			return validationErr("id", "remove a split leg through the split editor")
		}
		snap, err := Take(ctx, tx, *t)
		if err != nil {
			return err
		}
		legs, err := txns.Legs(ctx, id)
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
		}
		if t.TransferID != nil {
			recips, err := txns.ByTransferID(ctx, *t.TransferID, id)
			if err != nil {
				return err
			}
			for _, recip := range recips {
				recip.TransferID = nil
				if err := txns.Update(ctx, recip); err != nil {
					return err
				}
			}
		}
		if err := ReconcileDelete(ctx, tx, snap); err != nil {
			return err
		}
		return txns.Delete(ctx, id)
	})
}

// SetTags replaces the tag set of a transaction, marking the tags field
// overridden when it changes.
func (s *TransactionService) SetTags(ctx context.Context, id string, tagIDs []string, source string) error {
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		txns := repository.NewTransactionRepo(tx)
		t, err := txns.Get(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return validationErr("id", "transaction %s not found", id)
		}
		current := make(map[string]bool, len(t.Tags))
		for _, tag := range t.Tags {
			current[tag.ID] = true
		}
		next := make(map[string]bool, len(tagIDs))
		for _, tagID := range tagIDs {
			next[tagID] = true
		}
		changed := false
		for tagID := range current {
			if !next[tagID] {
				if err := txns.RemoveTag(ctx, id, tagID); err != nil {
					return err
				}
				changed = true
			}
		}
		for tagID := range next {
			if !current[tagID] {
				if err := txns.AttachTag(ctx, id, tagID); err != nil {
					return err
				}
				changed = true
			}
		}
		if !changed {
			return nil
		}
		if err := markOverrides(ctx, tx, id, []string{FieldTags}); err != nil {
			return err
		}
		return addAudit(ctx, tx, id, "edited tags", source)
	})
}

func (s *TransactionService) validate(t repository.Transaction) error {
	if t.AccountID == "" {
		return validationErr("account", "account is required")
	}
	if t.Payee == "" && t.ParentID == nil {
		return validationErr("payee", "payee is required")
	}
	maxMemo := s.MemoMaxLen
	if maxMemo <= 0 {
		maxMemo = DefaultMemoMaxLen
	}
	if t.Memo != nil && len(*t.Memo) > maxMemo {
		return validationErr("memo", "memo exceeds %d characters", maxMemo)
	}
	switch t.Status {
	case repository.StatusUncleared, repository.StatusCleared, repository.StatusReconciled:
	default:
		return validationErr("status", "unknown status %q", t.Status)
	}
	switch t.Kind {
	case repository.KindStandard, repository.KindTransfer, repository.KindAdjustment, repository.KindIgnored:
	default:
		return validationErr("kind", "unknown kind %q", t.Kind)
	}
	if t.CategoryID != nil && t.Kind != repository.KindStandard {
		return validationErr("category", "category is only allowed on standard transactions")
	}
	return nil
}

func applyPatch(t *repository.Transaction, p BulkPatch) {
	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.ClearCategory {
		t.CategoryID = nil
	} else if p.CategoryID != nil {
		t.CategoryID = p.CategoryID
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Payee != nil {
		t.Payee = *p.Payee
	}
	if p.Memo != nil {
		t.Memo = p.Memo
	}
}

// changedFields reports which override-tracked fields differ between the
// form-open baseline and the saved state.
func changedFields(before, after repository.Transaction) []string {
	var out []string
	if before.Payee != after.Payee {
		out = append(out, FieldPayee)
	}
	if !ptrEqual(before.CategoryID, after.CategoryID) {
		out = append(out, FieldCategory)
	}
	if !ptrEqual(before.Memo, after.Memo) {
		out = append(out, FieldMemo)
	}
	if before.Status != after.Status {
		out = append(out, FieldStatus)
	}
	sort.Strings(out)
	return out
}

func markOverrides(ctx context.Context, db repository.DBTX, transactionID string, fields []string) error {
	apps := repository.NewRuleApplicationRepo(db)
	for _, field := range fields {
		if _, err := apps.MarkOverriddenForField(ctx, transactionID, field); err != nil {
			return fmt.Errorf("mark overridden %s: %w", field, err)
		}
	}
	return nil
}

func addAudit(ctx context.Context, db repository.DBTX, transactionID, message, source string) error {
	return repository.NewAuditRepo(db).Add(ctx, repository.AuditEntry{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		Message:       message,
		Source:        source,
	})
}

func ptrEqual(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return *a == *b
}
