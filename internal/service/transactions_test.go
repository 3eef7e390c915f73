package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgercore/internal/database/repository"
)

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := newTestDB(t)
	seedAccount(ctx, t, db, "acct-a", "Checking")

	svc := &TransactionService{DB: db, MemoMaxLen: 20}
	base := repository.Transaction{
		AccountID: "acct-a",
		Date:      day(2026, time.March, 10),
		Payee:     "CAFE",
		Amount:    dec(t, "-8"),
	}

	var verr *ValidationError

	missing := base
	missing.AccountID = ""
	_, err := svc.Create(ctx, missing, SourceManual)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "account", verr.Field)

	noPayee := base
	noPayee.Payee = ""
	_, err = svc.Create(ctx, noPayee, SourceManual)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "payee", verr.Field)

	longMemo := base
	longMemo.Memo = strp(strings.Repeat("x", 21))
	_, err = svc.Create(ctx, longMemo, SourceManual)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "memo", verr.Field)

	badStatus := base
	badStatus.Status = "pending"
	_, err = svc.Create(ctx, badStatus, SourceManual)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "status", verr.Field)

	catOnTransfer := base
	catOnTransfer.Kind = repository.KindTransfer
	catOnTransfer.CategoryID = strp("cat-x")
	_, err = svc.Create(ctx, catOnTransfer, SourceManual)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "category", verr.Field)

	// A failed create leaves no aggregate residue.
	require.Equal(t, "0", accountBalance(ctx, t, db, "acct-a").String())
}

func TestBulkEdit(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := newTestDB(t)
	seedAccount(ctx, t, db, "acct-a", "Checking")
	seedAccount(ctx, t, db, "acct-b", "Savings")
	seedCategory(ctx, t, db, "cat-groceries", "Groceries")
	require.NoError(t, repository.NewTagRepo(db).Upsert(ctx, repository.Tag{ID: "tag-trip", Name: "trip"}))

	svc := &TransactionService{DB: db}
	var ids []string
	for i := 0; i < 3; i++ {
		txn := createTxn(ctx, t, svc, repository.Transaction{
			AccountID: "acct-a",
			Date:      day(2026, time.March, 10+i),
			Payee:     "SHOP",
			Amount:    dec(t, "-10"),
		})
		ids = append(ids, txn.ID)
	}

	status := repository.StatusCleared
	edited, err := svc.BulkEdit(ctx, append(ids, "no-such-id"), BulkPatch{
		AccountID:  strp("acct-b"),
		CategoryID: strp("cat-groceries"),
		Status:     &status,
		AddTagIDs:  []string{"tag-trip"},
	}, SourceBulkEdit)
	require.NoError(t, err)
	require.Equal(t, 3, edited)

	require.Equal(t, "0", accountBalance(ctx, t, db, "acct-a").String())
	require.Equal(t, "-30", accountBalance(ctx, t, db, "acct-b").String())
	require.Equal(t, "-30", categoryActivity(ctx, t, db, "cat-groceries").String())

	txns := repository.NewTransactionRepo(db)
	for _, id := range ids {
		got, err := txns.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "acct-b", got.AccountID)
		require.Equal(t, repository.StatusCleared, got.Status)
		require.Len(t, got.Tags, 1)
	}
}

func TestBulkEditAtomicOnFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := newTestDB(t)
	seedAccount(ctx, t, db, "acct-a", "Checking")

	svc := &TransactionService{DB: db, MemoMaxLen: 10}
	first := createTxn(ctx, t, svc, repository.Transaction{
		AccountID: "acct-a", Date: day(2026, time.March, 10), Payee: "ONE", Amount: dec(t, "-10"),
	})
	second := createTxn(ctx, t, svc, repository.Transaction{
		AccountID: "acct-a", Date: day(2026, time.March, 11), Payee: "TWO", Amount: dec(t, "-10"),
	})

	// The second item fails validation, so the first item's edit must roll
	// back with it.
	_, err := svc.BulkEdit(ctx, []string{first.ID, second.ID}, BulkPatch{
		Payee: strp("RENAMED"),
		Memo:  strp(strings.Repeat("x", 11)),
	}, SourceBulkEdit)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	got, getErr := repository.NewTransactionRepo(db).Get(ctx, first.ID)
	require.NoError(t, getErr)
	require.Equal(t, "ONE", got.Payee)
	require.Nil(t, got.Memo)
}

func TestBulkEditClearCategory(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := newTestDB(t)
	seedAccount(ctx, t, db, "acct-a", "Checking")
	seedCategory(ctx, t, db, "cat-groceries", "Groceries")

	svc := &TransactionService{DB: db}
	txn := createTxn(ctx, t, svc, repository.Transaction{
		AccountID:  "acct-a",
		Date:       day(2026, time.March, 10),
		Payee:      "SHOP",
		Amount:     dec(t, "-10"),
		CategoryID: strp("cat-groceries"),
	})

	edited, err := svc.BulkEdit(ctx, []string{txn.ID}, BulkPatch{ClearCategory: true}, SourceBulkEdit)
	require.NoError(t, err)
	require.Equal(t, 1, edited)

	got, err := repository.NewTransactionRepo(db).Get(ctx, txn.ID)
	require.NoError(t, err)
	require.Nil(t, got.CategoryID)
	require.Equal(t, "0", categoryActivity(ctx, t, db, "cat-groceries").String())
}

func TestSetTagsMarksOverride(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := newTestDB(t)
	seedAccount(ctx, t, db, "acct-a", "Checking")
	tags := repository.NewTagRepo(db)
	require.NoError(t, tags.Upsert(ctx, repository.Tag{ID: "tag-a", Name: "a"}))
	require.NoError(t, tags.Upsert(ctx, repository.Tag{ID: "tag-b", Name: "b"}))

	seedRule(ctx, t, db, repository.AutoRule{
		ID:           "rule-tag",
		Name:         "Tagger",
		PayeePattern: "SHOP",
		AddTagIDs:    []string{"tag-a"},
		Enabled:      true,
	})

	svc := &TransactionService{DB: db}
	txn := createTxn(ctx, t, svc, repository.Transaction{
		AccountID: "acct-a", Date: day(2026, time.March, 10), Payee: "SHOP", Amount: dec(t, "-10"),
	})
	rules := &RuleService{DB: db}
	_, err := rules.Run(ctx, []string{txn.ID}, SourceImport)
	require.NoError(t, err)

	require.NoError(t, svc.SetTags(ctx, txn.ID, []string{"tag-b"}, SourceManual))

	got, err := repository.NewTransactionRepo(db).Get(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, got.Tags, 1)
	require.Equal(t, "tag-b", got.Tags[0].ID)

	apps, err := repository.NewRuleApplicationRepo(db).ByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.Equal(t, FieldTags, apps[0].Field)
	require.True(t, apps[0].WasOverridden)
}

func TestAuditTrail(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := newTestDB(t)
	seedAccount(ctx, t, db, "acct-a", "Checking")

	svc := &TransactionService{DB: db}
	txn := createTxn(ctx, t, svc, repository.Transaction{
		AccountID: "acct-a", Date: day(2026, time.March, 10), Payee: "SHOP", Amount: dec(t, "-10"),
	})
	edited := txn
	edited.Payee = "RENAMED"
	require.NoError(t, svc.Update(ctx, edited, SourceManual))

	entries, err := repository.NewAuditRepo(db).ByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Equal(t, SourceManual, e.Source)
	}
}

func TestBulkEditRejectsSplitParentPatches(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := newTestDB(t)
	seedAccount(ctx, t, db, "acct-a", "Checking")
	seedAccount(ctx, t, db, "acct-b", "Savings")
	seedCategory(ctx, t, db, "cat-groceries", "Groceries")

	txnSvc := &TransactionService{DB: db}
	plain := createTxn(ctx, t, txnSvc, repository.Transaction{
		AccountID: "acct-a", Date: day(2026, time.March, 9), Payee: "COSTCO", Amount: dec(t, "-30"),
	})
	parent := createTxn(ctx, t, txnSvc, repository.Transaction{
		AccountID: "acct-a", Date: day(2026, time.March, 10), Payee: "WALMART SUPERCENTER", Amount: dec(t, "-60"),
	})
	splits := &SplitService{DB: db}
	require.NoError(t, splits.Apply(ctx, parent.ID, []SplitLeg{
		{Amount: dec(t, "-40")},
		{Amount: dec(t, "-20")},
	}))
	txns := repository.NewTransactionRepo(db)
	legs, err := txns.Legs(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, legs, 2)

	// A category patch touching a split parent fails the whole batch.
	n, err := txnSvc.BulkEdit(ctx, []string{plain.ID, parent.ID}, BulkPatch{CategoryID: strp("cat-groceries")}, SourceBulkEdit)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "category", verr.Field)
	require.Zero(t, n)

	// The rollback also undid the edit to the plain transaction.
	storedPlain, err := txns.Get(ctx, plain.ID)
	require.NoError(t, err)
	require.Nil(t, storedPlain.CategoryID)
	storedParent, err := txns.Get(ctx, parent.ID)
	require.NoError(t, err)
	require.Nil(t, storedParent.CategoryID)

	// Neither a parent nor a leg can be moved away from the split's account.
	_, err = txnSvc.BulkEdit(ctx, []string{parent.ID}, BulkPatch{AccountID: strp("acct-b")}, SourceBulkEdit)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "account", verr.Field)
	_, err = txnSvc.BulkEdit(ctx, []string{legs[0].ID}, BulkPatch{AccountID: strp("acct-b")}, SourceBulkEdit)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "account", verr.Field)
	require.Equal(t, "-60", accountBalance(ctx, t, db, "acct-a").String())
	require.Equal(t, "0", accountBalance(ctx, t, db, "acct-b").String())
}
