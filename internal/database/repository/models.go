package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside the single atomic commit that covers a logical user action.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Transaction status values.
const (
	StatusUncleared  = "uncleared"
	StatusCleared    = "cleared"
	StatusReconciled = "reconciled"
)

// Transaction kind values.
const (
	KindStandard   = "standard"
	KindTransfer   = "transfer"
	KindAdjustment = "adjustment"
	KindIgnored    = "ignored"
)

// Category group types.
const (
	GroupExpense  = "expense"
	GroupIncome   = "income"
	GroupTransfer = "transfer"
)

// Rule pattern types.
const (
	PatternExact    = "exact"
	PatternContains = "contains"
	PatternRegex    = "regex"
	PatternFuzzy    = "fuzzy"
)

// Account represents an account row. Balance is maintained incrementally by
// the stats coordinator, never recomputed on normal reads.
type Account struct {
	ID          string
	Name        string
	Institution string
	AccountType string
	Tracking    bool
	Balance     decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CategoryGroup represents a category group row.
type CategoryGroup struct {
	ID        string
	Name      string
	GroupType string
}

// Category represents a category row. Activity is maintained incrementally.
type Category struct {
	ID        string
	GroupID   string
	Name      string
	Assigned  decimal.Decimal
	Activity  decimal.Decimal
	SortOrder int
}

// Tag represents a tag row.
type Tag struct {
	ID   string
	Name string
}

// Transaction represents a transaction row.
type Transaction struct {
	ID                string
	AccountID         string
	Date              time.Time
	Payee             string
	Amount            decimal.Decimal
	Memo              *string
	Status            string
	Kind              string
	TransferID        *string
	ExternalLabel     *string
	IntendedAccountID *string
	TransferInbox     bool
	CategoryID        *string
	ParentID          *string
	ReceiptPath       *string
	SourceHash        *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Tags              []Tag
}

// PurchasedItem is one line entry attached to a transaction.
type PurchasedItem struct {
	ID            string
	TransactionID string
	Name          string
	Amount        decimal.Decimal
	Quantity      int
}

// AutoRule is a stored match/action definition.
type AutoRule struct {
	ID            string
	Name          string
	PayeePattern  string
	PatternType   string
	AccountID     *string
	AmountMin     *decimal.Decimal
	AmountMax     *decimal.Decimal
	SetCategoryID *string
	SetPayee      *string
	AddTagIDs     []string
	Enabled       bool
	CreatedAt     time.Time
	Exceptions    []string // normalized payee keys
}

// RuleApplication is one provenance record: a single field changed on a
// single transaction by a single rule run.
type RuleApplication struct {
	ID            string
	TransactionID string
	RuleID        string
	Field         string
	OldValue      string
	NewValue      string
	Source        string
	AppliedAt     time.Time
	WasOverridden bool
}

// MonthlyTotal is one row of the materialized monthly cashflow cache.
type MonthlyTotal struct {
	MonthStart time.Time
	Income     decimal.Decimal
	Expense    decimal.Decimal
	TxnCount   int
}

// AuditEntry is one history line on a transaction.
type AuditEntry struct {
	ID            string
	TransactionID string
	Message       string
	Source        string
	CreatedAt     time.Time
}

// MonthKey formats a month start for the monthly_totals primary key.
func MonthKey(t time.Time) string {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// MonthStart truncates a date to the first of its month in UTC.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func decFromText(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func nullableDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
