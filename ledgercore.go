// Package ledgercore is the bookkeeping-consistency core beneath a
// personal-finance UI: an embedded library that keeps account balances,
// category totals, and cached monthly aggregates exactly consistent with the
// underlying transaction set across arbitrary sequences of edits, splits,
// transfer pairings, bulk edits, and automatic rule runs.
package ledgercore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jask/ledgercore/internal/config"
	"github.com/jask/ledgercore/internal/database"
	"github.com/jask/ledgercore/internal/database/repository"
	"github.com/jask/ledgercore/internal/service"
)

// Core wires the store, repositories, and engine services for the embedding
// host. All mutations go through the services; the repositories are exposed
// for reads.
type Core struct {
	DB *sql.DB

	Accounts     *repository.AccountRepo
	Groups       *repository.CategoryGroupRepo
	Categories   *repository.CategoryRepo
	Tags         *repository.TagRepo
	Items        *repository.PurchasedItemRepo
	Audit        *repository.AuditRepo
	Applications *repository.RuleApplicationRepo
	RuleDefs     *repository.AutoRuleRepo

	Transactions *service.TransactionService
	Splits       *service.SplitService
	Transfers    *service.TransferService
	Rules        *service.RuleService
	Maintenance  *service.MaintenanceService
	Ingest       *service.IngestService
}

// Open migrates and opens the store at cfg.Database.Path, seeds default
// categories on first run, and returns the wired core.
func Open(ctx context.Context, cfg config.Config) (*Core, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path, cfg.Database.MigrationsPath); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.SeedDefaults(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}
	return New(db, cfg), nil
}

// New wires a core around an already-open, already-migrated database.
func New(db *sql.DB, cfg config.Config) *Core {
	c := &Core{
		DB:           db,
		Accounts:     repository.NewAccountRepo(db),
		Groups:       repository.NewCategoryGroupRepo(db),
		Categories:   repository.NewCategoryRepo(db),
		Tags:         repository.NewTagRepo(db),
		Items:        repository.NewPurchasedItemRepo(db),
		Audit:        repository.NewAuditRepo(db),
		Applications: repository.NewRuleApplicationRepo(db),
		RuleDefs:     repository.NewAutoRuleRepo(db),
	}
	c.Transactions = &service.TransactionService{DB: db, MemoMaxLen: cfg.Validation.MemoMaxLength}
	c.Splits = &service.SplitService{DB: db}
	c.Transfers = &service.TransferService{DB: db}
	c.Rules = &service.RuleService{DB: db, WindowSize: cfg.Rules.WindowSize}
	c.Maintenance = &service.MaintenanceService{DB: db}
	c.Ingest = &service.IngestService{Transactions: c.Transactions, Accounts: c.Accounts, Rules: c.Rules}
	return c
}

// Close releases the store.
func (c *Core) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// Load reads the host configuration. See config.Load for the lookup rules.
func Load() (config.Config, error) { return config.Load() }
