package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/jask/ledgercore/internal/database/repository"
)

// SeedDefaults ensures baseline category groups and categories exist for new
// databases. It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB) error {
	groupRepo := repository.NewCategoryGroupRepo(db)
	catRepo := repository.NewCategoryRepo(db)

	existing, err := catRepo.List(ctx)
	if err == nil && len(existing) > 0 {
		return nil
	}

	groups := map[string]string{
		"Income":    repository.GroupIncome,
		"Expenses":  repository.GroupExpense,
		"Transfers": repository.GroupTransfer,
	}
	groupIDs := make(map[string]string, len(groups))
	for name, groupType := range groups {
		id := seededID("group:" + name)
		if err := groupRepo.Upsert(ctx, repository.CategoryGroup{ID: id, Name: name, GroupType: groupType}); err != nil {
			return err
		}
		groupIDs[name] = id
	}

	defaults := []struct {
		group string
		names []string
	}{
		{"Income", []string{"Salary", "Interest"}},
		{"Expenses", []string{"Groceries", "Restaurants", "Transport", "Shopping", "Utilities", "Subscriptions", "Health", "Entertainment"}},
	}
	for _, d := range defaults {
		for idx, name := range d.names {
			cat := repository.Category{
				ID:        seededID("cat:" + name),
				GroupID:   groupIDs[d.group],
				Name:      name,
				SortOrder: idx,
			}
			if err := catRepo.Upsert(ctx, cat); err != nil {
				return err
			}
		}
	}
	return nil
}

func seededID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(key))).String()
}
