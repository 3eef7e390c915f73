package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

// CategoryGroupRepo handles category groups.
type CategoryGroupRepo struct {
	db DBTX
}

func NewCategoryGroupRepo(db DBTX) *CategoryGroupRepo {
	return &CategoryGroupRepo{db: db}
}

func (r *CategoryGroupRepo) Upsert(ctx context.Context, g CategoryGroup) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO category_groups(id, name, group_type)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 group_type=excluded.group_type;
	`, g.ID, g.Name, g.GroupType)
	return err
}

func (r *CategoryGroupRepo) Get(ctx context.Context, id string) (*CategoryGroup, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, group_type FROM category_groups WHERE id = ?`, id)
	var g CategoryGroup
	if err := row.Scan(&g.ID, &g.Name, &g.GroupType); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (r *CategoryGroupRepo) List(ctx context.Context) ([]CategoryGroup, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, group_type FROM category_groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategoryGroup
	for rows.Next() {
		var g CategoryGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.GroupType); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CategoryRepo handles categories.
type CategoryRepo struct {
	db DBTX
}

func NewCategoryRepo(db DBTX) *CategoryRepo {
	return &CategoryRepo{db: db}
}

func (r *CategoryRepo) Upsert(ctx context.Context, c Category) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO categories(id, group_id, name, assigned, activity, sort_order)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 group_id=excluded.group_id,
	 name=excluded.name,
	 sort_order=excluded.sort_order;
	`, c.ID, c.GroupID, c.Name, c.Assigned.String(), c.Activity.String(), c.SortOrder)
	return err
}

func (r *CategoryRepo) Get(ctx context.Context, id string) (*Category, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, group_id, name, assigned, activity, sort_order FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *CategoryRepo) List(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, group_id, name, assigned, activity, sort_order FROM categories ORDER BY sort_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetAssigned overwrites the user-budgeted amount.
func (r *CategoryRepo) SetAssigned(ctx context.Context, id string, assigned decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `UPDATE categories SET assigned = ? WHERE id = ?`, assigned.String(), id)
	return err
}

// AddToActivity applies a signed delta to the derived activity total.
func (r *CategoryRepo) AddToActivity(ctx context.Context, id string, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	var raw string
	if err := r.db.QueryRowContext(ctx, `SELECT activity FROM categories WHERE id = ?`, id).Scan(&raw); err != nil {
		return err
	}
	activity, err := decFromText(raw)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `UPDATE categories SET activity = ? WHERE id = ?`, activity.Add(delta).String(), id)
	return err
}

// SetActivity overwrites the derived activity total. Used by the integrity
// repairer.
func (r *CategoryRepo) SetActivity(ctx context.Context, id string, activity decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `UPDATE categories SET activity = ? WHERE id = ?`, activity.String(), id)
	return err
}

func scanCategory(row scanner) (Category, error) {
	var c Category
	var assigned, activity string
	if err := row.Scan(&c.ID, &c.GroupID, &c.Name, &assigned, &activity, &c.SortOrder); err != nil {
		return Category{}, err
	}
	var err error
	if c.Assigned, err = decFromText(assigned); err != nil {
		return Category{}, err
	}
	if c.Activity, err = decFromText(activity); err != nil {
		return Category{}, err
	}
	return c, nil
}
