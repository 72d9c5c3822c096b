package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/guidancehub/referral-api/internal/models"
)

// CategoryRepository reads the externally managed category registry.
// Referral writes validate against the active set; the management CRUD
// lives elsewhere.
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository constructs the repository.
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// ActiveExists reports whether an active category with the exact name
// exists.
func (r *CategoryRepository) ActiveExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM categories WHERE name = $1 AND is_active = TRUE)`
	if err := r.db.GetContext(ctx, &exists, query, name); err != nil {
		return false, fmt.Errorf("check category %q: %w", name, err)
	}
	return exists, nil
}

// ListActive returns all active categories for the referral form.
func (r *CategoryRepository) ListActive(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	query := `SELECT id, name, is_active, created_at, updated_at FROM categories WHERE is_active = TRUE ORDER BY name ASC`
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("list active categories: %w", err)
	}
	return categories, nil
}
