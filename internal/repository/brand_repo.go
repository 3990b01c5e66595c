package repository

import (
	"context"
	"errors"
	"fmt"

	"brandconfig/internal/apperr"
	"brandconfig/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BrandRepository defines the interface for interacting with brand data.
// Every lookup is scoped by company or user; there is no unscoped read.
type BrandRepository interface {
	// Create inserts b and fills its id and timestamps. A duplicate
	// (user, name) pair fails with a conflict.
	Create(ctx context.Context, b *model.Brand) error
	GetByID(ctx context.Context, company, brandID string) (*model.Brand, error)
	// GetByName returns the oldest brand with that name in the company.
	GetByName(ctx context.Context, company, name string) (*model.Brand, error)
	ListByCompany(ctx context.Context, company string) ([]model.Brand, error)
	ListByUser(ctx context.Context, userID string) ([]model.Brand, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	ListSummaries(ctx context.Context, company string) ([]model.BrandSummary, error)
	// Delete removes the brand; definitions, versions and pointers cascade.
	Delete(ctx context.Context, company, brandID string) error
}

type brandRepo struct {
	pool *pgxpool.Pool
}

// NewBrandRepo creates a new BrandRepository
func NewBrandRepo(pool *pgxpool.Pool) BrandRepository {
	return &brandRepo{pool: pool}
}

const brandColumns = `id::text, user_id, company, name, created_at, updated_at`

func scanBrand(row pgx.Row) (*model.Brand, error) {
	var b model.Brand
	if err := row.Scan(&b.ID, &b.UserID, &b.Company, &b.Name, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *brandRepo) Create(ctx context.Context, b *model.Brand) error {
	const q = `
		INSERT INTO brands (user_id, company, name)
		VALUES ($1, $2, $3)
		RETURNING ` + brandColumns
	created, err := scanBrand(r.pool.QueryRow(ctx, q, b.UserID, b.Company, b.Name))
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("brand %q already exists", b.Name)
		}
		return fmt.Errorf("create brand %q for user %s: %w", b.Name, b.UserID, err)
	}
	*b = *created
	return nil
}

func (r *brandRepo) GetByID(ctx context.Context, company, brandID string) (*model.Brand, error) {
	if !validID(brandID) {
		return nil, apperr.NotFound("brand not found")
	}
	const q = `SELECT ` + brandColumns + ` FROM brands WHERE id = $1 AND company = $2`
	b, err := scanBrand(r.pool.QueryRow(ctx, q, brandID, company))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("brand not found")
		}
		return nil, fmt.Errorf("fetch brand %s: %w", brandID, err)
	}
	return b, nil
}

func (r *brandRepo) GetByName(ctx context.Context, company, name string) (*model.Brand, error) {
	const q = `
		SELECT ` + brandColumns + `
		FROM brands
		WHERE company = $1 AND name = $2
		ORDER BY created_at ASC
		LIMIT 1`
	b, err := scanBrand(r.pool.QueryRow(ctx, q, company, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("brand %q not found", name)
		}
		return nil, fmt.Errorf("fetch brand %q: %w", name, err)
	}
	return b, nil
}

func (r *brandRepo) list(ctx context.Context, q string, arg string) ([]model.Brand, error) {
	rows, err := r.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := []model.Brand{}
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, err
		}
		brands = append(brands, *b)
	}
	return brands, rows.Err()
}

func (r *brandRepo) ListByCompany(ctx context.Context, company string) ([]model.Brand, error) {
	const q = `SELECT ` + brandColumns + ` FROM brands WHERE company = $1 ORDER BY name ASC`
	brands, err := r.list(ctx, q, company)
	if err != nil {
		return nil, fmt.Errorf("list brands for company %s: %w", company, err)
	}
	return brands, nil
}

func (r *brandRepo) ListByUser(ctx context.Context, userID string) ([]model.Brand, error) {
	const q = `SELECT ` + brandColumns + ` FROM brands WHERE user_id = $1 ORDER BY name ASC`
	brands, err := r.list(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list brands for user %s: %w", userID, err)
	}
	return brands, nil
}

func (r *brandRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	const q = `SELECT COUNT(*) FROM brands WHERE user_id = $1`
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting brands for user %s: %w", userID, err)
	}
	return count, nil
}

func (r *brandRepo) ListSummaries(ctx context.Context, company string) ([]model.BrandSummary, error) {
	const q = `
		SELECT b.id::text, b.user_id, b.company, b.name, b.created_at, b.updated_at,
		       COUNT(d.id) AS config_count
		FROM brands b
		LEFT JOIN config_definitions d ON d.brand_id = b.id AND d.company = b.company
		WHERE b.company = $1
		GROUP BY b.id
		ORDER BY b.name ASC`
	rows, err := r.pool.Query(ctx, q, company)
	if err != nil {
		return nil, fmt.Errorf("list brand summaries for company %s: %w", company, err)
	}
	defer rows.Close()

	out := []model.BrandSummary{}
	for rows.Next() {
		var s model.BrandSummary
		if err := rows.Scan(&s.ID, &s.UserID, &s.Company, &s.Name, &s.CreatedAt, &s.UpdatedAt, &s.ConfigCount); err != nil {
			return nil, fmt.Errorf("scan brand summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *brandRepo) Delete(ctx context.Context, company, brandID string) error {
	if !validID(brandID) {
		return apperr.NotFound("brand not found")
	}
	const q = `DELETE FROM brands WHERE id = $1 AND company = $2`
	tag, err := r.pool.Exec(ctx, q, brandID, company)
	if err != nil {
		return fmt.Errorf("delete brand %s: %w", brandID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("brand not found")
	}
	return nil
}
