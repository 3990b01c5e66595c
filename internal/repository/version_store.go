package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"brandconfig/internal/apperr"
	"brandconfig/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// VersionStore owns config definitions, their immutable versions and the
// active-version pointer of each definition.
type VersionStore interface {
	// GetOrCreateDefinition returns the definition for (brand, name, company),
	// creating it if absent. Concurrent callers with the same key observe the
	// same row.
	GetOrCreateDefinition(ctx context.Context, brandID, name, company string) (*model.ConfigDefinition, error)
	// FindDefinition resolves a definition by id or by name.
	FindDefinition(ctx context.Context, brandID, nameOrID, company string) (*model.ConfigDefinition, error)
	ListDefinitions(ctx context.Context, brandID, company string) ([]model.DefinitionSummary, error)
	CountDefinitions(ctx context.Context, brandID, company string) (int, error)
	// CreateVersion appends version MAX+1 (or 1) to the named definition,
	// creating the definition if needed.
	CreateVersion(ctx context.Context, brandID, name, company string, p model.ConfigPayload) (*model.ConfigVersion, error)
	// CreateVersionFor appends the next version to an existing definition,
	// whatever its current name. A missing definition is NotFound.
	CreateVersionFor(ctx context.Context, definitionID, brandID, company string, p model.ConfigPayload) (*model.ConfigVersion, error)
	GetVersion(ctx context.Context, brandID, company, versionID string) (*model.ConfigVersion, error)
	GetVersionByNumber(ctx context.Context, definitionID string, version int) (*model.ConfigVersion, error)
	LatestVersion(ctx context.Context, definitionID string) (*model.ConfigVersion, error)
	// ListVersions returns versions newest first.
	ListVersions(ctx context.Context, brandID, nameOrID, company string) ([]model.ConfigVersion, error)
	UpdateName(ctx context.Context, definitionID, newName, brandID, company string) (*model.ConfigDefinition, error)
	// SetActive upserts the pointer. The version must exist.
	SetActive(ctx context.Context, brandID, name string, version int, company string) (*model.ActiveVersionPointer, error)
	GetActivePointer(ctx context.Context, definitionID string) (*model.ActiveVersionPointer, error)
	// Remove deletes the definition with its versions and pointer.
	Remove(ctx context.Context, definitionID, brandID, company string) error
}

const maxVersionAttempts = 3

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type versionStore struct {
	pool   *pgxpool.Pool
	sfg    singleflight.Group
	logger zerolog.Logger
}

// NewVersionStore creates a Postgres-backed VersionStore.
func NewVersionStore(pool *pgxpool.Pool, logger zerolog.Logger) VersionStore {
	return &versionStore{
		pool:   pool,
		logger: logger.With().Str("repository", "VersionStore").Logger(),
	}
}

const definitionColumns = `d.id::text, d.brand_id::text, d.company, d.name, d.created_at, d.updated_at`

func scanDefinition(row pgx.Row) (*model.ConfigDefinition, error) {
	var d model.ConfigDefinition
	if err := row.Scan(&d.ID, &d.BrandID, &d.Company, &d.Name, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

const versionSelect = `
	SELECT v.id::text, v.brand_id::text, v.definition_id::text, d.name, d.company, v.version,
	       v.form_data, v.layout, v.schema, v.ui_schema, v.description, v.created_by, v.created_at
	FROM config_versions v
	JOIN config_definitions d ON d.id = v.definition_id`

func scanVersion(row pgx.Row) (*model.ConfigVersion, error) {
	var (
		v                              model.ConfigVersion
		formData, layout, schema, uiSc []byte
	)
	if err := row.Scan(&v.ID, &v.BrandID, &v.DefinitionID, &v.Name, &v.Company, &v.Version,
		&formData, &layout, &schema, &uiSc, &v.Description, &v.CreatedBy, &v.CreatedAt); err != nil {
		return nil, err
	}
	doc, err := decodeDocument(formData)
	if err != nil {
		return nil, err
	}
	v.FormData = doc
	v.Layout, v.Schema, v.UISchema = layout, schema, uiSc
	return &v, nil
}

func (s *versionStore) GetOrCreateDefinition(ctx context.Context, brandID, name, company string) (*model.ConfigDefinition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("config name is required")
	}
	if !validID(brandID) {
		return nil, apperr.NotFound("brand not found")
	}
	key := brandID + "\x00" + company + "\x00" + name
	// The shared call must not die with whichever caller started it.
	v, err, _ := s.sfg.Do(key, func() (any, error) {
		return getOrCreateDefinition(context.WithoutCancel(ctx), s.pool, brandID, name, company)
	})
	if err != nil {
		return nil, err
	}
	// Each caller gets its own copy.
	d := *v.(*model.ConfigDefinition)
	return &d, nil
}

func getOrCreateDefinition(ctx context.Context, q querier, brandID, name, company string) (*model.ConfigDefinition, error) {
	const insertQ = `
		INSERT INTO config_definitions AS d (brand_id, name, company)
		SELECT $1, $2, $3
		WHERE EXISTS (SELECT 1 FROM brands WHERE id = $1 AND company = $3)
		ON CONFLICT (brand_id, name, company) DO NOTHING
		RETURNING ` + definitionColumns
	d, err := scanDefinition(q.QueryRow(ctx, insertQ, brandID, name, company))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("create definition %q: %w", name, err)
	}
	// Either another writer won the insert or the brand is outside the company.
	d, err = findDefinitionByName(ctx, q, brandID, name, company)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("brand not found")
	}
	return d, err
}

func findDefinitionByName(ctx context.Context, q querier, brandID, name, company string) (*model.ConfigDefinition, error) {
	const sel = `SELECT ` + definitionColumns + ` FROM config_definitions d
		WHERE d.brand_id = $1 AND d.name = $2 AND d.company = $3`
	d, err := scanDefinition(q.QueryRow(ctx, sel, brandID, name, company))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("config %q not found", name)
		}
		return nil, fmt.Errorf("fetch definition %q: %w", name, err)
	}
	return d, nil
}

func (s *versionStore) FindDefinition(ctx context.Context, brandID, nameOrID, company string) (*model.ConfigDefinition, error) {
	if !validID(brandID) {
		return nil, apperr.NotFound("brand not found")
	}
	key := strings.TrimSpace(nameOrID)
	if validID(key) {
		const byID = `SELECT ` + definitionColumns + ` FROM config_definitions d
			WHERE d.id = $1 AND d.brand_id = $2 AND d.company = $3`
		d, err := scanDefinition(s.pool.QueryRow(ctx, byID, key, brandID, company))
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("fetch definition %s: %w", key, err)
		}
	}
	return findDefinitionByName(ctx, s.pool, brandID, key, company)
}

func (s *versionStore) ListDefinitions(ctx context.Context, brandID, company string) ([]model.DefinitionSummary, error) {
	if !validID(brandID) {
		return nil, apperr.NotFound("brand not found")
	}
	const q = `
		SELECT ` + definitionColumns + `,
		       COALESCE((SELECT MAX(v.version) FROM config_versions v WHERE v.definition_id = d.id), 0),
		       a.active_version
		FROM config_definitions d
		LEFT JOIN active_config_versions a
		       ON a.definition_id = d.id AND a.brand_id = d.brand_id AND a.company = d.company
		WHERE d.brand_id = $1 AND d.company = $2
		ORDER BY d.name ASC`
	rows, err := s.pool.Query(ctx, q, brandID, company)
	if err != nil {
		return nil, fmt.Errorf("list definitions for brand %s: %w", brandID, err)
	}
	defer rows.Close()

	out := []model.DefinitionSummary{}
	for rows.Next() {
		var ds model.DefinitionSummary
		if err := rows.Scan(&ds.ID, &ds.BrandID, &ds.Company, &ds.Name, &ds.CreatedAt, &ds.UpdatedAt,
			&ds.LatestVersion, &ds.ActiveVersion); err != nil {
			return nil, fmt.Errorf("scan definition summary: %w", err)
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

func (s *versionStore) CountDefinitions(ctx context.Context, brandID, company string) (int, error) {
	if !validID(brandID) {
		return 0, nil
	}
	var count int
	const q = `SELECT COUNT(*) FROM config_definitions WHERE brand_id = $1 AND company = $2`
	if err := s.pool.QueryRow(ctx, q, brandID, company).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting definitions for brand %s: %w", brandID, err)
	}
	return count, nil
}

func (s *versionStore) CreateVersion(ctx context.Context, brandID, name, company string, p model.ConfigPayload) (*model.ConfigVersion, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("config name is required")
	}
	if !validID(brandID) {
		return nil, apperr.NotFound("brand not found")
	}
	return s.createVersion(ctx, name, p, func(ctx context.Context, tx pgx.Tx) (*model.ConfigDefinition, error) {
		def, err := getOrCreateDefinition(ctx, tx, brandID, name, company)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `SELECT 1 FROM config_definitions WHERE id = $1 FOR UPDATE`, def.ID); err != nil {
			return nil, fmt.Errorf("locking definition %s: %w", def.ID, err)
		}
		return def, nil
	})
}

func (s *versionStore) CreateVersionFor(ctx context.Context, definitionID, brandID, company string, p model.ConfigPayload) (*model.ConfigVersion, error) {
	if !validID(brandID) || !validID(definitionID) {
		return nil, apperr.NotFound("config not found")
	}
	return s.createVersion(ctx, definitionID, p, func(ctx context.Context, tx pgx.Tx) (*model.ConfigDefinition, error) {
		// The name is read under the lock so a concurrent rename is seen.
		const q = `SELECT ` + definitionColumns + ` FROM config_definitions d
			WHERE d.id = $1 AND d.brand_id = $2 AND d.company = $3
			FOR UPDATE`
		def, err := scanDefinition(tx.QueryRow(ctx, q, definitionID, brandID, company))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperr.NotFound("config not found")
			}
			return nil, fmt.Errorf("locking definition %s: %w", definitionID, err)
		}
		return def, nil
	})
}

// lockDefinition returns the definition a new version belongs to, with its
// row locked for the rest of tx.
type lockDefinition func(ctx context.Context, tx pgx.Tx) (*model.ConfigDefinition, error)

func (s *versionStore) createVersion(ctx context.Context, label string, p model.ConfigPayload, lock lockDefinition) (*model.ConfigVersion, error) {
	formData, err := encodeDocument(p.FormData)
	if err != nil {
		return nil, apperr.Validation("form data is not serialisable")
	}

	for attempt := 1; attempt <= maxVersionAttempts; attempt++ {
		v, err := s.createVersionTx(ctx, formData, p, lock)
		if err == nil {
			return v, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		s.logger.Warn().Err(err).Str("config", label).Int("attempt", attempt).
			Msg("Version number collision, retrying")
	}
	return nil, fmt.Errorf("create version of %q: gave up after %d attempts", label, maxVersionAttempts)
}

// createVersionTx holds the definition row lock so concurrent writers to the
// same definition compute MAX(version) one at a time.
func (s *versionStore) createVersionTx(ctx context.Context, formData string, p model.ConfigPayload, lock lockDefinition) (*model.ConfigVersion, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("starting transaction for version create: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	def, err := lock(ctx, tx)
	if err != nil {
		return nil, err
	}

	var next int
	const maxQ = `SELECT COALESCE(MAX(version), 0) + 1 FROM config_versions WHERE definition_id = $1`
	if err := tx.QueryRow(ctx, maxQ, def.ID).Scan(&next); err != nil {
		return nil, fmt.Errorf("reading max version of %s: %w", def.ID, err)
	}

	v := &model.ConfigVersion{
		BrandID:      def.BrandID,
		DefinitionID: def.ID,
		Name:         def.Name,
		Company:      def.Company,
		Version:      next,
		FormData:     p.FormData,
		Layout:       p.Layout,
		Schema:       p.Schema,
		UISchema:     p.UISchema,
		Description:  p.Description,
		CreatedBy:    p.CreatedBy,
	}
	if v.FormData == nil {
		v.FormData = model.Document{}
	}
	const insertQ = `
		INSERT INTO config_versions
			(brand_id, definition_id, version, form_data, layout, schema, ui_schema, description, created_by)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7::jsonb, $8, $9)
		RETURNING id::text, created_at`
	if err := tx.QueryRow(ctx, insertQ, def.BrandID, def.ID, next, formData,
		nullableJSON(p.Layout), nullableJSON(p.Schema), nullableJSON(p.UISchema),
		p.Description, p.CreatedBy).Scan(&v.ID, &v.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting version %d of %s: %w", next, def.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing version %d of %s: %w", next, def.ID, err)
	}
	return v, nil
}

func (s *versionStore) GetVersion(ctx context.Context, brandID, company, versionID string) (*model.ConfigVersion, error) {
	if !validID(brandID) || !validID(versionID) {
		return nil, apperr.NotFound("config not found")
	}
	q := versionSelect + ` WHERE v.id = $1 AND v.brand_id = $2 AND d.company = $3`
	v, err := scanVersion(s.pool.QueryRow(ctx, q, versionID, brandID, company))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("config not found")
		}
		return nil, fmt.Errorf("fetch version %s: %w", versionID, err)
	}
	return v, nil
}

func (s *versionStore) GetVersionByNumber(ctx context.Context, definitionID string, version int) (*model.ConfigVersion, error) {
	if !validID(definitionID) {
		return nil, apperr.NotFound("config not found")
	}
	q := versionSelect + ` WHERE v.definition_id = $1 AND v.version = $2`
	v, err := scanVersion(s.pool.QueryRow(ctx, q, definitionID, version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("version %d not found", version)
		}
		return nil, fmt.Errorf("fetch version %d of %s: %w", version, definitionID, err)
	}
	return v, nil
}

func (s *versionStore) LatestVersion(ctx context.Context, definitionID string) (*model.ConfigVersion, error) {
	if !validID(definitionID) {
		return nil, apperr.NotFound("config not found")
	}
	q := versionSelect + ` WHERE v.definition_id = $1 ORDER BY v.version DESC LIMIT 1`
	v, err := scanVersion(s.pool.QueryRow(ctx, q, definitionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("config has no versions")
		}
		return nil, fmt.Errorf("fetch latest version of %s: %w", definitionID, err)
	}
	return v, nil
}

func (s *versionStore) ListVersions(ctx context.Context, brandID, nameOrID, company string) ([]model.ConfigVersion, error) {
	def, err := s.FindDefinition(ctx, brandID, nameOrID, company)
	if err != nil {
		return nil, err
	}
	q := versionSelect + ` WHERE v.definition_id = $1 ORDER BY v.version DESC`
	rows, err := s.pool.Query(ctx, q, def.ID)
	if err != nil {
		return nil, fmt.Errorf("list versions of %s: %w", def.ID, err)
	}
	defer rows.Close()

	out := []model.ConfigVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *versionStore) UpdateName(ctx context.Context, definitionID, newName, brandID, company string) (*model.ConfigDefinition, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, apperr.Validation("config name is required")
	}
	if !validID(definitionID) || !validID(brandID) {
		return nil, apperr.NotFound("config not found")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("starting transaction for rename: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const lockQ = `SELECT ` + definitionColumns + ` FROM config_definitions d
		WHERE d.id = $1 AND d.brand_id = $2 AND d.company = $3 FOR UPDATE`
	def, err := scanDefinition(tx.QueryRow(ctx, lockQ, definitionID, brandID, company))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("config not found")
		}
		return nil, fmt.Errorf("fetch definition %s: %w", definitionID, err)
	}
	if def.Name == newName {
		return def, nil
	}

	var taken bool
	const takenQ = `SELECT EXISTS (SELECT 1 FROM config_definitions
		WHERE brand_id = $1 AND company = $2 AND name = $3 AND id <> $4)`
	if err := tx.QueryRow(ctx, takenQ, brandID, company, newName, definitionID).Scan(&taken); err != nil {
		return nil, fmt.Errorf("checking name %q: %w", newName, err)
	}
	if taken {
		return nil, apperr.Conflict("a config named %q already exists", newName)
	}

	const updateQ = `UPDATE config_definitions d SET name = $1, updated_at = NOW()
		WHERE d.id = $2 RETURNING ` + definitionColumns
	updated, err := scanDefinition(tx.QueryRow(ctx, updateQ, newName, definitionID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflict("a config named %q already exists", newName)
		}
		return nil, fmt.Errorf("rename definition %s: %w", definitionID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing rename of %s: %w", definitionID, err)
	}
	return updated, nil
}

func (s *versionStore) SetActive(ctx context.Context, brandID, name string, version int, company string) (*model.ActiveVersionPointer, error) {
	if version <= 0 {
		return nil, apperr.Validation("version must be a positive integer")
	}
	def, err := s.FindDefinition(ctx, brandID, name, company)
	if err != nil {
		return nil, err
	}
	const q = `
		INSERT INTO active_config_versions (brand_id, definition_id, company, active_version)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (SELECT 1 FROM config_versions WHERE definition_id = $2 AND version = $4)
		ON CONFLICT (brand_id, definition_id, company)
		DO UPDATE SET active_version = EXCLUDED.active_version, updated_at = NOW()
		RETURNING id::text, active_version, updated_at`
	p := &model.ActiveVersionPointer{
		BrandID:        def.BrandID,
		DefinitionID:   def.ID,
		DefinitionName: def.Name,
		Company:        def.Company,
	}
	err = s.pool.QueryRow(ctx, q, def.BrandID, def.ID, def.Company, version).Scan(&p.ID, &p.ActiveVersion, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("version %d of %q not found", version, def.Name)
		}
		return nil, fmt.Errorf("set active version of %s: %w", def.ID, err)
	}
	return p, nil
}

func (s *versionStore) GetActivePointer(ctx context.Context, definitionID string) (*model.ActiveVersionPointer, error) {
	if !validID(definitionID) {
		return nil, apperr.NotFound("no active version")
	}
	const q = `
		SELECT a.id::text, a.brand_id::text, a.definition_id::text, d.name, a.company, a.active_version, a.updated_at
		FROM active_config_versions a
		JOIN config_definitions d ON d.id = a.definition_id AND d.company = a.company
		WHERE a.definition_id = $1`
	var p model.ActiveVersionPointer
	err := s.pool.QueryRow(ctx, q, definitionID).Scan(&p.ID, &p.BrandID, &p.DefinitionID,
		&p.DefinitionName, &p.Company, &p.ActiveVersion, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("no active version")
		}
		return nil, fmt.Errorf("fetch active pointer of %s: %w", definitionID, err)
	}
	return &p, nil
}

func (s *versionStore) Remove(ctx context.Context, definitionID, brandID, company string) error {
	if !validID(definitionID) || !validID(brandID) {
		return apperr.NotFound("config not found")
	}
	const q = `DELETE FROM config_definitions WHERE id = $1 AND brand_id = $2 AND company = $3`
	tag, err := s.pool.Exec(ctx, q, definitionID, brandID, company)
	if err != nil {
		return fmt.Errorf("delete definition %s: %w", definitionID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("config not found")
	}
	return nil
}
