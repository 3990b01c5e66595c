package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"brandconfig/internal/apperr"
	"brandconfig/internal/model"
)

// APIKeyRepository stores machine credentials for the SDK surface.
type APIKeyRepository interface {
	Create(ctx context.Context, k *model.APIKey) error
	FindByHash(ctx context.Context, keyHash string) (*model.APIKey, error)
	// PurgeExpired deletes keys that are revoked or past their expiry.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// HashAPIKey returns the stored form of a raw key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

type apiKeyRepo struct {
	db *sql.DB
}

func NewAPIKeyRepo(db *sql.DB) APIKeyRepository {
	return &apiKeyRepo{db: db}
}

func (r *apiKeyRepo) Create(ctx context.Context, k *model.APIKey) error {
	query := `INSERT INTO api_keys (client_id, company, key_hash, scopes, expires_at)
              VALUES ($1, $2, $3, string_to_array($4, ' '), $5)
              RETURNING id::text, created_at`
	err := r.db.QueryRowContext(ctx, query, k.ClientID, k.Company, k.KeyHash, strings.Join(k.Scopes, " "), k.ExpiresAt).
		Scan(&k.ID, &k.CreatedAt)
	if err != nil {
		return fmt.Errorf("create api key for %s: %w", k.ClientID, err)
	}
	return nil
}

func (r *apiKeyRepo) FindByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	var (
		k      model.APIKey
		scopes string
	)
	query := `SELECT id::text, client_id, company, key_hash, array_to_string(scopes, ' '), expires_at, revoked_at, created_at
              FROM api_keys WHERE key_hash = $1`
	err := r.db.QueryRowContext(ctx, query, keyHash).
		Scan(&k.ID, &k.ClientID, &k.Company, &k.KeyHash, &scopes, &k.ExpiresAt, &k.RevokedAt, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("api key not found")
		}
		return nil, fmt.Errorf("fetch api key: %w", err)
	}
	k.Scopes = strings.Fields(scopes)
	return &k, nil
}

func (r *apiKeyRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM api_keys WHERE revoked_at IS NOT NULL OR (expires_at IS NOT NULL AND expires_at < $1)`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("purge api keys: %w", err)
	}
	return res.RowsAffected()
}
