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

// SubscriptionRepository defines methods for accessing subscription data.
type SubscriptionRepository interface {
	// Get returns the user's subscription regardless of status.
	Get(ctx context.Context, userID string) (*model.Subscription, error)
	// GetOrCreate inserts def if the user has no subscription and returns the
	// stored row either way.
	GetOrCreate(ctx context.Context, def model.Subscription) (*model.Subscription, error)
	FindByBillingCustomer(ctx context.Context, customerID string) (*model.Subscription, error)
	// Upsert writes tier, status, limits, period end and billing references.
	Upsert(ctx context.Context, s *model.Subscription) error
	// DowngradeToFree reverts the user to the free tier and clears billing references.
	DowngradeToFree(ctx context.Context, userID string, maxBrands, maxConfigsPerBrand int) error
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `user_id, tier, status, max_brands, max_configs_per_brand,
	billing_customer_id, billing_subscription_id, current_period_end, created_at, updated_at`

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	err := row.Scan(
		&s.UserID,
		&s.Tier,
		&s.Status,
		&s.MaxBrands,
		&s.MaxConfigsPerBrand,
		&s.BillingCustomerID,
		&s.BillingSubscriptionID,
		&s.CurrentPeriodEnd,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *subscriptionRepo) Get(ctx context.Context, userID string) (*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`
	s, err := scanSubscription(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("no subscription for user")
		}
		return nil, fmt.Errorf("fetch subscription for user %s: %w", userID, err)
	}
	return s, nil
}

func (r *subscriptionRepo) GetOrCreate(ctx context.Context, def model.Subscription) (*model.Subscription, error) {
	const q = `
		INSERT INTO subscriptions (user_id, tier, status, max_brands, max_configs_per_brand)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, def.UserID, def.Tier, def.Status, def.MaxBrands, def.MaxConfigsPerBrand); err != nil {
		return nil, fmt.Errorf("creating default subscription for user %s: %w", def.UserID, err)
	}
	return r.Get(ctx, def.UserID)
}

func (r *subscriptionRepo) FindByBillingCustomer(ctx context.Context, customerID string) (*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE billing_customer_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`
	s, err := scanSubscription(r.pool.QueryRow(ctx, q, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("no subscription for billing customer")
		}
		return nil, fmt.Errorf("fetch subscription for customer %s: %w", customerID, err)
	}
	return s, nil
}

func (r *subscriptionRepo) Upsert(ctx context.Context, s *model.Subscription) error {
	const q = `
		INSERT INTO subscriptions (user_id, tier, status, max_brands, max_configs_per_brand,
			billing_customer_id, billing_subscription_id, current_period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE
		SET tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			max_brands = EXCLUDED.max_brands,
			max_configs_per_brand = EXCLUDED.max_configs_per_brand,
			billing_customer_id = COALESCE(EXCLUDED.billing_customer_id, subscriptions.billing_customer_id),
			billing_subscription_id = COALESCE(EXCLUDED.billing_subscription_id, subscriptions.billing_subscription_id),
			current_period_end = EXCLUDED.current_period_end,
			updated_at = NOW()
		RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q,
		s.UserID, s.Tier, s.Status, s.MaxBrands, s.MaxConfigsPerBrand,
		s.BillingCustomerID, s.BillingSubscriptionID, s.CurrentPeriodEnd,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert subscription for user %s: %w", s.UserID, err)
	}
	return nil
}

func (r *subscriptionRepo) DowngradeToFree(ctx context.Context, userID string, maxBrands, maxConfigsPerBrand int) error {
	const q = `
		UPDATE subscriptions
		SET
			tier = 'free',
			status = 'active',
			max_brands = $2,
			max_configs_per_brand = $3,
			billing_customer_id = NULL,
			billing_subscription_id = NULL,
			current_period_end = NULL,
			updated_at = NOW()
		WHERE
			user_id = $1`
	tag, err := r.pool.Exec(ctx, q, userID, maxBrands, maxConfigsPerBrand)
	if err != nil {
		return fmt.Errorf("downgrade user %s to free tier: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("no subscription for user")
	}
	return nil
}
