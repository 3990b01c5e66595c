package service

import (
	"context"

	"brandconfig/internal/apperr"
	"brandconfig/internal/model"
	"brandconfig/internal/repository"
	"brandconfig/internal/tier"

	"github.com/rs/zerolog"
)

// BillingPortal returns a customer-facing management URL from the billing provider.
type BillingPortal interface {
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
}

// SubscriptionService defines business logic methods for subscriptions.
type SubscriptionService interface {
	// Get returns the user's subscription, creating a free one on first use.
	Get(ctx context.Context, userID string) (*model.Subscription, error)
	ApplyTierChange(ctx context.Context, ev model.TierChangeEvent) (*model.Subscription, error)
	// Cancel reverts the user to the free tier and drops billing references.
	Cancel(ctx context.Context, userID string) error
	FindUserByBillingCustomer(ctx context.Context, customerID string) (string, error)
	PortalURL(ctx context.Context, userID string) (string, error)
}

type subscriptionService struct {
	repo   repository.SubscriptionRepository
	portal BillingPortal
	logger zerolog.Logger
}

// NewSubscriptionService creates a new SubscriptionService with a scoped logger.
// portal may be nil when billing is not configured.
func NewSubscriptionService(repo repository.SubscriptionRepository, portal BillingPortal, logger zerolog.Logger) SubscriptionService {
	return &subscriptionService{
		repo:   repo,
		portal: portal,
		logger: logger.With().Str("service", "SubscriptionService").Logger(),
	}
}

func defaultSubscription(userID string) model.Subscription {
	limits := tier.LimitsFor(model.TierFree)
	return model.Subscription{
		UserID:             userID,
		Tier:               model.TierFree,
		Status:             model.StatusActive,
		MaxBrands:          limits.MaxBrands,
		MaxConfigsPerBrand: limits.MaxConfigsPerBrand,
	}
}

func (s *subscriptionService) Get(ctx context.Context, userID string) (*model.Subscription, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	sub, err := s.repo.GetOrCreate(ctx, defaultSubscription(userID))
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch subscription")
		return nil, err
	}
	return sub, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *subscriptionService) ApplyTierChange(ctx context.Context, ev model.TierChangeEvent) (*model.Subscription, error) {
	if ev.UserID == "" {
		return nil, apperr.Validation("user id is required")
	}
	if !ev.Tier.Valid() {
		return nil, apperr.Validation("unknown tier %q", ev.Tier)
	}
	switch ev.Status {
	case model.StatusActive, model.StatusCancelled, model.StatusPastDue, model.StatusTrialing:
	case "":
		ev.Status = model.StatusActive
	default:
		return nil, apperr.Validation("unknown subscription status %q", ev.Status)
	}

	limits := tier.LimitsFor(ev.Tier)
	sub := &model.Subscription{
		UserID:                ev.UserID,
		Tier:                  ev.Tier,
		Status:                ev.Status,
		MaxBrands:             limits.MaxBrands,
		MaxConfigsPerBrand:    limits.MaxConfigsPerBrand,
		BillingCustomerID:     optional(ev.BillingCustomerID),
		BillingSubscriptionID: optional(ev.BillingSubscriptionID),
		CurrentPeriodEnd:      ev.PeriodEnd,
	}
	if err := s.repo.Upsert(ctx, sub); err != nil {
		s.logger.Error().Err(err).Str("user_id", ev.UserID).Str("tier", string(ev.Tier)).Msg("Failed to apply tier change")
		return nil, err
	}
	s.logger.Info().Str("user_id", ev.UserID).Str("tier", string(ev.Tier)).Str("status", string(ev.Status)).Msg("Subscription updated")
	return s.repo.Get(ctx, ev.UserID)
}

func (s *subscriptionService) Cancel(ctx context.Context, userID string) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}
	limits := tier.LimitsFor(model.TierFree)
	if err := s.repo.DowngradeToFree(ctx, userID, limits.MaxBrands, limits.MaxConfigsPerBrand); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to downgrade user to free tier")
		return err
	}
	s.logger.Info().Str("user_id", userID).Msg("Subscription cancelled, reverted to free")
	return nil
}

func (s *subscriptionService) FindUserByBillingCustomer(ctx context.Context, customerID string) (string, error) {
	sub, err := s.repo.FindByBillingCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	return sub.UserID, nil
}

func (s *subscriptionService) PortalURL(ctx context.Context, userID string) (string, error) {
	if s.portal == nil {
		return "", apperr.Upstream(nil, "billing is not configured")
	}
	sub, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub.BillingCustomerID == nil || *sub.BillingCustomerID == "" {
		return "", apperr.NotFound("no billing account for this user")
	}
	url, err := s.portal.CreatePortalSession(ctx, *sub.BillingCustomerID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create billing portal session")
		return "", apperr.Upstream(err, "billing provider unavailable")
	}
	return url, nil
}
