package service

import (
	"context"
	"fmt"

	"brandconfig/internal/apperr"
	"brandconfig/internal/metrics"
	"brandconfig/internal/model"
	"brandconfig/internal/repository"
	"brandconfig/internal/tier"

	"github.com/rs/zerolog"
)

const (
	ViolationBrands  = "brands"
	ViolationConfigs = "configs"
)

type Violation struct {
	Type      string `json:"type"`
	BrandID   string `json:"brandId,omitempty"`
	BrandName string `json:"brandName,omitempty"`
	Current   int    `json:"current"`
	Limit     int    `json:"limit"`
	Message   string `json:"message"`
}

type ViolationReport struct {
	HasViolations bool           `json:"hasViolations"`
	Violations    []Violation    `json:"violations"`
	CurrentTier   model.Tier     `json:"currentTier"`
	Limits        tier.Limits    `json:"limits"`
	Features      []tier.Feature `json:"features"`
}

// LimitEnforcer gates mutations on the caller's subscription. Checks read
// then decide; two concurrent creates at the boundary can both pass.
type LimitEnforcer interface {
	CheckBrandLimit(ctx context.Context, userID string) error
	CheckConfigLimit(ctx context.Context, userID, brandID, company string) error
	CheckViolations(ctx context.Context, userID string) (*ViolationReport, error)
	RequireFeature(ctx context.Context, userID string, f tier.Feature) error
	// Granted returns the features usable right now.
	Granted(ctx context.Context, userID string) ([]tier.Feature, error)
}

type limitEnforcer struct {
	subs     SubscriptionService
	brands   repository.BrandRepository
	versions repository.VersionStore
	logger   zerolog.Logger
}

func NewLimitEnforcer(subs SubscriptionService, brands repository.BrandRepository, versions repository.VersionStore, logger zerolog.Logger) LimitEnforcer {
	return &limitEnforcer{
		subs:     subs,
		brands:   brands,
		versions: versions,
		logger:   logger.With().Str("service", "LimitEnforcer").Logger(),
	}
}

func (e *limitEnforcer) deny(check, userID string, err error) error {
	metrics.LimitDenialsTotal.WithLabelValues(check).Inc()
	e.logger.Info().Str("user_id", userID).Str("check", check).Msg(apperr.Message(err))
	return err
}

func (e *limitEnforcer) CheckBrandLimit(ctx context.Context, userID string) error {
	sub, err := e.subs.Get(ctx, userID)
	if err != nil {
		return err
	}
	limits := tier.LimitsFor(sub.Tier)
	if tier.IsUnlimited(limits.MaxBrands) {
		return nil
	}
	count, err := e.brands.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if tier.Reached(count, limits.MaxBrands) {
		return e.deny("brands", userID, apperr.PermissionDenied(
			"brand limit reached: the %s plan allows %d brands", sub.Tier, limits.MaxBrands))
	}
	return nil
}

func (e *limitEnforcer) CheckConfigLimit(ctx context.Context, userID, brandID, company string) error {
	sub, err := e.subs.Get(ctx, userID)
	if err != nil {
		return err
	}
	limits := tier.LimitsFor(sub.Tier)
	if tier.IsUnlimited(limits.MaxConfigsPerBrand) {
		return nil
	}
	count, err := e.versions.CountDefinitions(ctx, brandID, company)
	if err != nil {
		return err
	}
	if tier.Reached(count, limits.MaxConfigsPerBrand) {
		return e.deny("configs", userID, apperr.PermissionDenied(
			"config limit reached: the %s plan allows %d configs per brand", sub.Tier, limits.MaxConfigsPerBrand))
	}
	return nil
}

func (e *limitEnforcer) CheckViolations(ctx context.Context, userID string) (*ViolationReport, error) {
	sub, err := e.subs.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	limits := tier.LimitsFor(sub.Tier)
	report := &ViolationReport{
		Violations:  []Violation{},
		CurrentTier: sub.Tier,
		Limits:      limits,
		Features:    tier.Granted(sub.Tier, sub.Status),
	}

	brands, err := e.brands.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tier.Exceeded(len(brands), limits.MaxBrands) {
		report.Violations = append(report.Violations, Violation{
			Type:    ViolationBrands,
			Current: len(brands),
			Limit:   limits.MaxBrands,
			Message: fmt.Sprintf("You have %d brands but the %s plan allows %d", len(brands), sub.Tier, limits.MaxBrands),
		})
	}
	for _, b := range brands {
		n, err := e.versions.CountDefinitions(ctx, b.ID, b.Company)
		if err != nil {
			return nil, err
		}
		if tier.Exceeded(n, limits.MaxConfigsPerBrand) {
			report.Violations = append(report.Violations, Violation{
				Type:      ViolationConfigs,
				BrandID:   b.ID,
				BrandName: b.Name,
				Current:   n,
				Limit:     limits.MaxConfigsPerBrand,
				Message:   fmt.Sprintf("Brand %q has %d configs but the %s plan allows %d", b.Name, n, sub.Tier, limits.MaxConfigsPerBrand),
			})
		}
	}
	report.HasViolations = len(report.Violations) > 0
	return report, nil
}

func (e *limitEnforcer) Granted(ctx context.Context, userID string) ([]tier.Feature, error) {
	sub, err := e.subs.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return tier.Granted(sub.Tier, sub.Status), nil
}

func (e *limitEnforcer) RequireFeature(ctx context.Context, userID string, f tier.Feature) error {
	granted, err := e.Granted(ctx, userID)
	if err != nil {
		return err
	}
	if !tier.Has(granted, f) {
		return e.deny("feature", userID, apperr.PermissionDenied("your plan does not include %s", f))
	}
	return nil
}
