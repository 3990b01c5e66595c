package service

import (
	"context"
	"errors"
	"testing"

	"brandconfig/internal/apperr"
	"brandconfig/internal/model"
	"brandconfig/internal/repository/memstore"

	"github.com/rs/zerolog"
)

type fakePortal struct {
	url      string
	err      error
	customer string
}

func (f *fakePortal) CreatePortalSession(_ context.Context, customerID string) (string, error) {
	f.customer = customerID
	return f.url, f.err
}

func TestSubscriptionDefaultsToFree(t *testing.T) {
	svc := NewSubscriptionService(memstore.New().Subscriptions(), nil, zerolog.Nop())
	sub, err := svc.Get(context.Background(), "auth0|new")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sub.Tier != model.TierFree || sub.Status != model.StatusActive || sub.MaxBrands != 1 || sub.MaxConfigsPerBrand != 1 {
		t.Fatalf("unexpected default subscription: %+v", sub)
	}
	if _, err := svc.Get(context.Background(), ""); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for empty user, got %v", err)
	}
}

func TestApplyTierChangeValidates(t *testing.T) {
	svc := NewSubscriptionService(memstore.New().Subscriptions(), nil, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.ApplyTierChange(ctx, model.TierChangeEvent{UserID: "u", Tier: "platinum"})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for unknown tier, got %v", err)
	}
	_, err = svc.ApplyTierChange(ctx, model.TierChangeEvent{UserID: "u", Tier: model.TierPro, Status: "frozen"})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}

	sub, err := svc.ApplyTierChange(ctx, model.TierChangeEvent{UserID: "u", Tier: model.TierCustom})
	if err != nil {
		t.Fatalf("ApplyTierChange: %v", err)
	}
	if sub.Status != model.StatusActive || sub.MaxBrands != -1 {
		t.Fatalf("unexpected custom subscription: %+v", sub)
	}
}

func TestPortalURL(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	unconfigured := NewSubscriptionService(store.Subscriptions(), nil, zerolog.Nop())
	if _, err := unconfigured.PortalURL(ctx, "u"); apperr.KindOf(err) != apperr.KindUpstreamUnavailable {
		t.Fatalf("expected upstream error without a portal, got %v", err)
	}

	portal := &fakePortal{url: "https://billing.example.com/session"}
	svc := NewSubscriptionService(store.Subscriptions(), portal, zerolog.Nop())
	if _, err := svc.PortalURL(ctx, "u"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found without a customer, got %v", err)
	}

	if _, err := svc.ApplyTierChange(ctx, model.TierChangeEvent{UserID: "u", Tier: model.TierPro, BillingCustomerID: "cus_9"}); err != nil {
		t.Fatalf("ApplyTierChange: %v", err)
	}
	url, err := svc.PortalURL(ctx, "u")
	if err != nil {
		t.Fatalf("PortalURL: %v", err)
	}
	if url != portal.url || portal.customer != "cus_9" {
		t.Fatalf("PortalURL = %q for customer %q", url, portal.customer)
	}

	portal.err = errors.New("stripe: 500")
	if _, err := svc.PortalURL(ctx, "u"); apperr.KindOf(err) != apperr.KindUpstreamUnavailable {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
