package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"brandconfig/internal/apperr"
	"brandconfig/internal/config"
	"brandconfig/internal/model"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeService turns Stripe webhook events into tier changes.
type StripeService struct {
	webhookSecret string
	priceTiers    map[string]model.Tier
	subSvc        SubscriptionService
	logger        zerolog.Logger
}

// NewStripeService returns service with a scoped logger. Price ids from cfg
// decide which tier a subscription grants.
func NewStripeService(cfg *config.Config, subSvc SubscriptionService, logger zerolog.Logger) *StripeService {
	prices := map[string]model.Tier{}
	for id, t := range map[string]model.Tier{
		cfg.StripePriceStarter: model.TierStarter,
		cfg.StripePricePro:     model.TierPro,
		cfg.StripePriceCustom:  model.TierCustom,
	} {
		if id != "" {
			prices[id] = t
		}
	}
	return &StripeService{
		webhookSecret: cfg.StripeWebhookSecret,
		priceTiers:    prices,
		subSvc:        subSvc,
		logger:        logger.With().Str("service", "StripeService").Logger(),
	}
}

// stripePortal creates Stripe Customer Portal sessions.
type stripePortal struct {
	returnURL string
}

// NewStripePortal initializes the Stripe key and returns a BillingPortal.
func NewStripePortal(cfg *config.Config) BillingPortal {
	stripe.Key = cfg.StripeSecretKey
	return &stripePortal{returnURL: cfg.StripePortalReturnURL}
}

func (p *stripePortal) CreatePortalSession(_ context.Context, customerID string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(p.returnURL),
	}
	sess, err := billingsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// userIDFor resolves the user from subscription metadata or, failing that,
// from the stored billing customer.
func (s *StripeService) userIDFor(ctx context.Context, metadata map[string]string, customer *stripe.Customer) (string, error) {
	if userID := metadata["user_id"]; userID != "" {
		return userID, nil
	}
	if customer == nil || customer.ID == "" {
		return "", apperr.Validation("cannot determine user: missing metadata and customer id")
	}
	s.logger.Warn().Str("stripe_customer_id", customer.ID).Msg("Missing user_id metadata; looking up user by customer ID")
	return s.subSvc.FindUserByBillingCustomer(ctx, customer.ID)
}

func mapStripeStatus(st stripe.SubscriptionStatus) model.SubscriptionStatus {
	switch st {
	case stripe.SubscriptionStatusActive:
		return model.StatusActive
	case stripe.SubscriptionStatusTrialing:
		return model.StatusTrialing
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return model.StatusCancelled
	}
	return model.StatusPastDue
}

// HandleEvent verifies and applies one webhook delivery. Unknown event types
// and unknown prices are acknowledged and ignored.
func (s *StripeService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		return apperr.Validation("signature verification failed")
	}
	s.logger.Info().Str("event_type", string(event.Type)).Str("event_id", event.ID).Msg("Stripe webhook received")

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var ss stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
			return apperr.Validation("invalid subscription data")
		}
		if ss.Items == nil || len(ss.Items.Data) == 0 || ss.Items.Data[0].Price == nil {
			s.logger.Error().Str("subscription_id", ss.ID).Msg("Subscription has no priced items")
			return apperr.Validation("subscription has no items")
		}
		item := ss.Items.Data[0]
		t, ok := s.priceTiers[item.Price.ID]
		if !ok {
			s.logger.Warn().Str("price_id", item.Price.ID).Msg("Unknown price, ignoring subscription event")
			return nil
		}
		userID, err := s.userIDFor(ctx, ss.Metadata, ss.Customer)
		if err != nil {
			return err
		}
		status := mapStripeStatus(ss.Status)
		if ss.CancelAtPeriodEnd && status == model.StatusActive {
			status = model.StatusCancelled
		}
		ev := model.TierChangeEvent{
			UserID:                userID,
			Tier:                  t,
			Status:                status,
			BillingSubscriptionID: ss.ID,
		}
		if ss.Customer != nil {
			ev.BillingCustomerID = ss.Customer.ID
		}
		if item.CurrentPeriodEnd > 0 {
			end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			ev.PeriodEnd = &end
		}
		if _, err := s.subSvc.ApplyTierChange(ctx, ev); err != nil {
			return err
		}
	case "customer.subscription.deleted":
		var ss stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
			return apperr.Validation("invalid subscription data")
		}
		userID, err := s.userIDFor(ctx, ss.Metadata, ss.Customer)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				s.logger.Warn().Str("subscription_id", ss.ID).Msg("Deleted subscription has no local user")
				return nil
			}
			return err
		}
		if err := s.subSvc.Cancel(ctx, userID); err != nil {
			return err
		}
	default:
		s.logger.Debug().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
	}
	return nil
}
