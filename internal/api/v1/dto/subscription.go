package dto

import (
	"time"

	"brandconfig/internal/model"
	"brandconfig/internal/tier"
)

// SubscriptionResponseDTO is the caller's plan with its effective limits and
// the features usable right now.
type SubscriptionResponseDTO struct {
	Tier             model.Tier               `json:"tier"`
	Status           model.SubscriptionStatus `json:"status"`
	Limits           tier.Limits              `json:"limits"`
	Features         []tier.Feature           `json:"features"`
	CurrentPeriodEnd *time.Time               `json:"currentPeriodEnd,omitempty"`
}

// PortalResponseDTO carries the billing portal URL.
type PortalResponseDTO struct {
	URL string `json:"url"`
}
