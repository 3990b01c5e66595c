package model

import "time"

type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierCustom  Tier = "custom"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierStarter, TierPro, TierCustom:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusTrialing  SubscriptionStatus = "trialing"
)

// Subscription is one per user. MaxBrands and MaxConfigsPerBrand mirror the
// tier policy at the time of the last write.
type Subscription struct {
	UserID                string             `db:"user_id" json:"userId"`
	Tier                  Tier               `db:"tier" json:"tier"`
	Status                SubscriptionStatus `db:"status" json:"status"`
	MaxBrands             int                `db:"max_brands" json:"maxBrands"`
	MaxConfigsPerBrand    int                `db:"max_configs_per_brand" json:"maxConfigsPerBrand"`
	BillingCustomerID     *string            `db:"billing_customer_id" json:"-"`
	BillingSubscriptionID *string            `db:"billing_subscription_id" json:"-"`
	CurrentPeriodEnd      *time.Time         `db:"current_period_end" json:"currentPeriodEnd,omitempty"`
	CreatedAt             time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time          `db:"updated_at" json:"updatedAt"`
}

// TierChangeEvent is what the billing provider tells us, reduced to the
// fields the core needs.
type TierChangeEvent struct {
	UserID                string
	Tier                  Tier
	Status                SubscriptionStatus
	PeriodEnd             *time.Time
	BillingCustomerID     string
	BillingSubscriptionID string
}
