// Package tier is the fixed subscription policy table: limits and feature
// entitlements per tier. It has no dependencies and never touches storage.
package tier

import "brandconfig/internal/model"

// Unlimited is the limit value meaning "no cap".
const Unlimited = -1

// Limits caps entity counts for a tier.
type Limits struct {
	MaxBrands          int `json:"maxBrands"`
	MaxConfigsPerBrand int `json:"maxConfigsPerBrand"`
}

type Feature string

const (
	FeatureBasicConfig      Feature = "BASIC_CONFIG"
	FeatureSDKAccess        Feature = "SDK_ACCESS"
	FeatureMultiBrand       Feature = "MULTI_BRAND"
	FeatureMultiConfig      Feature = "MULTI_CONFIG"
	FeatureConfigVersioning Feature = "CONFIG_VERSIONING"
	FeatureRollback         Feature = "ROLLBACK"
	FeatureWebhooks         Feature = "WEBHOOKS"
	FeatureTargeting        Feature = "TARGETING"
	FeatureAnalytics        Feature = "ANALYTICS"
	FeatureCollaboration    Feature = "COLLABORATION"
	FeaturePrioritySupport  Feature = "PRIORITY_SUPPORT"
)

var (
	baseline = []Feature{FeatureBasicConfig, FeatureSDKAccess}
	starter  = append(append([]Feature{}, baseline...), FeatureMultiBrand, FeatureMultiConfig)
	pro      = append(append([]Feature{}, starter...),
		FeatureConfigVersioning,
		FeatureRollback,
		FeatureWebhooks,
		FeatureTargeting,
		FeatureAnalytics,
		FeatureCollaboration,
		FeaturePrioritySupport,
	)
)

// All lists every known feature.
func All() []Feature { return append([]Feature{}, pro...) }

var limits = map[model.Tier]Limits{
	model.TierFree:    {MaxBrands: 1, MaxConfigsPerBrand: 1},
	model.TierStarter: {MaxBrands: 5, MaxConfigsPerBrand: 10},
	model.TierPro:     {MaxBrands: 20, MaxConfigsPerBrand: 20},
	model.TierCustom:  {MaxBrands: Unlimited, MaxConfigsPerBrand: Unlimited},
}

// LimitsFor returns the caps for t. Unknown tiers get free limits.
func LimitsFor(t model.Tier) Limits {
	if l, ok := limits[t]; ok {
		return l
	}
	return limits[model.TierFree]
}

// FeaturesFor returns the cumulative feature set for t.
func FeaturesFor(t model.Tier) []Feature {
	switch t {
	case model.TierStarter:
		return append([]Feature{}, starter...)
	case model.TierPro:
		return append([]Feature{}, pro...)
	case model.TierCustom:
		return All()
	}
	return append([]Feature{}, baseline...)
}

// Granted returns the features actually usable given the subscription
// status. A lapsed plan keeps its stored tier but only the baseline features.
func Granted(t model.Tier, status model.SubscriptionStatus) []Feature {
	if status != model.StatusActive && status != model.StatusTrialing {
		return append([]Feature{}, baseline...)
	}
	return FeaturesFor(t)
}

// Has reports whether f is in set.
func Has(set []Feature, f Feature) bool {
	for _, x := range set {
		if x == f {
			return true
		}
	}
	return false
}

// IsUnlimited reports whether a limit value means no cap.
func IsUnlimited(limit int) bool { return limit < 0 }

// Reached reports whether current usage leaves no room for one more entity.
func Reached(current, limit int) bool {
	return !IsUnlimited(limit) && current >= limit
}

// Exceeded reports whether current usage is over the limit.
func Exceeded(current, limit int) bool {
	return !IsUnlimited(limit) && current > limit
}
