// Package queryengine implements tiered intent classification:
// priority rules, then general keyword rules, then a pre-trained
// statistical model, then unknown.
package queryengine

// Intent represents the classified purpose of a user utterance.
// The taxonomy is closed: the router's dispatch switches over these
// constants with an explicit unknown arm.
type Intent string

const (
	IntentGreeting        Intent = "greeting"
	IntentIdentityQuery   Intent = "identity_query"
	IntentCatalogOverview Intent = "catalog_overview"
	IntentPriceOrBuy      Intent = "price_or_buy"
	IntentAvailability    Intent = "availability_inquiry"
	IntentRecommendation  Intent = "recommendation_request"
	IntentPolicyInquiry   Intent = "policy_inquiry"
	IntentRefundRequest   Intent = "refund_request"
	IntentUnknown         Intent = "unknown"
)

// Tier identifies which classification stage produced a result.
type Tier string

const (
	TierRule        Tier = "rule"
	TierStatistical Tier = "statistical"
	TierNone        Tier = "none" // unknown，交由生成式兜底
)

// Result is one classification outcome.
type Result struct {
	Intent     Intent
	Confidence float64
	Tier       Tier
}
