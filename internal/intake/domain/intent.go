package domain

// Intent is the closed taxonomy of message intents. The language service's
// answer is validated against this set at the boundary; anything else is
// coerced to IntentOther so the rest of the pipeline is total.
type Intent string

const (
	IntentInterest     Intent = "INTEREST"
	IntentPricing      Intent = "PRICING"
	IntentScheduling   Intent = "SCHEDULING"
	IntentComplaint    Intent = "COMPLAINT"
	IntentGreeting     Intent = "GREETING"
	IntentClosing      Intent = "CLOSING"
	IntentConfirmation Intent = "CONFIRMATION"
	IntentOther        Intent = "OTHER"
)

// Intents lists the full taxonomy in a stable order, used to build
// classification prompts.
var Intents = []Intent{
	IntentInterest,
	IntentPricing,
	IntentScheduling,
	IntentComplaint,
	IntentGreeting,
	IntentClosing,
	IntentConfirmation,
	IntentOther,
}

// ParseIntent coerces a raw value to the closed taxonomy.
func ParseIntent(raw string) Intent {
	switch Intent(raw) {
	case IntentInterest, IntentPricing, IntentScheduling, IntentComplaint,
		IntentGreeting, IntentClosing, IntentConfirmation, IntentOther:
		return Intent(raw)
	default:
		return IntentOther
	}
}

// Valid reports whether the intent belongs to the closed taxonomy. Used as a
// final guard before persistence; an invalid intent there is an invariant
// violation, not something to coerce.
func (i Intent) Valid() bool {
	return ParseIntent(string(i)) == i
}
