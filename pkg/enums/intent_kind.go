package enums

import "fmt"

// IntentKind maps to the intent_kind column values.
type IntentKind string

const (
	IntentKindDeposit  IntentKind = "deposit"
	IntentKindWithdraw IntentKind = "withdraw"
	IntentKindPayment  IntentKind = "payment"
)

var validIntentKinds = []IntentKind{
	IntentKindDeposit,
	IntentKindWithdraw,
	IntentKindPayment,
}

// IsValid reports whether the value is a known intent kind.
func (i IntentKind) IsValid() bool {
	for _, candidate := range validIntentKinds {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseIntentKind converts raw input into IntentKind.
func ParseIntentKind(value string) (IntentKind, error) {
	for _, candidate := range validIntentKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid intent kind %q", value)
}
