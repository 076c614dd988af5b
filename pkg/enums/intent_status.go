package enums

import "fmt"

// IntentStatus maps to the intent_status column values.
type IntentStatus string

const (
	IntentStatusCreated   IntentStatus = "created"
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusSucceeded IntentStatus = "succeeded"
	IntentStatusFailed    IntentStatus = "failed"
	IntentStatusCancelled IntentStatus = "cancelled"
)

var validIntentStatuses = []IntentStatus{
	IntentStatusCreated,
	IntentStatusPending,
	IntentStatusSucceeded,
	IntentStatusFailed,
	IntentStatusCancelled,
}

// IsValid reports whether the value is a known intent status.
func (i IntentStatus) IsValid() bool {
	for _, candidate := range validIntentStatuses {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseIntentStatus converts raw input into IntentStatus.
func ParseIntentStatus(value string) (IntentStatus, error) {
	for _, candidate := range validIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid intent status %q", value)
}

// IsTerminal reports whether no further transition is allowed.
func (i IntentStatus) IsTerminal() bool {
	switch i {
	case IntentStatusSucceeded, IntentStatusFailed, IntentStatusCancelled:
		return true
	default:
		return false
	}
}
