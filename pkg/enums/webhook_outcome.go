package enums

import "fmt"

// WebhookOutcome maps to the webhook_outcome column values.
type WebhookOutcome string

const (
	WebhookReceived          WebhookOutcome = "received"
	WebhookProcessed         WebhookOutcome = "processed"
	WebhookMissingReference  WebhookOutcome = "ignored_missing_reference"
	WebhookUnknownReference  WebhookOutcome = "ignored_unknown_reference"
	WebhookAlreadyProcessed  WebhookOutcome = "ignored_already_processed"
	WebhookRejectedSignature WebhookOutcome = "rejected_signature"
	WebhookIgnoredPending    WebhookOutcome = "ignored_pending"
	WebhookError             WebhookOutcome = "error"
)

var validWebhookOutcomes = []WebhookOutcome{
	WebhookReceived,
	WebhookProcessed,
	WebhookMissingReference,
	WebhookUnknownReference,
	WebhookAlreadyProcessed,
	WebhookRejectedSignature,
	WebhookIgnoredPending,
	WebhookError,
}

// IsValid reports whether the value is a known webhook outcome.
func (w WebhookOutcome) IsValid() bool {
	for _, candidate := range validWebhookOutcomes {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWebhookOutcome converts raw input into WebhookOutcome.
func ParseWebhookOutcome(value string) (WebhookOutcome, error) {
	for _, candidate := range validWebhookOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook outcome %q", value)
}
