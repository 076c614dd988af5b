package enums

import "fmt"

// DisputeStatus maps to the dispute_status column values.
type DisputeStatus string

const (
	DisputeOpen            DisputeStatus = "open"
	DisputeUnderReview     DisputeStatus = "under_review"
	DisputeResolvedRefund  DisputeStatus = "resolved_refund"
	DisputeResolvedRelease DisputeStatus = "resolved_release"
	DisputeClosed          DisputeStatus = "closed"
)

var validDisputeStatuses = []DisputeStatus{
	DisputeOpen,
	DisputeUnderReview,
	DisputeResolvedRefund,
	DisputeResolvedRelease,
	DisputeClosed,
}

// IsValid reports whether the value is a known dispute status.
func (d DisputeStatus) IsValid() bool {
	for _, candidate := range validDisputeStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDisputeStatus converts raw input into DisputeStatus.
func ParseDisputeStatus(value string) (DisputeStatus, error) {
	for _, candidate := range validDisputeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute status %q", value)
}

// IsActive reports whether the dispute still blocks settlement of its order.
func (d DisputeStatus) IsActive() bool {
	return d == DisputeOpen || d == DisputeUnderReview
}
