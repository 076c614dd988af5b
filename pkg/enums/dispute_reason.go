package enums

import "fmt"

// DisputeReason maps to the dispute_reason column values.
type DisputeReason string

const (
	DisputeReasonNotReceived    DisputeReason = "not_received"
	DisputeReasonNotAsDescribed DisputeReason = "not_as_described"
	DisputeReasonDamaged        DisputeReason = "damaged"
	DisputeReasonWrongItem      DisputeReason = "wrong_item"
	DisputeReasonOther          DisputeReason = "other"
)

var validDisputeReasons = []DisputeReason{
	DisputeReasonNotReceived,
	DisputeReasonNotAsDescribed,
	DisputeReasonDamaged,
	DisputeReasonWrongItem,
	DisputeReasonOther,
}

// IsValid reports whether the value is a known dispute reason.
func (d DisputeReason) IsValid() bool {
	for _, candidate := range validDisputeReasons {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDisputeReason converts raw input into DisputeReason.
func ParseDisputeReason(value string) (DisputeReason, error) {
	for _, candidate := range validDisputeReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute reason %q", value)
}
