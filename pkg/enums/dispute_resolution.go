package enums

import "fmt"

type DisputeResolution string

const (
	ResolutionRefund  DisputeResolution = "refund"
	ResolutionRelease DisputeResolution = "release"
	ResolutionClose   DisputeResolution = "close"
)

var validDisputeResolutions = []DisputeResolution{
	ResolutionRefund,
	ResolutionRelease,
	ResolutionClose,
}

// IsValid reports whether the value is a known dispute resolution.
func (d DisputeResolution) IsValid() bool {
	for _, candidate := range validDisputeResolutions {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDisputeResolution converts raw input into DisputeResolution.
func ParseDisputeResolution(value string) (DisputeResolution, error) {
	for _, candidate := range validDisputeResolutions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute resolution %q", value)
}
