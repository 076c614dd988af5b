package enums

import "fmt"

// VoucherStatus maps to the voucher_status column values.
type VoucherStatus string

const (
	VoucherPending  VoucherStatus = "pending"
	VoucherApproved VoucherStatus = "approved"
	VoucherRejected VoucherStatus = "rejected"
)

var validVoucherStatuses = []VoucherStatus{
	VoucherPending,
	VoucherApproved,
	VoucherRejected,
}

// IsValid reports whether the value is a known voucher status.
func (v VoucherStatus) IsValid() bool {
	for _, candidate := range validVoucherStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVoucherStatus converts raw input into VoucherStatus.
func ParseVoucherStatus(value string) (VoucherStatus, error) {
	for _, candidate := range validVoucherStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid voucher status %q", value)
}
