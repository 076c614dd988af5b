package enums

import "fmt"

// PaymentProvider maps to the payment_provider column values.
type PaymentProvider string

const (
	ProviderOzow    PaymentProvider = "ozow"
	ProviderPeach   PaymentProvider = "peach"
	ProviderVoucher PaymentProvider = "voucher"
)

var validPaymentProviders = []PaymentProvider{
	ProviderOzow,
	ProviderPeach,
	ProviderVoucher,
}

// IsValid reports whether the value is a known payment provider.
func (p PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentProvider converts raw input into PaymentProvider.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	for _, candidate := range validPaymentProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}
