package enums

import "fmt"

// PaymentMethod maps to the payment_method column values.
type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodOzow   PaymentMethod = "ozow"
	PaymentMethodPeach  PaymentMethod = "peach"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodWallet,
	PaymentMethodOzow,
	PaymentMethodPeach,
}

// IsValid reports whether the value is a known payment method.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// Provider returns the external gateway behind the method; wallet has none.
func (p PaymentMethod) Provider() (PaymentProvider, bool) {
	switch p {
	case PaymentMethodOzow:
		return ProviderOzow, true
	case PaymentMethodPeach:
		return ProviderPeach, true
	default:
		return "", false
	}
}
