package enums

import "fmt"

type BankAccountType string

const (
	AccountCheque       BankAccountType = "cheque"
	AccountSavings      BankAccountType = "savings"
	AccountTransmission BankAccountType = "transmission"
)

var validBankAccountTypes = []BankAccountType{
	AccountCheque,
	AccountSavings,
	AccountTransmission,
}

// IsValid reports whether the value is a known bank account type.
func (b BankAccountType) IsValid() bool {
	for _, candidate := range validBankAccountTypes {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBankAccountType converts raw input into BankAccountType.
func ParseBankAccountType(value string) (BankAccountType, error) {
	for _, candidate := range validBankAccountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bank account type %q", value)
}
