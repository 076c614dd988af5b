package enums

import "fmt"

// LedgerEntryType maps to the ledger_entry_type column values.
type LedgerEntryType string

const (
	LedgerEntryCredit  LedgerEntryType = "credit"
	LedgerEntryDebit   LedgerEntryType = "debit"
	LedgerEntryHold    LedgerEntryType = "hold"
	LedgerEntryRelease LedgerEntryType = "release"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryCredit,
	LedgerEntryDebit,
	LedgerEntryHold,
	LedgerEntryRelease,
}

// IsValid reports whether the value is a known ledger entry type.
func (l LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}

// LedgerStatusPosted is the only status the ledger writes today.
const LedgerStatusPosted = "posted"
