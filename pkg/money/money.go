// Package money holds decimal helpers shared by the ledger, escrow and
// provider adapters. Amounts are rands with two decimal places.
package money

import (
	"strings"

	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

const Places = 2

var hundred = decimal.NewFromInt(100)

// Parse reads a user or provider supplied amount. Values must be positive and
// carry no more than two decimals.
func Parse(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount is required")
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInvalidAmount, err, "amount is malformed")
	}
	if err := RequirePositive(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// RequirePositive rejects zero, negative and sub-cent amounts.
func RequirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero").
			WithDetails(map[string]any{"amount": amount.String()})
	}
	if !amount.Equal(amount.Round(Places)) {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount has more than two decimal places").
			WithDetails(map[string]any{"amount": amount.String()})
	}
	return nil
}

// Format renders the amount with exactly two decimals, the form every
// provider signature is computed over.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(Places)
}

func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Places)
}

// Split divides total into the platform fee and the seller's share. The fee is
// rounded to cents and the seller receives the exact remainder, so the two
// always sum to total.
func Split(total, rate decimal.Decimal) (fee, vendor decimal.Decimal) {
	fee = total.Mul(rate).Round(Places)
	vendor = total.Sub(fee)
	return fee, vendor
}

// ProtectionFee is the buyer protection charge: rate of the subtotal plus a
// flat amount, rounded to cents.
func ProtectionFee(subtotal, rate, flat decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(rate).Add(flat).Round(Places)
}

// Cents converts to integer minor units for gateways that want them.
func Cents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
