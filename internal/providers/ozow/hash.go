package ozow

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// hashCheck lower-cases the concatenation of parts and returns its hex SHA-512.
// Ozow requires the exact field order of each payload and no separators.
func hashCheck(parts ...string) string {
	sum := sha512.Sum512([]byte(strings.ToLower(strings.Join(parts, ""))))
	return hex.EncodeToString(sum[:])
}

// RequestHash signs an outbound PostPaymentRequest body. Customer and the
// bank selection fields travel unsigned.
func RequestHash(req PaymentRequest, privateKey string) string {
	return hashCheck(
		req.SiteCode,
		req.CountryCode,
		req.CurrencyCode,
		req.Amount,
		req.TransactionReference,
		req.BankReference,
		req.Optional1,
		req.Optional2,
		req.Optional3,
		req.Optional4,
		req.Optional5,
		req.CancelURL,
		req.ErrorURL,
		req.SuccessURL,
		req.NotifyURL,
		boolString(req.IsTest),
		privateKey,
	)
}

// notificationFields is the order Ozow signs its notify callbacks in.
var notificationFields = []string{
	"siteCode",
	"transactionId",
	"transactionReference",
	"amount",
	"status",
	"optional1",
	"optional2",
	"optional3",
	"optional4",
	"optional5",
	"currencyCode",
	"isTest",
	"statusMessage",
}

// NotificationHash recomputes the HashCheck of an inbound notification from
// its raw field values.
func NotificationHash(fields map[string]string, privateKey string) string {
	parts := make([]string, 0, len(notificationFields)+1)
	for _, name := range notificationFields {
		parts = append(parts, fields[strings.ToLower(name)])
	}
	parts = append(parts, privateKey)
	return hashCheck(parts...)
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
