package ozow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/vendorlution-backend/internal/providers"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// ParseNotification reads a notify callback. Ozow posts form data but JSON
// bodies are accepted too; key case is ignored.
func (c *Client) ParseNotification(body []byte, header http.Header) (*providers.Notification, error) {
	fields, err := decodeFields(body, header.Get("Content-Type"))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode ozow notification")
	}

	n := &providers.Notification{
		Provider:             enums.ProviderOzow,
		TransactionReference: fields["transactionreference"],
		ProviderReference:    fields["transactionid"],
		RawStatus:            fields["status"],
		Outcome:              MapStatus(fields["status"]),
		Signature:            fields["hashcheck"],
		Fields:               fields,
	}
	if raw := fields["amount"]; raw != "" {
		if amount, err := decimal.NewFromString(raw); err == nil {
			n.Amount = &amount
		}
	}
	return n, nil
}

// Authenticate recomputes HashCheck with the private key.
func (c *Client) Authenticate(ctx context.Context, n *providers.Notification) (providers.Authentication, error) {
	if strings.TrimSpace(c.cfg.PrivateKey) == "" {
		if !c.allowUnsigned {
			return "", pkgerrors.New(pkgerrors.CodeInvalidSignature, "ozow private key not configured")
		}
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
			"provider":              string(enums.ProviderOzow),
			"transaction_reference": n.TransactionReference,
		}), "ozow notification accepted without signature check: private key not configured")
		return providers.AuthUnsigned, nil
	}
	if n.Signature == "" {
		return "", pkgerrors.New(pkgerrors.CodeInvalidSignature, "ozow notification missing HashCheck")
	}
	expected := NotificationHash(n.Fields, c.cfg.PrivateKey)
	if !strings.EqualFold(expected, strings.TrimSpace(n.Signature)) {
		return "", pkgerrors.New(pkgerrors.CodeInvalidSignature, "ozow HashCheck mismatch")
	}
	return providers.AuthVerified, nil
}

// MapStatus translates Ozow's status text.
func MapStatus(raw string) providers.Outcome {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "complete", "completed", "success", "paid":
		return providers.OutcomeSuccess
	case "cancelled", "canceled":
		return providers.OutcomeCancelled
	case "error", "abandoned", "failed":
		return providers.OutcomeFailed
	case "pendinginvestigation", "pending":
		return providers.OutcomePending
	default:
		return providers.OutcomeUnknown
	}
}

func decodeFields(body []byte, contentType string) (map[string]string, error) {
	trimmed := bytes.TrimSpace(body)
	fields := make(map[string]string)
	if len(trimmed) == 0 {
		return fields, nil
	}
	if strings.Contains(strings.ToLower(contentType), "json") || trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		for key, value := range raw {
			fields[strings.ToLower(key)] = scalarString(value)
		}
		return fields, nil
	}
	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return nil, err
	}
	for key := range values {
		fields[strings.ToLower(key)] = values.Get(key)
	}
	return fields, nil
}

func scalarString(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return boolString(typed)
	case json.Number:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}
