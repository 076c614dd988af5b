package peach

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
)

// ParseNotification extracts the checkout id, resource path and merchant
// transaction id. The outcome stays unknown until Authenticate asks Peach.
func (c *Client) ParseNotification(body []byte, header http.Header) (*providers.Notification, error) {
	fields, err := decodeFields(body, header.Get("Content-Type"))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode peach notification")
	}
	n := &providers.Notification{
		Provider:             enums.ProviderPeach,
		TransactionReference: fields["merchanttransactionid"],
		ProviderReference:    fields["id"],
		RawStatus:            fields["result.code"],
		Outcome:              providers.OutcomeUnknown,
		Fields:               fields,
	}
	if n.Fields["resourcepath"] == "" && n.ProviderReference != "" {
		n.Fields["resourcepath"] = "/checkouts/" + url.PathEscape(n.ProviderReference) + "/payment"
	}
	return n, nil
}

// Authenticate trusts nothing in the inbound body: the result is fetched from
// Peach and overwrites the notification's status and amount.
func (c *Client) Authenticate(ctx context.Context, n *providers.Notification) (providers.Authentication, error) {
	status, err := c.FetchStatus(ctx, n.Fields["resourcepath"])
	if err != nil {
		return "", err
	}
	if status.MerchantTransactionID != "" {
		if n.TransactionReference == "" {
			n.TransactionReference = status.MerchantTransactionID
		} else if !strings.EqualFold(status.MerchantTransactionID, n.TransactionReference) {
			return "", pkgerrors.New(pkgerrors.CodeInvalidSignature, "peach status belongs to a different transaction")
		}
	}
	n.RawStatus = status.Result.Code
	n.Outcome = ClassifyResult(status.Result.Code)
	n.Amount = parseAmount(status.Amount)
	if status.ID != "" && n.ProviderReference == "" {
		n.ProviderReference = status.ID
	}
	return providers.AuthVerified, nil
}

// decodeFields flattens JSON (optionally wrapped in {"payload": {...}}) or
// form bodies into lower-cased keys. Nested objects become dotted keys.
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
		if inner, ok := raw["payload"].(map[string]any); ok {
			raw = inner
		}
		flatten("", raw, fields)
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

func flatten(prefix string, raw map[string]any, out map[string]string) {
	for key, value := range raw {
		name := strings.ToLower(key)
		if prefix != "" {
			name = prefix + "." + name
		}
		switch typed := value.(type) {
		case map[string]any:
			flatten(name, typed, out)
		case nil:
			out[name] = ""
		case string:
			out[name] = typed
		default:
			out[name] = fmt.Sprint(typed)
		}
	}
}
