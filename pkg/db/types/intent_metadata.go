package dbtypes

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// IntentPurpose tags the shape stored in payment_intents.metadata.
type IntentPurpose string

const (
	PurposeDeposit      IntentPurpose = "deposit"
	PurposeOrderPayment IntentPurpose = "order_payment"
)

// IntentMetadata is the closed set of payloads an intent may carry:
// a deposit stores {} and an order payment stores {"order_id": "..."}.
type IntentMetadata struct {
	Purpose IntentPurpose
	OrderID uuid.UUID
}

type intentMetadataWire struct {
	OrderID *uuid.UUID `json:"order_id,omitempty"`
}

func DepositMetadata() IntentMetadata {
	return IntentMetadata{Purpose: PurposeDeposit}
}

func OrderPaymentMetadata(orderID uuid.UUID) IntentMetadata {
	return IntentMetadata{Purpose: PurposeOrderPayment, OrderID: orderID}
}

// Order returns the associated order id, if the intent pays for one.
func (m IntentMetadata) Order() (uuid.UUID, bool) {
	if m.Purpose != PurposeOrderPayment || m.OrderID == uuid.Nil {
		return uuid.Nil, false
	}
	return m.OrderID, true
}

func (m IntentMetadata) MarshalJSON() ([]byte, error) {
	switch m.Purpose {
	case PurposeDeposit, "":
		return []byte("{}"), nil
	case PurposeOrderPayment:
		if m.OrderID == uuid.Nil {
			return nil, fmt.Errorf("IntentMetadata: order payment without order id")
		}
		id := m.OrderID
		return json.Marshal(intentMetadataWire{OrderID: &id})
	default:
		return nil, fmt.Errorf("IntentMetadata: unknown purpose %q", m.Purpose)
	}
}

func (m *IntentMetadata) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*m = DepositMetadata()
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	var wire intentMetadataWire
	if err := dec.Decode(&wire); err != nil {
		return fmt.Errorf("IntentMetadata: %w", err)
	}
	if wire.OrderID == nil {
		*m = DepositMetadata()
		return nil
	}
	*m = OrderPaymentMetadata(*wire.OrderID)
	return nil
}

func (m *IntentMetadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = DepositMetadata()
		return nil
	case string:
		return m.UnmarshalJSON([]byte(v))
	case []byte:
		return m.UnmarshalJSON(v)
	default:
		return fmt.Errorf("IntentMetadata: unsupported Scan type %T", src)
	}
}

func (m IntentMetadata) Value() (driver.Value, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
