package enums

import "fmt"

// DeliveryMethod maps to the delivery_method column values.
type DeliveryMethod string

const (
	DeliveryPargo   DeliveryMethod = "pargo"
	DeliveryCourier DeliveryMethod = "courier"
	DeliveryPostnet DeliveryMethod = "postnet"
	DeliveryPickup  DeliveryMethod = "pickup"
)

var validDeliveryMethods = []DeliveryMethod{
	DeliveryPargo,
	DeliveryCourier,
	DeliveryPostnet,
	DeliveryPickup,
}

// IsValid reports whether the value is a known delivery method.
func (d DeliveryMethod) IsValid() bool {
	for _, candidate := range validDeliveryMethods {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDeliveryMethod converts raw input into DeliveryMethod.
func ParseDeliveryMethod(value string) (DeliveryMethod, error) {
	for _, candidate := range validDeliveryMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery method %q", value)
}
