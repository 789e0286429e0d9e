package domain

import (
	"strings"
	"time"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

var paymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
}

// ParseOrderStatus accepts only the canonical spelling ("Confirmed", not "confirmed").
func ParseOrderStatus(raw string) (OrderStatus, error) {
	for _, s := range orderStatuses {
		if raw == string(s) {
			return s, nil
		}
	}
	return "", Errorf(KindInvalidStatus, "invalid status %q: expected one of %s", raw, joinStatuses(orderStatuses))
}

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	for _, s := range paymentStatuses {
		if raw == string(s) {
			return s, nil
		}
	}
	names := make([]string, 0, len(paymentStatuses))
	for _, s := range paymentStatuses {
		names = append(names, string(s))
	}
	return "", Errorf(KindInvalidPaymentStatus, "invalid payment status %q: expected one of %s", raw, strings.Join(names, ", "))
}

func (s OrderStatus) Valid() bool {
	_, err := ParseOrderStatus(string(s))
	return err == nil
}

func (s PaymentStatus) Valid() bool {
	_, err := ParsePaymentStatus(string(s))
	return err == nil
}

// Validate checks the mode and the field that the mode makes mandatory.
func (f Fulfillment) Validate() error {
	switch f.Mode {
	case FulfillmentDelivery:
		if strings.TrimSpace(f.DeliveryAddress) == "" {
			return Errorf(KindInvalidFulfillment, "delivery address is required")
		}
	case FulfillmentPickup:
		if strings.TrimSpace(f.PickupDate) == "" {
			return Errorf(KindInvalidFulfillment, "pickup date is required")
		}
		if _, err := time.Parse(PickupDateLayout, f.PickupDate); err != nil {
			return Errorf(KindInvalidFulfillment, "pickup date %q must be formatted as YYYY-MM-DD", f.PickupDate)
		}
	default:
		return Errorf(KindInvalidFulfillment, "invalid fulfillment mode %q: expected %s or %s", f.Mode, FulfillmentDelivery, FulfillmentPickup)
	}
	return nil
}

// Normalized trims input and drops the field that does not belong to the mode.
func (f Fulfillment) Normalized() Fulfillment {
	out := Fulfillment{Mode: f.Mode}
	switch f.Mode {
	case FulfillmentDelivery:
		out.DeliveryAddress = strings.TrimSpace(f.DeliveryAddress)
	case FulfillmentPickup:
		out.PickupDate = strings.TrimSpace(f.PickupDate)
	}
	return out
}

func joinStatuses(ss []OrderStatus) string {
	names := make([]string, 0, len(ss))
	for _, s := range ss {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

func (s OrderStatus) String() string { return string(s) }

func (s PaymentStatus) String() string { return string(s) }
