package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(ShipmentStatusCreated, ShipmentStatusAWBAssigned))
	assert.True(t, CanTransition(ShipmentStatusInTransit, ShipmentStatusDelivered))
	assert.True(t, CanTransition(ShipmentStatusPickedUp, ShipmentStatusCancelled))
	assert.True(t, CanTransition(ShipmentStatusCreated, ShipmentStatusInTransit))
	assert.True(t, CanTransition(ShipmentStatusCreated, ShipmentStatusDelivered))

	for _, raw := range []string{"Picked Up", "Shipped", "In Transit", "Delivered"} {
		assert.True(t, CanTransition(ShipmentStatusCreated, ParseCourierStatus(raw)), raw)
	}

	assert.False(t, CanTransition(ShipmentStatusInTransit, ShipmentStatusPickedUp))
	assert.False(t, CanTransition(ShipmentStatusAWBAssigned, ShipmentStatusAWBAssigned))
	assert.False(t, CanTransition(ShipmentStatusCreated, ShipmentStatus("")))
	assert.False(t, CanTransition(ShipmentStatusDelivered, ShipmentStatusCancelled))
	assert.False(t, CanTransition(ShipmentStatusCancelled, ShipmentStatusCreated))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, ShipmentStatusDelivered.IsTerminal())
	assert.True(t, ShipmentStatusCancelled.IsTerminal())
	assert.False(t, ShipmentStatusCreated.IsTerminal())
	assert.False(t, ShipmentStatus("UNKNOWN").IsTerminal())
}

func TestParseCourierStatus(t *testing.T) {
	assert.Equal(t, ShipmentStatusPickedUp, ParseCourierStatus("Picked Up"))
	assert.Equal(t, ShipmentStatusInTransit, ParseCourierStatus(" in-transit "))
	assert.Equal(t, ShipmentStatusCancelled, ParseCourierStatus("Canceled"))
	assert.Equal(t, ShipmentStatus(""), ParseCourierStatus("RTO Initiated"))
}

func TestOrderShippingPincode(t *testing.T) {
	o := Order{Pincode: "560001"}
	assert.Equal(t, "560001", o.ShippingPincode())

	o.ShippingAddress.Pincode = " 110001 "
	assert.Equal(t, "110001", o.ShippingPincode())
}

func TestOrderIsCashOnDelivery(t *testing.T) {
	assert.True(t, Order{PaymentStatus: "cod", Payable: decimal.NewFromInt(499)}.IsCashOnDelivery())
	assert.False(t, Order{PaymentStatus: "COD", Payable: decimal.Zero}.IsCashOnDelivery())
	assert.False(t, Order{PaymentStatus: "PAID", Payable: decimal.NewFromInt(499)}.IsCashOnDelivery())
}

func TestStockAvailable(t *testing.T) {
	assert.Equal(t, 3, BranchVariantStock{OnHand: 5, Reserved: 2}.Available())
}
