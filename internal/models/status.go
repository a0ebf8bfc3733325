package models

import "strings"

type ShipmentStatus string

const (
	ShipmentStatusCreated     ShipmentStatus = "CREATED"
	ShipmentStatusAWBAssigned ShipmentStatus = "AWB_ASSIGNED"
	ShipmentStatusPickedUp    ShipmentStatus = "PICKED_UP"
	ShipmentStatusInTransit   ShipmentStatus = "IN_TRANSIT"
	ShipmentStatusDelivered   ShipmentStatus = "DELIVERED"
	ShipmentStatusCancelled   ShipmentStatus = "CANCELLED"
)

// lifecycle orders the forward statuses. Couriers may skip steps, so any
// later position is a legal move.
var lifecycle = []ShipmentStatus{
	ShipmentStatusCreated,
	ShipmentStatusAWBAssigned,
	ShipmentStatusPickedUp,
	ShipmentStatusInTransit,
	ShipmentStatusDelivered,
}

func (s ShipmentStatus) position() int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

func CanTransition(from, to ShipmentStatus) bool {
	if from.position() < 0 || from.IsTerminal() {
		return false
	}
	if to == ShipmentStatusCancelled {
		return true
	}
	return to.position() > from.position()
}

func (s ShipmentStatus) IsTerminal() bool {
	return s == ShipmentStatusDelivered || s == ShipmentStatusCancelled
}

// Courier webhooks report statuses in free text ("Picked Up", "IN TRANSIT",
// "Canceled", ...). Statuses outside the shipment lifecycle map to "".
var courierStatuses = map[string]ShipmentStatus{
	"NEW":                        ShipmentStatusCreated,
	"CREATED":                    ShipmentStatusCreated,
	"AWB_ASSIGNED":               ShipmentStatusAWBAssigned,
	"PICKUP_SCHEDULED":           ShipmentStatusAWBAssigned,
	"PICKUP_GENERATED":           ShipmentStatusAWBAssigned,
	"READY_TO_SHIP":              ShipmentStatusAWBAssigned,
	"PICKED_UP":                  ShipmentStatusPickedUp,
	"SHIPPED":                    ShipmentStatusInTransit,
	"IN_TRANSIT":                 ShipmentStatusInTransit,
	"OUT_FOR_DELIVERY":           ShipmentStatusInTransit,
	"REACHED_AT_DESTINATION_HUB": ShipmentStatusInTransit,
	"DELIVERED":                  ShipmentStatusDelivered,
	"CANCELLED":                  ShipmentStatusCancelled,
	"CANCELED":                   ShipmentStatusCancelled,
	"CANCELLATION_REQUESTED":     ShipmentStatusCancelled,
}

func ParseCourierStatus(raw string) ShipmentStatus {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	return courierStatuses[key]
}
