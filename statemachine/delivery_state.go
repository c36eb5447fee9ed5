package statemachine

import (
	"food-marketplace-api/models"
)

// deliveryTransitions mirrors the order table for the logistics machine.
// Assignment (pending → assigned) is only ever performed by the dispatcher.
var deliveryTransitions = map[models.DeliveryStatus][]models.DeliveryStatus{
	models.DeliveryPending:   {models.DeliveryAssigned},
	models.DeliveryAssigned:  {models.DeliveryPickedUp, models.DeliveryFailed},
	models.DeliveryPickedUp:  {models.DeliveryInTransit, models.DeliveryFailed},
	models.DeliveryInTransit: {models.DeliveryDelivered, models.DeliveryFailed},
	models.DeliveryDelivered: {},
	models.DeliveryFailed:    {},
}

// AllowedNextDelivery returns all states reachable in one step from status.
func AllowedNextDelivery(status models.DeliveryStatus) []models.DeliveryStatus {
	return deliveryTransitions[status]
}

// CanTransitionDelivery checks a delivery edge against the table.
func CanTransitionDelivery(from, to models.DeliveryStatus) error {
	for _, next := range deliveryTransitions[from] {
		if next == to {
			return nil
		}
	}
	return &InvalidTransitionError{
		Machine: "delivery",
		From:    string(from),
		To:      string(to),
		Allowed: deliveryStatusStrings(deliveryTransitions[from]),
	}
}

// IsTerminalDelivery reports whether no edge leaves the status.
func IsTerminalDelivery(status models.DeliveryStatus) bool {
	return len(deliveryTransitions[status]) == 0
}

// DeliveryMachine returns the full table for the documentation endpoint.
func DeliveryMachine() map[models.DeliveryStatus][]models.DeliveryStatus {
	return deliveryTransitions
}

func deliveryStatusStrings(ss []models.DeliveryStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}
