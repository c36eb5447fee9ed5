package models

import "time"

// DeliveryStatus is the logistics lifecycle, distinct from the order's.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryAssigned  DeliveryStatus = "assigned"
	DeliveryPickedUp  DeliveryStatus = "picked_up"
	DeliveryInTransit DeliveryStatus = "in_transit"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// ActiveDeliveryStatuses is the single definition of "active" used for
// courier busy/available bookkeeping and for position fan-out.
var ActiveDeliveryStatuses = []DeliveryStatus{
	DeliveryAssigned, DeliveryPickedUp, DeliveryInTransit,
}

// IsActiveDeliveryStatus reports whether a delivery in this status still
// occupies its courier.
func IsActiveDeliveryStatus(s DeliveryStatus) bool {
	switch s {
	case DeliveryAssigned, DeliveryPickedUp, DeliveryInTransit:
		return true
	}
	return false
}

// Delivery is one-to-one with Order, created lazily when the order first
// reaches ready.
type Delivery struct {
	ID      uint  `json:"id" gorm:"primaryKey"`
	OrderID uint  `json:"order_id" gorm:"uniqueIndex;not null"`
	Order   Order `json:"order,omitempty" gorm:"foreignKey:OrderID"`

	CourierID *uint `json:"courier_id"`
	Courier   *User `json:"courier,omitempty" gorm:"foreignKey:CourierID"`

	Status DeliveryStatus `json:"status" gorm:"not null;default:'pending'"`

	PickupAddress  string  `json:"pickup_address"`
	DropoffAddress string  `json:"dropoff_address"`
	Fee            float64 `json:"fee"`
	// Commission is the courier's share of the fee, set on completion.
	Commission float64 `json:"commission"`

	FailureReason string `json:"failure_reason,omitempty"`

	// Last reported courier position while this delivery was active.
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	PositionAt *time.Time `json:"position_at,omitempty"`

	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
