package models

import (
	"time"
)

// UserRole defines allowed roles in the system
type UserRole string

const (
	RoleClient   UserRole = "client"
	RoleProvider UserRole = "provider"
	RoleCourier  UserRole = "courier"
	RoleAdmin    UserRole = "admin"
)

// CourierAvailability is the courier's dispatch state
type CourierAvailability string

const (
	CourierAvailable CourierAvailability = "available"
	CourierBusy      CourierAvailability = "busy"
	CourierOffline   CourierAvailability = "offline"
)

// LoyaltyTier is the threshold-based classification of a client's points
type LoyaltyTier string

const (
	TierBronze   LoyaltyTier = "bronze"
	TierSilver   LoyaltyTier = "silver"
	TierGold     LoyaltyTier = "gold"
	TierPlatinum LoyaltyTier = "platinum"
)

// TierFor maps a cumulative point balance to its tier.
// Thresholds: 0 bronze, 1000 silver, 5000 gold, 10000 platinum.
func TierFor(points int) LoyaltyTier {
	switch {
	case points >= 10000:
		return TierPlatinum
	case points >= 5000:
		return TierGold
	case points >= 1000:
		return TierSilver
	default:
		return TierBronze
	}
}

type User struct {
	ID           uint     `json:"id" gorm:"primaryKey"`
	Name         string   `json:"name" gorm:"not null"`
	Email        string   `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string   `json:"-" gorm:"not null"`
	Role         UserRole `json:"role" gorm:"not null;default:'client'"`
	Phone        string   `json:"phone"`
	IsActive     bool     `json:"is_active" gorm:"default:true"`

	// Client loyalty
	LoyaltyPoints int         `json:"loyalty_points" gorm:"default:0"`
	LoyaltyTier   LoyaltyTier `json:"loyalty_tier" gorm:"default:'bronze'"`

	// Courier-only fields
	Availability  CourierAvailability `json:"availability,omitempty" gorm:"default:'offline'"`
	Rating        float64             `json:"rating" gorm:"default:0"`
	DeliveryCount int                 `json:"delivery_count" gorm:"default:0"`
	Commission    float64             `json:"commission" gorm:"default:0"`

	// Durable last-known position, flushed from the position cache.
	// The cache is the fresh source; these fields can go stale.
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	LastPing  *time.Time `json:"last_ping,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
