package models

import "time"

// PromotionType selects the discount rule
type PromotionType string

const (
	PromoPercentage   PromotionType = "percentage"
	PromoFixedAmount  PromotionType = "fixed_amount"
	PromoFreeDelivery PromotionType = "free_delivery"
)

// UnlimitedUsage marks a promotion with no global cap.
const UnlimitedUsage = -1

type Promotion struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Code string `json:"code" gorm:"uniqueIndex;not null"`
	Name string `json:"name"`

	Type PromotionType `json:"type" gorm:"not null"`
	// Value is a percentage for percentage promos, an absolute amount for
	// fixed promos, ignored for free-delivery.
	Value float64 `json:"value"`
	// MaxDiscount caps a percentage discount; 0 means uncapped.
	MaxDiscount    float64 `json:"max_discount"`
	MinOrderAmount float64 `json:"min_order_amount"`

	// ProviderID nil means the promotion is global.
	ProviderID *uint     `json:"provider_id,omitempty"`
	Provider   *Provider `json:"provider,omitempty" gorm:"foreignKey:ProviderID"`

	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	IsActive bool      `json:"is_active" gorm:"default:true"`

	// UsageLimit of -1 means unlimited. UsedCount is only ever moved by a
	// guarded increment inside the order transaction.
	UsageLimit   int `json:"usage_limit" gorm:"default:-1"`
	PerUserLimit int `json:"per_user_limit" gorm:"default:1"`
	UsedCount    int `json:"used_count" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InWindow reports whether the promotion is usable at t.
func (p *Promotion) InWindow(t time.Time) bool {
	return !t.Before(p.StartsAt) && !t.After(p.EndsAt)
}

// PromotionUsage is an append-only ledger row recording one redemption.
// Per-user caps are enforced by counting these rows inside the order
// transaction.
type PromotionUsage struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	PromotionID uint      `json:"promotion_id" gorm:"not null;index"`
	UserID      uint      `json:"user_id" gorm:"not null;index"`
	OrderID     uint      `json:"order_id" gorm:"not null"`
	Discount    float64   `json:"discount"`
	CreatedAt   time.Time `json:"created_at"`
}
