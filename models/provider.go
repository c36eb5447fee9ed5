package models

import "time"

type Provider struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	OwnerID     uint      `json:"owner_id" gorm:"not null"`
	Owner       User      `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Name        string    `json:"name" gorm:"not null"`
	Cuisine     string    `json:"cuisine"`
	Address     string    `json:"address"`
	Description string    `json:"description"`
	IsOpen      bool      `json:"is_open" gorm:"default:true"`
	Rating      float64   `json:"rating" gorm:"default:0"`
	Dishes      []Dish    `json:"dishes,omitempty" gorm:"foreignKey:ProviderID"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UnlimitedStock marks a dish that is never stock-constrained.
const UnlimitedStock = -1

type Dish struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	ProviderID  uint    `json:"provider_id" gorm:"not null"`
	Name        string  `json:"name" gorm:"not null"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Price       float64 `json:"price" gorm:"not null"`
	// PromoPrice, when set above zero, overrides Price as the effective price.
	PromoPrice  float64 `json:"promo_price" gorm:"default:0"`
	Category    string  `json:"category"`
	IsAvailable bool    `json:"is_available" gorm:"default:true"`
	IsDeleted   bool    `json:"is_deleted" gorm:"default:false"`
	// Stock of -1 means unlimited; never decremented.
	Stock      int          `json:"stock" gorm:"default:-1"`
	OrderCount int          `json:"order_count" gorm:"default:0"`
	Options    []DishOption `json:"options,omitempty" gorm:"foreignKey:DishID"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// EffectivePrice is the price a new order line is charged at.
func (d *Dish) EffectivePrice() float64 {
	if d.PromoPrice > 0 {
		return d.PromoPrice
	}
	return d.Price
}

// DishOption is an add-on (extra cheese, large size) with a surcharge.
type DishOption struct {
	ID        uint    `json:"id" gorm:"primaryKey"`
	DishID    uint    `json:"dish_id" gorm:"not null"`
	Name      string  `json:"name" gorm:"not null"`
	Surcharge float64 `json:"surcharge" gorm:"default:0"`
}
