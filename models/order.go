package models

import "time"

// OrderStatus represents all possible states of a marketplace order
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderPreparing  OrderStatus = "preparing"
	OrderReady      OrderStatus = "ready"
	OrderDelivering OrderStatus = "delivering"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// PaymentMode is how the client pays
type PaymentMode string

const (
	PaymentCIB      PaymentMode = "cib"
	PaymentEdahabia PaymentMode = "edahabia"
	PaymentCash     PaymentMode = "cash"
)

// PaymentStatus tracks settlement separately from the order lifecycle
type PaymentStatus string

const (
	PaymentPendingStatus PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentRefunded      PaymentStatus = "refunded"
)

// RefusalCode is the structured reason a provider gives when refusing an order
type RefusalCode string

const (
	RefusalOutOfStock   RefusalCode = "out_of_stock"
	RefusalTooBusy      RefusalCode = "too_busy"
	RefusalOutsideHours RefusalCode = "outside_hours"
	RefusalDeliveryZone RefusalCode = "delivery_zone"
	RefusalOther        RefusalCode = "other"
)

// ValidRefusalCode reports whether code is one of the defined refusal codes.
func ValidRefusalCode(code RefusalCode) bool {
	switch code {
	case RefusalOutOfStock, RefusalTooBusy, RefusalOutsideHours, RefusalDeliveryZone, RefusalOther:
		return true
	}
	return false
}

type Order struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	Number string `json:"number" gorm:"uniqueIndex;not null"`

	ClientID   uint     `json:"client_id" gorm:"not null"`
	Client     User     `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	ProviderID uint     `json:"provider_id" gorm:"not null"`
	Provider   Provider `json:"provider,omitempty" gorm:"foreignKey:ProviderID"`

	Status OrderStatus `json:"status" gorm:"not null;default:'pending'"`

	Subtotal    float64 `json:"subtotal"`
	Discount    float64 `json:"discount"`
	DeliveryFee float64 `json:"delivery_fee"`
	Total       float64 `json:"total"`

	PaymentMode   PaymentMode   `json:"payment_mode" gorm:"not null"`
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"default:'pending'"`

	// Address snapshot at order time; later profile edits never move an order.
	DeliveryAddress string `json:"delivery_address" gorm:"not null"`
	Notes           string `json:"notes"`

	PromotionID *uint      `json:"promotion_id,omitempty"`
	Promotion   *Promotion `json:"promotion,omitempty" gorm:"foreignKey:PromotionID"`

	CancelReason string      `json:"cancel_reason,omitempty"`
	RefusalCode  RefusalCode `json:"refusal_code,omitempty"`

	Items    []OrderItem    `json:"items,omitempty" gorm:"foreignKey:OrderID"`
	History  []OrderHistory `json:"history,omitempty" gorm:"foreignKey:OrderID"`
	Delivery *Delivery      `json:"delivery,omitempty" gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrderItem struct {
	ID       uint `json:"id" gorm:"primaryKey"`
	OrderID  uint `json:"order_id" gorm:"not null"`
	DishID   uint `json:"dish_id" gorm:"not null"`
	Quantity int  `json:"quantity" gorm:"not null"`

	UnitPrice       float64 `json:"unit_price" gorm:"not null"`
	OptionSurcharge float64 `json:"option_surcharge"`
	LineTotal       float64 `json:"line_total" gorm:"not null"`
	// Selected option names, joined. Kept denormalized like the dish snapshot.
	SelectedOptions string `json:"selected_options"`
	Instructions    string `json:"instructions"`

	// Denormalized dish snapshot captured at order time so later catalog
	// edits never retroactively alter history.
	DishName        string `json:"dish_name"`
	DishDescription string `json:"dish_description"`
	DishImage       string `json:"dish_image"`
}

// OrderHistory tracks every status change, the audit trail of record.
// Rows are only ever appended, never edited.
type OrderHistory struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	OrderID    uint        `json:"order_id" gorm:"not null;index"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status" gorm:"not null"`
	Actor      string      `json:"actor"`
	ChangedBy  uint        `json:"changed_by"`
	Reason     string      `json:"reason"`
	CreatedAt  time.Time   `json:"created_at"`
}
