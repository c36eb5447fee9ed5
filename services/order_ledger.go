package services

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"food-marketplace-api/models"
	"food-marketplace-api/notify"
	"food-marketplace-api/statemachine"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OrderLedger validates carts, computes pricing and promotion accounting,
// persists orders atomically and drives order status transitions. Every
// mutation runs inside one transaction; any failure leaves zero partial
// effect.
type OrderLedger struct {
	db          *gorm.DB
	log         *logrus.Logger
	deliveryFee float64
}

func NewOrderLedger(db *gorm.DB, log *logrus.Logger, deliveryFee float64) *OrderLedger {
	return &OrderLedger{db: db, log: log, deliveryFee: deliveryFee}
}

type CreateOrderItem struct {
	DishID       uint
	Quantity     int
	OptionIDs    []uint
	Instructions string
}

type CreateOrderInput struct {
	ClientID        uint
	ProviderID      uint
	Items           []CreateOrderItem
	DeliveryAddress string
	Notes           string
	PaymentMode     models.PaymentMode
	PromoCode       string
}

// CreateOrder atomically creates an order with its items, decrements
// stock, and records promotion usage. Returns the committed order plus
// the outbox events to dispatch after commit.
func (l *OrderLedger) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, []notify.Event, error) {
	if len(input.Items) == 0 {
		return nil, nil, validationf("order must contain at least one item")
	}
	if input.DeliveryAddress == "" {
		return nil, nil, validationf("delivery address is required")
	}
	switch input.PaymentMode {
	case models.PaymentCIB, models.PaymentEdahabia, models.PaymentCash:
	default:
		return nil, nil, validationf("unknown payment mode %q", input.PaymentMode)
	}
	for _, item := range input.Items {
		if item.Quantity < 1 {
			return nil, nil, validationf("item quantity must be at least 1")
		}
	}

	var order models.Order
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var provider models.Provider
		if err := tx.First(&provider, input.ProviderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf("provider %d not found", input.ProviderID)
			}
			return err
		}
		if !provider.IsOpen {
			return conflictf("provider %q is currently closed", provider.Name)
		}

		var (
			orderItems []models.OrderItem
			subtotal   float64
		)
		for _, reqItem := range input.Items {
			var dish models.Dish
			if err := tx.Preload("Options").First(&dish, reqItem.DishID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFoundf("dish %d not found", reqItem.DishID)
				}
				return err
			}
			if dish.IsDeleted || !dish.IsAvailable {
				return validationf("dish %q is not available", dish.Name)
			}
			if dish.ProviderID != input.ProviderID {
				return validationf("dish %q does not belong to provider %d", dish.Name, input.ProviderID)
			}

			// Conditional decrement closes the read-then-write race: two
			// concurrent orders for the last unit cannot both pass.
			if dish.Stock != models.UnlimitedStock {
				res := tx.Model(&models.Dish{}).
					Where("id = ? AND stock >= ?", dish.ID, reqItem.Quantity).
					UpdateColumn("stock", gorm.Expr("stock - ?", reqItem.Quantity))
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					return ErrInsufficientStock
				}
			}
			if err := tx.Model(&models.Dish{}).Where("id = ?", dish.ID).
				UpdateColumn("order_count", gorm.Expr("order_count + 1")).Error; err != nil {
				return err
			}

			surcharge, optionNames, err := resolveOptions(dish, reqItem.OptionIDs)
			if err != nil {
				return err
			}
			unitPrice := dish.EffectivePrice() + surcharge
			lineTotal := unitPrice * float64(reqItem.Quantity)
			subtotal += lineTotal

			orderItems = append(orderItems, models.OrderItem{
				DishID:          dish.ID,
				Quantity:        reqItem.Quantity,
				UnitPrice:       unitPrice,
				OptionSurcharge: surcharge,
				LineTotal:       lineTotal,
				SelectedOptions: strings.Join(optionNames, ", "),
				Instructions:    reqItem.Instructions,
				DishName:        dish.Name,
				DishDescription: dish.Description,
				DishImage:       dish.Image,
			})
		}

		var (
			discount    float64
			deliveryFee = l.deliveryFee
			promotionID *uint
			usedPromoID uint
		)
		if input.PromoCode != "" {
			promo, err := l.redeemPromotionTx(tx, input.PromoCode, input.ProviderID, input.ClientID, subtotal)
			if err != nil {
				return err
			}
			switch promo.Type {
			case models.PromoPercentage:
				discount = subtotal * promo.Value / 100
				if promo.MaxDiscount > 0 && discount > promo.MaxDiscount {
					discount = promo.MaxDiscount
				}
			case models.PromoFixedAmount:
				discount = promo.Value
			case models.PromoFreeDelivery:
				deliveryFee = 0
			}
			usedPromoID = promo.ID
			promotionID = &usedPromoID
		}

		order = models.Order{
			Number:          newOrderNumber(),
			ClientID:        input.ClientID,
			ProviderID:      input.ProviderID,
			Status:          models.OrderPending,
			Subtotal:        subtotal,
			Discount:        discount,
			DeliveryFee:     deliveryFee,
			Total:           subtotal - discount + deliveryFee,
			PaymentMode:     input.PaymentMode,
			DeliveryAddress: input.DeliveryAddress,
			Notes:           input.Notes,
			PromotionID:     promotionID,
			Items:           orderItems,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		if promotionID != nil {
			usage := models.PromotionUsage{
				PromotionID: usedPromoID,
				UserID:      input.ClientID,
				OrderID:     order.ID,
				Discount:    discount,
			}
			if err := tx.Create(&usage).Error; err != nil {
				return err
			}
		}

		history := models.OrderHistory{
			OrderID:   order.ID,
			ToStatus:  models.OrderPending,
			Actor:     statemachine.ActorClient,
			ChangedBy: input.ClientID,
			Reason:    "Order placed",
		}
		return tx.Create(&history).Error
	})
	if err != nil {
		return nil, nil, err
	}
	l.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"number":   order.Number,
		"total":    order.Total,
	}).Info("order created")

	events := []notify.Event{
		notify.NewEvent("order.created", recipientProvider(order.ProviderID), map[string]interface{}{
			"order_id": order.ID,
			"number":   order.Number,
			"total":    order.Total,
		}),
		notify.NewEvent("order.confirmation", recipientClient(order.ClientID), map[string]interface{}{
			"order_id": order.ID,
			"number":   order.Number,
			"total":    order.Total,
			"status":   order.Status,
		}),
	}
	return &order, events, nil
}

// redeemPromotionTx validates every promotion condition and consumes one
// usage slot with a guarded increment. The per-user count check and the
// usage insert both happen inside the caller's transaction, so two
// concurrent requests for the last slot cannot both succeed.
func (l *OrderLedger) redeemPromotionTx(tx *gorm.DB, code string, providerID, clientID uint, subtotal float64) (*models.Promotion, error) {
	var promo models.Promotion
	err := tx.Where("code = ? AND is_active = ?", code, true).
		Where("provider_id IS NULL OR provider_id = ?", providerID).
		First(&promo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("promotion %q not found", code)
		}
		return nil, err
	}
	if !promo.InWindow(time.Now()) {
		return nil, conflictf("promotion %q is outside its validity window", code)
	}
	if subtotal < promo.MinOrderAmount {
		return nil, ErrPromotionNotEligible
	}

	if promo.PerUserLimit > 0 {
		var used int64
		if err := tx.Model(&models.PromotionUsage{}).
			Where("promotion_id = ? AND user_id = ?", promo.ID, clientID).
			Count(&used).Error; err != nil {
			return nil, err
		}
		if used >= int64(promo.PerUserLimit) {
			return nil, ErrPromotionExhausted
		}
	}

	// Guarded increment enforces the global cap atomically.
	res := tx.Model(&models.Promotion{}).
		Where("id = ? AND (usage_limit = ? OR used_count < usage_limit)", promo.ID, models.UnlimitedUsage).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrPromotionExhausted
	}
	return &promo, nil
}

type TransitionInput struct {
	Actor       string
	ActorID     uint
	Reason      string
	RefusalCode models.RefusalCode
}

// TransitionStatus advances an order through the status machine,
// appending one history row and applying the side effects the target
// status demands (stock restore, loyalty, courier accounting).
func (l *OrderLedger) TransitionStatus(ctx context.Context, orderID uint, next models.OrderStatus, input TransitionInput) (*models.Order, []notify.Event, error) {
	var (
		order  models.Order
		events []notify.Event
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf("order %d not found", orderID)
			}
			return err
		}
		evs, err := l.transitionTx(tx, &order, next, input)
		if err != nil {
			return err
		}
		events = evs
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	l.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"status":   next,
		"actor":    input.Actor,
	}).Info("order status updated")
	return &order, events, nil
}

// transitionTx is the in-transaction transition core, shared with the
// delivery dispatcher so order and delivery advance atomically together.
func (l *OrderLedger) transitionTx(tx *gorm.DB, order *models.Order, next models.OrderStatus, input TransitionInput) ([]notify.Event, error) {
	if statemachine.IsTerminalOrder(order.Status) {
		return nil, ErrOrderTerminal
	}
	if err := statemachine.CanTransitionOrder(order.Status, next, input.Actor); err != nil {
		return nil, conflictf("%s", err.Error())
	}

	prev := order.Status
	updates := map[string]interface{}{"status": next}
	var events []notify.Event

	switch next {
	case models.OrderCancelled:
		reason := input.Reason
		if input.Actor == statemachine.ActorProvider {
			if !models.ValidRefusalCode(input.RefusalCode) {
				return nil, validationf("a refusal reason code is required: out_of_stock, too_busy, outside_hours, delivery_zone or other")
			}
			updates["refusal_code"] = input.RefusalCode
			if reason == "" {
				reason = "Refused by provider (" + string(input.RefusalCode) + ")"
			}
		} else if reason == "" {
			reason = "Cancelled by " + input.Actor
		}
		updates["cancel_reason"] = reason
		input.Reason = reason

		if err := restoreStockTx(tx, order.Items); err != nil {
			return nil, err
		}
		if err := l.cancelActiveDeliveryTx(tx, order, input); err != nil {
			return nil, err
		}
		events = append(events, notify.NewEvent("order.cancelled", recipientClient(order.ClientID), map[string]interface{}{
			"order_id": order.ID,
			"number":   order.Number,
			"reason":   reason,
		}))

	case models.OrderReady:
		if _, err := ensureDeliveryTx(tx, order); err != nil {
			return nil, err
		}
		events = append(events, notify.NewEvent("order.ready", recipientClient(order.ClientID), map[string]interface{}{
			"order_id": order.ID,
			"number":   order.Number,
		}))

	case models.OrderDelivered:
		if err := l.settleDeliveredTx(tx, order); err != nil {
			return nil, err
		}
		events = append(events, notify.NewEvent("order.delivered", recipientClient(order.ClientID), map[string]interface{}{
			"order_id": order.ID,
			"number":   order.Number,
		}))
	}

	if err := tx.Model(order).Updates(updates).Error; err != nil {
		return nil, err
	}
	order.Status = next

	history := models.OrderHistory{
		OrderID:    order.ID,
		FromStatus: prev,
		ToStatus:   next,
		Actor:      input.Actor,
		ChangedBy:  input.ActorID,
		Reason:     input.Reason,
	}
	if err := tx.Create(&history).Error; err != nil {
		return nil, err
	}

	events = append(events, notify.NewEvent("order.status_changed", recipientProvider(order.ProviderID), map[string]interface{}{
		"order_id": order.ID,
		"number":   order.Number,
		"from":     prev,
		"to":       next,
	}))
	return events, nil
}

// settleDeliveredTx awards loyalty points and courier accounting when an
// order completes. Points are floor(total / 100); the tier follows the
// cumulative balance.
func (l *OrderLedger) settleDeliveredTx(tx *gorm.DB, order *models.Order) error {
	points := int(math.Floor(order.Total / 100))
	if points > 0 {
		var client models.User
		if err := tx.First(&client, order.ClientID).Error; err != nil {
			return err
		}
		balance := client.LoyaltyPoints + points
		if err := tx.Model(&client).Updates(map[string]interface{}{
			"loyalty_points": balance,
			"loyalty_tier":   models.TierFor(balance),
		}).Error; err != nil {
			return err
		}
	}

	var delivery models.Delivery
	err := tx.Where("order_id = ?", order.ID).First(&delivery).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if delivery.CourierID != nil {
		if err := tx.Model(&models.User{}).Where("id = ?", *delivery.CourierID).
			UpdateColumns(map[string]interface{}{
				"delivery_count": gorm.Expr("delivery_count + 1"),
				"commission":     gorm.Expr("commission + ?", delivery.Commission),
			}).Error; err != nil {
			return err
		}
	}
	return nil
}

// cancelActiveDeliveryTx handles the edge where an order is cancelled
// after a delivery was already assigned: only an admin may do it; the
// delivery is marked failed and the courier released.
func (l *OrderLedger) cancelActiveDeliveryTx(tx *gorm.DB, order *models.Order, input TransitionInput) error {
	var delivery models.Delivery
	err := tx.Where("order_id = ?", order.ID).First(&delivery).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if !models.IsActiveDeliveryStatus(delivery.Status) {
		if delivery.Status == models.DeliveryPending {
			return tx.Model(&delivery).Update("status", models.DeliveryFailed).Error
		}
		return nil
	}
	if input.Actor != statemachine.ActorAdmin {
		return conflictf("order has an active delivery; only an admin can cancel it")
	}
	if err := tx.Model(&delivery).Updates(map[string]interface{}{
		"status":         models.DeliveryFailed,
		"failure_reason": "order cancelled",
	}).Error; err != nil {
		return err
	}
	if delivery.CourierID != nil {
		return releaseCourierTx(tx, *delivery.CourierID, delivery.ID)
	}
	return nil
}

// restoreStockTx increments stock back for every cancelled item, skipping
// unlimited-stock dishes.
func restoreStockTx(tx *gorm.DB, items []models.OrderItem) error {
	for _, item := range items {
		if err := tx.Model(&models.Dish{}).
			Where("id = ? AND stock <> ?", item.DishID, models.UnlimitedStock).
			UpdateColumn("stock", gorm.Expr("stock + ?", item.Quantity)).Error; err != nil {
			return err
		}
	}
	return nil
}

func resolveOptions(dish models.Dish, optionIDs []uint) (float64, []string, error) {
	if len(optionIDs) == 0 {
		return 0, nil, nil
	}
	byID := make(map[uint]models.DishOption, len(dish.Options))
	for _, opt := range dish.Options {
		byID[opt.ID] = opt
	}
	var (
		surcharge float64
		names     []string
	)
	for _, id := range optionIDs {
		opt, ok := byID[id]
		if !ok {
			return 0, nil, validationf("option %d does not belong to dish %q", id, dish.Name)
		}
		surcharge += opt.Surcharge
		names = append(names, opt.Name)
	}
	return surcharge, names, nil
}

func newOrderNumber() string {
	frag := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + time.Now().Format("20060102") + "-" + frag
}

func recipientClient(id uint) string   { return "client:" + strconv.FormatUint(uint64(id), 10) }
func recipientProvider(id uint) string { return "provider:" + strconv.FormatUint(uint64(id), 10) }
func recipientCourier(id uint) string  { return "courier:" + strconv.FormatUint(uint64(id), 10) }
