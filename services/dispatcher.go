package services

import (
	"context"
	"errors"
	"time"

	"food-marketplace-api/models"
	"food-marketplace-api/notify"
	"food-marketplace-api/statemachine"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DeliveryDispatcher creates delivery records for ready orders, assigns
// and reassigns couriers, and drives delivery status transitions. The
// coupled order transition always happens inside the same transaction.
type DeliveryDispatcher struct {
	db             *gorm.DB
	ledger         *OrderLedger
	log            *logrus.Logger
	commissionRate float64
}

func NewDeliveryDispatcher(db *gorm.DB, ledger *OrderLedger, log *logrus.Logger, commissionRate float64) *DeliveryDispatcher {
	return &DeliveryDispatcher{db: db, ledger: ledger, log: log, commissionRate: commissionRate}
}

// EnsureDeliveryForReadyOrder is idempotent: it returns the existing
// delivery if present, else creates a pending one copying the pickup
// (provider) and dropoff (order) addresses and the fee.
func (d *DeliveryDispatcher) EnsureDeliveryForReadyOrder(ctx context.Context, orderID uint) (*models.Delivery, error) {
	var delivery *models.Delivery
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf("order %d not found", orderID)
			}
			return err
		}
		if order.Status == models.OrderPreparing {
			return conflictf("order %s is not ready for dispatch", order.Number)
		}
		dv, err := ensureDeliveryTx(tx, &order)
		if err != nil {
			return err
		}
		delivery = dv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

// ensureDeliveryTx holds the invariant that a delivery exists iff its
// order reached ready or later. Shared with the order ledger's ready
// transition.
func ensureDeliveryTx(tx *gorm.DB, order *models.Order) (*models.Delivery, error) {
	var existing models.Delivery
	err := tx.Where("order_id = ?", order.ID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	switch order.Status {
	case models.OrderReady, models.OrderDelivering, models.OrderDelivered:
	case models.OrderPreparing:
		// The ledger calls in while the order row still reads preparing,
		// mid-transition to ready.
	default:
		return nil, conflictf("order %s is not ready for dispatch", order.Number)
	}

	var provider models.Provider
	if err := tx.First(&provider, order.ProviderID).Error; err != nil {
		return nil, err
	}

	delivery := models.Delivery{
		OrderID:        order.ID,
		Status:         models.DeliveryPending,
		PickupAddress:  provider.Address,
		DropoffAddress: order.DeliveryAddress,
		Fee:            order.DeliveryFee,
	}
	if err := tx.Create(&delivery).Error; err != nil {
		return nil, err
	}
	return &delivery, nil
}

// Assign puts a courier on a delivery. Courier availability and the
// delivery's courier reference move in one atomic test-and-set; the
// order simultaneously advances to delivering.
func (d *DeliveryDispatcher) Assign(ctx context.Context, deliveryID, courierID uint, input TransitionInput) (*models.Delivery, []notify.Event, error) {
	var (
		delivery models.Delivery
		events   []notify.Event
	)
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&delivery, deliveryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf("delivery %d not found", deliveryID)
			}
			return err
		}
		evs, err := d.assignTx(tx, &delivery, courierID, input)
		if err != nil {
			return err
		}
		events = evs
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	d.log.WithFields(logrus.Fields{
		"delivery_id": delivery.ID,
		"courier_id":  courierID,
	}).Info("courier assigned")
	return &delivery, events, nil
}

func (d *DeliveryDispatcher) assignTx(tx *gorm.DB, delivery *models.Delivery, courierID uint, input TransitionInput) ([]notify.Event, error) {
	if statemachine.IsTerminalDelivery(delivery.Status) {
		return nil, ErrDeliveryTerminal
	}
	reassignment := delivery.CourierID != nil && models.IsActiveDeliveryStatus(delivery.Status)
	if !reassignment && delivery.Status != models.DeliveryPending {
		return nil, conflictf("delivery %d cannot be assigned from status %s", delivery.ID, delivery.Status)
	}
	if reassignment && *delivery.CourierID == courierID {
		return nil, validationf("courier %d is already assigned to this delivery", courierID)
	}

	// Single atomic test-and-set: the flip to busy only succeeds if the
	// courier is still available, closing the double-assignment race.
	res := tx.Model(&models.User{}).
		Where("id = ? AND role = ? AND is_active = ? AND availability = ?",
			courierID, models.RoleCourier, true, models.CourierAvailable).
		Update("availability", models.CourierBusy)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var courier models.User
		if err := tx.First(&courier, courierID).Error; err != nil || courier.Role != models.RoleCourier {
			return nil, notFoundf("courier %d not found", courierID)
		}
		return nil, ErrCourierUnavailable
	}

	// Copy the value out: the update below writes the new courier id
	// through the struct, so holding the old pointer would release the
	// wrong courier.
	var previous uint
	if reassignment {
		previous = *delivery.CourierID
	}

	now := time.Now()
	if err := tx.Model(delivery).Updates(map[string]interface{}{
		"courier_id":  courierID,
		"status":      models.DeliveryAssigned,
		"assigned_at": now,
	}).Error; err != nil {
		return nil, err
	}
	delivery.CourierID = &courierID
	delivery.Status = models.DeliveryAssigned
	delivery.AssignedAt = &now

	if previous != 0 {
		if err := releaseCourierTx(tx, previous, delivery.ID); err != nil {
			return nil, err
		}
	}

	var order models.Order
	if err := tx.Preload("Items").First(&order, delivery.OrderID).Error; err != nil {
		return nil, err
	}
	var events []notify.Event
	if order.Status == models.OrderReady {
		evs, err := d.ledger.transitionTx(tx, &order, models.OrderDelivering, TransitionInput{
			Actor:   statemachine.ActorSystem,
			ActorID: input.ActorID,
			Reason:  "Courier assigned",
		})
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}

	events = append(events,
		notify.NewEvent("delivery.assigned", recipientCourier(courierID), map[string]interface{}{
			"delivery_id": delivery.ID,
			"order_id":    order.ID,
			"pickup":      delivery.PickupAddress,
			"dropoff":     delivery.DropoffAddress,
		}),
		notify.NewEvent("delivery.assigned", recipientClient(order.ClientID), map[string]interface{}{
			"delivery_id": delivery.ID,
			"order_id":    order.ID,
		}),
	)
	return events, nil
}

// AutoAssign picks the best available courier: highest rating first,
// ties broken by highest lifetime delivery count.
func (d *DeliveryDispatcher) AutoAssign(ctx context.Context, orderID uint, input TransitionInput) (*models.Delivery, []notify.Event, error) {
	var (
		delivery *models.Delivery
		events   []notify.Event
	)
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf("order %d not found", orderID)
			}
			return err
		}
		if order.Status == models.OrderPreparing {
			return conflictf("order %s is not ready for dispatch", order.Number)
		}
		dv, err := ensureDeliveryTx(tx, &order)
		if err != nil {
			return err
		}

		var candidates []models.User
		if err := tx.Where("role = ? AND is_active = ? AND availability = ?",
			models.RoleCourier, true, models.CourierAvailable).
			Order("rating DESC, delivery_count DESC").
			Find(&candidates).Error; err != nil {
			return err
		}
		if len(candidates) == 0 {
			return ErrNoCourierAvailable
		}

		// The test-and-set in assignTx can lose to a concurrent assign;
		// fall through to the next candidate when it does.
		for _, candidate := range candidates {
			evs, err := d.assignTx(tx, dv, candidate.ID, input)
			if err != nil {
				if errors.Is(err, ErrCourierUnavailable) {
					continue
				}
				return err
			}
			delivery = dv
			events = evs
			return nil
		}
		return ErrNoCourierAvailable
	})
	if err != nil {
		return nil, nil, err
	}
	return delivery, events, nil
}

// SetCourierAvailability flips a courier between available and offline.
// Busy is owned by assignment, so the write is conditional on the courier
// not being busy: a concurrent assign cannot be overwritten.
func (d *DeliveryDispatcher) SetCourierAvailability(ctx context.Context, courierID uint, target models.CourierAvailability) error {
	if target != models.CourierAvailable && target != models.CourierOffline {
		return validationf("availability must be 'available' or 'offline'")
	}
	res := d.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND role = ? AND availability <> ?", courierID, models.RoleCourier, models.CourierBusy).
		Update("availability", target)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var courier models.User
		if err := d.db.WithContext(ctx).First(&courier, courierID).Error; err != nil || courier.Role != models.RoleCourier {
			return notFoundf("courier %d not found", courierID)
		}
		return conflictf("courier %d still has an active delivery", courierID)
	}
	return nil
}

type DeliveryUpdateInput struct {
	Actor         string
	ActorID       uint
	FailureReason string
	Latitude      *float64
	Longitude     *float64
}

// UpdateDeliveryStatus advances the delivery machine. Reaching delivered
// stamps times, computes the courier's commission, completes the order
// and releases the courier, all in one transaction.
func (d *DeliveryDispatcher) UpdateDeliveryStatus(ctx context.Context, deliveryID uint, next models.DeliveryStatus, input DeliveryUpdateInput) (*models.Delivery, []notify.Event, error) {
	var (
		delivery models.Delivery
		events   []notify.Event
	)
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&delivery, deliveryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf("delivery %d not found", deliveryID)
			}
			return err
		}
		if input.Actor == statemachine.ActorCourier {
			if delivery.CourierID == nil || *delivery.CourierID != input.ActorID {
				return forbiddenf("you are not the assigned courier for this delivery")
			}
		}
		if next == models.DeliveryAssigned {
			return conflictf("assignment goes through the assign operation, not a status update")
		}
		if err := statemachine.CanTransitionDelivery(delivery.Status, next); err != nil {
			return conflictf("%s", err.Error())
		}

		var order models.Order
		if err := tx.Preload("Items").First(&order, delivery.OrderID).Error; err != nil {
			return err
		}

		now := time.Now()
		updates := map[string]interface{}{"status": next}
		if input.Latitude != nil && input.Longitude != nil {
			updates["latitude"] = *input.Latitude
			updates["longitude"] = *input.Longitude
			updates["position_at"] = now
		}

		switch next {
		case models.DeliveryPickedUp:
			updates["picked_up_at"] = now
			delivery.PickedUpAt = &now
			events = append(events, notify.NewEvent("delivery.picked_up", recipientClient(order.ClientID), map[string]interface{}{
				"delivery_id": delivery.ID,
				"order_id":    order.ID,
			}))

		case models.DeliveryDelivered:
			updates["delivered_at"] = now
			// Commission is the courier's fixed share of the delivery fee.
			commission := delivery.Fee * d.commissionRate
			updates["commission"] = commission
			delivery.Commission = commission
			delivery.DeliveredAt = &now

		case models.DeliveryFailed:
			if input.FailureReason == "" {
				return validationf("a failure reason is required")
			}
			// A failed delivery does not restore stock; that is order
			// cancellation's job.
			updates["failure_reason"] = input.FailureReason
		}

		if err := tx.Model(&delivery).Updates(updates).Error; err != nil {
			return err
		}
		delivery.Status = next

		if next == models.DeliveryDelivered || next == models.DeliveryFailed {
			if delivery.CourierID != nil {
				if err := releaseCourierTx(tx, *delivery.CourierID, delivery.ID); err != nil {
					return err
				}
			}
		}

		if next == models.DeliveryDelivered {
			evs, err := d.ledger.transitionTx(tx, &order, models.OrderDelivered, TransitionInput{
				Actor:   statemachine.ActorSystem,
				ActorID: input.ActorID,
				Reason:  "Delivery completed",
			})
			if err != nil {
				return err
			}
			events = append(events, evs...)
		}
		if next == models.DeliveryFailed {
			events = append(events, notify.NewEvent("delivery.failed", recipientProvider(order.ProviderID), map[string]interface{}{
				"delivery_id": delivery.ID,
				"order_id":    order.ID,
				"reason":      input.FailureReason,
			}))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	d.log.WithFields(logrus.Fields{
		"delivery_id": delivery.ID,
		"status":      next,
	}).Info("delivery status updated")
	return &delivery, events, nil
}

// releaseCourierTx flips a courier back to available only if no other
// delivery remains active for them.
func releaseCourierTx(tx *gorm.DB, courierID, excludeDeliveryID uint) error {
	var active int64
	if err := tx.Model(&models.Delivery{}).
		Where("courier_id = ? AND id <> ? AND status IN ?", courierID, excludeDeliveryID, models.ActiveDeliveryStatuses).
		Count(&active).Error; err != nil {
		return err
	}
	if active > 0 {
		return nil
	}
	return tx.Model(&models.User{}).
		Where("id = ? AND availability = ?", courierID, models.CourierBusy).
		Update("availability", models.CourierAvailable).Error
}
