package services

import (
	"context"
	"testing"

	"food-marketplace-api/models"
	"food-marketplace-api/statemachine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// readyOrder walks a fresh order to ready so a delivery exists.
func readyOrder(t *testing.T, ledger *OrderLedger, db *gorm.DB, client models.User, provider models.Provider, dish models.Dish) *models.Order {
	t.Helper()
	order, _, err := ledger.CreateOrder(context.Background(), orderInput(client, provider,
		CreateOrderItem{DishID: dish.ID, Quantity: 1},
	))
	require.NoError(t, err)
	for _, next := range []models.OrderStatus{models.OrderConfirmed, models.OrderPreparing, models.OrderReady} {
		var errT error
		order, _, errT = ledger.TransitionStatus(context.Background(), order.ID, next, TransitionInput{
			Actor: statemachine.ActorProvider, ActorID: provider.OwnerID,
		})
		require.NoError(t, errT)
	}
	return order
}

func TestEnsureDeliveryIsIdempotent(t *testing.T) {
	dispatcher, ledger, db := newTestDispatcher(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, models.UnlimitedStock)
	order := readyOrder(t, ledger, db, client, provider, dish)

	first, err := dispatcher.EnsureDeliveryForReadyOrder(context.Background(), order.ID)
	require.NoError(t, err)
	second, err := dispatcher.EnsureDeliveryForReadyOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	db.Model(&models.Delivery{}).Where("order_id = ?", order.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestEnsureDeliveryRejectsEarlyOrder(t *testing.T) {
	dispatcher, ledger, db := newTestDispatcher(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, models.UnlimitedStock)

	order, _, err := ledger.CreateOrder(context.Background(), orderInput(client, provider,
		CreateOrderItem{DishID: dish.ID, Quantity: 1},
	))
	require.NoError(t, err)

	_, err = dispatcher.EnsureDeliveryForReadyOrder(context.Background(), order.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAssignFlipsCourierAndAdvancesOrder(t *testing.T) {
	dispatcher, ledger, db := newTestDispatcher(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, models.UnlimitedStock)
	courier := seedCourier(t, db, 4.5, 10)
	order := readyOrder(t, ledger, db, client, provider, dish)

	delivery, err := dispatcher.EnsureDeliveryForReadyOrder(context.Background(), order.ID)
	require.NoError(t, err)

	assigned, _, err := dispatcher.Assign(context.Background(), delivery.ID, courier.ID, TransitionInput{
		Actor: statemachine.ActorAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryAssigned, assigned.Status)
	require.NotNil(t, assigned.CourierID)
	assert.Equal(t, courier.ID, *assigned.CourierID)
	assert.NotNil(t, assigned.AssignedAt)

	var freshCourier models.User
	require.NoError(t, db.First(&freshCourier, courier.ID).Error)
	assert.Equal(t, models.CourierBusy, freshCourier.Availability)

	var freshOrder models.Order
	require.NoError(t, db.First(&freshOrder, order.ID).Error)
	assert.Equal(t, models.OrderDelivering, freshOrder.Status)
}

func TestAssignRejectsBusyCourier(t *testing.T) {
	dispatcher, ledger, db := newTestDispatcher(t)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, models.UnlimitedStock)
	courier := seedCourier(t, db, 4.5, 10)

	orderA := readyOrder(t, ledger, db, seedClient(t, db), provider, dish)
	orderB := readyOrder(t, ledger, db, seedClient(t, db), provider, dish)

	deliveryA, err := dispatcher.EnsureDeliveryForReadyOrder(context.Background(), orderA.ID)
	require.NoError(t, err)
	deliveryB, err := dispatcher.EnsureDeliveryForReadyOrder(context.Background(), orderB.ID)
	require.NoError(t, err)

	_, _, err = dispatcher.Assign(context.Background(), deliveryA.ID, courier.ID, TransitionInput{Actor: statemachine.ActorAdmin})
	require.NoError(t, err)

	_, _, err = dispatcher.Assign(context.Background(), deliveryB.ID, courier.ID, TransitionInput{Actor: statemachine.ActorAdmin})
	assert.ErrorIs(t, err, ErrCourierUnavailable)
}

func TestAutoAssignPrefersRatingThenDeliveryCount(t *testing.T) {
	dispatcher, ledger, db := newTestDispatcher(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, models.UnlimitedStock)

	seedCourier(t, db, 4.8, 10)
	expected := seedCourier(t, db, 4.8, 25)
	seedCourier(t, db, 4.2, 100)

	order := readyOrder(t, ledger, db, client, provider, dish)

	delivery, _, err := dispatcher.AutoAssign(context.Background(), order.ID, TransitionInput{Actor: statemachine.ActorAdmin})
	require.NoError(t, err)
	require.NotNil(t, delivery.CourierID)
	assert.Equal(t, expected.ID, *delivery.CourierID)
}

func TestAutoAssignFailsWithNoCandidates(t *testing.T) {
	dispatcher, ledger, db := newTestDispatcher(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, models.UnlimitedStock)

	offline := seedCourier(t, db, 4.8, 10)
	require.NoError(t, db.Model(&offline).Update("availability", models.CourierOffline).Error)

	order := readyOrder(t, ledger, db, client, provider, dish)

	_, _, err := dispatcher.AutoAssign(context.Background(), order.ID, TransitionInput{Actor: statemachine.ActorAdmin})
	assert.ErrorIs(t, err, ErrNoCourierAvailable)
}

func TestDeliveryLifecycleToDelivered(t *testing.T) {
	dispatcher, ledger, db := newTestDispatcher(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, models.UnlimitedStock)
	courier := seedCourier(t, db, 4.5, 10)
	order := readyOrder(t, ledger, db, client, provider, dish)

	delivery, _, err := dispatcher.AutoAssign(context.Background(), order.ID, TransitionInput{Actor: statemachine.ActorAdmin})
	require.NoError(t, err)

	// delivered cannot be reached without passing through the middle states
	_, _, err = dispatcher.UpdateDeliveryStatus(context.Background(), delivery.ID, models.DeliveryDelivered, DeliveryUpdateInput{
		Actor: statemachine.ActorCourier, ActorID: courier.ID,
	})
	assert.ErrorIs(t, err, ErrConflict)

	for _, next := range []models.DeliveryStatus{models.DeliveryPickedUp, models.DeliveryInTransit, models.DeliveryDelivered} {
		delivery, _, err = dispatcher.UpdateDeliveryStatus(context.Background(), delivery.ID, next, DeliveryUpdateInput{
			Actor: statemachine.ActorCourier, ActorID: courier.ID,
		})
		require.NoError(t, err)
	}

	assert.NotNil(t, delivery.PickedUpAt)
	assert.NotNil(t, delivery.DeliveredAt)
	assert.Equal(t, delivery.Fee*0.8, delivery.Commission)

	// order completed with it, atomically
	var freshOrder models.Order
	require.NoError(t, db.First(&freshOrder, order.ID).Error)
	assert.Equal(t, models.OrderDelivered, freshOrder.Status)

	// loyalty: floor(total/100) points on the client
	var freshClient models.User
	require.NoError(t, db.First(&freshClient, client.ID).Error)
	assert.Equal(t, int(freshOrder.Total/100), freshClient.LoyaltyPoints)

	// courier released and credited
	var freshCourier models.User
	require.NoError(t, db.First(&freshCourier, courier.ID).Error)
	assert.Equal(t, models.CourierAvailable, freshCourier.Availability)
	assert.Equal(t, 11, freshCourier.DeliveryCount)
	assert.Equal(t, delivery.Commission, freshCourier.Commission)
}

func TestDeliveryFailureRequiresReasonAndKeepsStock(t *testing.T) {
	dispatcher, ledger, db := newTestDispatcher(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, 5)
	courier := seedCourier(t, db, 4.5, 10)
	order := readyOrder(t, ledger, db, client, provider, dish)

	delivery, _, err := dispatcher.AutoAssign(context.Background(), order.ID, TransitionInput{Actor: statemachine.ActorAdmin})
	require.NoError(t, err)

	_, _, err = dispatcher.UpdateDeliveryStatus(context.Background(), delivery.ID, models.DeliveryFailed, DeliveryUpdateInput{
		Actor: statemachine.ActorCourier, ActorID: courier.ID,
	})
	assert.ErrorIs(t, err, ErrValidation)

	failed, _, err := dispatcher.UpdateDeliveryStatus(context.Background(), delivery.ID, models.DeliveryFailed, DeliveryUpdateInput{
		Actor: statemachine.ActorCourier, ActorID: courier.ID, FailureReason: "client unreachable",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryFailed, failed.Status)

	// failure is not a cancellation: stock stays decremented
	var d models.Dish
	require.NoError(t, db.First(&d, dish.ID).Error)
	assert.Equal(t, 4, d.Stock)

	// courier freed for the next job
	var freshCourier models.User
	require.NoError(t, db.First(&freshCourier, courier.ID).Error)
	assert.Equal(t, models.CourierAvailable, freshCourier.Availability)
}

func TestReassignReleasesPreviousCourier(t *testing.T) {
	dispatcher, ledger, db := newTestDispatcher(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, models.UnlimitedStock)
	first := seedCourier(t, db, 4.9, 50)
	second := seedCourier(t, db, 4.0, 5)
	order := readyOrder(t, ledger, db, client, provider, dish)

	delivery, _, err := dispatcher.AutoAssign(context.Background(), order.ID, TransitionInput{Actor: statemachine.ActorAdmin})
	require.NoError(t, err)
	require.Equal(t, first.ID, *delivery.CourierID)

	reassigned, _, err := dispatcher.Assign(context.Background(), delivery.ID, second.ID, TransitionInput{
		Actor: statemachine.ActorAdmin, Reason: "first courier stuck in traffic",
	})
	require.NoError(t, err)
	assert.Equal(t, second.ID, *reassigned.CourierID)

	var freshFirst, freshSecond models.User
	require.NoError(t, db.First(&freshFirst, first.ID).Error)
	require.NoError(t, db.First(&freshSecond, second.ID).Error)
	assert.Equal(t, models.CourierAvailable, freshFirst.Availability)
	assert.Equal(t, models.CourierBusy, freshSecond.Availability)

	// the new courier stays busy: another delivery cannot grab them
	otherOrder := readyOrder(t, ledger, db, client, provider, dish)
	otherDelivery, err := dispatcher.EnsureDeliveryForReadyOrder(context.Background(), otherOrder.ID)
	require.NoError(t, err)
	_, _, err = dispatcher.Assign(context.Background(), otherDelivery.ID, second.ID, TransitionInput{Actor: statemachine.ActorAdmin})
	assert.ErrorIs(t, err, ErrCourierUnavailable)
}

func TestSetCourierAvailabilityFlipsIdleCourier(t *testing.T) {
	dispatcher, _, db := newTestDispatcher(t)
	courier := seedCourier(t, db, 4.5, 10)

	require.NoError(t, dispatcher.SetCourierAvailability(context.Background(), courier.ID, models.CourierOffline))
	var fresh models.User
	require.NoError(t, db.First(&fresh, courier.ID).Error)
	assert.Equal(t, models.CourierOffline, fresh.Availability)

	require.NoError(t, dispatcher.SetCourierAvailability(context.Background(), courier.ID, models.CourierAvailable))

	// busy cannot be self-assigned
	err := dispatcher.SetCourierAvailability(context.Background(), courier.ID, models.CourierBusy)
	assert.ErrorIs(t, err, ErrValidation)

	err = dispatcher.SetCourierAvailability(context.Background(), 9999, models.CourierOffline)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetCourierAvailabilityCannotOverrideAssignment(t *testing.T) {
	dispatcher, ledger, db := newTestDispatcher(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, models.UnlimitedStock)
	courier := seedCourier(t, db, 4.5, 10)
	order := readyOrder(t, ledger, db, client, provider, dish)

	delivery, _, err := dispatcher.AutoAssign(context.Background(), order.ID, TransitionInput{Actor: statemachine.ActorAdmin})
	require.NoError(t, err)
	require.Equal(t, courier.ID, *delivery.CourierID)

	// the conditional write loses against the assignment, not the reverse
	err = dispatcher.SetCourierAvailability(context.Background(), courier.ID, models.CourierAvailable)
	assert.ErrorIs(t, err, ErrConflict)
	err = dispatcher.SetCourierAvailability(context.Background(), courier.ID, models.CourierOffline)
	assert.ErrorIs(t, err, ErrConflict)

	var fresh models.User
	require.NoError(t, db.First(&fresh, courier.ID).Error)
	assert.Equal(t, models.CourierBusy, fresh.Availability)

	// once the delivery completes, the courier may go offline
	for _, next := range []models.DeliveryStatus{models.DeliveryPickedUp, models.DeliveryInTransit, models.DeliveryDelivered} {
		_, _, err = dispatcher.UpdateDeliveryStatus(context.Background(), delivery.ID, next, DeliveryUpdateInput{
			Actor: statemachine.ActorCourier, ActorID: courier.ID,
		})
		require.NoError(t, err)
	}
	require.NoError(t, dispatcher.SetCourierAvailability(context.Background(), courier.ID, models.CourierOffline))
}

func TestCourierCannotUpdateForeignDelivery(t *testing.T) {
	dispatcher, ledger, db := newTestDispatcher(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, models.UnlimitedStock)
	assigned := seedCourier(t, db, 4.5, 10)
	other := seedCourier(t, db, 4.0, 1)
	order := readyOrder(t, ledger, db, client, provider, dish)

	delivery, err := dispatcher.EnsureDeliveryForReadyOrder(context.Background(), order.ID)
	require.NoError(t, err)
	_, _, err = dispatcher.Assign(context.Background(), delivery.ID, assigned.ID, TransitionInput{Actor: statemachine.ActorAdmin})
	require.NoError(t, err)

	_, _, err = dispatcher.UpdateDeliveryStatus(context.Background(), delivery.ID, models.DeliveryPickedUp, DeliveryUpdateInput{
		Actor: statemachine.ActorCourier, ActorID: other.ID,
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAdminCancelWithActiveDeliveryFailsIt(t *testing.T) {
	dispatcher, ledger, db := newTestDispatcher(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, 5)
	courier := seedCourier(t, db, 4.5, 10)
	order := readyOrder(t, ledger, db, client, provider, dish)

	delivery, _, err := dispatcher.AutoAssign(context.Background(), order.ID, TransitionInput{Actor: statemachine.ActorAdmin})
	require.NoError(t, err)

	// a client cannot cancel once a courier is on the way
	_, _, err = ledger.TransitionStatus(context.Background(), order.ID, models.OrderCancelled, TransitionInput{
		Actor: statemachine.ActorClient, ActorID: client.ID,
	})
	assert.ErrorIs(t, err, ErrConflict)

	// an admin can; the delivery fails and the courier is released
	_, _, err = ledger.TransitionStatus(context.Background(), order.ID, models.OrderCancelled, TransitionInput{
		Actor: statemachine.ActorAdmin, Reason: "fraud",
	})
	require.NoError(t, err)

	var freshDelivery models.Delivery
	require.NoError(t, db.First(&freshDelivery, delivery.ID).Error)
	assert.Equal(t, models.DeliveryFailed, freshDelivery.Status)

	var freshCourier models.User
	require.NoError(t, db.First(&freshCourier, courier.ID).Error)
	assert.Equal(t, models.CourierAvailable, freshCourier.Availability)
}
