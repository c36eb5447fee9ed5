package services

import (
	"context"
	"sync"
	"testing"

	"food-marketplace-api/models"
	"food-marketplace-api/statemachine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderInput(client models.User, provider models.Provider, items ...CreateOrderItem) CreateOrderInput {
	return CreateOrderInput{
		ClientID:        client.ID,
		ProviderID:      provider.ID,
		Items:           items,
		DeliveryAddress: "Cité 200 Logements, Bab Ezzouar",
		PaymentMode:     models.PaymentCash,
	}
}

func TestCreateOrderPricingWithPercentagePromo(t *testing.T) {
	ledger, db := newTestLedger(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dishA := seedDish(t, db, provider.ID, 300, 5)
	dishB := seedDish(t, db, provider.ID, 800, models.UnlimitedStock)
	seedPromotion(t, db, models.Promotion{
		Code: "10PCT", Type: models.PromoPercentage, Value: 10,
		UsageLimit: models.UnlimitedUsage, PerUserLimit: 5,
	})

	input := orderInput(client, provider,
		CreateOrderItem{DishID: dishA.ID, Quantity: 2},
		CreateOrderItem{DishID: dishB.ID, Quantity: 1},
	)
	input.PromoCode = "10PCT"

	order, events, err := ledger.CreateOrder(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 1400.0, order.Subtotal)
	assert.Equal(t, 140.0, order.Discount)
	assert.Equal(t, 200.0, order.DeliveryFee)
	assert.Equal(t, 1460.0, order.Total)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.NotEmpty(t, order.Number)
	assert.Len(t, events, 2)

	// Line totals reconcile with the subtotal
	var items []models.OrderItem
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&items).Error)
	var sum float64
	for _, item := range items {
		sum += item.LineTotal
	}
	assert.Equal(t, order.Subtotal, sum)
	assert.Equal(t, order.Total, order.Subtotal-order.Discount+order.DeliveryFee)

	// Stock decremented on the limited dish only
	var a, b models.Dish
	require.NoError(t, db.First(&a, dishA.ID).Error)
	require.NoError(t, db.First(&b, dishB.ID).Error)
	assert.Equal(t, 3, a.Stock)
	assert.Equal(t, models.UnlimitedStock, b.Stock)

	// Promotion accounting
	var usage models.PromotionUsage
	require.NoError(t, db.Where("user_id = ?", client.ID).First(&usage).Error)
	assert.Equal(t, 140.0, usage.Discount)

	// Dish snapshot captured
	assert.Equal(t, dishA.Name, items[0].DishName)
}

func TestCreateOrderFreeDeliveryPromo(t *testing.T) {
	ledger, db := newTestLedger(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 500, models.UnlimitedStock)
	seedPromotion(t, db, models.Promotion{
		Code: "FREESHIP", Type: models.PromoFreeDelivery,
		UsageLimit: models.UnlimitedUsage, PerUserLimit: 1,
	})

	input := orderInput(client, provider, CreateOrderItem{DishID: dish.ID, Quantity: 1})
	input.PromoCode = "FREESHIP"

	order, _, err := ledger.CreateOrder(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 0.0, order.Discount)
	assert.Equal(t, 0.0, order.DeliveryFee)
	assert.Equal(t, 500.0, order.Total)
}

func TestCreateOrderPercentagePromoCappedAtMaxDiscount(t *testing.T) {
	ledger, db := newTestLedger(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 2000, models.UnlimitedStock)
	seedPromotion(t, db, models.Promotion{
		Code: "BIG50", Type: models.PromoPercentage, Value: 50, MaxDiscount: 300,
		UsageLimit: models.UnlimitedUsage, PerUserLimit: 1,
	})

	input := orderInput(client, provider, CreateOrderItem{DishID: dish.ID, Quantity: 1})
	input.PromoCode = "BIG50"

	order, _, err := ledger.CreateOrder(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 300.0, order.Discount)
}

func TestCreateOrderValidation(t *testing.T) {
	ledger, db := newTestLedger(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	other := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, 5)
	foreign := seedDish(t, db, other.ID, 400, 5)

	t.Run("empty cart", func(t *testing.T) {
		_, _, err := ledger.CreateOrder(context.Background(), orderInput(client, provider))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("mixed providers", func(t *testing.T) {
		_, _, err := ledger.CreateOrder(context.Background(), orderInput(client, provider,
			CreateOrderItem{DishID: dish.ID, Quantity: 1},
			CreateOrderItem{DishID: foreign.ID, Quantity: 1},
		))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown dish", func(t *testing.T) {
		_, _, err := ledger.CreateOrder(context.Background(), orderInput(client, provider,
			CreateOrderItem{DishID: 9999, Quantity: 1},
		))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unavailable dish", func(t *testing.T) {
		unavailable := seedDish(t, db, provider.ID, 300, 5)
		require.NoError(t, db.Model(&unavailable).Update("is_available", false).Error)
		_, _, err := ledger.CreateOrder(context.Background(), orderInput(client, provider,
			CreateOrderItem{DishID: unavailable.ID, Quantity: 1},
		))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("quantity above stock", func(t *testing.T) {
		_, _, err := ledger.CreateOrder(context.Background(), orderInput(client, provider,
			CreateOrderItem{DishID: dish.ID, Quantity: 6},
		))
		assert.ErrorIs(t, err, ErrInsufficientStock)
	})

	t.Run("no partial effect after failure", func(t *testing.T) {
		var d models.Dish
		require.NoError(t, db.First(&d, dish.ID).Error)
		assert.Equal(t, 5, d.Stock)
		var count int64
		db.Model(&models.Order{}).Count(&count)
		assert.Zero(t, count)
	})
}

func TestConcurrentOrdersCannotOversell(t *testing.T) {
	ledger, db := newTestLedger(t)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, 5)

	clients := make([]models.User, 8)
	for i := range clients {
		clients[i] = seedClient(t, db)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(client models.User) {
			defer wg.Done()
			_, _, err := ledger.CreateOrder(context.Background(), orderInput(client, provider,
				CreateOrderItem{DishID: dish.ID, Quantity: 1},
			))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, ErrConflict):
				conflicts++
			}
		}(clients[i])
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 3, conflicts)

	var d models.Dish
	require.NoError(t, db.First(&d, dish.ID).Error)
	assert.Equal(t, 0, d.Stock)
}

func TestConcurrentPromoRedemptionLastSlot(t *testing.T) {
	ledger, db := newTestLedger(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 500, models.UnlimitedStock)
	seedPromotion(t, db, models.Promotion{
		Code: "LAST1", Type: models.PromoFixedAmount, Value: 100,
		UsageLimit: 1, PerUserLimit: 1,
	})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			input := orderInput(client, provider, CreateOrderItem{DishID: dish.ID, Quantity: 1})
			input.PromoCode = "LAST1"
			_, _, err := ledger.CreateOrder(context.Background(), input)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if assert.ErrorIs(t, err, ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicts)

	var usages int64
	db.Model(&models.PromotionUsage{}).Count(&usages)
	assert.EqualValues(t, 1, usages)
}

func TestCancelRestoresStock(t *testing.T) {
	ledger, db := newTestLedger(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dishA := seedDish(t, db, provider.ID, 300, 10)
	dishB := seedDish(t, db, provider.ID, 400, 10)

	order, _, err := ledger.CreateOrder(context.Background(), orderInput(client, provider,
		CreateOrderItem{DishID: dishA.ID, Quantity: 1},
		CreateOrderItem{DishID: dishB.ID, Quantity: 3},
	))
	require.NoError(t, err)

	var a, b models.Dish
	require.NoError(t, db.First(&a, dishA.ID).Error)
	require.NoError(t, db.First(&b, dishB.ID).Error)
	require.Equal(t, 9, a.Stock)
	require.Equal(t, 7, b.Stock)

	_, _, err = ledger.TransitionStatus(context.Background(), order.ID, models.OrderCancelled, TransitionInput{
		Actor:   statemachine.ActorClient,
		ActorID: client.ID,
	})
	require.NoError(t, err)

	require.NoError(t, db.First(&a, dishA.ID).Error)
	require.NoError(t, db.First(&b, dishB.ID).Error)
	assert.Equal(t, 10, a.Stock)
	assert.Equal(t, 10, b.Stock)
}

func TestProviderRefusalRequiresReasonCode(t *testing.T) {
	ledger, db := newTestLedger(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, models.UnlimitedStock)

	order, _, err := ledger.CreateOrder(context.Background(), orderInput(client, provider,
		CreateOrderItem{DishID: dish.ID, Quantity: 1},
	))
	require.NoError(t, err)

	_, _, err = ledger.TransitionStatus(context.Background(), order.ID, models.OrderCancelled, TransitionInput{
		Actor: statemachine.ActorProvider,
	})
	assert.ErrorIs(t, err, ErrValidation)

	updated, _, err := ledger.TransitionStatus(context.Background(), order.ID, models.OrderCancelled, TransitionInput{
		Actor:       statemachine.ActorProvider,
		RefusalCode: models.RefusalTooBusy,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RefusalTooBusy, updated.RefusalCode)
}

func TestTransitionDiscipline(t *testing.T) {
	ledger, db := newTestLedger(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, models.UnlimitedStock)

	order, _, err := ledger.CreateOrder(context.Background(), orderInput(client, provider,
		CreateOrderItem{DishID: dish.ID, Quantity: 1},
	))
	require.NoError(t, err)

	// pending → preparing skips confirmed
	_, _, err = ledger.TransitionStatus(context.Background(), order.ID, models.OrderPreparing, TransitionInput{
		Actor: statemachine.ActorProvider,
	})
	assert.ErrorIs(t, err, ErrConflict)

	// a client cannot confirm
	_, _, err = ledger.TransitionStatus(context.Background(), order.ID, models.OrderConfirmed, TransitionInput{
		Actor: statemachine.ActorClient,
	})
	assert.ErrorIs(t, err, ErrConflict)

	// the happy path appends one history row per hop
	for _, next := range []models.OrderStatus{models.OrderConfirmed, models.OrderPreparing, models.OrderReady} {
		_, _, err = ledger.TransitionStatus(context.Background(), order.ID, next, TransitionInput{
			Actor: statemachine.ActorProvider, ActorID: provider.OwnerID,
		})
		require.NoError(t, err)
	}

	var history []models.OrderHistory
	require.NoError(t, db.Where("order_id = ?", order.ID).Order("id").Find(&history).Error)
	require.Len(t, history, 4) // placed + 3 transitions
	for _, h := range history[1:] {
		assert.Contains(t, statemachine.AllowedNextOrder(h.FromStatus), h.ToStatus)
	}

	// terminal orders reject everything
	_, _, err = ledger.TransitionStatus(context.Background(), order.ID, models.OrderCancelled, TransitionInput{
		Actor: statemachine.ActorClient,
	})
	assert.ErrorIs(t, err, ErrConflict)

	// reaching ready created the delivery
	var delivery models.Delivery
	require.NoError(t, db.Where("order_id = ?", order.ID).First(&delivery).Error)
	assert.Equal(t, models.DeliveryPending, delivery.Status)
	assert.Equal(t, provider.Address, delivery.PickupAddress)
	assert.Equal(t, order.DeliveryAddress, delivery.DropoffAddress)
}

func TestPromotionPerUserCap(t *testing.T) {
	ledger, db := newTestLedger(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 500, models.UnlimitedStock)
	seedPromotion(t, db, models.Promotion{
		Code: "ONCE", Type: models.PromoFixedAmount, Value: 50,
		UsageLimit: models.UnlimitedUsage, PerUserLimit: 1,
	})

	input := orderInput(client, provider, CreateOrderItem{DishID: dish.ID, Quantity: 1})
	input.PromoCode = "ONCE"
	_, _, err := ledger.CreateOrder(context.Background(), input)
	require.NoError(t, err)

	_, _, err = ledger.CreateOrder(context.Background(), input)
	assert.ErrorIs(t, err, ErrPromotionExhausted)

	// a different client still gets the promo
	input2 := orderInput(seedClient(t, db), provider, CreateOrderItem{DishID: dish.ID, Quantity: 1})
	input2.PromoCode = "ONCE"
	_, _, err = ledger.CreateOrder(context.Background(), input2)
	assert.NoError(t, err)
}

func TestPromotionMinimumOrderAmount(t *testing.T) {
	ledger, db := newTestLedger(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 100, models.UnlimitedStock)
	seedPromotion(t, db, models.Promotion{
		Code: "MIN500", Type: models.PromoFixedAmount, Value: 50, MinOrderAmount: 500,
		UsageLimit: models.UnlimitedUsage, PerUserLimit: 1,
	})

	input := orderInput(client, provider, CreateOrderItem{DishID: dish.ID, Quantity: 1})
	input.PromoCode = "MIN500"
	_, _, err := ledger.CreateOrder(context.Background(), input)
	assert.ErrorIs(t, err, ErrPromotionNotEligible)
}

func TestOptionSurchargesFlowIntoPricing(t *testing.T) {
	ledger, db := newTestLedger(t)
	client := seedClient(t, db)
	provider := seedProvider(t, db)
	dish := seedDish(t, db, provider.ID, 300, models.UnlimitedStock)
	opt := models.DishOption{DishID: dish.ID, Name: "Extra cheese", Surcharge: 50}
	require.NoError(t, db.Create(&opt).Error)

	order, _, err := ledger.CreateOrder(context.Background(), orderInput(client, provider,
		CreateOrderItem{DishID: dish.ID, Quantity: 2, OptionIDs: []uint{opt.ID}},
	))
	require.NoError(t, err)
	assert.Equal(t, 700.0, order.Subtotal) // (300+50) × 2

	// alien option id is rejected
	_, _, err = ledger.CreateOrder(context.Background(), orderInput(client, provider,
		CreateOrderItem{DishID: dish.ID, Quantity: 1, OptionIDs: []uint{9999}},
	))
	assert.ErrorIs(t, err, ErrValidation)
}
