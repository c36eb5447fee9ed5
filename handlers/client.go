package handlers

import (
	"net/http"
	"strconv"
	"time"

	"food-marketplace-api/config"
	"food-marketplace-api/middleware"
	"food-marketplace-api/models"
	"food-marketplace-api/services"
	"food-marketplace-api/statemachine"

	"github.com/gin-gonic/gin"
)

type PlaceOrderRequest struct {
	ProviderID      uint               `json:"provider_id" binding:"required"`
	DeliveryAddress string             `json:"delivery_address" binding:"required"`
	PaymentMode     models.PaymentMode `json:"payment_mode" binding:"required"`
	PromoCode       string             `json:"promo_code"`
	Notes           string             `json:"notes"`
	Items           []struct {
		DishID       uint   `json:"dish_id" binding:"required"`
		Quantity     int    `json:"quantity" binding:"required,min=1"`
		OptionIDs    []uint `json:"option_ids"`
		Instructions string `json:"instructions"`
	} `json:"items" binding:"required,min=1"`
}

// PlaceOrder creates a new order (client only)
func PlaceOrder(c *gin.Context) {
	clientID := middleware.GetUserID(c)

	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := services.CreateOrderInput{
		ClientID:        clientID,
		ProviderID:      req.ProviderID,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMode:     req.PaymentMode,
		PromoCode:       req.PromoCode,
		Notes:           req.Notes,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, services.CreateOrderItem{
			DishID:       item.DishID,
			Quantity:     item.Quantity,
			OptionIDs:    item.OptionIDs,
			Instructions: item.Instructions,
		})
	}

	order, events, err := ledger.CreateOrder(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	notifier.Dispatch(events)

	config.DB.Preload("Items").Preload("Provider").First(order, order.ID)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order placed successfully",
		"order":   order,
	})
}

// GetMyOrders returns all orders for the logged-in client
func GetMyOrders(c *gin.Context) {
	clientID := middleware.GetUserID(c)
	var orders []models.Order
	config.DB.Preload("Items").Preload("Provider").
		Where("client_id = ?", clientID).
		Order("created_at desc").
		Find(&orders)
	c.JSON(http.StatusOK, gin.H{"count": len(orders), "orders": orders})
}

// GetOrderDetail returns a single order's full detail with history
func GetOrderDetail(c *gin.Context) {
	clientID := middleware.GetUserID(c)
	orderID := c.Param("id")

	var order models.Order
	if err := config.DB.
		Preload("Items").
		Preload("Provider").
		Preload("History").
		Preload("Delivery.Courier").
		First(&order, orderID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if order.ClientID != clientID {
		c.JSON(http.StatusForbidden, gin.H{"error": "This order does not belong to you"})
		return
	}

	elapsed := time.Since(order.CreatedAt).Minutes()
	c.JSON(http.StatusOK, gin.H{
		"order":           order,
		"minutes_elapsed": int(elapsed),
	})
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder cancels an order (client can cancel pending or confirmed)
func CancelOrder(c *gin.Context) {
	clientID := middleware.GetUserID(c)
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
		return
	}

	var order models.Order
	if err := config.DB.First(&order, orderID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if order.ClientID != clientID {
		c.JSON(http.StatusForbidden, gin.H{"error": "This order does not belong to you"})
		return
	}

	var req CancelOrderRequest
	_ = c.ShouldBindJSON(&req)

	updated, events, err := ledger.TransitionStatus(c.Request.Context(), uint(orderID), models.OrderCancelled, services.TransitionInput{
		Actor:   statemachine.ActorClient,
		ActorID: clientID,
		Reason:  req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	notifier.Dispatch(events)

	c.JSON(http.StatusOK, gin.H{"message": "Order cancelled successfully", "order_id": updated.ID})
}
