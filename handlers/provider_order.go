package handlers

import (
	"net/http"
	"strconv"

	"food-marketplace-api/config"
	"food-marketplace-api/middleware"
	"food-marketplace-api/models"
	"food-marketplace-api/services"
	"food-marketplace-api/statemachine"

	"github.com/gin-gonic/gin"
)

// GetProviderOrders returns all orders for the provider owner
func GetProviderOrders(c *gin.Context) {
	ownerID := middleware.GetUserID(c)

	var provider models.Provider
	if err := config.DB.Where("owner_id = ?", ownerID).First(&provider).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No provider found for your account"})
		return
	}

	var orders []models.Order
	query := config.DB.Preload("Items").Preload("Client").Preload("Delivery.Courier").
		Where("provider_id = ?", provider.ID)

	// Filter by status
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	query.Order("created_at desc").Find(&orders)

	// Group counts by status for the dashboard summary
	summary := map[string]int{}
	for _, o := range orders {
		summary[string(o.Status)]++
	}

	c.JSON(http.StatusOK, gin.H{
		"provider":      provider.Name,
		"order_summary": summary,
		"count":         len(orders),
		"orders":        orders,
	})
}

type UpdateOrderStatusRequest struct {
	Status      models.OrderStatus `json:"status" binding:"required"`
	Reason      string             `json:"reason"`
	RefusalCode models.RefusalCode `json:"refusal_code"`
}

// UpdateOrderStatus handles the provider's state transitions
// (confirm, prepare, ready, refuse)
func UpdateOrderStatus(c *gin.Context) {
	ownerID := middleware.GetUserID(c)
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
		return
	}

	var provider models.Provider
	if err := config.DB.Where("owner_id = ?", ownerID).First(&provider).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No provider found for your account"})
		return
	}

	var order models.Order
	if err := config.DB.First(&order, orderID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if order.ProviderID != provider.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "This order does not belong to your provider"})
		return
	}

	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, events, err := ledger.TransitionStatus(c.Request.Context(), uint(orderID), req.Status, services.TransitionInput{
		Actor:       statemachine.ActorProvider,
		ActorID:     ownerID,
		Reason:      req.Reason,
		RefusalCode: req.RefusalCode,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	notifier.Dispatch(events)

	c.JSON(http.StatusOK, gin.H{
		"message":        "Order status updated",
		"order_id":       updated.ID,
		"current_status": updated.Status,
	})
}
