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

// AdminGetAllOrders returns all orders with full detail (admin only)
func AdminGetAllOrders(c *gin.Context) {
	var orders []models.Order
	query := config.DB.Preload("Items").
		Preload("Client").Preload("Provider").Preload("Delivery").Preload("History")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if clientID := c.Query("client_id"); clientID != "" {
		query = query.Where("client_id = ?", clientID)
	}
	if providerID := c.Query("provider_id"); providerID != "" {
		query = query.Where("provider_id = ?", providerID)
	}

	query.Order("created_at desc").Find(&orders)

	// Admin dashboard: aggregate by status
	summary := map[string]int{}
	var totalRevenue float64
	for _, o := range orders {
		summary[string(o.Status)]++
		if o.Status == models.OrderDelivered {
			totalRevenue += o.Total
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"order_summary": summary,
		"total_revenue": totalRevenue,
		"count":         len(orders),
		"orders":        orders,
	})
}

// AdminGetAllUsers returns all users (admin only)
func AdminGetAllUsers(c *gin.Context) {
	var users []models.User
	query := config.DB
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}
	query.Find(&users)
	c.JSON(http.StatusOK, gin.H{"count": len(users), "users": users})
}

// AdminGetAllProviders returns all providers (admin only)
func AdminGetAllProviders(c *gin.Context) {
	var providers []models.Provider
	config.DB.Preload("Owner").Preload("Dishes").Find(&providers)
	c.JSON(http.StatusOK, gin.H{"count": len(providers), "providers": providers})
}

// AdminForceOrderStatus drives an order transition with admin rights.
// It still goes through the transition table; admins get every edge.
func AdminForceOrderStatus(c *gin.Context) {
	adminID := middleware.GetUserID(c)
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
		return
	}

	var req struct {
		Status models.OrderStatus `json:"status" binding:"required"`
		Reason string             `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reason := "[ADMIN OVERRIDE] " + req.Reason
	updated, events, err := ledger.TransitionStatus(c.Request.Context(), uint(orderID), req.Status, services.TransitionInput{
		Actor:       statemachine.ActorAdmin,
		ActorID:     adminID,
		Reason:      reason,
		RefusalCode: models.RefusalOther,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	notifier.Dispatch(events)

	c.JSON(http.StatusOK, gin.H{
		"message":    "Order status updated by admin",
		"order_id":   updated.ID,
		"new_status": updated.Status,
	})
}

type CorrectPaymentStatusRequest struct {
	PaymentStatus models.PaymentStatus `json:"payment_status" binding:"required"`
	Reason        string               `json:"reason"`
}

// AdminCorrectPaymentStatus fixes the payment status on an order. This is
// the only mutation allowed on a terminal order.
func AdminCorrectPaymentStatus(c *gin.Context) {
	orderID := c.Param("id")

	var req CorrectPaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.PaymentStatus {
	case models.PaymentPendingStatus, models.PaymentPaid, models.PaymentRefunded:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown payment status"})
		return
	}

	var order models.Order
	if err := config.DB.First(&order, orderID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	config.DB.Model(&order).Update("payment_status", req.PaymentStatus)
	c.JSON(http.StatusOK, gin.H{
		"message":        "Payment status corrected",
		"order_id":       order.ID,
		"payment_status": req.PaymentStatus,
	})
}
