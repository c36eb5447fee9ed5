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

type SetAvailabilityRequest struct {
	Availability models.CourierAvailability `json:"availability" binding:"required"`
}

// SetAvailability lets a courier go available/offline. Busy is owned by
// the dispatcher and cannot be self-assigned.
func SetAvailability(c *gin.Context) {
	courierID := middleware.GetUserID(c)

	var req SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := dispatcher.SetCourierAvailability(c.Request.Context(), courierID, req.Availability); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Availability updated", "availability": req.Availability})
}

// GetAvailableDeliveries shows pending deliveries with no courier assigned
func GetAvailableDeliveries(c *gin.Context) {
	var deliveries []models.Delivery
	config.DB.Preload("Order.Provider").
		Where("status = ? AND courier_id IS NULL", models.DeliveryPending).
		Order("created_at asc").
		Find(&deliveries)
	c.JSON(http.StatusOK, gin.H{
		"count":      len(deliveries),
		"deliveries": deliveries,
	})
}

// GetMyDeliveries returns all deliveries assigned to the logged-in courier
func GetMyDeliveries(c *gin.Context) {
	courierID := middleware.GetUserID(c)
	var deliveries []models.Delivery
	config.DB.Preload("Order.Items").Preload("Order.Provider").Preload("Order.Client").
		Where("courier_id = ?", courierID).
		Order("updated_at desc").
		Find(&deliveries)
	c.JSON(http.StatusOK, gin.H{"count": len(deliveries), "deliveries": deliveries})
}

type UpdateDeliveryStatusRequest struct {
	Status        models.DeliveryStatus `json:"status" binding:"required"`
	FailureReason string                `json:"failure_reason"`
	Position      *struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"current_position"`
}

// UpdateDeliveryStatus drives the courier's side of the delivery machine
// (picked_up, in_transit, delivered, failed)
func UpdateDeliveryStatus(c *gin.Context) {
	courierID := middleware.GetUserID(c)
	deliveryID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid delivery id"})
		return
	}

	var req UpdateDeliveryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := services.DeliveryUpdateInput{
		Actor:         statemachine.ActorCourier,
		ActorID:       courierID,
		FailureReason: req.FailureReason,
	}
	if req.Position != nil {
		input.Latitude = &req.Position.Lat
		input.Longitude = &req.Position.Lng
	}

	delivery, events, err := dispatcher.UpdateDeliveryStatus(c.Request.Context(), uint(deliveryID), req.Status, input)
	if err != nil {
		respondError(c, err)
		return
	}
	notifier.Dispatch(events)

	c.JSON(http.StatusOK, gin.H{
		"message":  "Delivery status updated",
		"delivery": delivery,
	})
}

type PushPositionRequest struct {
	Lat float64 `json:"lat" binding:"required"`
	Lng float64 `json:"lng" binding:"required"`
}

// PushPosition ingests a courier position sample and fans it out to
// everyone tracking one of the courier's active deliveries
func PushPosition(c *gin.Context) {
	courierID := middleware.GetUserID(c)

	var req PushPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := hub.UpdatePosition(c.Request.Context(), courierID, req.Lat, req.Lng); err != nil {
		config.Log.WithError(err).Warn("position ingest failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Could not record position"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Position recorded"})
}

// GetCourierPosition returns the freshest known position for a courier
func GetCourierPosition(c *gin.Context) {
	courierID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid courier id"})
		return
	}

	p, stale, ok, err := hub.GetPosition(c.Request.Context(), uint(courierID))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Position lookup failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No position available for this courier"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": p, "stale": stale})
}
