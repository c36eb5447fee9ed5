package handlers

import (
	"net/http"

	"food-marketplace-api/middleware"
	"food-marketplace-api/services"

	"github.com/gin-gonic/gin"
)

type AssignCourierRequest struct {
	OrderID   uint `json:"order_id" binding:"required"`
	CourierID uint `json:"courier_id" binding:"required"`
}

// AssignCourier manually puts a courier on a ready order's delivery
func AssignCourier(c *gin.Context) {
	actorID := middleware.GetUserID(c)

	var req AssignCourierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	delivery, err := dispatcher.EnsureDeliveryForReadyOrder(c.Request.Context(), req.OrderID)
	if err != nil {
		respondError(c, err)
		return
	}

	assigned, events, err := dispatcher.Assign(c.Request.Context(), delivery.ID, req.CourierID, services.TransitionInput{
		Actor:   string(middleware.GetRole(c)),
		ActorID: actorID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	notifier.Dispatch(events)

	c.JSON(http.StatusOK, gin.H{"message": "Courier assigned", "delivery": assigned})
}

type AutoAssignRequest struct {
	OrderID uint `json:"order_id" binding:"required"`
}

// AutoAssignCourier picks the best available courier for a ready order
func AutoAssignCourier(c *gin.Context) {
	actorID := middleware.GetUserID(c)

	var req AutoAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	delivery, events, err := dispatcher.AutoAssign(c.Request.Context(), req.OrderID, services.TransitionInput{
		Actor:   string(middleware.GetRole(c)),
		ActorID: actorID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	notifier.Dispatch(events)

	c.JSON(http.StatusOK, gin.H{"message": "Courier auto-assigned", "delivery": delivery})
}

type ReassignCourierRequest struct {
	DeliveryID   uint   `json:"delivery_id" binding:"required"`
	NewCourierID uint   `json:"new_courier_id" binding:"required"`
	Reason       string `json:"reason"`
}

// ReassignCourier moves an active delivery to a different courier
func ReassignCourier(c *gin.Context) {
	actorID := middleware.GetUserID(c)

	var req ReassignCourierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	delivery, events, err := dispatcher.Assign(c.Request.Context(), req.DeliveryID, req.NewCourierID, services.TransitionInput{
		Actor:   string(middleware.GetRole(c)),
		ActorID: actorID,
		Reason:  req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	notifier.Dispatch(events)

	c.JSON(http.StatusOK, gin.H{"message": "Courier reassigned", "delivery": delivery})
}
