package handlers

import (
	"net/http"
	"strconv"
	"time"

	"food-marketplace-api/config"
	"food-marketplace-api/middleware"
	"food-marketplace-api/models"
	"food-marketplace-api/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth happens via the JWT middleware before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TrackOrder streams live courier positions for one of the client's
// orders over a websocket
func TrackOrder(c *gin.Context) {
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

	streamTopic(c, realtime.OrderTopic(uint(orderID)))
}

// TrackDelivery streams live positions for a delivery (admin only)
func TrackDelivery(c *gin.Context) {
	deliveryID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid delivery id"})
		return
	}

	var delivery models.Delivery
	if err := config.DB.First(&delivery, deliveryID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Delivery not found"})
		return
	}

	streamTopic(c, realtime.DeliveryTopic(uint(deliveryID)))
}

// streamTopic bridges a hub subscription onto a websocket until either
// side goes away.
func streamTopic(c *gin.Context, topic string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates, cancel := hub.Subscribe(topic)
	defer cancel()

	// Reader goroutine only watches for the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
