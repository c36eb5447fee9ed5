package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"food-marketplace-api/config"
	"food-marketplace-api/handlers"
	"food-marketplace-api/notify"
	"food-marketplace-api/realtime"
	"food-marketplace-api/routes"
	"food-marketplace-api/services"

	"github.com/gin-gonic/gin"
)

func main() {
	// Set Gin mode
	mode := os.Getenv("GIN_MODE")
	if mode == "" {
		gin.SetMode(gin.DebugMode)
	}

	config.Load()
	config.InitDB()

	// Core services
	ledger := services.NewOrderLedger(config.DB, config.Log, config.App.DeliveryFee)
	dispatcher := services.NewDeliveryDispatcher(config.DB, ledger, config.Log, config.App.CommissionRate)

	// Position cache: Redis when configured, in-memory otherwise
	var cache realtime.Cache = realtime.NewMemoryCache()
	if config.App.RedisAddr != "" {
		cache = realtime.NewRedisCache(config.App.RedisAddr)
	}
	hub := realtime.NewHub(config.DB, cache, config.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.StartFlusher(ctx, 30*time.Second)
	defer hub.Clear(context.Background())

	// Notification relay: AMQP when configured, log-only otherwise
	var relay notify.Relay = &notify.LogRelay{Log: config.Log}
	if config.App.AMQPUrl != "" {
		amqpRelay, err := notify.NewAMQPRelay(config.App.AMQPUrl, "marketplace.events")
		if err != nil {
			config.Log.WithError(err).Fatal("Failed to connect to AMQP broker")
		}
		defer amqpRelay.Close()
		relay = amqpRelay
	}
	notifier := notify.NewDispatcher(relay, config.Log)

	handlers.Setup(ledger, dispatcher, hub, notifier)

	// Create Gin router with default middleware (logger + recovery)
	r := gin.Default()

	// CORS middleware for frontend integration
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "Food Marketplace API",
			"version": "1.0.0",
		})
	})

	// Welcome
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "🍔 Welcome to the Food Marketplace API",
			"docs":    "/api/state-machine",
			"health":  "/health",
			"roles":   []string{"client", "provider", "courier", "admin"},
		})
	})

	// Register all routes
	routes.SetupRoutes(r)

	// Start server
	config.Log.Infof("🚀 Server running on http://localhost:%s", config.App.Port)
	if err := r.Run(":" + config.App.Port); err != nil {
		config.Log.WithError(err).Fatal("Failed to start server")
	}
}
