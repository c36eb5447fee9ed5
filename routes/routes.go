package routes

import (
	"food-marketplace-api/handlers"
	"food-marketplace-api/middleware"
	"food-marketplace-api/models"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine) {
	// ── Public routes ──────────────────────────────────────────────
	public := r.Group("/api")
	{
		// Auth
		public.POST("/auth/register", handlers.Register)
		public.POST("/auth/login", handlers.Login)

		// Providers & menus (no auth needed)
		public.GET("/providers", handlers.ListProviders)
		public.GET("/providers/:id", handlers.GetProvider)
		public.GET("/providers/:id/menu", handlers.GetMenu)

		// State machine info (great for docs/Postman)
		public.GET("/state-machine", handlers.GetStateMachineInfo)
	}

	// ── Authenticated routes ───────────────────────────────────────
	auth := r.Group("/api")
	auth.Use(middleware.AuthRequired())
	{
		auth.GET("/profile", handlers.GetProfile)
	}

	// ── Client routes ──────────────────────────────────────────────
	client := r.Group("/api/client")
	client.Use(middleware.AuthRequired(), middleware.RoleRequired(models.RoleClient))
	{
		client.POST("/orders", handlers.PlaceOrder)
		client.GET("/orders", handlers.GetMyOrders)
		client.GET("/orders/:id", handlers.GetOrderDetail)
		client.PUT("/orders/:id/cancel", handlers.CancelOrder)
		client.GET("/orders/:id/track", handlers.TrackOrder)
	}

	// ── Provider owner routes ──────────────────────────────────────
	provider := r.Group("/api/provider")
	provider.Use(middleware.AuthRequired(), middleware.RoleRequired(models.RoleProvider))
	{
		// Provider management
		provider.POST("/", handlers.CreateProvider)
		provider.GET("/", handlers.GetMyProvider)
		provider.PUT("/", handlers.UpdateProvider)

		// Menu management
		provider.POST("/menu", handlers.AddDish)
		provider.PUT("/menu/:dishId", handlers.UpdateDish)
		provider.DELETE("/menu/:dishId", handlers.DeleteDish)

		// Order management
		provider.GET("/orders", handlers.GetProviderOrders)
		provider.PUT("/orders/:id/status", handlers.UpdateOrderStatus)

		// Dispatch
		provider.POST("/dispatch/assign", handlers.AssignCourier)
		provider.POST("/dispatch/auto-assign", handlers.AutoAssignCourier)
	}

	// ── Courier routes ─────────────────────────────────────────────
	courier := r.Group("/api/courier")
	courier.Use(middleware.AuthRequired(), middleware.RoleRequired(models.RoleCourier))
	{
		courier.PUT("/availability", handlers.SetAvailability)
		courier.GET("/deliveries/available", handlers.GetAvailableDeliveries)
		courier.GET("/deliveries", handlers.GetMyDeliveries)
		courier.PUT("/deliveries/:id/status", handlers.UpdateDeliveryStatus)
		courier.POST("/position", handlers.PushPosition)
	}

	// ── Admin routes ───────────────────────────────────────────────
	admin := r.Group("/api/admin")
	admin.Use(middleware.AuthRequired(), middleware.RoleRequired(models.RoleAdmin))
	{
		admin.GET("/orders", handlers.AdminGetAllOrders)
		admin.PUT("/orders/:id/status", handlers.AdminForceOrderStatus)
		admin.PUT("/orders/:id/payment", handlers.AdminCorrectPaymentStatus)
		admin.GET("/users", handlers.AdminGetAllUsers)
		admin.GET("/providers", handlers.AdminGetAllProviders)

		admin.POST("/dispatch/assign", handlers.AssignCourier)
		admin.POST("/dispatch/auto-assign", handlers.AutoAssignCourier)
		admin.POST("/dispatch/reassign", handlers.ReassignCourier)
		admin.GET("/couriers/:id/position", handlers.GetCourierPosition)
		admin.GET("/deliveries/:id/track", handlers.TrackDelivery)

		admin.POST("/promotions", handlers.CreatePromotion)
		admin.GET("/promotions", handlers.ListPromotions)
		admin.PUT("/promotions/:id", handlers.UpdatePromotion)
	}
}
