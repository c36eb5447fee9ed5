package handlers

import (
	"net/http"

	"food-marketplace-api/config"
	"food-marketplace-api/models"
	"food-marketplace-api/statemachine"

	"github.com/gin-gonic/gin"
)

// ListProviders returns all open providers (public)
func ListProviders(c *gin.Context) {
	var providers []models.Provider
	query := config.DB

	if cuisine := c.Query("cuisine"); cuisine != "" {
		query = query.Where("cuisine LIKE ?", "%"+cuisine+"%")
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("name LIKE ?", "%"+search+"%")
	}
	if open := c.Query("open"); open == "true" {
		query = query.Where("is_open = ?", true)
	}

	query.Find(&providers)
	c.JSON(http.StatusOK, gin.H{
		"count":     len(providers),
		"providers": providers,
	})
}

// GetProvider returns one provider's public profile
func GetProvider(c *gin.Context) {
	providerID := c.Param("id")
	var provider models.Provider
	if err := config.DB.First(&provider, providerID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Provider not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": provider})
}

// GetMenu returns a provider's available dishes with options
func GetMenu(c *gin.Context) {
	providerID := c.Param("id")
	var dishes []models.Dish
	config.DB.Preload("Options").
		Where("provider_id = ? AND is_deleted = ?", providerID, false).
		Find(&dishes)
	c.JSON(http.StatusOK, gin.H{"count": len(dishes), "dishes": dishes})
}

// GetStateMachineInfo documents both lifecycle machines
func GetStateMachineInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"order_machine":    statemachine.OrderMachine(),
		"delivery_machine": statemachine.DeliveryMachine(),
	})
}
