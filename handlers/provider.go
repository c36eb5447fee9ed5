package handlers

import (
	"net/http"

	"food-marketplace-api/config"
	"food-marketplace-api/middleware"
	"food-marketplace-api/models"

	"github.com/gin-gonic/gin"
)

// ── Provider Management ─────────────────────────────────────────────────────

type CreateProviderRequest struct {
	Name        string `json:"name" binding:"required"`
	Cuisine     string `json:"cuisine"`
	Address     string `json:"address" binding:"required"`
	Description string `json:"description"`
}

// CreateProvider lets a provider-role user create their storefront
func CreateProvider(c *gin.Context) {
	ownerID := middleware.GetUserID(c)
	var req CreateProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	provider := models.Provider{
		OwnerID:     ownerID,
		Name:        req.Name,
		Cuisine:     req.Cuisine,
		Address:     req.Address,
		Description: req.Description,
		IsOpen:      true,
	}
	if err := config.DB.Create(&provider).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create provider"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Provider created", "provider": provider})
}

// GetMyProvider fetches the provider owned by the logged-in user
func GetMyProvider(c *gin.Context) {
	ownerID := middleware.GetUserID(c)
	var provider models.Provider
	if err := config.DB.Preload("Dishes.Options").Where("owner_id = ?", ownerID).First(&provider).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No provider found for your account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": provider})
}

// UpdateProvider updates provider details
func UpdateProvider(c *gin.Context) {
	ownerID := middleware.GetUserID(c)
	var provider models.Provider
	if err := config.DB.Where("owner_id = ?", ownerID).First(&provider).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Provider not found"})
		return
	}
	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Only allow safe fields
	allowed := map[string]bool{"name": true, "cuisine": true, "address": true, "description": true, "is_open": true}
	update := map[string]interface{}{}
	for k, v := range req {
		if allowed[k] {
			update[k] = v
		}
	}
	config.DB.Model(&provider).Updates(update)
	c.JSON(http.StatusOK, gin.H{"message": "Provider updated", "provider": provider})
}

// ── Menu Management ─────────────────────────────────────────────────────────

type CreateDishRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Price       float64 `json:"price" binding:"required,gt=0"`
	PromoPrice  float64 `json:"promo_price"`
	Category    string  `json:"category"`
	Stock       *int    `json:"stock"`
	Options     []struct {
		Name      string  `json:"name" binding:"required"`
		Surcharge float64 `json:"surcharge"`
	} `json:"options"`
}

// AddDish adds a new dish to the provider's menu
func AddDish(c *gin.Context) {
	ownerID := middleware.GetUserID(c)
	var provider models.Provider
	if err := config.DB.Where("owner_id = ?", ownerID).First(&provider).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Create a provider first before adding dishes"})
		return
	}

	var req CreateDishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stock := models.UnlimitedStock
	if req.Stock != nil {
		stock = *req.Stock
	}
	dish := models.Dish{
		ProviderID:  provider.ID,
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		Price:       req.Price,
		PromoPrice:  req.PromoPrice,
		Category:    req.Category,
		Stock:       stock,
		IsAvailable: true,
	}
	for _, opt := range req.Options {
		dish.Options = append(dish.Options, models.DishOption{Name: opt.Name, Surcharge: opt.Surcharge})
	}
	if err := config.DB.Create(&dish).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add dish"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Dish added", "dish": dish})
}

// UpdateDish updates a dish (only by the owner)
func UpdateDish(c *gin.Context) {
	ownerID := middleware.GetUserID(c)
	dishID := c.Param("dishId")

	var dish models.Dish
	if err := config.DB.First(&dish, dishID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Dish not found"})
		return
	}

	// Verify ownership
	var provider models.Provider
	if err := config.DB.Where("id = ? AND owner_id = ?", dish.ProviderID, ownerID).First(&provider).Error; err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't own this dish"})
		return
	}

	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	allowed := map[string]bool{
		"name": true, "description": true, "image": true, "price": true,
		"promo_price": true, "category": true, "is_available": true, "stock": true,
	}
	update := map[string]interface{}{}
	for k, v := range req {
		if allowed[k] {
			update[k] = v
		}
	}
	config.DB.Model(&dish).Updates(update)
	c.JSON(http.StatusOK, gin.H{"message": "Dish updated", "dish": dish})
}

// DeleteDish soft-deletes a dish so order snapshots keep their history
func DeleteDish(c *gin.Context) {
	ownerID := middleware.GetUserID(c)
	dishID := c.Param("dishId")

	var dish models.Dish
	if err := config.DB.First(&dish, dishID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Dish not found"})
		return
	}
	var provider models.Provider
	if err := config.DB.Where("id = ? AND owner_id = ?", dish.ProviderID, ownerID).First(&provider).Error; err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't own this dish"})
		return
	}
	config.DB.Model(&dish).Updates(map[string]interface{}{"is_deleted": true, "is_available": false})
	c.JSON(http.StatusOK, gin.H{"message": "Dish deleted"})
}
