package handlers

import (
	"net/http"
	"time"

	"food-marketplace-api/config"
	"food-marketplace-api/models"

	"github.com/gin-gonic/gin"
)

type CreatePromotionRequest struct {
	Code           string               `json:"code" binding:"required"`
	Name           string               `json:"name"`
	Type           models.PromotionType `json:"type" binding:"required"`
	Value          float64              `json:"value"`
	MaxDiscount    float64              `json:"max_discount"`
	MinOrderAmount float64              `json:"min_order_amount"`
	ProviderID     *uint                `json:"provider_id"`
	StartsAt       time.Time            `json:"starts_at" binding:"required"`
	EndsAt         time.Time            `json:"ends_at" binding:"required"`
	UsageLimit     *int                 `json:"usage_limit"`
	PerUserLimit   *int                 `json:"per_user_limit"`
}

// CreatePromotion registers a new discount rule (admin only)
func CreatePromotion(c *gin.Context) {
	var req CreatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Type {
	case models.PromoPercentage, models.PromoFixedAmount, models.PromoFreeDelivery:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Type must be: percentage, fixed_amount or free_delivery"})
		return
	}
	if req.Type != models.PromoFreeDelivery && req.Value <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Value must be positive"})
		return
	}
	if !req.EndsAt.After(req.StartsAt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ends_at must be after starts_at"})
		return
	}

	promo := models.Promotion{
		Code:           req.Code,
		Name:           req.Name,
		Type:           req.Type,
		Value:          req.Value,
		MaxDiscount:    req.MaxDiscount,
		MinOrderAmount: req.MinOrderAmount,
		ProviderID:     req.ProviderID,
		StartsAt:       req.StartsAt,
		EndsAt:         req.EndsAt,
		IsActive:       true,
		UsageLimit:     models.UnlimitedUsage,
		PerUserLimit:   1,
	}
	if req.UsageLimit != nil {
		promo.UsageLimit = *req.UsageLimit
	}
	if req.PerUserLimit != nil {
		promo.PerUserLimit = *req.PerUserLimit
	}

	if err := config.DB.Create(&promo).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Promotion code already exists"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Promotion created", "promotion": promo})
}

// ListPromotions returns all promotions with their usage ledgers (admin only)
func ListPromotions(c *gin.Context) {
	var promos []models.Promotion
	query := config.DB
	if active := c.Query("active"); active == "true" {
		query = query.Where("is_active = ?", true)
	}
	query.Find(&promos)
	c.JSON(http.StatusOK, gin.H{"count": len(promos), "promotions": promos})
}

// UpdatePromotion toggles or edits a promotion (admin only)
func UpdatePromotion(c *gin.Context) {
	promoID := c.Param("id")

	var promo models.Promotion
	if err := config.DB.First(&promo, promoID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Promotion not found"})
		return
	}

	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// UsedCount is ledger-owned; it never comes from a request.
	allowed := map[string]bool{
		"name": true, "value": true, "max_discount": true, "min_order_amount": true,
		"starts_at": true, "ends_at": true, "is_active": true,
		"usage_limit": true, "per_user_limit": true,
	}
	update := map[string]interface{}{}
	for k, v := range req {
		if allowed[k] {
			update[k] = v
		}
	}
	config.DB.Model(&promo).Updates(update)
	c.JSON(http.StatusOK, gin.H{"message": "Promotion updated", "promotion": promo})
}
