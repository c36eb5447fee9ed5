package services

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"food-marketplace-api/models"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

// newTestDB opens an isolated in-memory sqlite database. A single open
// connection keeps concurrent test transactions serialized the way the
// production store serializes writers.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Provider{},
		&models.Dish{},
		&models.DishOption{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderHistory{},
		&models.Delivery{},
		&models.Promotion{},
		&models.PromotionUsage{},
	))
	return db
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func newTestLedger(t *testing.T) (*OrderLedger, *gorm.DB) {
	db := newTestDB(t)
	return NewOrderLedger(db, testLogger(), 200), db
}

func newTestDispatcher(t *testing.T) (*DeliveryDispatcher, *OrderLedger, *gorm.DB) {
	ledger, db := newTestLedger(t)
	return NewDeliveryDispatcher(db, ledger, testLogger(), 0.8), ledger, db
}

func seedClient(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	user := models.User{
		Name:         "Amine",
		Email:        fmt.Sprintf("client%d@test.local", testDBSeq.Add(1)),
		PasswordHash: "x",
		Role:         models.RoleClient,
		IsActive:     true,
		LoyaltyTier:  models.TierBronze,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedCourier(t *testing.T, db *gorm.DB, rating float64, count int) models.User {
	t.Helper()
	courier := models.User{
		Name:          "Courier",
		Email:         fmt.Sprintf("courier%d@test.local", testDBSeq.Add(1)),
		PasswordHash:  "x",
		Role:          models.RoleCourier,
		IsActive:      true,
		Availability:  models.CourierAvailable,
		Rating:        rating,
		DeliveryCount: count,
	}
	require.NoError(t, db.Create(&courier).Error)
	return courier
}

func seedProvider(t *testing.T, db *gorm.DB) models.Provider {
	t.Helper()
	owner := models.User{
		Name:         "Owner",
		Email:        fmt.Sprintf("owner%d@test.local", testDBSeq.Add(1)),
		PasswordHash: "x",
		Role:         models.RoleProvider,
		IsActive:     true,
	}
	require.NoError(t, db.Create(&owner).Error)
	provider := models.Provider{
		OwnerID: owner.ID,
		Name:    "Tacos de la Gare",
		Address: "12 Rue Didouche Mourad",
		IsOpen:  true,
	}
	require.NoError(t, db.Create(&provider).Error)
	return provider
}

func seedDish(t *testing.T, db *gorm.DB, providerID uint, price float64, stock int) models.Dish {
	t.Helper()
	dish := models.Dish{
		ProviderID:  providerID,
		Name:        fmt.Sprintf("Dish %d", testDBSeq.Add(1)),
		Price:       price,
		Stock:       stock,
		IsAvailable: true,
	}
	require.NoError(t, db.Create(&dish).Error)
	return dish
}

func seedPromotion(t *testing.T, db *gorm.DB, promo models.Promotion) models.Promotion {
	t.Helper()
	if promo.StartsAt.IsZero() {
		promo.StartsAt = time.Now().Add(-time.Hour)
	}
	if promo.EndsAt.IsZero() {
		promo.EndsAt = time.Now().Add(time.Hour)
	}
	promo.IsActive = true
	require.NoError(t, db.Create(&promo).Error)
	return promo
}
