package config

import (
	"os"
	"strconv"

	"food-marketplace-api/models"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Log is the shared structured logger. Handlers and services attach
// fields rather than formatting their own messages.
var Log = logrus.New()

// JWTSecret used to sign tokens, read from env or fallback
var JWTSecret []byte

// Settings holds the runtime knobs that are not worth a config file.
type Settings struct {
	Port           string
	DBPath         string
	DeliveryFee    float64 // flat fee applied to every order
	CommissionRate float64 // courier share of the delivery fee
	RedisAddr      string  // empty → in-memory position cache
	AMQPUrl        string  // empty → log-only notification relay
}

var App Settings

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Load reads .env (if present) and populates App. Call before InitDB.
func Load() {
	_ = godotenv.Load()

	App = Settings{
		Port:           getEnv("PORT", "8080"),
		DBPath:         getEnv("DB_PATH", "marketplace.db"),
		DeliveryFee:    getEnvFloat("DELIVERY_FEE", 200),
		CommissionRate: getEnvFloat("COURIER_COMMISSION_RATE", 0.8),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		AMQPUrl:        getEnv("AMQP_URL", ""),
	}
	JWTSecret = []byte(getEnv("JWT_SECRET", "food_marketplace_super_secret_2024"))

	if getEnv("LOG_FORMAT", "") == "json" {
		Log.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		Log.SetLevel(lvl)
	}
}

func InitDB() {
	var err error
	DB, err = gorm.Open(sqlite.Open(App.DBPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		Log.WithError(err).Fatal("Failed to connect to database")
	}

	// Auto-migrate all models
	err = DB.AutoMigrate(
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
	)
	if err != nil {
		Log.WithError(err).Fatal("Failed to migrate database")
	}

	Log.Info("✅ Database connected and migrated successfully")
}
