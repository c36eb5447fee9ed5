package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"food-marketplace-api/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PositionUpdate is the broadcast payload fanned out to subscribers.
type PositionUpdate struct {
	DeliveryID uint     `json:"delivery_id"`
	OrderID    uint     `json:"order_id"`
	Position   Position `json:"position"`
}

// Topic helpers. Subscribers pick the granularity they care about.
func DeliveryTopic(id uint) string { return fmt.Sprintf("delivery:%d", id) }
func OrderTopic(id uint) string    { return fmt.Sprintf("order:%d", id) }
func ClientTopic(id uint) string   { return fmt.Sprintf("client:%d", id) }

// Hub holds the latest courier position and fans updates out to
// interested subscribers. Broadcasting is non-blocking: a subscriber
// that cannot keep up misses samples, the ingest path never fails.
type Hub struct {
	db    *gorm.DB
	cache Cache
	log   *logrus.Logger

	mu   sync.RWMutex
	subs map[string]map[chan PositionUpdate]struct{}
}

func NewHub(db *gorm.DB, cache Cache, log *logrus.Logger) *Hub {
	return &Hub{
		db:    db,
		cache: cache,
		log:   log,
		subs:  make(map[string]map[chan PositionUpdate]struct{}),
	}
}

// Subscribe registers interest in a topic. The returned cancel func must
// be called when the subscriber goes away.
func (h *Hub) Subscribe(topic string) (<-chan PositionUpdate, func()) {
	ch := make(chan PositionUpdate, 16)
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[chan PositionUpdate]struct{})
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[topic]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, topic)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

func (h *Hub) publish(topic string, update PositionUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[topic] {
		select {
		case ch <- update:
		default:
			// Slow subscriber drops the sample.
		}
	}
}

// UpdatePosition ingests one courier position sample: cache it
// (last-write-wins), snapshot it onto every active delivery of the
// courier, and fan it out to the delivery, order and client channels.
func (h *Hub) UpdatePosition(ctx context.Context, courierID uint, lat, lng float64) error {
	p := Position{Lat: lat, Lng: lng, Timestamp: time.Now()}
	if err := h.cache.Set(ctx, courierID, p); err != nil {
		return fmt.Errorf("cache position: %w", err)
	}

	var deliveries []models.Delivery
	if err := h.db.WithContext(ctx).
		Where("courier_id = ? AND status IN ?", courierID, models.ActiveDeliveryStatuses).
		Find(&deliveries).Error; err != nil {
		return fmt.Errorf("load active deliveries: %w", err)
	}

	for _, delivery := range deliveries {
		// Best-effort snapshot; a write failure must not break ingest.
		if err := h.db.WithContext(ctx).Model(&models.Delivery{}).
			Where("id = ?", delivery.ID).
			Updates(map[string]interface{}{
				"latitude":    p.Lat,
				"longitude":   p.Lng,
				"position_at": p.Timestamp,
			}).Error; err != nil {
			h.log.WithError(err).WithField("delivery_id", delivery.ID).
				Warn("failed to snapshot delivery position")
		}

		var order models.Order
		if err := h.db.WithContext(ctx).Select("id", "client_id").
			First(&order, delivery.OrderID).Error; err != nil {
			h.log.WithError(err).WithField("order_id", delivery.OrderID).
				Warn("failed to resolve order client")
		}
		clientID := order.ClientID

		update := PositionUpdate{DeliveryID: delivery.ID, OrderID: delivery.OrderID, Position: p}
		h.publish(DeliveryTopic(delivery.ID), update)
		h.publish(OrderTopic(delivery.OrderID), update)
		if clientID != 0 {
			h.publish(ClientTopic(clientID), update)
		}
	}
	return nil
}

// GetPosition returns the cached sample if present, else the durable
// last-known position flagged stale. ok is false when neither exists.
func (h *Hub) GetPosition(ctx context.Context, courierID uint) (p Position, stale, ok bool, err error) {
	p, ok, err = h.cache.Get(ctx, courierID)
	if err != nil {
		return Position{}, false, false, err
	}
	if ok {
		return p, false, true, nil
	}

	var courier models.User
	if err := h.db.WithContext(ctx).First(&courier, courierID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Position{}, false, false, nil
		}
		return Position{}, false, false, err
	}
	if courier.Latitude == nil || courier.Longitude == nil {
		return Position{}, false, false, nil
	}
	p = Position{Lat: *courier.Latitude, Lng: *courier.Longitude}
	if courier.LastPing != nil {
		p.Timestamp = *courier.LastPing
	}
	return p, true, true, nil
}

// StartFlusher periodically writes cached samples onto the courier rows,
// best-effort. The cache stays authoritative for freshness; the durable
// copy only serves restarts and stale reads.
func (h *Hub) StartFlusher(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.flush(ctx)
			}
		}
	}()
}

func (h *Hub) flush(ctx context.Context) {
	samples, err := h.cache.All(ctx)
	if err != nil {
		h.log.WithError(err).Warn("position flush: cache scan failed")
		return
	}
	for courierID, p := range samples {
		if err := h.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", courierID).
			Updates(map[string]interface{}{
				"latitude":  p.Lat,
				"longitude": p.Lng,
				"last_ping": p.Timestamp,
			}).Error; err != nil {
			h.log.WithError(err).WithField("courier_id", courierID).
				Warn("position flush failed")
		}
	}
}

// Clear drops all cached samples, for shutdown.
func (h *Hub) Clear(ctx context.Context) {
	samples, err := h.cache.All(ctx)
	if err != nil {
		return
	}
	for courierID := range samples {
		_ = h.cache.Delete(ctx, courierID)
	}
}
