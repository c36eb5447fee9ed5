package handlers

import (
	"food-marketplace-api/notify"
	"food-marketplace-api/realtime"
	"food-marketplace-api/services"
)

// Package-level collaborators, wired once at startup.
var (
	ledger     *services.OrderLedger
	dispatcher *services.DeliveryDispatcher
	hub        *realtime.Hub
	notifier   *notify.Dispatcher
)

// Setup injects the service layer. Must be called before routes are served.
func Setup(l *services.OrderLedger, d *services.DeliveryDispatcher, h *realtime.Hub, n *notify.Dispatcher) {
	ledger = l
	dispatcher = d
	hub = h
	notifier = n
}
