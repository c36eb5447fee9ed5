package statemachine

import (
	"food-marketplace-api/models"
)

// Actor names used in transition rules. ActorSystem covers transitions
// driven internally by the delivery dispatcher.
const (
	ActorClient   = "client"
	ActorProvider = "provider"
	ActorCourier  = "courier"
	ActorAdmin    = "admin"
	ActorSystem   = "system"
)

// OrderTransition defines a valid state change and who can perform it
type OrderTransition struct {
	From  models.OrderStatus
	To    models.OrderStatus
	Actor string
}

// orderTransitions is the authoritative state machine definition
var orderTransitions = []OrderTransition{
	// Provider confirms the order
	{From: models.OrderPending, To: models.OrderConfirmed, Actor: ActorProvider},
	// Provider (refusal) or client can cancel a PENDING order
	{From: models.OrderPending, To: models.OrderCancelled, Actor: ActorProvider},
	{From: models.OrderPending, To: models.OrderCancelled, Actor: ActorClient},
	// Provider starts preparing; provider or client can still cancel
	{From: models.OrderConfirmed, To: models.OrderPreparing, Actor: ActorProvider},
	{From: models.OrderConfirmed, To: models.OrderCancelled, Actor: ActorProvider},
	{From: models.OrderConfirmed, To: models.OrderCancelled, Actor: ActorClient},
	// Provider marks order ready for dispatch
	{From: models.OrderPreparing, To: models.OrderReady, Actor: ActorProvider},
	// The dispatcher drives the delivery-coupled transitions
	{From: models.OrderReady, To: models.OrderDelivering, Actor: ActorSystem},
	{From: models.OrderDelivering, To: models.OrderDelivered, Actor: ActorSystem},
	// Late cancellation is an admin-only intervention; the dispatcher
	// fails the delivery and releases the courier alongside it
	{From: models.OrderPreparing, To: models.OrderCancelled, Actor: ActorAdmin},
	{From: models.OrderReady, To: models.OrderCancelled, Actor: ActorAdmin},
	{From: models.OrderDelivering, To: models.OrderCancelled, Actor: ActorAdmin},
}

type orderKey struct {
	From  models.OrderStatus
	To    models.OrderStatus
	Actor string
}

// Build a lookup map for O(1) validation
var orderTransitionMap = func() map[orderKey]bool {
	m := make(map[orderKey]bool)
	for _, t := range orderTransitions {
		m[orderKey{t.From, t.To, t.Actor}] = true
	}
	return m
}()

// AllowedNextOrder returns all states reachable in one step from status,
// regardless of actor. Validation and tests share this one table.
func AllowedNextOrder(status models.OrderStatus) []models.OrderStatus {
	var nexts []models.OrderStatus
	seen := map[models.OrderStatus]bool{}
	for _, t := range orderTransitions {
		if t.From == status && !seen[t.To] {
			nexts = append(nexts, t.To)
			seen[t.To] = true
		}
	}
	return nexts
}

// CanTransitionOrder checks if a given actor can move an order between states.
// Admin may perform any edge that exists for some actor.
func CanTransitionOrder(from, to models.OrderStatus, actor string) error {
	if orderTransitionMap[orderKey{From: from, To: to, Actor: actor}] {
		return nil
	}
	if actor == ActorAdmin {
		for _, t := range orderTransitions {
			if t.From == from && t.To == to {
				return nil
			}
		}
	}
	return &InvalidTransitionError{
		Machine: "order",
		From:    string(from),
		To:      string(to),
		Actor:   actor,
		Allowed: orderStatusStrings(AllowedNextOrder(from)),
	}
}

// IsTerminalOrder reports whether no edge leaves the status.
func IsTerminalOrder(status models.OrderStatus) bool {
	return len(AllowedNextOrder(status)) == 0
}

// OrderMachine returns the full table for the documentation endpoint.
func OrderMachine() []OrderTransition {
	return orderTransitions
}

func orderStatusStrings(ss []models.OrderStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}
