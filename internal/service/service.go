package service

import (
	"context"

	"kart-reconciler/internal/model"
)

// IntakeService reserves transaction ids before payment.
type IntakeService interface {
	// Prepare returns a fresh transaction id for the caller. When staging is
	// enabled the optional payload is persisted as a PENDING order.
	Prepare(ctx context.Context, identity *model.Identity, staged *model.OrderPayload) (*model.PrepareResponse, error)
}

// ReconcileService turns gateway notifications into durable order state.
type ReconcileService interface {
	// Reconcile verifies the notification against the gateway and commits the
	// resulting terminal state exactly once per order. Safe to call repeatedly.
	Reconcile(ctx context.Context, notification model.Notification) (*model.ReconcileResult, error)
}

// QueryService is the read side over orders.
type QueryService interface {
	// ListOrders returns the caller's orders, most recent first.
	ListOrders(ctx context.Context, identity *model.Identity) ([]model.OrderView, error)

	// GetOrder returns one order if the caller owns it or is an admin.
	GetOrder(ctx context.Context, identity *model.Identity, orderID string) (*model.OrderView, error)

	// ListAllOrders returns every order with pagination. Admin only.
	ListAllOrders(ctx context.Context, identity *model.Identity, limit, offset int) ([]model.OrderView, error)
}

// EventPublisher publishes domain events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}
