package repository

import (
	"context"

	"kart-reconciler/internal/model"

	"github.com/jackc/pgx/v5"
)

// OrderRepository defines the interface for order data access operations.
// Methods taking a pgx.Tx run inside the caller's transaction.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// EnsureOrder inserts the order unless a row with the same ID exists.
	// It reports whether a new row was created.
	EnsureOrder(ctx context.Context, tx pgx.Tx, order *model.Order) (bool, error)

	// LockByID reads an order and holds a row lock until the transaction ends.
	// Returns nil when the order does not exist.
	LockByID(ctx context.Context, tx pgx.Tx, id string) (*model.Order, error)

	// UpdateOrder writes status, totals, shipping and gateway reference of an order.
	UpdateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// DeleteItems removes every item of an order and returns how many were removed.
	DeleteItems(ctx context.Context, tx pgx.Tx, orderID string) (int64, error)

	// CreateOrderItems inserts multiple order items within the provided transaction.
	CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error

	// GetByID retrieves an order by its ID along with its items.
	GetByID(ctx context.Context, id string) (*model.Order, []model.OrderItem, error)

	// ListByUser retrieves the orders of one user, most recent first.
	ListByUser(ctx context.Context, userID string) ([]model.Order, error)

	// ListAll retrieves all orders with pagination support, most recent first.
	ListAll(ctx context.Context, limit, offset int) ([]model.Order, error)

	// GetItemsByOrderIDs retrieves the items of several orders keyed by order ID.
	GetItemsByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]model.OrderItem, error)
}

// PaymentRepository defines the interface for payment data access operations.
type PaymentRepository interface {
	// EnsurePayment inserts the payment unless the order already has one.
	EnsurePayment(ctx context.Context, tx pgx.Tx, payment *model.Payment) error

	// UpsertPayment inserts or replaces the payment of payment.OrderID.
	// It fails with ErrTransactionClaimed when the transaction ID already
	// belongs to another order's payment.
	UpsertPayment(ctx context.Context, tx pgx.Tx, payment *model.Payment) error

	// LockByTransactionID reads the payment carrying a gateway transaction ID
	// and holds a row lock until the transaction ends. Returns nil when none exists.
	LockByTransactionID(ctx context.Context, tx pgx.Tx, transactionID string) (*model.Payment, error)

	// GetByOrderID retrieves the payment of an order. Returns nil when none exists.
	GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error)

	// GetByOrderIDs retrieves the payments of several orders keyed by order ID.
	GetByOrderIDs(ctx context.Context, orderIDs []string) (map[string]model.Payment, error)
}

// CartRepository defines the interface for cart data access operations.
type CartRepository interface {
	// AddItem adds quantity of a product to the cart, incrementing an existing line.
	AddItem(ctx context.Context, item model.CartItem) error

	// ListByUser retrieves the cart lines of a user.
	ListByUser(ctx context.Context, userID string) ([]model.CartItem, error)

	// ClearForUser deletes every cart line of a user within the provided
	// transaction and returns how many were deleted.
	ClearForUser(ctx context.Context, tx pgx.Tx, userID string) (int64, error)
}
