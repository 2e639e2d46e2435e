package repository

import (
	"context"
	"errors"
	"fmt"

	"kart-reconciler/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const orderColumns = `
	id, user_id, total_amount, currency, status, payment_status,
	shipping_address_line1, shipping_address_line2, shipping_city,
	shipping_state, shipping_zip_code, shipping_country,
	gateway_transaction_id, order_date, updated_at`

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// EnsureOrder inserts the order unless a row with the same ID exists.
func (r *orderRepository) EnsureOrder(ctx context.Context, tx pgx.Tx, order *model.Order) (bool, error) {
	query := `
		INSERT INTO orders (
			id, user_id, total_amount, currency, status, payment_status,
			shipping_address_line1, shipping_address_line2, shipping_city,
			shipping_state, shipping_zip_code, shipping_country,
			gateway_transaction_id, order_date, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := tx.Exec(ctx, query,
		order.ID,
		order.UserID,
		order.TotalAmount,
		order.Currency,
		string(order.Status),
		string(order.Status.PaymentStatus()),
		order.Shipping.AddressLine1,
		order.Shipping.AddressLine2,
		order.Shipping.City,
		order.Shipping.State,
		order.Shipping.ZipCode,
		order.Shipping.Country,
		order.GatewayTransactionID,
		order.OrderDate,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID).
			Msg("failed to insert order")
		return false, fmt.Errorf("failed to insert order: %w", err)
	}

	created := tag.RowsAffected() == 1
	r.logger.Debug().
		Str("order_id", order.ID).
		Bool("created", created).
		Msg("order ensured")

	return created, nil
}

// LockByID reads an order with SELECT ... FOR UPDATE.
func (r *orderRepository) LockByID(ctx context.Context, tx pgx.Tx, id string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	order, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", id).Msg("failed to lock order")
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	return order, nil
}

// UpdateOrder writes the mutable columns of an order.
func (r *orderRepository) UpdateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	query := `
		UPDATE orders SET
			total_amount = $2,
			currency = $3,
			status = $4,
			payment_status = $5,
			shipping_address_line1 = $6,
			shipping_address_line2 = $7,
			shipping_city = $8,
			shipping_state = $9,
			shipping_zip_code = $10,
			shipping_country = $11,
			gateway_transaction_id = $12,
			updated_at = $13
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query,
		order.ID,
		order.TotalAmount,
		order.Currency,
		string(order.Status),
		string(order.Status.PaymentStatus()),
		order.Shipping.AddressLine1,
		order.Shipping.AddressLine2,
		order.Shipping.City,
		order.Shipping.State,
		order.Shipping.ZipCode,
		order.Shipping.Country,
		order.GatewayTransactionID,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID).
			Str("status", string(order.Status)).
			Msg("failed to update order")
		return fmt.Errorf("failed to update order: %w", err)
	}

	if tag.RowsAffected() != 1 {
		return fmt.Errorf("failed to update order %s: %d rows affected", order.ID, tag.RowsAffected())
	}

	return nil
}

// DeleteItems removes every item of an order.
func (r *orderRepository) DeleteItems(ctx context.Context, tx pgx.Tx, orderID string) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to delete order items")
		return 0, fmt.Errorf("failed to delete order items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CreateOrderItems inserts multiple order items within the provided transaction.
func (r *orderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_items (id, order_id, product_id, quantity, price_at_order, name, img_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(query, item.ID, item.OrderID, item.ProductID, item.Quantity, item.PriceAtOrder, item.Name, item.ImgURL)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(items); i++ {
		_, err := results.Exec()
		if err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", items[i].OrderID).
				Str("product_id", items[i].ProductID).
				Msg("failed to create order item")
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	r.logger.Debug().
		Int("count", len(items)).
		Msg("order items created successfully")

	return nil
}

// GetByID retrieves an order by its ID along with its items.
// Returns nil without error when the order does not exist.
func (r *orderRepository) GetByID(ctx context.Context, id string) (*model.Order, []model.OrderItem, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("order_id", id).Msg("order not found")
			return nil, nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", id).Msg("failed to query order")
		return nil, nil, fmt.Errorf("failed to query order: %w", err)
	}

	itemsByOrder, err := r.GetItemsByOrderIDs(ctx, []string{id})
	if err != nil {
		return nil, nil, err
	}

	return order, itemsByOrder[id], nil
}

// ListByUser retrieves the orders of one user, most recent first.
func (r *orderRepository) ListByUser(ctx context.Context, userID string) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY order_date DESC, id`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", userID).Msg("failed to query orders")
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	return r.collectOrders(rows)
}

// ListAll retrieves all orders with pagination support, most recent first.
func (r *orderRepository) ListAll(ctx context.Context, limit, offset int) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY order_date DESC, id LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error().
			Err(err).
			Int("limit", limit).
			Int("offset", offset).
			Msg("failed to query orders")
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	return r.collectOrders(rows)
}

// GetItemsByOrderIDs retrieves the items of several orders keyed by order ID.
func (r *orderRepository) GetItemsByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]model.OrderItem, error) {
	result := make(map[string][]model.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT id, order_id, product_id, quantity, price_at_order, name, img_url
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, created_at, id
	`

	rows, err := r.pool.Query(ctx, query, orderIDs)
	if err != nil {
		r.logger.Error().
			Err(err).
			Int("order_count", len(orderIDs)).
			Msg("failed to query order items")
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.PriceAtOrder,
			&item.Name,
			&item.ImgURL,
		)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order item row")
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		result[item.OrderID] = append(result[item.OrderID], item)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order item rows")
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return result, nil
}

func (r *orderRepository) collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()

	orders := make([]model.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order row")
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order rows")
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		order         model.Order
		status        string
		paymentStatus string
	)

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.TotalAmount,
		&order.Currency,
		&status,
		&paymentStatus,
		&order.Shipping.AddressLine1,
		&order.Shipping.AddressLine2,
		&order.Shipping.City,
		&order.Shipping.State,
		&order.Shipping.ZipCode,
		&order.Shipping.Country,
		&order.GatewayTransactionID,
		&order.OrderDate,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Status = model.OrderStatus(status)
	order.PaymentStatus = model.PaymentStatus(paymentStatus)
	return &order, nil
}
