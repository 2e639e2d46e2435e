package repository

import (
	"context"
	"fmt"

	"kart-reconciler/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// cartRepository implements the CartRepository interface using PostgreSQL.
type cartRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewCartRepository creates a new PostgreSQL-backed cart repository.
func NewCartRepository(pool *pgxpool.Pool, logger zerolog.Logger) CartRepository {
	return &cartRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "cart").Logger(),
	}
}

// AddItem adds quantity of a product to the cart. A repeated add increments the line.
func (r *cartRepository) AddItem(ctx context.Context, item model.CartItem) error {
	if item.Quantity <= 0 {
		return fmt.Errorf("cart quantity must be greater than zero")
	}

	query := `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET
			quantity = cart_items.quantity + EXCLUDED.quantity
	`

	_, err := r.pool.Exec(ctx, query, item.UserID, item.ProductID, item.Quantity)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("user_id", item.UserID).
			Str("product_id", item.ProductID).
			Msg("failed to add cart item")
		return fmt.Errorf("failed to add cart item: %w", err)
	}

	return nil
}

// ListByUser retrieves the cart lines of a user.
func (r *cartRepository) ListByUser(ctx context.Context, userID string) ([]model.CartItem, error) {
	query := `
		SELECT user_id, product_id, quantity
		FROM cart_items
		WHERE user_id = $1
		ORDER BY product_id
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", userID).Msg("failed to query cart items")
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]model.CartItem, 0)
	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.UserID, &item.ProductID, &item.Quantity); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan cart item row")
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating cart item rows")
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}

	return items, nil
}

// ClearForUser deletes every cart line of a user within the provided transaction.
func (r *cartRepository) ClearForUser(ctx context.Context, tx pgx.Tx, userID string) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", userID).Msg("failed to clear cart")
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}

	r.logger.Debug().
		Str("user_id", userID).
		Int64("deleted", tag.RowsAffected()).
		Msg("cart cleared")

	return tag.RowsAffected(), nil
}
