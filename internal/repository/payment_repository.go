package repository

import (
	"context"
	"errors"
	"fmt"

	"kart-reconciler/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	paymentColumns = `id, order_id, payment_method, transaction_id, amount, currency, status, payment_date`

	uniqueViolation         = "23505"
	transactionIDConstraint = "payments_transaction_id_key"
)

// ErrTransactionClaimed is returned when a gateway transaction ID is already
// recorded on the payment of a different order.
var ErrTransactionClaimed = errors.New("transaction already recorded for another order")

// paymentRepository implements the PaymentRepository interface using PostgreSQL.
type paymentRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPaymentRepository creates a new PostgreSQL-backed payment repository.
func NewPaymentRepository(pool *pgxpool.Pool, logger zerolog.Logger) PaymentRepository {
	return &paymentRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "payment").Logger(),
	}
}

// EnsurePayment inserts the payment unless the order already has one.
func (r *paymentRepository) EnsurePayment(ctx context.Context, tx pgx.Tx, payment *model.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, payment_method, transaction_id, amount, currency, status, payment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (order_id) DO NOTHING
	`

	_, err := tx.Exec(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.PaymentMethod,
		payment.TransactionID,
		payment.Amount,
		payment.Currency,
		string(payment.Status),
		payment.PaymentDate,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", payment.OrderID).Msg("failed to insert payment")
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return nil
}

// UpsertPayment inserts or replaces the payment keyed by order ID.
// The row ID of an existing payment is preserved.
func (r *paymentRepository) UpsertPayment(ctx context.Context, tx pgx.Tx, payment *model.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, payment_method, transaction_id, amount, currency, status, payment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (order_id) DO UPDATE SET
			payment_method = EXCLUDED.payment_method,
			transaction_id = EXCLUDED.transaction_id,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			payment_date = EXCLUDED.payment_date,
			updated_at = NOW()
	`

	_, err := tx.Exec(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.PaymentMethod,
		payment.TransactionID,
		payment.Amount,
		payment.Currency,
		string(payment.Status),
		payment.PaymentDate,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == transactionIDConstraint {
			r.logger.Warn().
				Str("order_id", payment.OrderID).
				Str("transaction_id", derefString(payment.TransactionID)).
				Msg("transaction already recorded for another order")
			return fmt.Errorf("failed to upsert payment: %w", ErrTransactionClaimed)
		}

		r.logger.Error().
			Err(err).
			Str("order_id", payment.OrderID).
			Str("status", string(payment.Status)).
			Msg("failed to upsert payment")
		return fmt.Errorf("failed to upsert payment: %w", err)
	}

	r.logger.Debug().
		Str("order_id", payment.OrderID).
		Str("status", string(payment.Status)).
		Msg("payment upserted")

	return nil
}

// LockByTransactionID reads the payment of a gateway transaction with SELECT ... FOR UPDATE.
func (r *paymentRepository) LockByTransactionID(ctx context.Context, tx pgx.Tx, transactionID string) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1 FOR UPDATE`

	payment, err := scanPayment(tx.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("transaction_id", transactionID).Msg("failed to lock payment")
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}

	return payment, nil
}

// GetByOrderID retrieves the payment of an order.
func (r *paymentRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	payments, err := r.GetByOrderIDs(ctx, []string{orderID})
	if err != nil {
		return nil, err
	}

	payment, ok := payments[orderID]
	if !ok {
		return nil, nil
	}
	return &payment, nil
}

// GetByOrderIDs retrieves the payments of several orders keyed by order ID.
func (r *paymentRepository) GetByOrderIDs(ctx context.Context, orderIDs []string) (map[string]model.Payment, error) {
	result := make(map[string]model.Payment, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, orderIDs)
	if err != nil {
		r.logger.Error().Err(err).Int("order_count", len(orderIDs)).Msg("failed to query payments")
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan payment row")
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		result[payment.OrderID] = *payment
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating payment rows")
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}

	return result, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		payment model.Payment
		status  string
	)
	err := row.Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.PaymentMethod,
		&payment.TransactionID,
		&payment.Amount,
		&payment.Currency,
		&status,
		&payment.PaymentDate,
	)
	if err != nil {
		return nil, err
	}
	payment.Status = model.PaymentStatus(status)
	return &payment, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
