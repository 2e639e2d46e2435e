package service

import (
	"context"
	"fmt"
	"time"

	"kart-reconciler/internal/model"
	"kart-reconciler/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// intakeService implements IntakeService.
type intakeService struct {
	orderRepo       repository.OrderRepository
	paymentRepo     repository.PaymentRepository
	persistStub     bool
	defaultCurrency string
	logger          zerolog.Logger
}

// NewIntakeService creates a new intake service. With persistStub false the
// transaction id is only returned to the client.
func NewIntakeService(
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	persistStub bool,
	defaultCurrency string,
	logger zerolog.Logger,
) IntakeService {
	return &intakeService{
		orderRepo:       orderRepo,
		paymentRepo:     paymentRepo,
		persistStub:     persistStub,
		defaultCurrency: defaultCurrency,
		logger:          logger.With().Str("service", "intake").Logger(),
	}
}

// Prepare reserves a transaction id for the caller.
func (s *intakeService) Prepare(ctx context.Context, identity *model.Identity, staged *model.OrderPayload) (*model.PrepareResponse, error) {
	if identity == nil || identity.UserID == "" {
		return nil, model.ErrUnauthenticated
	}

	if staged != nil {
		if staged.UserID == "" {
			staged.UserID = identity.UserID
		}
		if staged.UserID != identity.UserID {
			s.logger.Warn().
				Str("user_id", identity.UserID).
				Str("payload_user_id", staged.UserID).
				Msg("staged order belongs to another user")
			return nil, model.ErrForbidden.WithMessage("staged order belongs to another user")
		}
		if err := staged.Validate(); err != nil {
			s.logger.Warn().Err(err).Str("user_id", identity.UserID).Msg("invalid staged order")
			return nil, err
		}
	}

	transactionID := uuid.NewString()
	resp := &model.PrepareResponse{
		TransactionID: transactionID,
		OrderID:       transactionID,
		Status:        model.OrderStatusPending,
	}

	if !s.persistStub {
		s.logger.Info().
			Str("user_id", identity.UserID).
			Str("transaction_id", transactionID).
			Msg("transaction id reserved")
		return resp, nil
	}

	if err := s.stage(ctx, identity.UserID, transactionID, staged); err != nil {
		return nil, err
	}

	resp.Staged = true

	s.logger.Info().
		Str("user_id", identity.UserID).
		Str("transaction_id", transactionID).
		Bool("with_items", staged != nil).
		Msg("pending order staged")

	return resp, nil
}

// stage writes the PENDING order, its snapshot items and a PENDING payment.
func (s *intakeService) stage(ctx context.Context, userID, orderID string, staged *model.OrderPayload) (err error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to begin transaction")
		return model.ErrLedgerWriteFailed.WithCause("failed to stage order", err)
	}

	// Ensure transaction is rolled back on error
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	now := time.Now()
	order := &model.Order{
		ID:          orderID,
		UserID:      userID,
		TotalAmount: decimal.Zero,
		Currency:    s.defaultCurrency,
		Status:      model.OrderStatusPending,
		OrderDate:   now,
		UpdatedAt:   now,
	}

	var items []model.OrderItem
	if staged != nil {
		order.TotalAmount = staged.ComputedTotal()
		order.Shipping = *staged.ShippingAddress
		if staged.Currency != "" {
			order.Currency = staged.Currency
		}
		items = itemsFromPayload(orderID, staged)
	}

	if _, err = s.orderRepo.EnsureOrder(ctx, tx, order); err != nil {
		return model.ErrLedgerWriteFailed.WithCause("failed to stage order", err)
	}

	if err = s.orderRepo.CreateOrderItems(ctx, tx, items); err != nil {
		return model.ErrLedgerWriteFailed.WithCause("failed to stage order items", err)
	}

	payment := &model.Payment{
		ID:       uuid.New(),
		OrderID:  orderID,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
		Status:   model.PaymentStatusPending,
	}
	if err = s.paymentRepo.EnsurePayment(ctx, tx, payment); err != nil {
		return model.ErrLedgerWriteFailed.WithCause("failed to stage payment", err)
	}

	if err = tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to commit transaction")
		return model.ErrLedgerWriteFailed.WithCause("failed to stage order", fmt.Errorf("commit: %w", err))
	}

	return nil
}

// itemsFromPayload snapshots payload lines as order items with fresh row ids.
func itemsFromPayload(orderID string, p *model.OrderPayload) []model.OrderItem {
	items := make([]model.OrderItem, len(p.Items))
	for i, line := range p.Items {
		items[i] = model.OrderItem{
			ID:           uuid.New(),
			OrderID:      orderID,
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			PriceAtOrder: *line.Price,
			Name:         line.Name,
			ImgURL:       line.ImgURL,
		}
	}
	return items
}
