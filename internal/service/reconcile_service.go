package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"kart-reconciler/internal/archive"
	"kart-reconciler/internal/gateway"
	"kart-reconciler/internal/model"
	"kart-reconciler/internal/repository"
	"kart-reconciler/internal/telemetry"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Outcome labels recorded besides the terminal order statuses.
const (
	outcomeReplayed = "REPLAYED"
)

// reconcileService implements ReconcileService.
type reconcileService struct {
	orderRepo   repository.OrderRepository
	paymentRepo repository.PaymentRepository
	cartRepo    repository.CartRepository
	gateway     gateway.Client
	archiver    archive.Archiver
	publisher   EventPublisher
	metrics     *telemetry.Metrics
	tolerance   decimal.Decimal
	logger      zerolog.Logger
}

// NewReconcileService creates a new reconcile service. archiver, publisher and
// metrics may be nil.
func NewReconcileService(
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	cartRepo repository.CartRepository,
	gatewayClient gateway.Client,
	archiver archive.Archiver,
	publisher EventPublisher,
	metrics *telemetry.Metrics,
	tolerance decimal.Decimal,
	logger zerolog.Logger,
) ReconcileService {
	if archiver == nil {
		archiver = archive.NopArchiver{}
	}
	return &reconcileService{
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		cartRepo:    cartRepo,
		gateway:     gatewayClient,
		archiver:    archiver,
		publisher:   publisher,
		metrics:     metrics,
		tolerance:   tolerance,
		logger:      logger.With().Str("service", "reconcile").Logger(),
	}
}

// Reconcile verifies, validates and commits one notification.
func (s *reconcileService) Reconcile(ctx context.Context, n model.Notification) (*model.ReconcileResult, error) {
	result, err := s.reconcile(ctx, n)
	s.metrics.RecordOutcome(ctx, outcomeLabel(result, err))
	return result, err
}

func (s *reconcileService) reconcile(ctx context.Context, n model.Notification) (*model.ReconcileResult, error) {
	n.TransactionID = strings.TrimSpace(n.TransactionID)
	n.Reference = strings.TrimSpace(n.Reference)
	if n.TransactionID == "" {
		return nil, model.ErrMalformedPayload.WithMessage("transactionId is required")
	}

	orderID := n.OrderID()
	log := s.logger.With().
		Str("transaction_id", n.TransactionID).
		Str("order_id", orderID).
		Logger()

	// 1. Ask the gateway. Nothing is written unless it answers.
	v, err := s.gateway.Verify(ctx, n.TransactionID)
	if err != nil {
		log.Warn().Err(err).Msg("payment not verified, nothing written")
		return nil, err
	}

	if len(v.Raw) > 0 {
		// Best effort: failures are logged by the archiver.
		_, _ = s.archiver.ArchiveVerification(ctx, n.TransactionID, v.Raw)
	}

	if !v.Verified() && !v.Declined() {
		log.Warn().Str("gateway_status", string(v.Status)).Msg("gateway reports a non-terminal status, nothing written")
		return nil, model.ErrPaymentUnverified.WithMessage("payment status is " + string(v.Status))
	}

	// 2. Resolve and parse the order payload.
	payload, err := s.resolvePayload(ctx, n, v, orderID)
	if err != nil {
		log.Error().Err(err).Msg("order payload rejected")
		return nil, err
	}

	if v.Declined() {
		return s.commitDeclined(ctx, log, n, v, orderID, payload)
	}

	// 3. Amount gate.
	if err := s.checkAmounts(log, v, payload); err != nil {
		return nil, err
	}

	// 4-5. Atomic commit.
	return s.commitPaid(ctx, log, n, v, orderID, payload)
}

// resolvePayload picks the notification data, then the gateway data, then the
// PENDING order staged at intake. A present but invalid source is rejected
// rather than skipped.
func (s *reconcileService) resolvePayload(ctx context.Context, n model.Notification, v *gateway.Verification, orderID string) (*model.OrderPayload, error) {
	if strings.TrimSpace(n.Data) != "" {
		return model.ParseOrderPayload([]byte(n.Data))
	}
	if strings.TrimSpace(v.Data) != "" {
		return model.ParseOrderPayload([]byte(v.Data))
	}

	order, items, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, model.ErrLedgerWriteFailed.WithCause("failed to read staged order", err)
	}
	if order == nil {
		if v.Declined() {
			return nil, model.ErrMalformedPayload.WithMessage("declined payment has no order payload and no staged order")
		}
		return nil, model.ErrMalformedPayload.WithMessage("notification carries no order payload and no order was staged")
	}

	if order.Status.IsTerminal() || len(items) == 0 {
		// Nothing to rebuild from; a terminal order is handled as a replay and
		// a declined payment only needs the existing row.
		if order.Status.IsTerminal() || v.Declined() {
			return nil, nil
		}
		return nil, model.ErrMalformedPayload.WithMessage("staged order has no items")
	}

	payload := payloadFromOrder(order, items)
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

func payloadFromOrder(order *model.Order, items []model.OrderItem) *model.OrderPayload {
	shipping := order.Shipping
	p := &model.OrderPayload{
		UserID:          order.UserID,
		ShippingAddress: &shipping,
		Currency:        order.Currency,
		Items:           make([]model.PayloadItem, len(items)),
	}
	for i, item := range items {
		price := item.PriceAtOrder
		p.Items[i] = model.PayloadItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     &price,
			Name:      item.Name,
			ImgURL:    item.ImgURL,
		}
	}
	return p
}

// checkAmounts compares the payload total with the gateway amount and with the
// total the client claimed.
func (s *reconcileService) checkAmounts(log zerolog.Logger, v *gateway.Verification, payload *model.OrderPayload) error {
	if payload == nil {
		return nil
	}

	computed := payload.ComputedTotal()
	event := func(reason string) *zerolog.Event {
		e := log.Error().
			Str("security_event", "amount_mismatch").
			Str("reason", reason).
			Str("user_id", payload.UserID).
			Str("computed_amount", computed.String()).
			Str("verified_amount", v.Amount.String()).
			Str("verified_currency", v.Currency)
		if payload.TotalAmount != nil {
			e = e.Str("claimed_amount", payload.TotalAmount.String())
		}
		return e
	}

	if computed.Sub(v.Amount).Abs().GreaterThan(s.tolerance) {
		event("computed_vs_verified").Msg("order total does not match the verified payment")
		return model.ErrAmountMismatch.WithMessage("order total " + computed.String() + " does not match verified amount " + v.Amount.String())
	}

	if payload.TotalAmount != nil && payload.TotalAmount.Sub(computed).Abs().GreaterThan(s.tolerance) {
		event("claimed_vs_computed").Msg("claimed order total does not match its items")
		return model.ErrAmountMismatch.WithMessage("claimed total " + payload.TotalAmount.String() + " does not match items total " + computed.String())
	}

	if payload.Currency != "" && v.Currency != "" && !strings.EqualFold(payload.Currency, v.Currency) {
		event("currency").Str("claimed_currency", payload.Currency).Msg("order currency does not match the verified payment")
		return model.ErrAmountMismatch.WithMessage("order currency " + payload.Currency + " does not match verified currency " + v.Currency)
	}

	return nil
}

// commitPaid applies the success path in one transaction.
func (s *reconcileService) commitPaid(
	ctx context.Context,
	log zerolog.Logger,
	n model.Notification,
	v *gateway.Verification,
	orderID string,
	payload *model.OrderPayload,
) (*model.ReconcileResult, error) {
	result := &model.ReconcileResult{
		OrderID:       orderID,
		TransactionID: n.TransactionID,
		Outcome:       model.OrderStatusPaidSuccess,
	}

	var (
		order    *model.Order
		replayed bool
		cleared  int64
	)

	err := s.inTx(ctx, log, func(tx pgx.Tx) error {
		if err := s.claimTransaction(ctx, tx, log, n.TransactionID, orderID); err != nil {
			return err
		}

		var err error
		order, err = s.lockOrder(ctx, tx, orderID, payload, v.Currency)
		if err != nil {
			return err
		}

		if payload != nil && order.UserID != payload.UserID {
			log.Error().
				Str("security_event", "owner_mismatch").
				Str("order_user_id", order.UserID).
				Str("payload_user_id", payload.UserID).
				Msg("payload owner differs from order owner")
			return model.ErrMalformedPayload.WithMessage("payload userId does not own the order")
		}

		if order.Status.IsTerminal() {
			replayed = true
			return nil
		}
		if payload == nil {
			return model.ErrMalformedPayload.WithMessage("notification carries no order payload")
		}

		now := time.Now()
		transactionID := n.TransactionID
		order.Status = model.OrderStatusPaidSuccess
		order.PaymentStatus = model.PaymentStatusCompleted
		order.TotalAmount = v.Amount
		order.Currency = v.Currency
		order.Shipping = *payload.ShippingAddress
		order.GatewayTransactionID = &transactionID
		order.UpdatedAt = now

		if err := s.orderRepo.UpdateOrder(ctx, tx, order); err != nil {
			return err
		}

		if _, err := s.orderRepo.DeleteItems(ctx, tx, orderID); err != nil {
			return err
		}

		if err := s.orderRepo.CreateOrderItems(ctx, tx, itemsFromPayload(orderID, payload)); err != nil {
			return err
		}

		if err := s.paymentRepo.UpsertPayment(ctx, tx, &model.Payment{
			ID:            uuid.New(),
			OrderID:       orderID,
			PaymentMethod: v.PaymentMethod,
			TransactionID: &transactionID,
			Amount:        v.Amount,
			Currency:      v.Currency,
			Status:        model.PaymentStatusCompleted,
			PaymentDate:   &now,
		}); err != nil {
			return err
		}

		cleared, err = s.cartRepo.ClearForUser(ctx, tx, payload.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		return s.replay(log, result, order, model.OrderStatusPaidSuccess), nil
	}

	log.Info().
		Str("user_id", order.UserID).
		Str("amount", order.TotalAmount.String()).
		Int("item_count", len(payload.Items)).
		Int64("cart_items_cleared", cleared).
		Msg("order paid")

	s.publish(ctx, log, order, n.TransactionID)
	return result, nil
}

// commitDeclined records an explicit gateway decline. The cart is kept.
func (s *reconcileService) commitDeclined(
	ctx context.Context,
	log zerolog.Logger,
	n model.Notification,
	v *gateway.Verification,
	orderID string,
	payload *model.OrderPayload,
) (*model.ReconcileResult, error) {
	result := &model.ReconcileResult{
		OrderID:       orderID,
		TransactionID: n.TransactionID,
		Outcome:       model.OrderStatusPaymentFailed,
	}

	var (
		order    *model.Order
		replayed bool
	)

	err := s.inTx(ctx, log, func(tx pgx.Tx) error {
		if err := s.claimTransaction(ctx, tx, log, n.TransactionID, orderID); err != nil {
			return err
		}

		var err error
		order, err = s.lockOrder(ctx, tx, orderID, payload, v.Currency)
		if err != nil {
			return err
		}

		if payload != nil && order.UserID != payload.UserID {
			log.Error().
				Str("security_event", "owner_mismatch").
				Str("order_user_id", order.UserID).
				Str("payload_user_id", payload.UserID).
				Msg("payload owner differs from order owner")
			return model.ErrMalformedPayload.WithMessage("payload userId does not own the order")
		}

		if order.Status.IsTerminal() {
			replayed = true
			return nil
		}

		transactionID := n.TransactionID
		order.Status = model.OrderStatusPaymentFailed
		order.PaymentStatus = model.PaymentStatusFailed
		order.GatewayTransactionID = &transactionID
		order.UpdatedAt = time.Now()
		if payload != nil {
			order.TotalAmount = payload.ComputedTotal()
			order.Shipping = *payload.ShippingAddress
		}

		if err := s.orderRepo.UpdateOrder(ctx, tx, order); err != nil {
			return err
		}

		if payload != nil {
			if _, err := s.orderRepo.DeleteItems(ctx, tx, orderID); err != nil {
				return err
			}
			if err := s.orderRepo.CreateOrderItems(ctx, tx, itemsFromPayload(orderID, payload)); err != nil {
				return err
			}
		}

		amount := v.Amount
		if amount.IsZero() {
			amount = order.TotalAmount
		}
		currency := v.Currency
		if currency == "" {
			currency = order.Currency
		}

		return s.paymentRepo.UpsertPayment(ctx, tx, &model.Payment{
			ID:            uuid.New(),
			OrderID:       orderID,
			PaymentMethod: v.PaymentMethod,
			TransactionID: &transactionID,
			Amount:        amount,
			Currency:      currency,
			Status:        model.PaymentStatusFailed,
		})
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		return s.replay(log, result, order, model.OrderStatusPaymentFailed), nil
	}

	log.Info().
		Str("user_id", order.UserID).
		Str("gateway_status", string(v.Status)).
		Msg("payment declined, order marked failed")

	s.publish(ctx, log, order, n.TransactionID)
	return result, nil
}

// claimTransaction locks the payment already carrying transactionID, if any,
// and rejects the notification when that payment settles a different order.
func (s *reconcileService) claimTransaction(ctx context.Context, tx pgx.Tx, log zerolog.Logger, transactionID, orderID string) error {
	payment, err := s.paymentRepo.LockByTransactionID(ctx, tx, transactionID)
	if err != nil {
		return err
	}
	if payment == nil || payment.OrderID == orderID {
		return nil
	}

	log.Error().
		Str("security_event", "transaction_reuse").
		Str("settled_order_id", payment.OrderID).
		Str("payment_status", string(payment.Status)).
		Msg("transaction already recorded for another order")
	return model.ErrMalformedPayload.WithMessage("transaction " + transactionID + " already belongs to order " + payment.OrderID)
}

// lockOrder inserts a PENDING row for orderID when a payload is known and none
// exists yet, then locks it. Concurrent callers for the same id serialize on
// the row lock.
func (s *reconcileService) lockOrder(ctx context.Context, tx pgx.Tx, orderID string, payload *model.OrderPayload, currency string) (*model.Order, error) {
	if payload != nil {
		if payload.Currency != "" {
			currency = payload.Currency
		}

		now := time.Now()
		stub := &model.Order{
			ID:          orderID,
			UserID:      payload.UserID,
			TotalAmount: decimal.Zero,
			Currency:    currency,
			Status:      model.OrderStatusPending,
			Shipping:    *payload.ShippingAddress,
			OrderDate:   now,
			UpdatedAt:   now,
		}

		if _, err := s.orderRepo.EnsureOrder(ctx, tx, stub); err != nil {
			return nil, err
		}
	}

	order, err := s.orderRepo.LockByID(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.ErrMalformedPayload.WithMessage("no order payload and no staged order for " + orderID)
	}
	return order, nil
}

// replay reports a terminal order as an idempotent no-op.
func (s *reconcileService) replay(log zerolog.Logger, result *model.ReconcileResult, order *model.Order, wanted model.OrderStatus) *model.ReconcileResult {
	result.Outcome = order.Status
	result.Replayed = true

	if order.Status != wanted {
		log.Warn().
			Str("status", string(order.Status)).
			Str("notified_status", string(wanted)).
			Msg("notification conflicts with terminal order state, ignored")
	} else {
		log.Info().Str("status", string(order.Status)).Msg("order already settled, replay ignored")
	}

	return result
}

// inTx runs fn in a transaction, rolling back on any error. Errors that are
// not already domain errors become LedgerWriteFailed.
func (s *reconcileService) inTx(ctx context.Context, log zerolog.Logger, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return model.ErrLedgerWriteFailed.WithCause("failed to begin transaction", err)
	}

	// Ensure transaction is rolled back on error
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	if err = fn(tx); err != nil {
		// A concurrent commit recorded the transaction on another order first.
		if errors.Is(err, repository.ErrTransactionClaimed) {
			log.Error().Str("security_event", "transaction_reuse").Err(err).Msg("transaction already recorded for another order")
			return model.ErrMalformedPayload.WithCause("transaction already belongs to another order", err)
		}

		var de *model.DomainError
		if errors.As(err, &de) {
			return err
		}
		log.Error().Err(err).Msg("ledger write failed, rolled back")
		return model.ErrLedgerWriteFailed.WithCause("failed to record order", err)
	}

	if err = tx.Commit(ctx); err != nil {
		log.Error().Err(err).Msg("failed to commit transaction")
		return model.ErrLedgerWriteFailed.WithCause("failed to commit order", err)
	}

	return nil
}

// publish emits the reconciled event. Failures never undo the commit.
func (s *reconcileService) publish(ctx context.Context, log zerolog.Logger, order *model.Order, transactionID string) {
	if s.publisher == nil {
		return
	}

	event := model.OrderReconciledEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        order.Status,
		Amount:        order.TotalAmount.String(),
		Currency:      order.Currency,
		TransactionID: transactionID,
		OccurredAt:    order.UpdatedAt.UTC(),
	}

	if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
		log.Error().Err(err).Msg("failed to publish order reconciled event")
	}
}

func outcomeLabel(result *model.ReconcileResult, err error) string {
	if err != nil {
		var de *model.DomainError
		if errors.As(err, &de) {
			return de.Code
		}
		return model.ErrCodeInternalError
	}
	if result.Replayed {
		return outcomeReplayed
	}
	return string(result.Outcome)
}
