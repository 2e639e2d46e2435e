package service

import (
	"context"
	"encoding/json"
	"strings"

	"kart-reconciler/internal/model"
	"kart-reconciler/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// queryService implements QueryService.
type queryService struct {
	orderRepo        repository.OrderRepository
	paymentRepo      repository.PaymentRepository
	placeholderImage string
	logger           zerolog.Logger
}

// NewQueryService creates a new query service. placeholderImage is shown for
// items that carry no usable image.
func NewQueryService(
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	placeholderImage string,
	logger zerolog.Logger,
) QueryService {
	return &queryService{
		orderRepo:        orderRepo,
		paymentRepo:      paymentRepo,
		placeholderImage: placeholderImage,
		logger:           logger.With().Str("service", "query").Logger(),
	}
}

// ListOrders returns the caller's orders.
func (s *queryService) ListOrders(ctx context.Context, identity *model.Identity) ([]model.OrderView, error) {
	if identity == nil || identity.UserID == "" {
		return nil, model.ErrUnauthenticated
	}

	orders, err := s.orderRepo.ListByUser(ctx, identity.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", identity.UserID).Msg("failed to list orders")
		return nil, err
	}

	return s.views(ctx, orders)
}

// GetOrder returns one order with its items and payment.
func (s *queryService) GetOrder(ctx context.Context, identity *model.Identity, orderID string) (*model.OrderView, error) {
	if identity == nil || identity.UserID == "" {
		return nil, model.ErrUnauthenticated
	}

	order, items, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to get order")
		return nil, err
	}

	if order == nil {
		s.logger.Debug().Str("order_id", orderID).Msg("order not found")
		return nil, model.ErrOrderNotFound
	}

	if !identity.CanAccess(order.UserID) {
		s.logger.Warn().
			Str("order_id", orderID).
			Str("user_id", identity.UserID).
			Msg("order read denied")
		return nil, model.ErrForbidden
	}

	payment, err := s.paymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to get payment")
		return nil, err
	}

	view := s.view(*order, items, payment)
	return &view, nil
}

// ListAllOrders returns a page of all orders. Admin only.
func (s *queryService) ListAllOrders(ctx context.Context, identity *model.Identity, limit, offset int) ([]model.OrderView, error) {
	if identity == nil || identity.UserID == "" {
		return nil, model.ErrUnauthenticated
	}

	if !identity.Admin {
		s.logger.Warn().Str("user_id", identity.UserID).Msg("admin order listing denied")
		return nil, model.ErrForbidden
	}

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	orders, err := s.orderRepo.ListAll(ctx, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Int("limit", limit).Int("offset", offset).Msg("failed to list all orders")
		return nil, err
	}

	return s.views(ctx, orders)
}

// views loads items and payments for all orders in two batch queries.
func (s *queryService) views(ctx context.Context, orders []model.Order) ([]model.OrderView, error) {
	out := make([]model.OrderView, 0, len(orders))
	if len(orders) == 0 {
		return out, nil
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	items, err := s.orderRepo.GetItemsByOrderIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Int("order_count", len(ids)).Msg("failed to load order items")
		return nil, err
	}

	payments, err := s.paymentRepo.GetByOrderIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Int("order_count", len(ids)).Msg("failed to load payments")
		return nil, err
	}

	for _, o := range orders {
		var payment *model.Payment
		if p, ok := payments[o.ID]; ok {
			payment = &p
		}
		out = append(out, s.view(o, items[o.ID], payment))
	}
	return out, nil
}

func (s *queryService) view(order model.Order, items []model.OrderItem, payment *model.Payment) model.OrderView {
	v := model.OrderView{
		ID:            order.ID,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
		Currency:      order.Currency,
		OrderDate:     order.OrderDate,
		Shipping:      order.Shipping,
		Items:         make([]model.OrderItemView, len(items)),
	}

	for i, item := range items {
		v.Items[i] = model.OrderItemView{
			ProductID:    item.ProductID,
			Name:         item.Name,
			ImageURL:     s.firstImage(item.ImgURL),
			Quantity:     item.Quantity,
			PriceAtOrder: item.PriceAtOrder,
			Subtotal:     item.PriceAtOrder.Mul(decimal.NewFromInt(int64(item.Quantity))),
		}
	}

	if payment != nil {
		pv := &model.PaymentView{
			Method:      payment.PaymentMethod,
			Amount:      payment.Amount,
			Currency:    payment.Currency,
			Status:      payment.Status,
			PaymentDate: payment.PaymentDate,
		}
		if payment.TransactionID != nil {
			pv.TransactionID = *payment.TransactionID
		}
		v.Payment = pv
	}

	return v
}

// firstImage accepts a JSON array of URLs or a single URL.
func (s *queryService) firstImage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.placeholderImage
	}

	if strings.HasPrefix(raw, "[") {
		var urls []string
		if err := json.Unmarshal([]byte(raw), &urls); err != nil {
			return s.placeholderImage
		}
		for _, u := range urls {
			if u = strings.TrimSpace(u); u != "" {
				return u
			}
		}
		return s.placeholderImage
	}

	return raw
}
