package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kart-reconciler/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const placeholder = "/assets/upload_area.png"

func newQueryFixture() (*MockOrderRepository, *MockPaymentRepository, QueryService) {
	orders := new(MockOrderRepository)
	payments := new(MockPaymentRepository)
	return orders, payments, NewQueryService(orders, payments, placeholder, zerolog.Nop())
}

func TestQueryService_GetOrder(t *testing.T) {
	ctx := context.Background()
	orders, payments, svc := newQueryFixture()

	tx := "T1"
	paidAt := time.Now()
	order := &model.Order{
		ID:            "T1",
		UserID:        "u1",
		TotalAmount:   decimal.NewFromInt(25),
		Currency:      "XOF",
		Status:        model.OrderStatusPaidSuccess,
		PaymentStatus: model.PaymentStatusCompleted,
	}
	items := []model.OrderItem{
		{ProductID: "P1", Quantity: 2, PriceAtOrder: decimal.NewFromInt(10), Name: "Shirt", ImgURL: `["a.png","b.png"]`},
		{ProductID: "P2", Quantity: 1, PriceAtOrder: decimal.NewFromInt(5), Name: "Sock", ImgURL: ""},
	}

	orders.On("GetByID", mock.Anything, "T1").Return(order, items, nil)
	payments.On("GetByOrderID", mock.Anything, "T1").Return(&model.Payment{
		OrderID:       "T1",
		PaymentMethod: "Mobile Money",
		TransactionID: &tx,
		Amount:        decimal.NewFromInt(25),
		Currency:      "XOF",
		Status:        model.PaymentStatusCompleted,
		PaymentDate:   &paidAt,
	}, nil)

	view, err := svc.GetOrder(ctx, &model.Identity{UserID: "u1"}, "T1")

	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaidSuccess, view.Status)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "a.png", view.Items[0].ImageURL)
	assert.True(t, view.Items[0].Subtotal.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, placeholder, view.Items[1].ImageURL)
	require.NotNil(t, view.Payment)
	assert.Equal(t, "T1", view.Payment.TransactionID)
	assert.Equal(t, model.PaymentStatusCompleted, view.Payment.Status)
}

func TestQueryService_GetOrder_Access(t *testing.T) {
	order := &model.Order{ID: "T1", UserID: "u1", Status: model.OrderStatusPending}

	tests := []struct {
		name     string
		identity *model.Identity
		want     error
	}{
		{name: "no identity", identity: nil, want: model.ErrUnauthenticated},
		{name: "other user", identity: &model.Identity{UserID: "u2"}, want: model.ErrForbidden},
		{name: "admin", identity: &model.Identity{UserID: "root", Admin: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, payments, svc := newQueryFixture()
			orders.On("GetByID", mock.Anything, "T1").Return(order, []model.OrderItem{}, nil)
			payments.On("GetByOrderID", mock.Anything, "T1").Return(nil, nil)

			view, err := svc.GetOrder(context.Background(), tt.identity, "T1")

			if tt.want != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.want)
				assert.Nil(t, view)
				return
			}
			require.NoError(t, err)
			assert.Nil(t, view.Payment)
			assert.Empty(t, view.Items)
		})
	}
}

func TestQueryService_GetOrder_NotFound(t *testing.T) {
	orders, _, svc := newQueryFixture()
	orders.On("GetByID", mock.Anything, "missing").Return(nil, nil, nil)

	view, err := svc.GetOrder(context.Background(), &model.Identity{UserID: "u1"}, "missing")

	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
	assert.Nil(t, view)
}

func TestQueryService_ListOrders(t *testing.T) {
	ctx := context.Background()
	orders, payments, svc := newQueryFixture()

	list := []model.Order{
		{ID: "B", UserID: "u1", Status: model.OrderStatusPaidSuccess},
		{ID: "A", UserID: "u1", Status: model.OrderStatusPending},
	}

	orders.On("ListByUser", mock.Anything, "u1").Return(list, nil)
	orders.On("GetItemsByOrderIDs", mock.Anything, []string{"B", "A"}).Return(map[string][]model.OrderItem{
		"B": {{ProductID: "P1", Quantity: 1, PriceAtOrder: decimal.NewFromInt(3), ImgURL: "https://cdn/x.png"}},
	}, nil)
	payments.On("GetByOrderIDs", mock.Anything, []string{"B", "A"}).Return(map[string]model.Payment{
		"B": {OrderID: "B", Status: model.PaymentStatusCompleted},
	}, nil)

	views, err := svc.ListOrders(ctx, &model.Identity{UserID: "u1"})

	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "B", views[0].ID)
	assert.Equal(t, "https://cdn/x.png", views[0].Items[0].ImageURL)
	require.NotNil(t, views[0].Payment)
	assert.Empty(t, views[1].Items)
	assert.Nil(t, views[1].Payment)
}

func TestQueryService_ListOrders_Empty(t *testing.T) {
	orders, payments, svc := newQueryFixture()
	orders.On("ListByUser", mock.Anything, "u1").Return([]model.Order{}, nil)

	views, err := svc.ListOrders(context.Background(), &model.Identity{UserID: "u1"})

	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)
	orders.AssertNotCalled(t, "GetItemsByOrderIDs", mock.Anything, mock.Anything)
	payments.AssertNotCalled(t, "GetByOrderIDs", mock.Anything, mock.Anything)
}

func TestQueryService_ListOrders_RepositoryError(t *testing.T) {
	orders, _, svc := newQueryFixture()
	orders.On("ListByUser", mock.Anything, "u1").Return(nil, errors.New("database down"))

	views, err := svc.ListOrders(context.Background(), &model.Identity{UserID: "u1"})

	require.Error(t, err)
	assert.Nil(t, views)
}

func TestQueryService_ListAllOrders(t *testing.T) {
	tests := []struct {
		name          string
		limit         int
		offset        int
		expectedLimit int
		expectedOff   int
	}{
		{name: "default limit", limit: 0, offset: 0, expectedLimit: 50, expectedOff: 0},
		{name: "capped limit", limit: 1000, offset: 10, expectedLimit: 200, expectedOff: 10},
		{name: "negative offset", limit: 20, offset: -5, expectedLimit: 20, expectedOff: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, _, svc := newQueryFixture()
			orders.On("ListAll", mock.Anything, tt.expectedLimit, tt.expectedOff).Return([]model.Order{}, nil)

			views, err := svc.ListAllOrders(context.Background(), &model.Identity{UserID: "root", Admin: true}, tt.limit, tt.offset)

			require.NoError(t, err)
			assert.Empty(t, views)
			orders.AssertExpectations(t)
		})
	}
}

func TestQueryService_ListAllOrders_RequiresAdmin(t *testing.T) {
	orders, _, svc := newQueryFixture()

	_, err := svc.ListAllOrders(context.Background(), &model.Identity{UserID: "u1"}, 10, 0)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = svc.ListAllOrders(context.Background(), nil, 10, 0)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)

	orders.AssertNotCalled(t, "ListAll", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryService_FirstImage(t *testing.T) {
	svc := &queryService{placeholderImage: placeholder}

	tests := []struct {
		raw      string
		expected string
	}{
		{"", placeholder},
		{"plain.png", "plain.png"},
		{`["first.png","second.png"]`, "first.png"},
		{`[]`, placeholder},
		{`["", " "]`, placeholder},
		{`[not json`, placeholder},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, svc.firstImage(tt.raw), tt.raw)
	}
}
