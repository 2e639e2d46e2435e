package service

import (
	"context"
	"errors"
	"testing"

	"kart-reconciler/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestIntakeService_Prepare_IDOnly(t *testing.T) {
	mockOrderRepo := new(MockOrderRepository)
	mockPaymentRepo := new(MockPaymentRepository)
	service := NewIntakeService(mockOrderRepo, mockPaymentRepo, false, "XOF", zerolog.Nop())

	resp, err := service.Prepare(context.Background(), &model.Identity{UserID: "u1"}, nil)

	require.NoError(t, err)
	_, parseErr := uuid.Parse(resp.TransactionID)
	assert.NoError(t, parseErr)
	assert.Equal(t, resp.TransactionID, resp.OrderID)
	assert.Equal(t, model.OrderStatusPending, resp.Status)
	assert.False(t, resp.Staged)
	mockOrderRepo.AssertNotCalled(t, "BeginTx", mock.Anything)
}

func TestIntakeService_Prepare_UniqueIDs(t *testing.T) {
	service := NewIntakeService(new(MockOrderRepository), new(MockPaymentRepository), false, "XOF", zerolog.Nop())
	identity := &model.Identity{UserID: "u1"}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		resp, err := service.Prepare(context.Background(), identity, nil)
		require.NoError(t, err)
		assert.False(t, seen[resp.TransactionID], "duplicate transaction id")
		seen[resp.TransactionID] = true
	}
}

func TestIntakeService_Prepare_StagesPendingOrder(t *testing.T) {
	ctx := context.Background()
	mockOrderRepo := new(MockOrderRepository)
	mockPaymentRepo := new(MockPaymentRepository)
	mockTx := new(MockTx)

	service := NewIntakeService(mockOrderRepo, mockPaymentRepo, true, "XOF", zerolog.Nop())

	staged := testPayload()
	staged.UserID = ""

	mockOrderRepo.On("BeginTx", mock.Anything).Return(mockTx, nil)
	mockOrderRepo.On("EnsureOrder", mock.Anything, mockTx, mock.MatchedBy(func(o *model.Order) bool {
		return o.UserID == "u1" &&
			o.Status == model.OrderStatusPending &&
			o.TotalAmount.Equal(decimal.NewFromInt(20)) &&
			o.Currency == "XOF" &&
			o.Shipping.City == "Cotonou"
	})).Return(true, nil)
	mockOrderRepo.On("CreateOrderItems", mock.Anything, mockTx, mock.MatchedBy(func(items []model.OrderItem) bool {
		return len(items) == 1 && items[0].ProductID == "P1"
	})).Return(nil)
	mockPaymentRepo.On("EnsurePayment", mock.Anything, mockTx, mock.MatchedBy(func(p *model.Payment) bool {
		return p.Status == model.PaymentStatusPending && p.TransactionID == nil
	})).Return(nil)
	mockTx.On("Commit", mock.Anything).Return(nil)

	resp, err := service.Prepare(ctx, &model.Identity{UserID: "u1"}, staged)

	require.NoError(t, err)
	assert.True(t, resp.Staged)
	assert.Equal(t, "u1", staged.UserID)
	assert.True(t, mockTx.committed)
	mockOrderRepo.AssertExpectations(t)
	mockPaymentRepo.AssertExpectations(t)
}

func TestIntakeService_Prepare_StagesWithoutItems(t *testing.T) {
	mockOrderRepo := new(MockOrderRepository)
	mockPaymentRepo := new(MockPaymentRepository)
	mockTx := new(MockTx)

	service := NewIntakeService(mockOrderRepo, mockPaymentRepo, true, "XOF", zerolog.Nop())

	mockOrderRepo.On("BeginTx", mock.Anything).Return(mockTx, nil)
	mockOrderRepo.On("EnsureOrder", mock.Anything, mockTx, mock.MatchedBy(func(o *model.Order) bool {
		return o.TotalAmount.IsZero()
	})).Return(true, nil)
	mockOrderRepo.On("CreateOrderItems", mock.Anything, mockTx, []model.OrderItem(nil)).Return(nil)
	mockPaymentRepo.On("EnsurePayment", mock.Anything, mockTx, mock.Anything).Return(nil)
	mockTx.On("Commit", mock.Anything).Return(nil)

	resp, err := service.Prepare(context.Background(), &model.Identity{UserID: "u1"}, nil)

	require.NoError(t, err)
	assert.True(t, resp.Staged)
}

func TestIntakeService_Prepare_Errors(t *testing.T) {
	tests := []struct {
		name     string
		identity *model.Identity
		staged   func() *model.OrderPayload
		want     error
	}{
		{
			name: "no identity",
			want: model.ErrUnauthenticated,
		},
		{
			name:     "staged order for another user",
			identity: &model.Identity{UserID: "u2"},
			staged:   testPayload,
			want:     model.ErrForbidden,
		},
		{
			name:     "invalid staged order",
			identity: &model.Identity{UserID: "u1"},
			staged: func() *model.OrderPayload {
				p := testPayload()
				p.Items = nil
				return p
			},
			want: model.ErrMalformedPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockOrderRepo := new(MockOrderRepository)
			service := NewIntakeService(mockOrderRepo, new(MockPaymentRepository), true, "XOF", zerolog.Nop())

			var staged *model.OrderPayload
			if tt.staged != nil {
				staged = tt.staged()
			}

			resp, err := service.Prepare(context.Background(), tt.identity, staged)

			require.Error(t, err)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tt.want)
			mockOrderRepo.AssertNotCalled(t, "BeginTx", mock.Anything)
		})
	}
}

func TestIntakeService_Prepare_RollsBackOnFailure(t *testing.T) {
	mockOrderRepo := new(MockOrderRepository)
	mockPaymentRepo := new(MockPaymentRepository)
	mockTx := new(MockTx)

	service := NewIntakeService(mockOrderRepo, mockPaymentRepo, true, "XOF", zerolog.Nop())

	mockOrderRepo.On("BeginTx", mock.Anything).Return(mockTx, nil)
	mockOrderRepo.On("EnsureOrder", mock.Anything, mockTx, mock.Anything).Return(true, nil)
	mockOrderRepo.On("CreateOrderItems", mock.Anything, mockTx, mock.Anything).Return(nil)
	mockPaymentRepo.On("EnsurePayment", mock.Anything, mockTx, mock.Anything).Return(errors.New("constraint violation"))
	mockTx.On("Rollback", mock.Anything).Return(nil)

	resp, err := service.Prepare(context.Background(), &model.Identity{UserID: "u1"}, testPayload())

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, model.ErrLedgerWriteFailed)
	assert.True(t, mockTx.rolledBack)
	assert.False(t, mockTx.committed)
}
