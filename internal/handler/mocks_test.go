package handler

import (
	"context"

	"kart-reconciler/internal/model"

	"github.com/stretchr/testify/mock"
)

// MockQueryService is a mock implementation of QueryService.
type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) ListOrders(ctx context.Context, identity *model.Identity) ([]model.OrderView, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.OrderView), args.Error(1)
}

func (m *MockQueryService) GetOrder(ctx context.Context, identity *model.Identity, orderID string) (*model.OrderView, error) {
	args := m.Called(ctx, identity, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrderView), args.Error(1)
}

func (m *MockQueryService) ListAllOrders(ctx context.Context, identity *model.Identity, limit, offset int) ([]model.OrderView, error) {
	args := m.Called(ctx, identity, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.OrderView), args.Error(1)
}

// MockIntakeService is a mock implementation of IntakeService.
type MockIntakeService struct {
	mock.Mock
}

func (m *MockIntakeService) Prepare(ctx context.Context, identity *model.Identity, staged *model.OrderPayload) (*model.PrepareResponse, error) {
	args := m.Called(ctx, identity, staged)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PrepareResponse), args.Error(1)
}

// MockReconcileService is a mock implementation of ReconcileService.
type MockReconcileService struct {
	mock.Mock
}

func (m *MockReconcileService) Reconcile(ctx context.Context, n model.Notification) (*model.ReconcileResult, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReconcileResult), args.Error(1)
}
