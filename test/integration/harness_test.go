package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"kart-reconciler/internal/auth"
	"kart-reconciler/internal/gateway"
	"kart-reconciler/internal/handler"
	"kart-reconciler/internal/model"
	"kart-reconciler/internal/repository"
	"kart-reconciler/internal/router"
	"kart-reconciler/internal/service"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "integration-secret"
	testIssuer = "kart"
)

// harness wires the real repositories and services against a test database
// and a fake gateway.
type harness struct {
	db       *TestDB
	gateway  *FakeGateway
	orders   repository.OrderRepository
	payments repository.PaymentRepository
	carts    repository.CartRepository
	tokens   *auth.TokenManager
	logger   zerolog.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := SetupTestDB(t)
	logger := zerolog.Nop()

	return &harness{
		db:       db,
		gateway:  NewFakeGateway(t),
		orders:   repository.NewOrderRepository(db.Pool, logger),
		payments: repository.NewPaymentRepository(db.Pool, logger),
		carts:    repository.NewCartRepository(db.Pool, logger),
		tokens:   auth.NewTokenManager(testSecret, testIssuer),
		logger:   logger,
	}
}

func (h *harness) gatewayClient(timeout, budget time.Duration) gateway.Client {
	return gateway.NewClient(gateway.Options{
		BaseURL:         h.gateway.Server.URL,
		APIKey:          "test-key",
		Timeout:         timeout,
		MaxRetry:        budget,
		DefaultCurrency: "XOF",
	}, nil, h.logger)
}

// reconciler builds a reconcile service. A nil orders repository uses the
// real one.
func (h *harness) reconciler(orders repository.OrderRepository, gw gateway.Client) service.ReconcileService {
	if orders == nil {
		orders = h.orders
	}
	if gw == nil {
		gw = h.gatewayClient(2*time.Second, 3*time.Second)
	}
	return service.NewReconcileService(orders, h.payments, h.carts, gw, nil, nil, nil, decimal.RequireFromString("0.01"), h.logger)
}

func (h *harness) server() http.Handler {
	intake := service.NewIntakeService(h.orders, h.payments, true, "XOF", h.logger)
	query := service.NewQueryService(h.orders, h.payments, "/placeholder.png", h.logger)

	paymentHandler := handler.NewPaymentHandler(intake, h.reconciler(nil, nil), "http://frontend.test", h.logger)
	orderHandler := handler.NewOrderHandler(query, h.logger)

	return router.New(paymentHandler, orderHandler, h.tokens, nil, h.logger)
}

func (h *harness) token(t *testing.T, userID string, admin bool) string {
	t.Helper()

	token, err := h.tokens.Issue(userID, admin, time.Hour)
	require.NoError(t, err)
	return token
}

// seedCart puts the lines of cartPayload into userID's cart.
func (h *harness) seedCart(t *testing.T, userID string) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, h.carts.AddItem(ctx, model.CartItem{UserID: userID, ProductID: "P1", Quantity: 2}))
	require.NoError(t, h.carts.AddItem(ctx, model.CartItem{UserID: userID, ProductID: "P2", Quantity: 1}))
}

// ledgerRows counts the rows recorded for one order.
type ledgerRows struct {
	Orders   int
	Items    int
	Payments int
}

func (h *harness) rows(t *testing.T, orderID string) ledgerRows {
	t.Helper()

	return ledgerRows{
		Orders:   CountRows(t, h.db.Pool, "orders", "id", orderID),
		Items:    CountRows(t, h.db.Pool, "order_items", "order_id", orderID),
		Payments: CountRows(t, h.db.Pool, "payments", "order_id", orderID),
	}
}

func (h *harness) cartSize(t *testing.T, userID string) int {
	return CountRows(t, h.db.Pool, "cart_items", "user_id", userID)
}

// cartPayload is a checkout of two P1 at 1500 and one P2 at 2000, 5000 in total.
func cartPayload(userID string) model.OrderPayload {
	p1 := decimal.NewFromInt(1500)
	p2 := decimal.NewFromInt(2000)
	total := decimal.NewFromInt(5000)

	return model.OrderPayload{
		UserID: userID,
		Items: []model.PayloadItem{
			{ProductID: "P1", Quantity: 2, Price: &p1, Name: "Wax Fabric", ImgURL: `["/img/p1.png"]`},
			{ProductID: "P2", Quantity: 1, Price: &p2, Name: "Basket"},
		},
		ShippingAddress: &model.ShippingAddress{
			AddressLine1: "12 Rue des Cocotiers",
			City:         "Cotonou",
			Country:      "BJ",
		},
		TotalAmount: &total,
		Currency:    "XOF",
	}
}

func encode(t *testing.T, v any) string {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

// failingOrders fails CreateOrderItems after the order row has been written.
type failingOrders struct {
	repository.OrderRepository
}

var errInjected = errors.New("injected item write failure")

func (f failingOrders) CreateOrderItems(context.Context, pgx.Tx, []model.OrderItem) error {
	return errInjected
}
