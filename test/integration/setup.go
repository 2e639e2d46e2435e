package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kart-reconciler/internal/database"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container, applies the ledger
// migrations and opens a connection pool.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	// Create PostgreSQL container
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	// Get connection string
	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := database.Migrate(connStr, zerolog.Nop()); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	pool, err := database.NewPoolFromURL(ctx, connStr, database.DefaultPoolOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

// CleanupDB cleans all data from the ledger tables. Orders cannot be deleted
// row by row, so the tables are truncated together.
func CleanupDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), "TRUNCATE payments, order_items, cart_items, orders")
	if err != nil {
		t.Fatalf("failed to truncate ledger tables: %v", err)
	}
}

// CountRows returns the number of rows in table matching column = value.
func CountRows(t *testing.T, pool *pgxpool.Pool, table, column, value string) int {
	t.Helper()

	var count int
	err := pool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM "+table+" WHERE "+column+" = $1", value,
	).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return count
}

// GatewayReply is the canned answer of FakeGateway for one transaction.
type GatewayReply struct {
	StatusCode int
	Body       map[string]any
	Delay      time.Duration
}

// FakeGateway serves the provider's status endpoint from canned replies.
type FakeGateway struct {
	Server *httptest.Server
	Calls  atomic.Int64

	mu      sync.Mutex
	replies map[string]GatewayReply
}

// NewFakeGateway starts a fake provider. Unknown transactions answer 404.
func NewFakeGateway(t *testing.T) *FakeGateway {
	t.Helper()

	g := &FakeGateway{replies: make(map[string]GatewayReply)}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.Server.Close)
	return g
}

// Succeed makes transactionID verify as paid for amount XOF.
func (g *FakeGateway) Succeed(transactionID string, amount int) {
	g.Reply(transactionID, GatewayReply{
		StatusCode: http.StatusOK,
		Body: map[string]any{
			"transactionId": transactionID,
			"status":        "SUCCESS",
			"amount":        amount,
			"currency":      "XOF",
			"source":        "MOBILE_MONEY",
		},
	})
}

// Fail makes transactionID verify as declined.
func (g *FakeGateway) Fail(transactionID string) {
	g.Reply(transactionID, GatewayReply{
		StatusCode: http.StatusOK,
		Body: map[string]any{
			"transactionId": transactionID,
			"status":        "FAILED",
			"amount":        0,
		},
	})
}

// Reply sets the canned reply for transactionID.
func (g *FakeGateway) Reply(transactionID string, reply GatewayReply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies[transactionID] = reply
}

func (g *FakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	g.Calls.Add(1)

	var req struct {
		TransactionID string `json:"transactionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	reply, ok := g.replies[req.TransactionID]
	g.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.StatusCode)
	if reply.Body != nil {
		json.NewEncoder(w).Encode(reply.Body)
	}
}
