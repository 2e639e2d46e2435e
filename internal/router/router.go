package router

import (
	"net/http"

	"kart-reconciler/internal/handler"
	"kart-reconciler/internal/middleware"
	"kart-reconciler/internal/telemetry"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// New creates a new HTTP router with all routes and middleware configured.
// metricsHandler may be nil.
func New(
	paymentHandler *handler.PaymentHandler,
	orderHandler *handler.OrderHandler,
	verifier middleware.IdentityVerifier,
	metricsHandler http.Handler,
	logger zerolog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint (no authentication required)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	authenticated := middleware.Authenticate(verifier, logger)
	admin := middleware.RequireAdmin(logger)

	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, telemetry.WithHTTPRoute(h))
	}

	// Gateway notifications carry no user identity
	route("GET /api/payments/callback", http.HandlerFunc(paymentHandler.Callback))
	route("POST /api/payments/callback", http.HandlerFunc(paymentHandler.Callback))
	route("POST /api/payments/webhook", http.HandlerFunc(paymentHandler.Webhook))

	route("POST /api/orders/prepare", authenticated(http.HandlerFunc(paymentHandler.Prepare)))
	route("GET /api/orders", authenticated(http.HandlerFunc(orderHandler.List)))
	route("GET /api/orders/{id}", authenticated(http.HandlerFunc(orderHandler.GetByID)))
	route("GET /api/admin/orders", authenticated(admin(http.HandlerFunc(orderHandler.ListAll))))

	// Apply middleware in order: otelhttp -> Recovery -> Logging -> CORS
	var h http.Handler = mux
	h = middleware.CORS(h)
	h = middleware.Logging(logger)(h)
	h = middleware.Recovery(logger)(h)
	h = otelhttp.NewHandler(h, "http.server")

	return h
}
