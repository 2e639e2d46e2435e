package handler

import (
	"net/http"
	"strconv"

	"kart-reconciler/internal/auth"
	"kart-reconciler/internal/model"
	"kart-reconciler/internal/service"

	"github.com/rs/zerolog"
)

// OrderHandler handles order query HTTP requests.
type OrderHandler struct {
	service service.QueryService
	logger  zerolog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(service service.QueryService, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger.With().Str("handler", "order").Logger(),
	}
}

// List handles GET /api/orders requests.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.CurrentIdentity(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	orders, err := h.service.ListOrders(r.Context(), identity)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

// GetByID handles GET /api/orders/{id} requests.
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.CurrentIdentity(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	orderID := r.PathValue("id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeMalformedPayload, "order ID is required", h.logger)
		return
	}

	order, err := h.service.GetOrder(r.Context(), identity, orderID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// ListAll handles GET /api/admin/orders requests with optional limit and offset.
func (h *OrderHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.CurrentIdentity(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMalformedPayload, "limit must be an integer", h.logger)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMalformedPayload, "offset must be an integer", h.logger)
		return
	}

	orders, err := h.service.ListAllOrders(r.Context(), identity, limit, offset)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

func queryInt(r *http.Request, key string) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
