package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"kart-reconciler/internal/auth"
	"kart-reconciler/internal/model"
	"kart-reconciler/internal/service"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// PaymentHandler handles intake and gateway notification HTTP requests.
type PaymentHandler struct {
	intake      service.IntakeService
	reconcile   service.ReconcileService
	frontendURL string
	logger      zerolog.Logger
}

// NewPaymentHandler creates a new payment handler. frontendURL is the base of
// the browser redirect issued by Callback.
func NewPaymentHandler(
	intake service.IntakeService,
	reconcile service.ReconcileService,
	frontendURL string,
	logger zerolog.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		intake:      intake,
		reconcile:   reconcile,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger.With().Str("handler", "payment").Logger(),
	}
}

// webhookRequest is the server-to-server notification body. Data may be a
// JSON string holding the payload or the payload object itself.
type webhookRequest struct {
	TransactionID string          `json:"transactionId"`
	Reference     string          `json:"reference,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// Prepare handles POST /api/orders/prepare requests. The body is optional; when
// present it is the order to stage.
func (h *PaymentHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.CurrentIdentity(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	var staged *model.OrderPayload
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		staged = &model.OrderPayload{}
		if err := dec.Decode(staged); err != nil {
			writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
			return
		}
	}

	resp, err := h.intake.Prepare(r.Context(), identity, staged)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	status := http.StatusOK
	if resp.Staged {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// Webhook handles POST /api/payments/webhook requests from the gateway.
// Processed notifications, replays and declines all answer 200.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	data, err := decodeData(req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "data must be a string or an object", h.logger)
		return
	}

	result, err := h.reconcile.Reconcile(r.Context(), model.Notification{
		TransactionID: req.TransactionID,
		Reference:     req.Reference,
		Data:          data,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Callback handles GET and POST /api/payments/callback, the browser return
// from the gateway. It always redirects to the frontend order status page.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	n := model.Notification{
		TransactionID: strings.TrimSpace(r.FormValue("transactionId")),
		Reference:     strings.TrimSpace(r.FormValue("reference")),
		Data:          r.FormValue("data"),
	}

	if n.TransactionID == "" {
		h.logger.Warn().Msg("callback without transaction id")
		h.redirect(w, r, "error", "", model.ErrCodeMalformedPayload)
		return
	}

	result, err := h.reconcile.Reconcile(r.Context(), n)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("transaction_id", n.TransactionID).
			Msg("callback reconciliation failed")
		h.redirect(w, r, "error", n.OrderID(), errorCode(err))
		return
	}

	status := "failed"
	if result.Outcome == model.OrderStatusPaidSuccess {
		status = "success"
	}
	h.redirect(w, r, status, result.OrderID, "")
}

// redirect sends the browser to the order status page. reason carries the
// error code so the page can tell transient faults from rejected payments.
func (h *PaymentHandler) redirect(w http.ResponseWriter, r *http.Request, status, orderID, reason string) {
	q := url.Values{}
	q.Set("status", status)
	if orderID != "" {
		q.Set("orderId", orderID)
	}
	if reason != "" {
		q.Set("reason", reason)
	}
	http.Redirect(w, r, h.frontendURL+"/order-status?"+q.Encode(), http.StatusSeeOther)
}

// decodeData accepts the payload as a JSON string or as an embedded object.
func decodeData(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	if trimmed[0] != '{' {
		return "", errors.New("data must be a string or an object")
	}
	return string(trimmed), nil
}
