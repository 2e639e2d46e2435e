package model

import "time"

// Notification is an inbound payment-gateway notification.
// Data, when present, is the JSON-encoded OrderPayload.
type Notification struct {
	TransactionID string `json:"transactionId"`
	Reference     string `json:"reference,omitempty"`
	Data          string `json:"data,omitempty"`
}

// OrderID returns the idempotency key of the order the notification settles:
// the reference when one was supplied, otherwise the transaction id.
func (n Notification) OrderID() string {
	if n.Reference != "" {
		return n.Reference
	}
	return n.TransactionID
}

// ReconcileResult reports the terminal state reached for a transaction.
type ReconcileResult struct {
	OrderID       string      `json:"orderId"`
	TransactionID string      `json:"transactionId"`
	Outcome       OrderStatus `json:"outcome"`
	Replayed      bool        `json:"replayed"`
}

// PrepareResponse is returned by order intake.
type PrepareResponse struct {
	TransactionID string      `json:"transactionId"`
	OrderID       string      `json:"orderId"`
	Status        OrderStatus `json:"status"`
	Staged        bool        `json:"staged"`
}

// OrderReconciledEvent is published after a reconcile call changes order state.
type OrderReconciledEvent struct {
	OrderID       string      `json:"orderId"`
	UserID        string      `json:"userId"`
	Status        OrderStatus `json:"status"`
	Amount        string      `json:"amount"`
	Currency      string      `json:"currency"`
	TransactionID string      `json:"transactionId"`
	OccurredAt    time.Time   `json:"occurredAt"`
}
