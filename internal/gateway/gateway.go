// Package gateway verifies payment transactions against the payment provider.
// The provider is the only authority on whether money moved; callers never
// trust client-reported amounts or statuses without a Verification.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// Status is the transaction status reported by the provider.
type Status string

const (
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusPending   Status = "PENDING"
)

// Verification is the provider's answer for one transaction.
type Verification struct {
	TransactionID string
	Status        Status
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	// Data is the opaque string the client attached to the transaction.
	Data string
	// Raw is the undecoded response body.
	Raw []byte
}

// Verified reports whether the provider confirms the payment succeeded.
func (v *Verification) Verified() bool {
	return v != nil && v.Status == StatusSuccess
}

// Declined reports whether the provider explicitly rejected the payment.
// Any other non-success status is neither verified nor declined.
func (v *Verification) Declined() bool {
	return v != nil && (v.Status == StatusFailed || v.Status == StatusCancelled)
}

// Client asks the payment provider for the true status of a transaction.
type Client interface {
	// Verify returns the provider's view of transactionID. It fails with
	// model.ErrGatewayUnavailable when the provider cannot be reached within
	// the retry budget and model.ErrPaymentUnverified when the transaction is
	// unknown to the provider.
	Verify(ctx context.Context, transactionID string) (*Verification, error)
}
