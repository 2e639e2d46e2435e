package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the authoritative lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusPaidSuccess   OrderStatus = "PAID_SUCCESS"
	OrderStatusPaymentFailed OrderStatus = "PAYMENT_FAILED"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaidSuccess || s == OrderStatusPaymentFailed
}

// PaymentStatus derives the payment status that must accompany s.
// Order.PaymentStatus and Payment.Status are always written from this value.
func (s OrderStatus) PaymentStatus() PaymentStatus {
	switch s {
	case OrderStatusPaidSuccess:
		return PaymentStatusCompleted
	case OrderStatusPaymentFailed:
		return PaymentStatusFailed
	default:
		return PaymentStatusPending
	}
}

// PaymentStatus mirrors OrderStatus for the payment record.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// ShippingAddress is a snapshot of the delivery address taken at order time.
type ShippingAddress struct {
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	ZipCode      string `json:"zipCode,omitempty"`
	Country      string `json:"country"`
}

// Order represents one purchase transaction.
type Order struct {
	ID                   string          `json:"id" db:"id"`
	UserID               string          `json:"userId" db:"user_id"`
	TotalAmount          decimal.Decimal `json:"totalAmount" db:"total_amount"`
	Currency             string          `json:"currency" db:"currency"`
	Status               OrderStatus     `json:"status" db:"status"`
	PaymentStatus        PaymentStatus   `json:"paymentStatus" db:"payment_status"`
	Shipping             ShippingAddress `json:"shippingAddress"`
	GatewayTransactionID *string         `json:"gatewayTransactionId,omitempty" db:"gateway_transaction_id"`
	OrderDate            time.Time       `json:"orderDate" db:"order_date"`
	UpdatedAt            time.Time       `json:"updatedAt" db:"updated_at"`
}

// OrderItem represents a line item in an order.
// PriceAtOrder, Name and ImgURL are snapshots and never re-read from the catalogue.
type OrderItem struct {
	ID           uuid.UUID       `json:"-" db:"id"`
	OrderID      string          `json:"-" db:"order_id"`
	ProductID    string          `json:"productId" db:"product_id"`
	Quantity     int             `json:"quantity" db:"quantity"`
	PriceAtOrder decimal.Decimal `json:"priceAtOrder" db:"price_at_order"`
	Name         string          `json:"name" db:"name"`
	ImgURL       string          `json:"imgUrl" db:"img_url"`
}

// Payment is the single payment record of an order.
type Payment struct {
	ID            uuid.UUID       `json:"-" db:"id"`
	OrderID       string          `json:"orderId" db:"order_id"`
	PaymentMethod string          `json:"paymentMethod" db:"payment_method"`
	TransactionID *string         `json:"transactionId,omitempty" db:"transaction_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Currency      string          `json:"currency" db:"currency"`
	Status        PaymentStatus   `json:"status" db:"status"`
	PaymentDate   *time.Time      `json:"paymentDate,omitempty" db:"payment_date"`
}

// CartItem is one product line in a user's persistent cart.
type CartItem struct {
	UserID    string `json:"userId" db:"user_id"`
	ProductID string `json:"productId" db:"product_id"`
	Quantity  int    `json:"quantity" db:"quantity"`
}

// OrderView is the read projection of an order with its items and payment.
type OrderView struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Currency      string          `json:"currency"`
	OrderDate     time.Time       `json:"orderDate"`
	Shipping      ShippingAddress `json:"shippingAddress"`
	Items         []OrderItemView `json:"items"`
	Payment       *PaymentView    `json:"payment,omitempty"`
}

// OrderItemView is an order line shaped for display.
type OrderItemView struct {
	ProductID    string          `json:"productId"`
	Name         string          `json:"name"`
	ImageURL     string          `json:"imageUrl"`
	Quantity     int             `json:"quantity"`
	PriceAtOrder decimal.Decimal `json:"priceAtOrder"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// PaymentView is the payment part of an OrderView.
type PaymentView struct {
	Method        string          `json:"paymentMethod"`
	TransactionID string          `json:"transactionId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        PaymentStatus   `json:"status"`
	PaymentDate   *time.Time      `json:"paymentDate,omitempty"`
}

// Identity is the verified caller of an owner-scoped operation.
type Identity struct {
	UserID string
	Admin  bool
}

// CanAccess reports whether the identity may read resources owned by userID.
func (i *Identity) CanAccess(userID string) bool {
	if i == nil {
		return false
	}
	return i.Admin || i.UserID == userID
}
