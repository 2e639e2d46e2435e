package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderPayload is the order contents the client attaches to a transaction:
// a frozen snapshot of the cart plus the shipping address.
type OrderPayload struct {
	UserID          string           `json:"userId"`
	Items           []PayloadItem    `json:"items"`
	ShippingAddress *ShippingAddress `json:"shippingAddress"`
	TotalAmount     *decimal.Decimal `json:"totalAmount,omitempty"`
	Currency        string           `json:"currency,omitempty"`
}

// PayloadItem is one cart line as seen by the client at checkout.
type PayloadItem struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price"`
	Name      string           `json:"name,omitempty"`
	ImgURL    string           `json:"imgUrl,omitempty"`
}

// ParseOrderPayload decodes and validates a JSON order payload.
// Unknown fields and missing required fields are rejected with ErrMalformedPayload.
func ParseOrderPayload(data []byte) (*OrderPayload, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrMalformedPayload.WithMessage("order payload is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p OrderPayload
	if err := dec.Decode(&p); err != nil {
		return nil, ErrMalformedPayload.WithCause("order payload is not valid JSON", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks every required field of the payload.
func (p *OrderPayload) Validate() error {
	if p == nil {
		return ErrMalformedPayload.WithMessage("order payload is missing")
	}

	if strings.TrimSpace(p.UserID) == "" {
		return ErrMalformedPayload.WithMessage("userId is required")
	}

	if len(p.Items) == 0 {
		return ErrMalformedPayload.WithMessage("order must contain at least one item")
	}

	for i, item := range p.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return ErrMalformedPayload.WithMessage(fmt.Sprintf("items[%d]: productId is required", i))
		}
		if item.Quantity <= 0 {
			return ErrMalformedPayload.WithMessage(fmt.Sprintf("items[%d]: quantity must be greater than zero", i))
		}
		if item.Price == nil {
			return ErrMalformedPayload.WithMessage(fmt.Sprintf("items[%d]: price is required", i))
		}
		if item.Price.IsNegative() {
			return ErrMalformedPayload.WithMessage(fmt.Sprintf("items[%d]: price must not be negative", i))
		}
	}

	addr := p.ShippingAddress
	if addr == nil {
		return ErrMalformedPayload.WithMessage("shippingAddress is required")
	}
	if strings.TrimSpace(addr.AddressLine1) == "" {
		return ErrMalformedPayload.WithMessage("shippingAddress.addressLine1 is required")
	}
	if strings.TrimSpace(addr.City) == "" {
		return ErrMalformedPayload.WithMessage("shippingAddress.city is required")
	}
	if strings.TrimSpace(addr.Country) == "" {
		return ErrMalformedPayload.WithMessage("shippingAddress.country is required")
	}

	if p.TotalAmount != nil && p.TotalAmount.IsNegative() {
		return ErrMalformedPayload.WithMessage("totalAmount must not be negative")
	}

	return nil
}

// ComputedTotal returns the sum of price x quantity over all items.
func (p *OrderPayload) ComputedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range p.Items {
		if item.Price == nil {
			continue
		}
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Encode returns the canonical JSON form of the payload.
func (p *OrderPayload) Encode() ([]byte, error) {
	return json.Marshal(p)
}
