// Package datastore holds the order and policy records the transaction and
// policy agents operate on, plus the stores that serve them.
package datastore

import (
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
)

// OrderStatus is the lifecycle state of an order. Refunds only apply to
// DELIVERED orders and move them to RETURNED.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusShipped   OrderStatus = "SHIPPED"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusReturned  OrderStatus = "RETURNED"
	StatusCancelled OrderStatus = "CANCELLED"
)

type OrderItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// OrderRecord is one order row. Dates are kept as ISO-8601 strings because
// that is the shape the eligibility rules and the response assembly consume.
type OrderRecord struct {
	bun.BaseModel `bun:"table:orders" json:"-"`

	OrderID      string      `bun:"order_id,pk" json:"order_id"`
	Status       OrderStatus `bun:"status,notnull" json:"status"`
	PurchaseDate string      `bun:"purchase_date" json:"purchase_date,omitempty"`
	DeliveryDate string      `bun:"delivery_date" json:"delivery_date,omitempty"`
	CustomerID   string      `bun:"customer_id" json:"customer_id,omitempty"`
	Items        []OrderItem `bun:"items,type:jsonb" json:"items,omitempty"`

	RefundTransactionID string   `bun:"refund_transaction_id" json:"refund_transaction_id,omitempty"`
	RefundDate          string   `bun:"refund_date" json:"refund_date,omitempty"`
	RefundAmount        *float64 `bun:"refund_amount" json:"refund_amount,omitempty"`
}

// TotalPrice sums the item prices; it is the default refund amount when the
// caller does not name one.
func (o OrderRecord) TotalPrice() float64 {
	var total float64
	for _, item := range o.Items {
		total += item.Price
	}
	return total
}

// AsMap converts the record into the loosely-typed result shape carried by
// TaskResponse.
func (o OrderRecord) AsMap() map[string]any {
	raw, err := json.Marshal(o)
	if err != nil {
		return map[string]any{"order_id": o.OrderID, "status": string(o.Status)}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"order_id": o.OrderID, "status": string(o.Status)}
	}
	return out
}

// OrderFromMap validates a handler result back into a typed record.
func OrderFromMap(m map[string]any) (OrderRecord, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return OrderRecord{}, fmt.Errorf("%w: encode order data: %v", contractx.ErrValidation, err)
	}
	var order OrderRecord
	if err := json.Unmarshal(raw, &order); err != nil {
		return OrderRecord{}, fmt.Errorf("%w: decode order data: %v", contractx.ErrValidation, err)
	}
	return order, nil
}

// RefundFields is the refund metadata written onto an order when a refund is
// processed.
type RefundFields struct {
	TransactionID string
	Date          string
	Amount        float64
}

// PolicyChunk is one retrievable fragment of the refund policy corpus,
// stored alongside its embedding vector.
type PolicyChunk struct {
	bun.BaseModel `bun:"table:policy_chunks" json:"-"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Text      string    `bun:"text,notnull" json:"text"`
	Embedding []float64 `bun:"embedding,array" json:"embedding,omitempty"`
}
