package datastore

import (
	"context"
	"errors"
)

var (
	// ErrOrderNotFound reports a lookup for an order id with no row.
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusConflict reports a status transition whose precondition no
	// longer holds, e.g. a second refund racing the first.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// Store serves order records and the policy corpus. Implementations must be
// safe for concurrent use.
type Store interface {
	// GetOrder returns the order with the given id or ErrOrderNotFound.
	GetOrder(ctx context.Context, orderID string) (OrderRecord, error)

	// UpdateOrderStatus transitions orderID from the expected current status
	// to the next one, attaching refund metadata when provided. When the
	// stored status no longer matches from, it returns ErrStatusConflict and
	// writes nothing.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to OrderStatus, refund *RefundFields) error

	// ListPolicyChunks returns the whole policy corpus.
	ListPolicyChunks(ctx context.Context) ([]PolicyChunk, error)
}
