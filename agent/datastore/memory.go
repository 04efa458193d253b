package datastore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for local runs and tests. Records are
// cloned on the way in and out so callers can never alias internal state.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]OrderRecord
	chunks []PolicyChunk
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: map[string]OrderRecord{}}
}

// Seed replaces the store contents with the given fixtures.
func (s *MemoryStore) Seed(orders []OrderRecord, chunks []PolicyChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = make(map[string]OrderRecord, len(orders))
	for _, o := range orders {
		s.orders[o.OrderID] = cloneOrder(o)
	}
	s.chunks = make([]PolicyChunk, len(chunks))
	for i, c := range chunks {
		s.chunks[i] = cloneChunk(c)
	}
}

func (s *MemoryStore) GetOrder(_ context.Context, orderID string) (OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return OrderRecord{}, ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (s *MemoryStore) UpdateOrderStatus(_ context.Context, orderID string, from, to OrderStatus, refund *RefundFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if order.Status != from {
		return ErrStatusConflict
	}

	order.Status = to
	if refund != nil {
		order.RefundTransactionID = refund.TransactionID
		order.RefundDate = refund.Date
		amount := refund.Amount
		order.RefundAmount = &amount
	}
	s.orders[orderID] = order
	return nil
}

func (s *MemoryStore) ListPolicyChunks(_ context.Context) ([]PolicyChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PolicyChunk, len(s.chunks))
	for i, c := range s.chunks {
		out[i] = cloneChunk(c)
	}
	return out, nil
}

func cloneOrder(o OrderRecord) OrderRecord {
	out := o
	if o.Items != nil {
		out.Items = append([]OrderItem(nil), o.Items...)
	}
	if o.RefundAmount != nil {
		amount := *o.RefundAmount
		out.RefundAmount = &amount
	}
	return out
}

func cloneChunk(c PolicyChunk) PolicyChunk {
	out := c
	if c.Embedding != nil {
		out.Embedding = append([]float64(nil), c.Embedding...)
	}
	return out
}
