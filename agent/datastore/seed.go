package datastore

import "time"

// SampleOrders returns the local-run fixtures. Dates are derived from now so
// the refund-window scenarios stay meaningful regardless of when the process
// starts.
func SampleOrders(now time.Time) []OrderRecord {
	day := func(daysAgo int) string {
		return now.AddDate(0, 0, -daysAgo).UTC().Format(time.RFC3339)
	}
	amount := func(v float64) *float64 { return &v }

	return []OrderRecord{
		{
			OrderID:      "ORD-84315",
			Status:       StatusDelivered,
			PurchaseDate: day(5),
			DeliveryDate: day(2),
			CustomerID:   "CUST-1001",
			Items: []OrderItem{
				{Name: "Trail running shoes", Price: 89.99},
			},
		},
		{
			OrderID:      "ORD-25836",
			Status:       StatusDelivered,
			PurchaseDate: day(12),
			DeliveryDate: day(9),
			CustomerID:   "CUST-1002",
			Items: []OrderItem{
				{Name: "Merino wool socks", Price: 14.50},
				{Name: "Water bottle", Price: 11.00},
			},
		},
		{
			OrderID:      "ORD-77421",
			Status:       StatusDelivered,
			PurchaseDate: day(30),
			DeliveryDate: day(26),
			CustomerID:   "CUST-1003",
			Items: []OrderItem{
				{Name: "Hiking backpack", Price: 120.00},
			},
		},
		{
			OrderID:             "ORD-66002",
			Status:              StatusReturned,
			PurchaseDate:        day(20),
			DeliveryDate:        day(17),
			CustomerID:          "CUST-1004",
			Items:               []OrderItem{{Name: "Rain jacket", Price: 75.00}},
			RefundTransactionID: "REF-1712000000000",
			RefundDate:          day(10),
			RefundAmount:        amount(75.00),
		},
		{
			OrderID:      "ORD-31174",
			Status:       StatusShipped,
			PurchaseDate: day(3),
			CustomerID:   "CUST-1005",
			Items:        []OrderItem{{Name: "Climbing chalk bag", Price: 22.99}},
		},
	}
}

// SamplePolicyChunks returns the refund-policy corpus for local runs.
// Embeddings are left empty and computed lazily by the searcher.
func SamplePolicyChunks() []PolicyChunk {
	texts := []string{
		"Refunds are available within 14 days of the purchase date. After 14 days, orders are no longer eligible for a refund.",
		"Only orders with status DELIVERED can be refunded. Orders that are pending, shipped, or cancelled must complete or cancel delivery first.",
		"Refunds are issued to the original payment method within 5-10 business days after the return is approved.",
		"Items must be returned unused and in their original packaging. Damaged or worn items may receive a partial refund at our discretion.",
		"Each order can be refunded once. Orders already marked as returned cannot be refunded a second time.",
		"To start a return, provide your order number (for example ORD-12345) to the support assistant or reply to your order confirmation email.",
	}

	chunks := make([]PolicyChunk, len(texts))
	for i, text := range texts {
		chunks[i] = PolicyChunk{ID: int64(i + 1), Text: text}
	}
	return chunks
}
