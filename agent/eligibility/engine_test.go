package eligibility

import (
	"strings"
	"testing"
	"time"

	"github.com/barefootzenith/refund-agent/agent/datastore"
)

var now = time.Date(2026, time.August, 23, 12, 0, 0, 0, time.UTC)

func deliveredOrder(daysAgo int) datastore.OrderRecord {
	return datastore.OrderRecord{
		OrderID:      "ORD-84315",
		Status:       datastore.StatusDelivered,
		PurchaseDate: now.AddDate(0, 0, -daysAgo).Format(time.RFC3339),
	}
}

func TestCheckWithinWindow(t *testing.T) {
	t.Parallel()

	info := Check(deliveredOrder(5), now)
	if !info.Eligible {
		t.Fatalf("Eligible = false, want true: %+v", info)
	}
	if info.DaysSincePurchase == nil || *info.DaysSincePurchase != 5 {
		t.Errorf("DaysSincePurchase = %v, want 5", info.DaysSincePurchase)
	}
	if info.DaysRemaining == nil || *info.DaysRemaining != 9 {
		t.Errorf("DaysRemaining = %v, want 9", info.DaysRemaining)
	}
}

func TestCheckWindowBoundary(t *testing.T) {
	t.Parallel()

	// Day 14 is the last eligible day.
	info := Check(deliveredOrder(14), now)
	if !info.Eligible {
		t.Fatalf("day 14: Eligible = false, want true: %+v", info)
	}
	if info.DaysRemaining == nil || *info.DaysRemaining != 0 {
		t.Errorf("day 14: DaysRemaining = %v, want 0", info.DaysRemaining)
	}

	info = Check(deliveredOrder(15), now)
	if info.Eligible {
		t.Fatalf("day 15: Eligible = true, want false")
	}
	if info.DaysSincePurchase == nil || *info.DaysSincePurchase != 15 {
		t.Errorf("day 15: DaysSincePurchase = %v, want 15", info.DaysSincePurchase)
	}
	if !strings.Contains(info.Reason, "exceeds 14-day limit") {
		t.Errorf("day 15: Reason = %q", info.Reason)
	}
}

func TestCheckAlreadyRefunded(t *testing.T) {
	t.Parallel()

	amount := 75.0
	order := datastore.OrderRecord{
		OrderID: "ORD-66002",
		Status:  datastore.StatusReturned,
		// Purchase date way outside the window must not matter: the
		// returned status wins regardless of age.
		PurchaseDate:        now.AddDate(0, 0, -200).Format(time.RFC3339),
		RefundTransactionID: "REF-1712000000000",
		RefundDate:          "2026-08-13",
		RefundAmount:        &amount,
	}

	info := Check(order, now)
	if info.Eligible || !info.AlreadyRefunded {
		t.Fatalf("want already-refunded outcome, got %+v", info)
	}
	if info.Reason != "Order was already refunded" {
		t.Errorf("Reason = %q", info.Reason)
	}
	if info.RefundTransactionID != "REF-1712000000000" || info.RefundAmount == nil || *info.RefundAmount != 75.0 {
		t.Errorf("refund metadata not carried: %+v", info)
	}
}

func TestCheckInvalidStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []datastore.OrderStatus{
		datastore.StatusPending,
		datastore.StatusShipped,
		datastore.StatusCancelled,
	} {
		order := deliveredOrder(2)
		order.Status = status

		info := Check(order, now)
		if info.Eligible || !info.InvalidStatus {
			t.Errorf("%s: want invalid-status outcome, got %+v", status, info)
		}
		want := "Order status is '" + string(status) + "'. Only DELIVERED orders can be refunded."
		if info.Reason != want {
			t.Errorf("%s: Reason = %q, want %q", status, info.Reason, want)
		}
	}
}

func TestCheckMissingPurchaseDate(t *testing.T) {
	t.Parallel()

	order := deliveredOrder(2)
	order.PurchaseDate = ""

	info := Check(order, now)
	if info.Eligible {
		t.Fatal("Eligible = true, want false")
	}
	if info.Reason != "Purchase date not found in order data" {
		t.Errorf("Reason = %q", info.Reason)
	}
}

func TestCheckMalformedPurchaseDate(t *testing.T) {
	t.Parallel()

	order := deliveredOrder(2)
	order.PurchaseDate = "last tuesday"

	info := Check(order, now)
	if info.Eligible {
		t.Fatal("Eligible = true, want false")
	}
	if !strings.HasPrefix(info.Reason, "Error checking eligibility:") {
		t.Errorf("Reason = %q", info.Reason)
	}
}

func TestCheckBareDateLayout(t *testing.T) {
	t.Parallel()

	order := deliveredOrder(0)
	order.PurchaseDate = now.AddDate(0, 0, -10).Format("2006-01-02")

	info := Check(order, now)
	if !info.Eligible {
		t.Fatalf("Eligible = false, want true: %+v", info)
	}
}
