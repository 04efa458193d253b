// Package eligibility decides whether an order qualifies for a refund. The
// decision is a pure function of the order record and the supplied clock; it
// performs no I/O and never panics past its boundary.
package eligibility

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
	"github.com/barefootzenith/refund-agent/agent/datastore"
)

// WindowDays is the refund window measured from the purchase date. A purchase
// exactly WindowDays old is still eligible.
const WindowDays = 14

// Check evaluates the rules in order: already refunded, wrong status, missing
// or unparseable purchase date, then the day window. Internal failures come
// back as a non-eligible decision rather than an error.
func Check(order datastore.OrderRecord, now time.Time) (info contractx.EligibilityInfo) {
	status := order.Status

	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Str("order_id", order.OrderID).Msg("eligibility check panicked")
			info = contractx.EligibilityInfo{
				OrderStatus: string(status),
				Reason:      fmt.Sprintf("Error checking eligibility: %v", r),
			}
		}
	}()

	if status == datastore.StatusReturned {
		info = contractx.EligibilityInfo{
			AlreadyRefunded:     true,
			OrderStatus:         string(status),
			Reason:              "Order was already refunded",
			RefundTransactionID: order.RefundTransactionID,
			RefundDate:          order.RefundDate,
		}
		if order.RefundAmount != nil {
			amount := *order.RefundAmount
			info.RefundAmount = &amount
		}
		return info
	}

	if status != datastore.StatusDelivered {
		return contractx.EligibilityInfo{
			InvalidStatus: true,
			OrderStatus:   string(status),
			Reason:        fmt.Sprintf("Order status is '%s'. Only DELIVERED orders can be refunded.", status),
		}
	}

	if order.PurchaseDate == "" {
		return contractx.EligibilityInfo{
			OrderStatus: string(status),
			Reason:      "Purchase date not found in order data",
		}
	}

	purchased, err := parseDate(order.PurchaseDate)
	if err != nil {
		log.Error().Err(err).Str("order_id", order.OrderID).Msg("eligibility check failed")
		return contractx.EligibilityInfo{
			OrderStatus: string(status),
			Reason:      fmt.Sprintf("Error checking eligibility: %v", err),
		}
	}

	elapsed := int(now.Sub(purchased).Hours() / 24)
	if elapsed <= WindowDays {
		remaining := WindowDays - elapsed
		return contractx.EligibilityInfo{
			Eligible:          true,
			OrderStatus:       string(status),
			DaysSincePurchase: &elapsed,
			DaysRemaining:     &remaining,
			Reason:            fmt.Sprintf("Order is within %d-day refund window", WindowDays),
		}
	}

	return contractx.EligibilityInfo{
		OrderStatus:       string(status),
		DaysSincePurchase: &elapsed,
		Reason:            fmt.Sprintf("Order is %d days old, exceeds %d-day limit", elapsed, WindowDays),
	}
}

// parseDate accepts RFC 3339 timestamps or bare dates, which is what the
// order records carry.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported purchase date %q", s)
}
