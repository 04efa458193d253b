package contract

import (
	"encoding/json"
	"fmt"
)

// EligibilityInfo is the outcome of the refund-eligibility decision. It is a
// pure function of an order record and "now"; when Eligible is true,
// AlreadyRefunded and InvalidStatus are always false and DaysSincePurchase is
// within the refund window.
type EligibilityInfo struct {
	Eligible        bool   `json:"eligible"`
	Reason          string `json:"reason"`
	AlreadyRefunded bool   `json:"already_refunded"`
	InvalidStatus   bool   `json:"invalid_status"`
	OrderStatus     string `json:"order_status"`

	DaysSincePurchase *int `json:"days_since_purchase,omitempty"`
	DaysRemaining     *int `json:"days_remaining,omitempty"`

	RefundTransactionID string   `json:"refund_transaction_id,omitempty"`
	RefundDate          string   `json:"refund_date,omitempty"`
	RefundAmount        *float64 `json:"refund_amount,omitempty"`
}

// AsMap converts the info into the loosely-typed result shape carried by
// TaskResponse.
func (i EligibilityInfo) AsMap() map[string]any {
	raw, err := json.Marshal(i)
	if err != nil {
		return map[string]any{"eligible": i.Eligible, "reason": i.Reason}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"eligible": i.Eligible, "reason": i.Reason}
	}
	return out
}

// EligibilityFromMap validates a handler result back into a typed info.
func EligibilityFromMap(m map[string]any) (EligibilityInfo, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return EligibilityInfo{}, fmt.Errorf("%w: encode eligibility result: %v", ErrValidation, err)
	}
	var info EligibilityInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return EligibilityInfo{}, fmt.Errorf("%w: decode eligibility result: %v", ErrValidation, err)
	}
	return info, nil
}
