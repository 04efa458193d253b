// Package transaction implements the transaction-agent executor: order
// lookups, refund-eligibility checks, and refund processing.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
	"github.com/barefootzenith/refund-agent/agent/datastore"
	"github.com/barefootzenith/refund-agent/agent/eligibility"
	"github.com/barefootzenith/refund-agent/pkg/resilience"
)

// missingOrderIDPrompt is surfaced verbatim when the user has not named an
// order yet; the assembler relays it so the user is asked for the number.
const missingOrderIDPrompt = "Por favor, proporciona tu número de pedido para procesar la devolución."

// Executor handles get_order, check_eligibility, and process_refund tasks.
type Executor struct {
	store  datastore.Store
	caller *resilience.Caller
	now    func() time.Time
}

var _ contractx.Executor = (*Executor)(nil)

func NewExecutor(store datastore.Store, caller *resilience.Caller) *Executor {
	return &Executor{store: store, caller: caller, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

func (e *Executor) Execute(ctx context.Context, req contractx.TaskRequest) (map[string]any, error) {
	switch req.Task {
	case contractx.TaskGetOrder:
		return e.getOrder(ctx, req.Context)
	case contractx.TaskCheckEligibility:
		return e.checkEligibility(req.Context)
	case contractx.TaskProcessRefund:
		return e.processRefund(ctx, req.Context)
	default:
		return nil, fmt.Errorf("%w: unsupported task %q, supported: get_order, check_eligibility, process_refund",
			contractx.ErrValidation, req.Task)
	}
}

// getOrder never fails outward: lookup problems come back inside the result
// so the coordinator can still assemble a reply.
func (e *Executor) getOrder(ctx context.Context, taskCtx map[string]any) (map[string]any, error) {
	orderID, _ := taskCtx["order_id"].(string)
	if strings.TrimSpace(orderID) == "" {
		log.Info().Msg("get_order called without an order id")
		return map[string]any{
			"order_id":     nil,
			"order_data":   nil,
			"found":        false,
			"error":        "MISSING_ORDER_ID",
			"user_message": missingOrderIDPrompt,
		}, nil
	}

	order, err := resilience.Do(ctx, e.caller, resilience.ClassDatastore, "get_order", func(ctx context.Context) (datastore.OrderRecord, error) {
		return e.store.GetOrder(ctx, orderID)
	})
	if errors.Is(err, datastore.ErrOrderNotFound) {
		log.Warn().Str("order_id", orderID).Msg("order not found")
		return map[string]any{
			"order_id":   orderID,
			"order_data": nil,
			"found":      false,
			"error":      fmt.Sprintf("Order '%s' not found in database.", orderID),
		}, nil
	}
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("order lookup failed")
		return map[string]any{
			"order_id":   orderID,
			"order_data": nil,
			"found":      false,
			"error":      fmt.Sprintf("Failed to fetch order: %v", err),
		}, nil
	}

	return map[string]any{
		"order_id":   orderID,
		"order_data": order.AsMap(),
		"found":      true,
	}, nil
}

func (e *Executor) checkEligibility(taskCtx map[string]any) (map[string]any, error) {
	orderData, ok := taskCtx["order_data"].(map[string]any)
	if !ok || len(orderData) == 0 {
		return nil, fmt.Errorf("%w: missing required field 'order_data' in context", contractx.ErrValidation)
	}

	order, err := datastore.OrderFromMap(orderData)
	if err != nil {
		return nil, err
	}

	info := eligibility.Check(order, e.now())
	log.Info().
		Str("order_id", order.OrderID).
		Bool("eligible", info.Eligible).
		Str("reason", info.Reason).
		Msg("eligibility checked")
	return info.AsMap(), nil
}

// processRefund transitions the order to RETURNED exactly once. Business
// failures (already refunded, lost race) come back as success=false results;
// only malformed input is an error.
func (e *Executor) processRefund(ctx context.Context, taskCtx map[string]any) (map[string]any, error) {
	orderID, _ := taskCtx["order_id"].(string)
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: missing required field 'order_id' in context", contractx.ErrValidation)
	}

	amount, err := amountFrom(taskCtx)
	if err != nil {
		return nil, err
	}

	order, err := resilience.Do(ctx, e.caller, resilience.ClassDatastore, "get_order", func(ctx context.Context) (datastore.OrderRecord, error) {
		return e.store.GetOrder(ctx, orderID)
	})
	if errors.Is(err, datastore.ErrOrderNotFound) {
		return refundFailure(orderID, amount, fmt.Sprintf("Order %s not found in database.", orderID)), nil
	}
	if err != nil {
		return refundFailure(orderID, amount, fmt.Sprintf("Failed to process refund: %v", err)), nil
	}

	if order.Status == datastore.StatusReturned {
		return alreadyRefunded(order, amount), nil
	}

	refund := datastore.RefundFields{
		TransactionID: fmt.Sprintf("REF-%d", e.now().UnixMilli()),
		Date:          e.now().UTC().Format(time.RFC3339),
		Amount:        amount,
	}

	err = resilience.DoErr(ctx, e.caller, resilience.ClassDatastore, "update_order_status", func(ctx context.Context) error {
		return e.store.UpdateOrderStatus(ctx, orderID, order.Status, datastore.StatusReturned, &refund)
	})
	if errors.Is(err, datastore.ErrStatusConflict) {
		// Lost the race; refetch to report what actually happened.
		current, gerr := e.store.GetOrder(ctx, orderID)
		if gerr == nil && current.Status == datastore.StatusReturned {
			return alreadyRefunded(current, amount), nil
		}
		return refundFailure(orderID, amount, fmt.Sprintf("Order %s changed status concurrently; refund not applied.", orderID)), nil
	}
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("refund update failed")
		return refundFailure(orderID, amount, fmt.Sprintf("Failed to process refund: %v", err)), nil
	}

	log.Info().
		Str("order_id", orderID).
		Float64("amount", amount).
		Str("transaction_id", refund.TransactionID).
		Msg("refund processed")

	return map[string]any{
		"order_id":       orderID,
		"amount":         amount,
		"transaction_id": refund.TransactionID,
		"refund_date":    refund.Date,
		"success":        true,
	}, nil
}

func amountFrom(taskCtx map[string]any) (float64, error) {
	raw, ok := taskCtx["amount"]
	if !ok || raw == nil {
		return 0, fmt.Errorf("%w: missing required field 'amount' in context", contractx.ErrValidation)
	}

	var amount float64
	switch v := raw.(type) {
	case float64:
		amount = v
	case float32:
		amount = float64(v)
	case int:
		amount = float64(v)
	case int64:
		amount = float64(v)
	default:
		return 0, fmt.Errorf("%w: invalid amount value: %v", contractx.ErrValidation, raw)
	}

	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive, got: %v", contractx.ErrValidation, amount)
	}
	return amount, nil
}

func refundFailure(orderID string, amount float64, message string) map[string]any {
	log.Warn().Str("order_id", orderID).Str("error", message).Msg("refund not processed")
	return map[string]any{
		"order_id": orderID,
		"amount":   amount,
		"success":  false,
		"error":    message,
	}
}

func alreadyRefunded(order datastore.OrderRecord, amount float64) map[string]any {
	result := map[string]any{
		"order_id":       order.OrderID,
		"amount":         amount,
		"success":        false,
		"error":          fmt.Sprintf("Order %s was already refunded on %s.", order.OrderID, order.RefundDate),
		"transaction_id": order.RefundTransactionID,
		"refund_date":    order.RefundDate,
	}
	if order.RefundAmount != nil {
		result["refund_amount"] = *order.RefundAmount
	}
	return result
}
