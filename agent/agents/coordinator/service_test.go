package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
	"github.com/barefootzenith/refund-agent/agent/agents/policy"
	"github.com/barefootzenith/refund-agent/agent/agents/transaction"
	"github.com/barefootzenith/refund-agent/agent/datastore"
	"github.com/barefootzenith/refund-agent/agent/handler"
	"github.com/barefootzenith/refund-agent/agent/retrieval"
)

var testNow = time.Date(2026, time.August, 23, 12, 0, 0, 0, time.UTC)

// fakeCompleter answers schema-constrained calls with scripted JSON per name.
type fakeCompleter struct {
	outputs map[string]string
	errs    map[string]error
	prompts map[string][]string
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{
		outputs: map[string]string{},
		errs:    map[string]error{},
		prompts: map[string][]string{},
	}
}

func (f *fakeCompleter) Complete(context.Context, string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, name string, promptText string, _ map[string]any, out any) error {
	f.prompts[name] = append(f.prompts[name], promptText)
	if err := f.errs[name]; err != nil {
		return err
	}
	raw, ok := f.outputs[name]
	if !ok {
		return errors.New("no scripted output for " + name)
	}
	return json.Unmarshal([]byte(raw), out)
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

func newCoordinator(t *testing.T, completer *fakeCompleter) (*Coordinator, *datastore.MemoryStore) {
	t.Helper()

	store := datastore.NewMemoryStore()
	store.Seed(datastore.SampleOrders(testNow), datastore.SamplePolicyChunks())

	searcher := retrieval.NewSearcher(retrieval.NewCache(16), fixedEmbedder{}, store, nil, 3)
	policyHandler := handler.New(contractx.HandlerPolicy, policy.NewExecutor(searcher), nil)
	transHandler := handler.New(contractx.HandlerTransaction,
		transaction.NewExecutor(store, nil).WithClock(func() time.Time { return testNow }), nil)

	c, err := New(completer, []contractx.TaskHandler{policyHandler, transHandler}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c.WithClock(func() time.Time { return testNow }), store
}

func TestHandleTurnRefundFlow(t *testing.T) {
	t.Parallel()

	completer := newFakeCompleter()
	completer.outputs["intent_classification"] = `{"intent":"refund","confidence":0.95}`
	completer.outputs["response_assembly"] = `{"response_type":"refund_eligible","message":"Order ORD-84315 qualifies for a refund. You have 9 days left. Reply to confirm.","action_required":"Confirm refund","key_details":["9 days remaining","89.99 refund"]}`

	c, _ := newCoordinator(t, completer)
	result := c.HandleTurn(context.Background(), "I want to return order ORD-84315", "")

	if result.Intent != contractx.IntentRefund {
		t.Errorf("Intent = %q", result.Intent)
	}
	if result.ResponseType != contractx.ResponseRefundEligible {
		t.Errorf("ResponseType = %q", result.ResponseType)
	}
	if len(result.AgentsCalled) != 2 {
		t.Fatalf("AgentsCalled = %v, want both handlers", result.AgentsCalled)
	}
	if result.ExtractedOrderID != "ORD-84315" {
		t.Errorf("ExtractedOrderID = %q", result.ExtractedOrderID)
	}
	if result.Eligibility == nil || !result.Eligibility.Eligible {
		t.Fatalf("Eligibility = %+v, want eligible", result.Eligibility)
	}
	if result.Eligibility.DaysRemaining == nil || *result.Eligibility.DaysRemaining != 9 {
		t.Errorf("DaysRemaining = %v, want 9", result.Eligibility.DaysRemaining)
	}

	assembly := completer.prompts["response_assembly"][0]
	if !strings.Contains(assembly, "[policy_expert]:") || !strings.Contains(assembly, "[transaction_agent]:") {
		t.Error("assembly prompt missing handler results")
	}
	if !strings.Contains(assembly, "Refund Eligibility Check:") {
		t.Error("assembly prompt missing eligibility context")
	}
}

func TestHandleTurnRefundWithoutOrderID(t *testing.T) {
	t.Parallel()

	completer := newFakeCompleter()
	completer.outputs["intent_classification"] = `{"intent":"refund","confidence":0.9}`
	completer.outputs["response_assembly"] = `{"response_type":"general_info","message":"Por favor, proporciona tu número de pedido.","action_required":"Provide order number","key_details":[]}`

	c, _ := newCoordinator(t, completer)
	result := c.HandleTurn(context.Background(), "quiero devolver mi compra", "")

	if result.ExtractedOrderID != "" {
		t.Errorf("ExtractedOrderID = %q, want empty", result.ExtractedOrderID)
	}
	if result.Eligibility != nil {
		t.Errorf("Eligibility = %+v, want nil without an order", result.Eligibility)
	}

	assembly := completer.prompts["response_assembly"][0]
	if !strings.Contains(assembly, "MISSING_ORDER_ID") {
		t.Error("assembly prompt should carry the missing-order-id result")
	}
}

func TestHandleTurnPolicyQuestion(t *testing.T) {
	t.Parallel()

	completer := newFakeCompleter()
	completer.outputs["intent_classification"] = `{"intent":"policy","confidence":0.88}`
	completer.outputs["response_assembly"] = `{"response_type":"policy_info","message":"Refunds are available within 14 days of purchase.","action_required":"","key_details":["14-day window"]}`

	c, _ := newCoordinator(t, completer)
	result := c.HandleTurn(context.Background(), "what is your refund policy?", "")

	if result.Intent != contractx.IntentPolicy {
		t.Errorf("Intent = %q", result.Intent)
	}
	if len(result.AgentsCalled) != 1 || result.AgentsCalled[0] != contractx.HandlerPolicy {
		t.Errorf("AgentsCalled = %v, want policy expert only", result.AgentsCalled)
	}
	if result.Eligibility != nil {
		t.Errorf("Eligibility = %+v, want nil", result.Eligibility)
	}
}

func TestHandleTurnInvalidIntentFallsBackToGeneral(t *testing.T) {
	t.Parallel()

	completer := newFakeCompleter()
	completer.outputs["intent_classification"] = `{"intent":"banter","confidence":0.4}`
	completer.outputs["response_assembly"] = `{"response_type":"general_info","message":"How can I help you today?","action_required":"","key_details":[]}`

	c, _ := newCoordinator(t, completer)
	result := c.HandleTurn(context.Background(), "hola", "")

	if result.Intent != contractx.IntentGeneral {
		t.Errorf("Intent = %q, want general", result.Intent)
	}
}

func TestHandleTurnNeverErrors(t *testing.T) {
	t.Parallel()

	completer := newFakeCompleter()
	completer.errs["intent_classification"] = contractx.ErrTimeout

	c, _ := newCoordinator(t, completer)
	result := c.HandleTurn(context.Background(), "return my order", "")

	if result.ResponseType != contractx.ResponseError {
		t.Errorf("ResponseType = %q, want error", result.ResponseType)
	}
	if !strings.Contains(result.Message, "I apologize") {
		t.Errorf("Message = %q, want apology fallback", result.Message)
	}

	// Empty input takes the same path.
	result = c.HandleTurn(context.Background(), "   ", "")
	if result.ResponseType != contractx.ResponseError {
		t.Errorf("empty input ResponseType = %q, want error", result.ResponseType)
	}
}

func TestHandleTurnAssemblyFallback(t *testing.T) {
	t.Parallel()

	completer := newFakeCompleter()
	completer.outputs["intent_classification"] = `{"intent":"policy","confidence":0.9}`
	completer.outputs["response_assembly"] = `{"response_type":"policy_info","message":"","action_required":"","key_details":[]}`

	c, _ := newCoordinator(t, completer)
	result := c.HandleTurn(context.Background(), "refund policy?", "")

	fallback := contractx.FallbackResponse()
	if result.Message != fallback.Message || result.ResponseType != fallback.ResponseType {
		t.Errorf("result = %+v, want fallback template", result)
	}
}

func TestExecuteContract(t *testing.T) {
	t.Parallel()

	completer := newFakeCompleter()
	completer.outputs["intent_classification"] = `{"intent":"refund","confidence":0.95}`
	completer.outputs["response_assembly"] = `{"response_type":"refund_eligible","message":"Qualifies.","action_required":"Confirm","key_details":[]}`

	c, _ := newCoordinator(t, completer)
	out, err := c.Execute(context.Background(), contractx.TaskRequest{
		Target:  contractx.HandlerCoordinator,
		Task:    contractx.TaskHandleUserQuery,
		Context: map[string]any{"user_message": "return ORD-84315"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out["intent"] != "refund" {
		t.Errorf("intent = %v", out["intent"])
	}
	if out["extracted_order_id"] != "ORD-84315" {
		t.Errorf("extracted_order_id = %v", out["extracted_order_id"])
	}
	if _, ok := out["eligibility_info"]; !ok {
		t.Error("eligibility_info missing")
	}

	if _, err := c.Execute(context.Background(), contractx.TaskRequest{
		Task:    contractx.TaskHandleUserQuery,
		Context: map[string]any{},
	}); !errors.Is(err, contractx.ErrValidation) {
		t.Errorf("Execute(no message) error = %v, want ErrValidation", err)
	}

	if _, err := c.Execute(context.Background(), contractx.TaskRequest{
		Task: contractx.TaskSearchPolicy,
	}); !errors.Is(err, contractx.ErrValidation) {
		t.Errorf("Execute(wrong task) error = %v, want ErrValidation", err)
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil, nil); err == nil {
		t.Error("New(nil completer) should fail")
	}
	if _, err := New(newFakeCompleter(), nil, nil); err == nil {
		t.Error("New(no handlers) should fail")
	}
}
