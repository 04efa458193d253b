package contract

import (
	"fmt"
	"strings"
	"time"
)

// HandlerID identifies a task handler inside the system.
type HandlerID string

const (
	HandlerCoordinator HandlerID = "coordinator"
	HandlerPolicy      HandlerID = "policy_expert"
	HandlerTransaction HandlerID = "transaction_agent"
)

// TaskName identifies an operation a handler can perform.
type TaskName string

const (
	TaskHandleUserQuery  TaskName = "handle_user_query"
	TaskSearchPolicy     TaskName = "search_policy"
	TaskGetOrder         TaskName = "get_order"
	TaskProcessRefund    TaskName = "process_refund"
	TaskCheckEligibility TaskName = "check_eligibility"
)

// TaskRequest is the envelope the coordinator sends to a handler. It is
// treated as immutable once constructed and consumed exactly once.
type TaskRequest struct {
	Target   HandlerID      `json:"target"`
	Task     TaskName       `json:"task"`
	Context  map[string]any `json:"context,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	LatencyMS  int64     `json:"latency_ms"`
	TokensUsed int64     `json:"tokens_used,omitempty"`
}

// TaskResponse is the uniform handler reply. Exactly one of Result/Error is
// populated depending on Status; it is never mutated after being returned.
type TaskResponse struct {
	Source HandlerID      `json:"source"`
	Status Status         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
	Meta   ResponseMeta   `json:"metadata"`
}

func SuccessResponse(source HandlerID, result map[string]any, latency time.Duration) TaskResponse {
	return TaskResponse{
		Source: source,
		Status: StatusSuccess,
		Result: result,
		Meta: ResponseMeta{
			Timestamp: time.Now().UTC(),
			LatencyMS: latency.Milliseconds(),
		},
	}
}

func ErrorResponse(source HandlerID, message string, latency time.Duration) TaskResponse {
	return TaskResponse{
		Source: source,
		Status: StatusError,
		Error:  message,
		Meta: ResponseMeta{
			Timestamp: time.Now().UTC(),
			LatencyMS: latency.Milliseconds(),
		},
	}
}

// Intent is the coarse classification of a user message.
type Intent string

const (
	IntentRefund  Intent = "refund"
	IntentPolicy  Intent = "policy"
	IntentGeneral Intent = "general"
)

// IntentClassification is the schema-constrained output of the intent model.
type IntentClassification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func (c IntentClassification) Validate() error {
	switch c.Intent {
	case IntentRefund, IntentPolicy, IntentGeneral:
	default:
		return fmt.Errorf("%w: unsupported intent %q", ErrSchemaViolation, c.Intent)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrSchemaViolation, c.Confidence)
	}
	return nil
}

// ResponseType categorizes the final user-facing reply.
type ResponseType string

const (
	ResponseRefundEligible    ResponseType = "refund_eligible"
	ResponseRefundNotEligible ResponseType = "refund_not_eligible"
	ResponseRefundProcessed   ResponseType = "refund_already_processed"
	ResponsePolicyInfo        ResponseType = "policy_info"
	ResponseGeneralInfo       ResponseType = "general_info"
	ResponseError             ResponseType = "error"
)

const maxMessageLength = 1000

// ResponseTemplate is the schema-constrained final reply the assembly model
// must produce.
type ResponseTemplate struct {
	ResponseType   ResponseType `json:"response_type"`
	Message        string       `json:"message"`
	ActionRequired string       `json:"action_required"`
	KeyDetails     []string     `json:"key_details"`
}

func (t ResponseTemplate) Validate() error {
	switch t.ResponseType {
	case ResponseRefundEligible, ResponseRefundNotEligible, ResponseRefundProcessed,
		ResponsePolicyInfo, ResponseGeneralInfo, ResponseError:
	default:
		return fmt.Errorf("%w: unsupported response_type %q", ErrSchemaViolation, t.ResponseType)
	}
	if strings.TrimSpace(t.Message) == "" {
		return fmt.Errorf("%w: message is empty", ErrSchemaViolation)
	}
	if len(t.Message) > maxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrSchemaViolation, maxMessageLength)
	}
	if len(t.KeyDetails) > 5 {
		return fmt.Errorf("%w: key_details exceeds 5 entries", ErrSchemaViolation)
	}
	return nil
}

// FallbackResponse is the fixed template substituted when the assembly model
// returns malformed output. The raw parsing failure never reaches the user.
func FallbackResponse() ResponseTemplate {
	return ResponseTemplate{
		ResponseType:   ResponseError,
		Message:        "I apologize, but I encountered an error processing your request. Please contact our support team for assistance.",
		ActionRequired: "Contact support@barefootzenith.com",
	}
}

// TurnResult is the well-formed object handed back to the caller for every
// user turn, including turns that failed internally.
type TurnResult struct {
	ResponseType     ResponseType     `json:"response_type"`
	Message          string           `json:"message"`
	ActionRequired   string           `json:"action_required,omitempty"`
	KeyDetails       []string         `json:"key_details,omitempty"`
	Intent           Intent           `json:"intent,omitempty"`
	AgentsCalled     []HandlerID      `json:"agents_called,omitempty"`
	LatencyMS        int64            `json:"latency_ms"`
	ExtractedOrderID string           `json:"extracted_order_id,omitempty"`
	Eligibility      *EligibilityInfo `json:"eligibility_info,omitempty"`
}
