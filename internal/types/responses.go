package types

import (
	"strconv"
	"time"
)

// ChatResponse is an OpenAI-shaped completion with the router's decision
// attached.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`

	RouterMetadata *RouterMetadata `json:"router_metadata,omitempty"`
}

// Choice is one generated message
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"` // stop, length, tool_calls
}

// Usage counts tokens. Adapters estimate it when the vendor omits it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RouterMetadata records which model served a completion and how many
// models were tried first
type RouterMetadata struct {
	Provider        string        `json:"provider"`
	Model           string        `json:"model"`
	Strategy        string        `json:"strategy"`
	RoutingReason   string        `json:"routing_reason"`
	Confidence      float64       `json:"confidence"`
	EstimatedCost   float64       `json:"estimated_cost"`
	ProcessingTime  time.Duration `json:"processing_time"`
	RequestID       string        `json:"request_id"`
	ProviderLatency time.Duration `json:"provider_latency"`
	AttemptCount    int           `json:"attempt_count"`
	FailedModels    []string      `json:"failed_models,omitempty"`
}

// ErrorResponse is the single error envelope every endpoint writes
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure. Code carries the HTTP status as text;
// Details holds validator output when there is any.
type ErrorDetail struct {
	Message string                 `json:"message"`
	Type    string                 `json:"type"`
	Param   string                 `json:"param,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewErrorResponse builds the envelope for an HTTP status
func NewErrorResponse(status int, errType, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{
		Message: message,
		Type:    errType,
		Code:    strconv.Itoa(status),
	}}
}

// ModelsResponse lists the routable catalog
type ModelsResponse struct {
	Object string            `json:"object"`
	Data   []CapabilityEntry `json:"data"`
}
