package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-ai/model-router/internal/providers"
	"github.com/tributary-ai/model-router/internal/types"
)

const messageResponse = `{
	"id": "msg_01",
	"type": "message",
	"role": "assistant",
	"model": "claude-3-5-sonnet-20241022",
	"content": [{"type": "text", "text": "Hello"}, {"type": "text", "text": " there"}],
	"stop_reason": "end_turn",
	"stop_sequence": null,
	"usage": {"input_tokens": 10, "output_tokens": 2}
}`

func createTestProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	return NewAnthropicProvider(&AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, logger)
}

func TestAnthropicProvider_Name(t *testing.T) {
	provider := NewAnthropicProvider(&AnthropicConfig{APIKey: "k"}, logrus.New())
	assert.Equal(t, "anthropic", provider.Name())
}

func TestAnthropicProvider_ChatCompletion(t *testing.T) {
	var got map[string]interface{}
	provider := createTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageResponse)
	})

	resp, err := provider.ChatCompletion(context.Background(), &types.ChatRequest{
		Model: "claude-3-5-sonnet-20241022",
		Messages: []types.Message{
			{Role: "system", Content: "You are terse."},
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello"},
			{Role: "user", Content: "How are you?"},
		},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1024, got["max_tokens"])
	assert.Len(t, got["messages"], 3)
	system := got["system"].([]interface{})
	require.Len(t, system, 1)
	assert.Equal(t, "You are terse.", system[0].(map[string]interface{})["text"])

	assert.Equal(t, "msg_01", resp.ID)
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "claude-3-5-sonnet-20241022", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hello there", resp.Choices[0].Message.Content)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestAnthropicProvider_OnlySystemMessages(t *testing.T) {
	provider := createTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := provider.ChatCompletion(context.Background(), &types.ChatRequest{
		Model:    "claude-3-haiku-20240307",
		Messages: []types.Message{{Role: "system", Content: "rules"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-system message")
}

func TestAnthropicProvider_ChatCompletionError(t *testing.T) {
	provider := createTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type": "error", "error": {"type": "invalid_request_error", "message": "max_tokens too large"}}`)
	})

	_, err := provider.ChatCompletion(context.Background(), &types.ChatRequest{
		Model:    "claude-3-haiku-20240307",
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)

	var se *providers.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.False(t, providers.Retryable(err))
}

func TestAnthropicProvider_HealthCheck(t *testing.T) {
	var model string
	healthy := createTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		model, _ = body["model"].(string)
		assert.EqualValues(t, 1, body["max_tokens"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageResponse)
	})
	require.NoError(t, healthy.HealthCheck(context.Background()))
	assert.Equal(t, defaultHealthModel, model)

	unauthorized := createTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`)
	})
	err := unauthorized.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic health check failed")
}

func TestParseDataURL(t *testing.T) {
	mediaType, data, ok := parseDataURL("data:image/png;base64,iVBORw0KGgo=")
	assert.True(t, ok)
	assert.Equal(t, "image/png", mediaType)
	assert.Equal(t, "iVBORw0KGgo=", data)

	_, _, ok = parseDataURL("https://example.com/cat.png")
	assert.False(t, ok)
	_, _, ok = parseDataURL("data:image/png,raw")
	assert.False(t, ok)
}

func TestFinishReason(t *testing.T) {
	assert.Equal(t, "stop", finishReason("end_turn"))
	assert.Equal(t, "stop", finishReason("stop_sequence"))
	assert.Equal(t, "length", finishReason("max_tokens"))
	assert.Equal(t, "tool_calls", finishReason("tool_use"))
	assert.Equal(t, "refusal", finishReason("refusal"))
}
