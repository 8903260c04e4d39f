package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/model-router/internal/providers"
	"github.com/tributary-ai/model-router/internal/types"
)

const (
	ProviderName       = "anthropic"
	defaultMaxTokens   = 1024
	defaultHealthModel = "claude-3-haiku-20240307"
)

// AnthropicProvider implements the LLMProvider interface for Anthropic Claude
type AnthropicProvider struct {
	client *anthropic.Client
	config *AnthropicConfig
	logger *logrus.Logger
}

// AnthropicConfig holds Anthropic-specific configuration
type AnthropicConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	HealthModel string        `yaml:"health_model"`
}

// NewAnthropicProvider creates a new Anthropic provider instance
func NewAnthropicProvider(config *AnthropicConfig, logger *logrus.Logger) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(config.MaxRetries),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		client: &client,
		config: config,
		logger: logger,
	}
}

func (p *AnthropicProvider) Name() string {
	return ProviderName
}

// ChatCompletion performs a chat completion request
func (p *AnthropicProvider) ChatCompletion(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	anthropicReq, err := p.convertToAnthropicRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to convert request: %w", err)
	}

	resp, err := p.client.Messages.New(ctx, *anthropicReq)
	if err != nil {
		p.logger.WithError(err).WithField("model", req.Model).Warn("Anthropic API call failed")
		return nil, fmt.Errorf("anthropic api call failed: %w", classify(err))
	}

	return p.convertFromAnthropicResponse(resp, req), nil
}

// HealthCheck sends a one-token message to the configured health model
func (p *AnthropicProvider) HealthCheck(ctx context.Context) error {
	model := p.config.HealthModel
	if model == "" {
		model = defaultHealthModel
	}
	testReq := anthropic.MessageNewParams{
		Model: anthropic.Model(model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
		MaxTokens: 1,
	}

	if _, err := p.client.Messages.New(ctx, testReq); err != nil {
		p.logger.WithError(err).Debug("Anthropic health check failed")
		return fmt.Errorf("anthropic health check failed: %w", classify(err))
	}
	return nil
}

// convertToAnthropicRequest lifts system messages into the system prompt and
// maps every other role onto user or assistant turns
func (p *AnthropicProvider) convertToAnthropicRequest(req *types.ChatRequest) (*anthropic.MessageNewParams, error) {
	var system []string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			system = append(system, msg.Text())
			continue
		}
		blocks := contentBlocks(msg)
		if len(blocks) == 0 {
			continue
		}
		if msg.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	if len(messages) == 0 {
		return nil, errors.New("at least one non-system message is required")
	}

	anthropicReq := &anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: defaultMaxTokens,
	}
	if len(system) > 0 {
		anthropicReq.System = []anthropic.TextBlockParam{
			{Text: strings.Join(system, "\n\n"), Type: "text"},
		}
	}
	if req.MaxTokens != nil {
		anthropicReq.MaxTokens = int64(*req.MaxTokens)
	}
	if req.Temperature != nil {
		anthropicReq.Temperature = anthropic.Float(float64(*req.Temperature))
	}
	if req.TopP != nil {
		anthropicReq.TopP = anthropic.Float(float64(*req.TopP))
	}
	if len(req.Stop) > 0 {
		anthropicReq.StopSequences = append([]string(nil), req.Stop...)
	}

	return anthropicReq, nil
}

func contentBlocks(msg types.Message) []anthropic.ContentBlockParamUnion {
	if len(msg.Parts) == 0 {
		if msg.Content == "" {
			return nil
		}
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)}
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case "image_url":
			if part.ImageURL == nil {
				continue
			}
			if mediaType, data, ok := parseDataURL(part.ImageURL.URL); ok {
				blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
			} else {
				blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: part.ImageURL.URL}))
			}
		default:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		}
	}
	return blocks
}

// parseDataURL splits data:<media>;base64,<payload>
func parseDataURL(url string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	header, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mediaType, found = strings.CutSuffix(header, ";base64")
	if !found || mediaType == "" {
		return "", "", false
	}
	return mediaType, payload, true
}

// convertFromAnthropicResponse converts Anthropic's response to our format
func (p *AnthropicProvider) convertFromAnthropicResponse(resp *anthropic.Message, req *types.ChatRequest) *types.ChatResponse {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	usage := &types.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	if usage.TotalTokens == 0 {
		usage.PromptTokens = providers.EstimateTokens(req.Messages)
		usage.TotalTokens = usage.PromptTokens
	}

	model := string(resp.Model)
	if model == "" {
		model = req.Model
	}

	return &types.ChatResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []types.Choice{{
			Index:        0,
			FinishReason: finishReason(string(resp.StopReason)),
			Message: types.Message{
				Role:    "assistant",
				Content: text.String(),
			},
		}},
		Usage: usage,
	}
}

// finishReason maps stop reasons onto the OpenAI vocabulary
func finishReason(stop string) string {
	switch stop {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return stop
	}
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &providers.StatusError{Provider: ProviderName, StatusCode: apiErr.StatusCode, Err: err}
	}
	return err
}

var _ providers.LLMProvider = (*AnthropicProvider)(nil)
