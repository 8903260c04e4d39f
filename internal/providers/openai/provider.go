package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/model-router/internal/providers"
	"github.com/tributary-ai/model-router/internal/types"
)

const ProviderName = "openai"

// OpenAIProvider implements the LLMProvider interface for OpenAI
type OpenAIProvider struct {
	client *openai.Client
	config *OpenAIConfig
	logger *logrus.Logger
}

// OpenAIConfig holds OpenAI-specific configuration
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	OrgID   string        `yaml:"org_id"`
	Timeout time.Duration `yaml:"timeout"`
}

// NewOpenAIProvider creates a new OpenAI provider instance
func NewOpenAIProvider(config *OpenAIConfig, logger *logrus.Logger) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(config.APIKey)

	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger,
	}
}

func (p *OpenAIProvider) Name() string {
	return ProviderName
}

// ChatCompletion performs a chat completion request
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	openaiReq := p.convertToOpenAIRequest(req)

	resp, err := p.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		p.logger.WithError(err).WithField("model", req.Model).Warn("OpenAI API call failed")
		return nil, fmt.Errorf("openai api call failed: %w", classify(err))
	}

	return p.convertFromOpenAIResponse(&resp, req), nil
}

// HealthCheck lists models as a cheap authenticated round trip
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		p.logger.WithError(err).Debug("OpenAI health check failed")
		return fmt.Errorf("openai health check failed: %w", classify(err))
	}
	return nil
}

func (p *OpenAIProvider) convertToOpenAIRequest(req *types.ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		openaiMsg := openai.ChatCompletionMessage{
			Role: msg.Role,
			Name: msg.Name,
		}
		if len(msg.Parts) == 0 {
			openaiMsg.Content = msg.Content
		} else {
			for _, part := range msg.Parts {
				switch part.Type {
				case "image_url":
					if part.ImageURL == nil {
						continue
					}
					openaiMsg.MultiContent = append(openaiMsg.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    part.ImageURL.URL,
							Detail: openai.ImageURLDetail(part.ImageURL.Detail),
						},
					})
				default:
					openaiMsg.MultiContent = append(openaiMsg.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: part.Text,
					})
				}
			}
		}
		messages = append(messages, openaiMsg)
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stop:     req.Stop,
	}
	if req.MaxTokens != nil {
		openaiReq.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		openaiReq.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		openaiReq.TopP = *req.TopP
	}
	if req.UserID != "" {
		openaiReq.User = req.UserID
	}
	return openaiReq
}

func (p *OpenAIProvider) convertFromOpenAIResponse(resp *openai.ChatCompletionResponse, req *types.ChatRequest) *types.ChatResponse {
	choices := make([]types.Choice, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		choices = append(choices, types.Choice{
			Index:        choice.Index,
			FinishReason: string(choice.FinishReason),
			Message: types.Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
		})
	}

	usage := &types.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.PromptTokens = providers.EstimateTokens(req.Messages)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	created := resp.Created
	if created == 0 {
		created = time.Now().Unix()
	}

	return &types.ChatResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: choices,
		Usage:   usage,
	}
}

// classify wraps API errors with the status code so callers can tell
// client errors from provider outages
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &providers.StatusError{Provider: ProviderName, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &providers.StatusError{Provider: ProviderName, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return err
}

var _ providers.LLMProvider = (*OpenAIProvider)(nil)
