package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// openAIGateway talks to any OpenAI-compatible chat completion endpoint.
type openAIGateway struct {
	client   *openai.Client
	model    string
	behavior BehaviorConfig
}

func newOpenAIGateway(cfg *LLMConfig) (*openAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, CredentialInvalid(ProviderOpenAI, errors.New("API key is empty"))
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &openAIGateway{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    cfg.Model,
		behavior: cfg.Behavior,
	}, nil
}

func (g *openAIGateway) Name() string {
	return ProviderOpenAI
}

// Generate performs one chat completion over the whole transcript.
func (g *openAIGateway) Generate(ctx context.Context, transcript []Turn) (Turn, error) {
	if _, err := lastUserTurn(transcript); err != nil {
		return Turn{}, UpstreamFailure(ProviderOpenAI, "invalid transcript", err)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(transcript)+1)
	if g.behavior.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: g.behavior.SystemInstruction,
		})
	}
	for _, turn := range transcript {
		role := openai.ChatMessageRoleUser
		if turn.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Text,
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
	})
	if err != nil {
		return Turn{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return Turn{}, UpstreamFailure(ProviderOpenAI, "empty chat response", nil)
	}

	return AssistantTurn(resp.Choices[0].Message.Content), nil
}

func classifyOpenAIError(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "invalid_api_key" {
			return CredentialInvalid(ProviderOpenAI, err)
		}
		return classifyStatus(ProviderOpenAI, apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(ProviderOpenAI, reqErr.HTTPStatusCode, err)
	}

	return classifyMessage(ProviderOpenAI, fmt.Errorf("chat completion: %w", err))
}

var _ GenerationGateway = (*openAIGateway)(nil)
