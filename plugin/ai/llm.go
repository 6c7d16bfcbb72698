package ai

import (
	"context"
	"fmt"
	"time"
)

// Role tags a turn with its author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message with text content.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerationGateway is the upstream text generation service.
type GenerationGateway interface {
	// Generate returns exactly one assistant turn for the transcript.
	// The transcript must end with a user turn. Failures are *Error values.
	Generate(ctx context.Context, transcript []Turn) (Turn, error)

	// Name identifies the provider in logs.
	Name() string
}

// NewGateway creates the gateway for the configured provider.
func NewGateway(ctx context.Context, cfg *LLMConfig) (GenerationGateway, error) {
	switch cfg.Provider {
	case ProviderGemini:
		return newGeminiGateway(ctx, cfg)

	case ProviderOpenAI:
		return newOpenAIGateway(cfg)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// UserTurn creates a user turn stamped with the current time.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text, CreatedAt: time.Now()}
}

// AssistantTurn creates an assistant turn stamped with the current time.
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text, CreatedAt: time.Now()}
}

func lastUserTurn(transcript []Turn) (Turn, error) {
	if len(transcript) == 0 {
		return Turn{}, fmt.Errorf("empty transcript")
	}
	last := transcript[len(transcript)-1]
	if last.Role != RoleUser {
		return Turn{}, fmt.Errorf("transcript must end with a user turn, got %s", last.Role)
	}
	return last, nil
}
