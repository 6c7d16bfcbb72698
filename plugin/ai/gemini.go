package ai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
)

// Content roles of the Gemini API.
const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// geminiGateway talks to the Google Generative Language API.
type geminiGateway struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

func newGeminiGateway(ctx context.Context, cfg *LLMConfig) (*geminiGateway, error) {
	if cfg.APIKey == "" {
		return nil, CredentialInvalid(ProviderGemini, errors.New("API key is empty"))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	// Read-only after construction and shared by all requests.
	config := &genai.GenerateContentConfig{
		Tools: geminiTools(cfg.Behavior.Tools),
	}
	if cfg.Behavior.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.Behavior.SystemInstruction}},
		}
	}

	return &geminiGateway{
		client: client,
		model:  cfg.Model,
		config: config,
	}, nil
}

func (g *geminiGateway) Name() string {
	return ProviderGemini
}

// Generate sends the whole transcript in one GenerateContent call.
// Built-in tools such as Google Search run server side within that call.
func (g *geminiGateway) Generate(ctx context.Context, transcript []Turn) (Turn, error) {
	if _, err := lastUserTurn(transcript); err != nil {
		return Turn{}, UpstreamFailure(ProviderGemini, "invalid transcript", err)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, toGeminiContents(transcript), g.config)
	if err != nil {
		return Turn{}, classifyGeminiError(err)
	}

	text := responseText(resp)
	if text == "" {
		return Turn{}, UpstreamFailure(ProviderGemini, "empty chat response", nil)
	}
	return AssistantTurn(text), nil
}

func toGeminiContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := geminiRoleUser
		if turn.Role == RoleAssistant {
			role = geminiRoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}
	return contents
}

func geminiTools(names []string) []*genai.Tool {
	var tools []*genai.Tool
	for _, name := range names {
		switch name {
		case ToolGoogleSearch:
			tools = append(tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		case ToolCodeExecution:
			tools = append(tools, &genai.Tool{CodeExecution: &genai.ToolCodeExecution{}})
		}
	}
	return tools
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func classifyGeminiError(err error) *Error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return classifyMessage(ProviderGemini, err)
		}
		apiErr = *ptr
	}

	switch statusCode(apiErr.Status) {
	case codes.ResourceExhausted:
		return QuotaExceeded(ProviderGemini, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return CredentialInvalid(ProviderGemini, err)
	}
	return classifyStatus(ProviderGemini, apiErr.Code, err)
}

// statusCode parses a canonical status name such as "RESOURCE_EXHAUSTED".
func statusCode(name string) codes.Code {
	var code codes.Code
	if name == "" || code.UnmarshalJSON([]byte(strconv.Quote(name))) != nil {
		return codes.Unknown
	}
	return code
}

var _ GenerationGateway = (*geminiGateway)(nil)
