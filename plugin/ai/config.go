package ai

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hrygo/lily/internal/profile"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Built-in tool names accepted in BehaviorConfig.Tools.
const (
	ToolGoogleSearch  = "google_search"
	ToolCodeExecution = "code_execution"
	// ToolNone in the configured list disables the provider's default tools.
	ToolNone = "none"
)

// supportedTools lists the built-in tools each provider can enable.
var supportedTools = map[string][]string{
	ProviderGemini: {ToolGoogleSearch, ToolCodeExecution},
	ProviderOpenAI: {},
}

// defaultTools are enabled when no tools are configured.
var defaultTools = map[string][]string{
	ProviderGemini: {ToolGoogleSearch},
}

// Config represents AI configuration.
type Config struct {
	LLM LLMConfig
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider string // gemini, openai
	Model    string // gemini-2.5-flash
	APIKey   string
	BaseURL  string
	Timeout  time.Duration // 0 disables the per-call deadline

	Behavior BehaviorConfig
}

// BehaviorConfig is the process-wide behavioral configuration sent with every call.
type BehaviorConfig struct {
	AssistantName     string
	SystemInstruction string
	Tools             []string
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		LLM: LLMConfig{
			Provider: p.AIProvider,
			Model:    p.AIModel,
			APIKey:   p.AIAPIKey,
			BaseURL:  p.AIBaseURL,
			Timeout:  p.AIGenerationTimeout,
			Behavior: BehaviorConfig{
				AssistantName:     p.AssistantName,
				SystemInstruction: p.SystemInstruction,
			},
		},
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderGemini
	}
	cfg.LLM.Behavior.Tools = resolveTools(cfg.LLM.Provider, p.AITools)
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = profile.DefaultModel
	}
	if cfg.LLM.Behavior.AssistantName == "" {
		cfg.LLM.Behavior.AssistantName = profile.DefaultAssistantName
	}
	if cfg.LLM.Behavior.SystemInstruction == "" {
		cfg.LLM.Behavior.SystemInstruction = profile.DefaultOfflineSystemInstruction
		if slices.Contains(cfg.LLM.Behavior.Tools, ToolGoogleSearch) {
			cfg.LLM.Behavior.SystemInstruction = profile.DefaultSystemInstruction
		}
	}

	return cfg
}

// resolveTools applies the provider defaults to an empty list and drops ToolNone.
func resolveTools(provider string, configured []string) []string {
	var tools []string
	for _, tool := range configured {
		if tool = strings.TrimSpace(tool); tool != "" {
			tools = append(tools, tool)
		}
	}
	if len(tools) == 0 {
		return slices.Clone(defaultTools[provider])
	}
	return slices.DeleteFunc(tools, func(tool string) bool { return tool == ToolNone })
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	tools, ok := supportedTools[c.LLM.Provider]
	if !ok {
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}

	if c.LLM.APIKey == "" {
		return errors.New("LLM API key is required, set LILY_API_KEY")
	}

	if c.LLM.Model == "" {
		return errors.New("LLM model is required")
	}

	for _, tool := range c.LLM.Behavior.Tools {
		if !slices.Contains(tools, tool) {
			return fmt.Errorf("tool %q is not supported by provider %s", tool, c.LLM.Provider)
		}
	}

	return nil
}
