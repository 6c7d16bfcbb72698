package profile

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultModel is the upstream model used when none is configured.
	DefaultModel = "gemini-2.5-flash"
	// DefaultAssistantName names the assistant in the system instruction and fallback messages.
	DefaultAssistantName = "Lily"
	// DefaultSystemInstruction is the persona sent with every generation call
	// when the google_search tool is enabled.
	DefaultSystemInstruction = "You are Lily, a helpful, chat-only AI assistant. Your tone is warm, professional, and witty. " +
		"You now have access to the powerful Google Search tool for all real-time information. " +
		"Use Google Search when you need current facts, news, or weather."
	// DefaultOfflineSystemInstruction is the persona used when no search tool is enabled.
	DefaultOfflineSystemInstruction = "You are Lily, a helpful, chat-only AI assistant. Your tone is warm, professional, and witty. " +
		"Answer from your own knowledge and say so plainly when you are unsure about current facts, news, or weather."

	// DefaultSessionIdleTTL is how long an untouched transcript is kept.
	DefaultSessionIdleTTL = 24 * time.Hour
	// DefaultSessionMaxCount caps the number of live transcripts.
	DefaultSessionMaxCount = 10000
	// DefaultSessionMaxTurns caps the turns kept per transcript.
	DefaultSessionMaxTurns = 100
	// DefaultCleanupInterval is the period of the idle session sweep.
	DefaultCleanupInterval = 10 * time.Minute
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// LogLevel is one of debug, info, warn, error
	LogLevel string
	// Version is the current version of server
	Version string

	// Driver is the exchange archive driver (sqlite, postgres or empty to disable)
	Driver string
	// DSN points to where the archive is stored
	DSN string

	// AI Configuration
	AIProvider          string        // LILY_AI_PROVIDER (default: gemini)
	AIModel             string        // LILY_AI_MODEL (default: gemini-2.5-flash)
	AIAPIKey            string        // LILY_API_KEY (legacy: GEMINI_API_KEY), environment only
	AIBaseURL           string        // LILY_AI_BASE_URL (default: provider endpoint)
	AIGenerationTimeout time.Duration // LILY_AI_GENERATION_TIMEOUT (default: 2m, 0 disables)
	AITools             []string      // LILY_AI_TOOLS (default: none)
	AssistantName       string        // LILY_ASSISTANT_NAME (default: Lily)
	SystemInstruction   string        // LILY_SYSTEM_INSTRUCTION

	// Session eviction; 0 disables the corresponding limit
	SessionIdleTTL         time.Duration
	SessionMaxCount        int
	SessionMaxTurns        int
	SessionCleanupInterval time.Duration
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsArchiveEnabled returns true if an exchange archive driver is configured.
func (p *Profile) IsArchiveEnabled() bool {
	return p.Driver != ""
}

// ListenAddr returns the host:port the HTTP server binds to.
func (p *Profile) ListenAddr() string {
	return fmt.Sprintf("%s:%d", p.Addr, p.Port)
}

// FromEnv loads secrets from environment variables.
// Supports both LILY_* (new) and GEMINI_* (legacy) names.
func (p *Profile) FromEnv() {
	// Skips empty values to allow the legacy name to take effect
	getEnvWithFallback := func(newKey, legacyKey string) string {
		if val := os.Getenv(newKey); val != "" {
			return val
		}
		return os.Getenv(legacyKey)
	}

	p.AIAPIKey = strings.TrimSpace(getEnvWithFallback("LILY_API_KEY", "GEMINI_API_KEY"))
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Port < 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}

	switch p.Driver {
	case "":
	case "sqlite", "postgres":
		if p.DSN == "" {
			slog.Error("archive driver configured without dsn", slog.String("driver", p.Driver))
			return errors.Errorf("dsn is required for driver %s", p.Driver)
		}
	default:
		return errors.Errorf("unknown archive driver %q: only 'sqlite' and 'postgres' are supported", p.Driver)
	}

	if p.SessionIdleTTL < 0 || p.SessionMaxCount < 0 || p.SessionMaxTurns < 0 {
		return errors.New("session limits must not be negative")
	}
	if p.SessionMaxTurns == 1 {
		return errors.New("session max turns must be 0 or at least 2")
	}
	if p.SessionCleanupInterval <= 0 {
		p.SessionCleanupInterval = DefaultCleanupInterval
	}

	return nil
}

// ParseLogLevel maps the configured level name to a slog level.
func (p *Profile) ParseLogLevel() slog.Level {
	switch strings.ToLower(p.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
