// Package chat relays user turns to the generation gateway while keeping each
// session's transcript consistent.
//
// A request either leaves the transcript with one more user/assistant pair or
// leaves it exactly as it was. Gateway failures never surface as errors to the
// caller; they are mapped to one of three fixed messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/lily/plugin/ai"
	"github.com/hrygo/lily/plugin/ai/session"
	"github.com/hrygo/lily/plugin/ai/timeout"
	"github.com/hrygo/lily/server/internal/observability"
	"github.com/hrygo/lily/store"
)

// Fallback messages returned instead of a model reply.
const (
	MessageQuotaExceeded     = "Error: You have exceeded the free rate limit (too many requests per minute). Please wait 60 seconds."
	MessageCredentialInvalid = "Critical Error: The API Key is invalid. Please generate a new key and update the server configuration."
	messageGenericFormat     = "I'm sorry, %s encountered a major technical issue. Please check the server console."
)

// Archiver records completed exchanges.
type Archiver interface {
	CreateChatExchange(ctx context.Context, create *store.ChatExchange) (*store.ChatExchange, error)
}

// Config holds the orchestrator settings.
type Config struct {
	AssistantName     string
	GenerationTimeout time.Duration // 0 disables the deadline
	MaxTurns          int           // 0 disables trimming
}

// Request is one chat turn from a caller.
type Request struct {
	SessionID string
	UserInput string
}

// Response is the text returned to the caller.
// Code is empty on success and names the failure otherwise.
type Response struct {
	Text string
	Code ai.ErrorCode
}

// Service is the chat orchestrator.
type Service struct {
	sessions session.ConversationStore
	gateway  ai.GenerationGateway
	config   Config

	archive Archiver
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Option configures optional collaborators of a Service.
type Option func(*Service)

// WithArchive enables archiving of successful exchanges.
func WithArchive(archive Archiver) Option {
	return func(s *Service) { s.archive = archive }
}

// WithMetrics records request counts and durations into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a chat orchestrator.
func NewService(sessions session.ConversationStore, gateway ai.GenerationGateway, config Config, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		gateway:  gateway,
		config:   config,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics(0)
	}
	return s
}

// Metrics returns the metrics the service records into.
func (s *Service) Metrics() *observability.Metrics {
	return s.metrics
}

// Chat appends the user turn, asks the gateway for a reply and records it.
// On failure the user turn is removed again and a fallback message is returned.
func (s *Service) Chat(ctx context.Context, req *Request) *Response {
	sessionID := session.NormalizeSessionID(req.SessionID)
	reqCtx, ok := observability.FromContext(ctx)
	if !ok {
		reqCtx = observability.NewRequestContext(s.logger, sessionID)
		ctx = observability.WithRequestContext(ctx, reqCtx)
	}
	reqCtx.SessionID = sessionID

	s.metrics.RecordRequest()
	defer func() { s.metrics.RecordDuration(reqCtx.Duration()) }()

	lease, err := s.sessions.Acquire(ctx, sessionID)
	if err != nil {
		return s.fail(reqCtx, "failed to acquire session", err)
	}
	defer lease.Release()

	lease.Transcript.Append(ai.RoleUser, req.UserInput)

	reply, err := s.generate(ctx, lease.Transcript.Turns())
	if err != nil {
		lease.Transcript.RemoveLastUser()
		return s.fail(reqCtx, "generation failed", err)
	}

	lease.Transcript.Append(ai.RoleAssistant, reply.Text)
	if dropped := lease.Transcript.Trim(s.config.MaxTurns); dropped > 0 {
		reqCtx.Debug("transcript trimmed", slog.Int("dropped", dropped))
	}

	s.archiveExchange(ctx, reqCtx, req.UserInput, reply.Text)

	reqCtx.Info("chat completed",
		slog.Int(observability.LogFieldMessageLen, len(req.UserInput)),
		slog.Int(observability.LogFieldTurns, lease.Transcript.Len()),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
	)
	return &Response{Text: reply.Text}
}

func (s *Service) generate(ctx context.Context, transcript []ai.Turn) (ai.Turn, error) {
	if s.config.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.GenerationTimeout)
		defer cancel()
	}
	return s.gateway.Generate(ctx, transcript)
}

// fail logs the raw error and maps it to a fallback message.
func (s *Service) fail(reqCtx *observability.RequestContext, msg string, err error) *Response {
	code := errorCode(err)
	s.metrics.RecordFailure(string(code))
	reqCtx.Error(msg, err,
		slog.String(observability.LogFieldErrorCode, string(code)),
		slog.String(observability.LogFieldProvider, s.gateway.Name()),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
	)
	return &Response{Text: s.fallbackMessage(code), Code: code}
}

// errorCode classifies err; context errors from the lease wait are not *ai.Error values.
func errorCode(err error) ai.ErrorCode {
	switch {
	case ai.GetCodeFromError(err, "") != "":
		return ai.GetCodeFromError(err, "")
	case errors.Is(err, context.DeadlineExceeded):
		return ai.ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return ai.ErrCodeContextCanceled
	default:
		return ai.ErrCodeUpstreamFailure
	}
}

func (s *Service) fallbackMessage(code ai.ErrorCode) string {
	switch code {
	case ai.ErrCodeQuotaExceeded:
		return MessageQuotaExceeded
	case ai.ErrCodeCredentialInvalid:
		return MessageCredentialInvalid
	default:
		return GenericMessage(s.config.AssistantName)
	}
}

// GenericMessage is the fallback for every failure other than quota and credential errors.
func GenericMessage(assistantName string) string {
	if assistantName == "" {
		assistantName = "the assistant"
	}
	return fmt.Sprintf(messageGenericFormat, assistantName)
}

// archiveExchange writes the exchange if an archive is configured.
// Errors are logged only; the reply has already been recorded.
func (s *Service) archiveExchange(ctx context.Context, reqCtx *observability.RequestContext, userText, assistantText string) {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout.ArchiveTimeout)
	defer cancel()

	_, err := s.archive.CreateChatExchange(ctx, &store.ChatExchange{
		SessionID:     reqCtx.SessionID,
		UserText:      userText,
		AssistantText: assistantText,
		Provider:      s.gateway.Name(),
	})
	if err != nil {
		reqCtx.Warn("failed to archive exchange", slog.String("error", timeout.Truncate(err.Error())))
	}
}
