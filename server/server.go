// Package server wires the chat relay together and serves it over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/lily/internal/profile"
	"github.com/hrygo/lily/plugin/ai"
	"github.com/hrygo/lily/plugin/ai/session"
	"github.com/hrygo/lily/server/internal/observability"
	"github.com/hrygo/lily/server/middleware"
	apiv1 "github.com/hrygo/lily/server/router/api/v1"
	"github.com/hrygo/lily/server/service/chat"
	"github.com/hrygo/lily/server/stats"
	"github.com/hrygo/lily/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store // nil when the archive is disabled

	echoServer  *echo.Echo
	sessions    *session.Store
	chatService *chat.Service
	cleanupJob  *session.SessionCleanupJob
	stats       *stats.Collector

	statsStarted atomic.Bool
}

// NewServer builds the session store, the chat service and the HTTP routes.
// st may be nil.
func NewServer(ctx context.Context, profile *profile.Profile, st *store.Store, gateway ai.GenerationGateway, behavior ai.BehaviorConfig) (*Server, error) {
	if gateway == nil {
		return nil, errors.New("generation gateway is required")
	}

	s := &Server{
		Profile: profile,
		Store:   st,
	}

	s.sessions = session.NewStore(session.Config{
		MaxSessions: profile.SessionMaxCount,
		IdleTTL:     profile.SessionIdleTTL,
	})
	s.cleanupJob = session.NewSessionCleanupJob(s.sessions, session.CleanupConfig{
		CleanupInterval: profile.SessionCleanupInterval,
	})

	opts := []chat.Option{
		chat.WithLogger(slog.Default()),
		chat.WithMetrics(observability.NewMetrics(0)),
	}
	var archive stats.ExchangeCounter
	if st != nil {
		opts = append(opts, chat.WithArchive(st))
		archive = st
	}
	s.chatService = chat.NewService(s.sessions, gateway, chat.Config{
		AssistantName:     behavior.AssistantName,
		GenerationTimeout: profile.AIGenerationTimeout,
		MaxTurns:          profile.SessionMaxTurns,
	}, opts...)
	s.stats = stats.NewCollector(s.sessions, s.chatService.Metrics(), archive)

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomiddleware.Recover())
	echoServer.Use(echomiddleware.RequestID())
	echoServer.Use(middleware.RequestContext(slog.Default()))
	echoServer.Use(middleware.RequestLogger(slog.Default()))
	s.echoServer = echoServer

	apiv1.NewAPIV1Service(profile, s.chatService, s.stats).RegisterRoutes(echoServer)

	slog.Info("server configured",
		slog.String("provider", gateway.Name()),
		slog.Bool("archive", st != nil),
		slog.Int("max_sessions", profile.SessionMaxCount),
		slog.Duration("session_idle_ttl", profile.SessionIdleTTL),
	)
	// Load the archive count so that the first summary is accurate.
	s.stats.Collect(ctx)
	return s, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start starts the background jobs and serves HTTP until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.cleanupJob.Start(ctx); err != nil {
		return err
	}
	s.stats.Start(ctx, stats.DefaultInterval)
	s.statsStarted.Store(true)

	address := s.Profile.ListenAddr()
	slog.Info("server listening", slog.String("addr", address), slog.String("mode", s.Profile.Mode))
	if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and stops the background jobs.
func (s *Server) Shutdown(ctx context.Context) {
	slog.Info("server shutting down")

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown http server", slog.String("error", err.Error()))
	}
	s.cleanupJob.Stop()
	if s.statsStarted.Load() {
		s.stats.Stop()
	}

	summary := s.stats.Current()
	slog.Info("server stopped",
		slog.Int64("requests", summary.Requests),
		slog.Int64("failures", summary.Failures),
		slog.Float64("success_rate", summary.SuccessRate),
		slog.Duration("avg_latency", summary.AverageLatency.Round(time.Millisecond)),
	)
}
