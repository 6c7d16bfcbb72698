package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/lily/internal/profile"
	"github.com/hrygo/lily/server/service/chat"
	"github.com/hrygo/lily/server/stats"
)

// APIV1Service serves the chat relay HTTP API.
type APIV1Service struct {
	Profile     *profile.Profile
	ChatService *chat.Service
	Stats       *stats.Collector
}

// NewAPIV1Service creates the API service over the chat service and the stats collector.
func NewAPIV1Service(profile *profile.Profile, chatService *chat.Service, collector *stats.Collector) *APIV1Service {
	return &APIV1Service{
		Profile:     profile,
		ChatService: chatService,
		Stats:       collector,
	}
}

// RegisterRoutes registers the chat and health endpoints with the given Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	// Browser clients call from any origin. AllowHeaders stays empty so that echo
	// reflects Access-Control-Request-Headers; a literal "*" is not honored for
	// credentialed requests.
	corsHandler := middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(_ string) (bool, error) {
			return true, nil
		},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead, http.MethodOptions},
		AllowCredentials: true,
	})

	group := echoServer.Group("", corsHandler)
	group.POST("/chat", s.Chat)
	group.GET("/healthz", s.Healthz)

	// Group middleware only runs on matched routes, so preflight needs its own.
	group.OPTIONS("/chat", preflight)
	group.OPTIONS("/healthz", preflight)
}

func preflight(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}
