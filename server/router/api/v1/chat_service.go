package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/lily/server/service/chat"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	UserInput string `json:"user_input"`
	SessionID string `json:"session_id"`
}

// ChatResponse is returned for every handled chat request, including
// upstream failures that were mapped to a fallback message.
type ChatResponse struct {
	Response string `json:"response"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Requests int64  `json:"requests"`
	Failures int64  `json:"failures"`
}

// Chat handles POST /chat.
func (s *APIV1Service) Chat(c echo.Context) error {
	var req ChatRequest
	// Decoded regardless of Content-Type; an empty or malformed body is rejected.
	if err := c.Echo().JSONSerializer.Deserialize(c, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object").SetInternal(err)
	}

	resp := s.ChatService.Chat(c.Request().Context(), &chat.Request{
		SessionID: req.SessionID,
		UserInput: req.UserInput,
	})
	return c.JSON(http.StatusOK, &ChatResponse{Response: resp.Text})
}

// Healthz handles GET /healthz.
func (s *APIV1Service) Healthz(c echo.Context) error {
	current := s.Stats.Current()
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:   "ok",
		Sessions: current.Sessions,
		Requests: current.Requests,
		Failures: current.Failures,
	})
}
