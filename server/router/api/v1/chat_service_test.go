package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/lily/internal/profile"
	"github.com/hrygo/lily/plugin/ai"
	"github.com/hrygo/lily/plugin/ai/session"
	"github.com/hrygo/lily/server/service/chat"
	"github.com/hrygo/lily/server/stats"
)

// fakeGateway answers with reply, or fails with err when set.
type fakeGateway struct {
	reply string
	err   error
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) Generate(_ context.Context, _ []ai.Turn) (ai.Turn, error) {
	if g.err != nil {
		return ai.Turn{}, g.err
	}
	return ai.AssistantTurn(g.reply), nil
}

type testServer struct {
	echo     *echo.Echo
	sessions *session.Store
}

func newTestServer(gateway ai.GenerationGateway) *testServer {
	sessions := session.NewStore(session.Config{})
	chatService := chat.NewService(sessions, gateway, chat.Config{AssistantName: "Lily"})
	collector := stats.NewCollector(sessions, chatService.Metrics(), nil)

	e := echo.New()
	NewAPIV1Service(&profile.Profile{Mode: "dev"}, chatService, collector).RegisterRoutes(e)
	return &testServer{echo: e, sessions: sessions}
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) ChatResponse {
	t.Helper()
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestChat_Success(t *testing.T) {
	ts := newTestServer(&fakeGateway{reply: "4"})

	rec := ts.do(http.MethodPost, "/chat", `{"user_input":"What is 2+2?","session_id":"s1"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4", decodeResponse(t, rec).Response)

	turns, ok := ts.sessions.Snapshot("s1")
	require.True(t, ok)
	require.Len(t, turns, 2)
	assert.Equal(t, "What is 2+2?", turns[0].Text)
	assert.Equal(t, "4", turns[1].Text)
}

func TestChat_DefaultSession(t *testing.T) {
	ts := newTestServer(&fakeGateway{reply: "hi"})

	rec := ts.do(http.MethodPost, "/chat", `{"user_input":"hello"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	turns, ok := ts.sessions.Snapshot(session.DefaultSessionID)
	require.True(t, ok)
	assert.Len(t, turns, 2)
}

func TestChat_UpstreamFailureStill200(t *testing.T) {
	ts := newTestServer(&fakeGateway{err: ai.QuotaExceeded("gemini", errors.New("RESOURCE_EXHAUSTED"))})

	rec := ts.do(http.MethodPost, "/chat", `{"user_input":"hello","session_id":"s1"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, chat.MessageQuotaExceeded, decodeResponse(t, rec).Response)

	turns, ok := ts.sessions.Snapshot("s1")
	require.True(t, ok)
	assert.Empty(t, turns)
}

func TestChat_BadRequest(t *testing.T) {
	ts := newTestServer(&fakeGateway{reply: "unused"})

	tests := []struct {
		name string
		body string
	}{
		{name: "NotJSON", body: "user_input=hello"},
		{name: "Empty", body: ""},
		{name: "WrongType", body: `{"user_input": 42}`},
		{name: "Array", body: `["hello"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/chat", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Equal(t, 0, ts.sessions.Len())
}

func TestChat_CORS(t *testing.T) {
	ts := newTestServer(&fakeGateway{reply: "ok"})
	origin := "https://example.com"

	t.Run("Preflight", func(t *testing.T) {
		rec := ts.do(http.MethodOptions, "/chat", "", map[string]string{
			echo.HeaderOrigin:                     origin,
			echo.HeaderAccessControlRequestMethod: http.MethodPost,
		})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, origin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
		assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
		assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodPost)
	})

	t.Run("PreflightReflectsRequestHeaders", func(t *testing.T) {
		rec := ts.do(http.MethodOptions, "/chat", "", map[string]string{
			echo.HeaderOrigin:                      origin,
			echo.HeaderAccessControlRequestMethod:  http.MethodPost,
			echo.HeaderAccessControlRequestHeaders: "content-type, x-client-version",
		})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "content-type, x-client-version", rec.Header().Get(echo.HeaderAccessControlAllowHeaders))
		assert.NotEqual(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowHeaders))
		assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
	})

	t.Run("SimpleRequest", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/chat", `{"user_input":"hello"}`, map[string]string{echo.HeaderOrigin: origin})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, origin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	})
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(&fakeGateway{reply: "ok"})
	ts.do(http.MethodPost, "/chat", `{"user_input":"hello","session_id":"a"}`, nil)
	ts.do(http.MethodPost, "/chat", `{"user_input":"hello","session_id":"b"}`, nil)

	rec := ts.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.Sessions)
	assert.Equal(t, int64(2), health.Requests)
	assert.Equal(t, int64(0), health.Failures)
}
