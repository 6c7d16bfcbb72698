package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/lily/plugin/ai"
	"github.com/hrygo/lily/plugin/ai/session"
	"github.com/hrygo/lily/store"
)

// scriptedGateway replies from a script; once the script is exhausted it
// echoes the last user turn.
type scriptedGateway struct {
	mu     sync.Mutex
	script []scriptedReply
	calls  [][]ai.Turn
	delay  time.Duration
}

type scriptedReply struct {
	text string
	err  error
}

func (g *scriptedGateway) Name() string { return "scripted" }

func (g *scriptedGateway) Generate(ctx context.Context, transcript []ai.Turn) (ai.Turn, error) {
	g.mu.Lock()
	g.calls = append(g.calls, transcript)
	var next *scriptedReply
	if len(g.script) > 0 {
		next = &g.script[0]
		g.script = g.script[1:]
	}
	g.mu.Unlock()

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return ai.Turn{}, &ai.Error{Code: ai.ErrCodeTimeout, Provider: g.Name(), Message: "generation timed out", Cause: ctx.Err()}
		}
	}

	if next == nil {
		return ai.AssistantTurn("reply to " + transcript[len(transcript)-1].Text), nil
	}
	if next.err != nil {
		return ai.Turn{}, next.err
	}
	return ai.AssistantTurn(next.text), nil
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// recordingArchive collects archived exchanges.
type recordingArchive struct {
	mu        sync.Mutex
	exchanges []*store.ChatExchange
	err       error
}

func (a *recordingArchive) CreateChatExchange(_ context.Context, create *store.ChatExchange) (*store.ChatExchange, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.exchanges = append(a.exchanges, create)
	return create, nil
}

func newTestService(gateway ai.GenerationGateway, config Config, opts ...Option) (*Service, *session.Store) {
	sessions := session.NewStore(session.Config{})
	if config.AssistantName == "" {
		config.AssistantName = "Lily"
	}
	return NewService(sessions, gateway, config, opts...), sessions
}

func snapshot(t *testing.T, sessions *session.Store, id string) []ai.Turn {
	t.Helper()
	turns, ok := sessions.Snapshot(id)
	require.True(t, ok, "session %q not found", id)
	return turns
}

func TestChat_FirstExchange(t *testing.T) {
	gateway := &scriptedGateway{script: []scriptedReply{{text: "4"}}}
	svc, sessions := newTestService(gateway, Config{})

	resp := svc.Chat(context.Background(), &Request{SessionID: "s1", UserInput: "What is 2+2?"})

	assert.Equal(t, "4", resp.Text)
	assert.Empty(t, resp.Code)

	turns := snapshot(t, sessions, "s1")
	require.Len(t, turns, 2)
	assert.Equal(t, ai.RoleUser, turns[0].Role)
	assert.Equal(t, "What is 2+2?", turns[0].Text)
	assert.Equal(t, ai.RoleAssistant, turns[1].Role)
	assert.Equal(t, "4", turns[1].Text)

	// The gateway saw the transcript ending with the new user turn.
	require.Equal(t, 1, gateway.callCount())
	require.Len(t, gateway.calls[0], 1)
	assert.Equal(t, "What is 2+2?", gateway.calls[0][0].Text)
}

func TestChat_FailureRollsBack(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ai.ErrorCode
		wantText string
	}{
		{
			name:     "QuotaExceeded",
			err:      ai.QuotaExceeded("gemini", errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED")),
			wantCode: ai.ErrCodeQuotaExceeded,
			wantText: MessageQuotaExceeded,
		},
		{
			name:     "CredentialInvalid",
			err:      ai.CredentialInvalid("gemini", errors.New("API key not valid")),
			wantCode: ai.ErrCodeCredentialInvalid,
			wantText: MessageCredentialInvalid,
		},
		{
			name:     "UpstreamFailure",
			err:      ai.UpstreamFailure("gemini", "generation failed", errors.New("500")),
			wantCode: ai.ErrCodeUpstreamFailure,
			wantText: "I'm sorry, Lily encountered a major technical issue. Please check the server console.",
		},
		{
			name:     "UntypedError",
			err:      errors.New("connection reset"),
			wantCode: ai.ErrCodeUpstreamFailure,
			wantText: "I'm sorry, Lily encountered a major technical issue. Please check the server console.",
		},
		{
			name:     "WrappedTypedError",
			err:      fmt.Errorf("call: %w", ai.QuotaExceeded("openai", nil)),
			wantCode: ai.ErrCodeQuotaExceeded,
			wantText: MessageQuotaExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &scriptedGateway{script: []scriptedReply{{text: "hello"}, {err: tt.err}}}
			svc, sessions := newTestService(gateway, Config{})
			ctx := context.Background()

			svc.Chat(ctx, &Request{SessionID: "s1", UserInput: "hi"})
			before := snapshot(t, sessions, "s1")

			resp := svc.Chat(ctx, &Request{SessionID: "s1", UserInput: "second"})

			assert.Equal(t, tt.wantText, resp.Text)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, texts(before), texts(snapshot(t, sessions, "s1")), "transcript must be unchanged")
		})
	}
}

func TestChat_FailureOnNewSessionLeavesEmptyTranscript(t *testing.T) {
	gateway := &scriptedGateway{script: []scriptedReply{{err: ai.QuotaExceeded("gemini", errors.New("RESOURCE_EXHAUSTED"))}}}
	svc, sessions := newTestService(gateway, Config{})

	resp := svc.Chat(context.Background(), &Request{SessionID: "s1", UserInput: "hello"})

	assert.Equal(t, MessageQuotaExceeded, resp.Text)
	assert.Empty(t, snapshot(t, sessions, "s1"))
}

func TestChat_NoConsecutiveUserTurns(t *testing.T) {
	gateway := &scriptedGateway{script: []scriptedReply{
		{text: "a1"},
		{err: ai.UpstreamFailure("gemini", "boom", nil)},
		{err: ai.QuotaExceeded("gemini", nil)},
		{text: "a2"},
	}}
	svc, sessions := newTestService(gateway, Config{})
	ctx := context.Background()

	for _, input := range []string{"q1", "q2", "q3", "q4"} {
		svc.Chat(ctx, &Request{SessionID: "s1", UserInput: input})
	}

	turns := snapshot(t, sessions, "s1")
	assert.Equal(t, []string{"q1", "a1", "q4", "a2"}, texts(turns))
	assertAlternating(t, turns)

	// The retry after failures carries only the successful history.
	last := gateway.calls[len(gateway.calls)-1]
	assert.Equal(t, []string{"q1", "a1", "q4"}, texts(last))
}

func TestChat_SessionIsolation(t *testing.T) {
	svc, sessions := newTestService(&scriptedGateway{}, Config{})
	ctx := context.Background()

	svc.Chat(ctx, &Request{SessionID: "A", UserInput: "for A"})
	svc.Chat(ctx, &Request{SessionID: "B", UserInput: "for B"})

	assert.Equal(t, []string{"for A", "reply to for A"}, texts(snapshot(t, sessions, "A")))
	assert.Equal(t, []string{"for B", "reply to for B"}, texts(snapshot(t, sessions, "B")))
}

func TestChat_DefaultSession(t *testing.T) {
	gateway := &scriptedGateway{}
	svc, sessions := newTestService(gateway, Config{})
	ctx := context.Background()

	svc.Chat(ctx, &Request{UserInput: "anonymous"})
	svc.Chat(ctx, &Request{SessionID: session.DefaultSessionID, UserInput: "explicit"})

	assert.Equal(t, 1, sessions.Len())
	turns := snapshot(t, sessions, "default_user")
	assert.Equal(t, []string{"anonymous", "reply to anonymous", "explicit", "reply to explicit"}, texts(turns))
}

func TestChat_EmptyInputIsForwarded(t *testing.T) {
	gateway := &scriptedGateway{script: []scriptedReply{{text: "You sent nothing."}}}
	svc, sessions := newTestService(gateway, Config{})

	resp := svc.Chat(context.Background(), &Request{SessionID: "s1", UserInput: ""})

	assert.Equal(t, "You sent nothing.", resp.Text)
	assert.Equal(t, []string{"", "You sent nothing."}, texts(snapshot(t, sessions, "s1")))
}

func TestChat_ConcurrentSameSession(t *testing.T) {
	gateway := &scriptedGateway{delay: 2 * time.Millisecond}
	svc, sessions := newTestService(gateway, Config{})
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := fmt.Sprintf("q%d", i)
			resp := svc.Chat(ctx, &Request{SessionID: "shared", UserInput: input})
			assert.Equal(t, "reply to "+input, resp.Text)
		}(i)
	}
	wg.Wait()

	turns := snapshot(t, sessions, "shared")
	require.Len(t, turns, 2*n)
	assertAlternating(t, turns)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, "reply to "+turns[i].Text, turns[i+1].Text)
	}
}

func TestChat_GenerationTimeout(t *testing.T) {
	gateway := &scriptedGateway{delay: time.Second}
	svc, sessions := newTestService(gateway, Config{GenerationTimeout: 20 * time.Millisecond})

	resp := svc.Chat(context.Background(), &Request{SessionID: "slow", UserInput: "hello"})

	assert.Equal(t, ai.ErrCodeTimeout, resp.Code)
	assert.Equal(t, GenericMessage("Lily"), resp.Text)
	assert.Empty(t, snapshot(t, sessions, "slow"))
}

func TestChat_AcquireFailure(t *testing.T) {
	svc, sessions := newTestService(&scriptedGateway{}, Config{})

	lease, err := sessions.Acquire(context.Background(), "busy")
	require.NoError(t, err)
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	resp := svc.Chat(ctx, &Request{SessionID: "busy", UserInput: "hello"})

	assert.Equal(t, GenericMessage("Lily"), resp.Text)
	assert.Equal(t, ai.ErrCodeTimeout, resp.Code)
	assert.Empty(t, lease.Transcript.Turns())
}

func TestChat_TrimsTranscript(t *testing.T) {
	svc, sessions := newTestService(&scriptedGateway{}, Config{MaxTurns: 4})
	ctx := context.Background()

	for _, input := range []string{"q1", "q2", "q3"} {
		svc.Chat(ctx, &Request{SessionID: "s1", UserInput: input})
	}

	turns := snapshot(t, sessions, "s1")
	assert.Equal(t, []string{"q2", "reply to q2", "q3", "reply to q3"}, texts(turns))
}

func TestChat_Archive(t *testing.T) {
	t.Run("RecordsSuccessfulExchanges", func(t *testing.T) {
		archive := &recordingArchive{}
		gateway := &scriptedGateway{script: []scriptedReply{{text: "4"}, {err: ai.QuotaExceeded("gemini", nil)}}}
		svc, _ := newTestService(gateway, Config{}, WithArchive(archive))
		ctx := context.Background()

		svc.Chat(ctx, &Request{SessionID: "s1", UserInput: "What is 2+2?"})
		svc.Chat(ctx, &Request{SessionID: "s1", UserInput: "again"})

		require.Len(t, archive.exchanges, 1)
		assert.Equal(t, "s1", archive.exchanges[0].SessionID)
		assert.Equal(t, "What is 2+2?", archive.exchanges[0].UserText)
		assert.Equal(t, "4", archive.exchanges[0].AssistantText)
		assert.Equal(t, "scripted", archive.exchanges[0].Provider)
	})

	t.Run("ErrorsDoNotAffectReply", func(t *testing.T) {
		archive := &recordingArchive{err: errors.New("disk full")}
		svc, sessions := newTestService(&scriptedGateway{}, Config{}, WithArchive(archive))

		resp := svc.Chat(context.Background(), &Request{SessionID: "s1", UserInput: "hi"})

		assert.Equal(t, "reply to hi", resp.Text)
		assert.Empty(t, resp.Code)
		assert.Len(t, snapshot(t, sessions, "s1"), 2)
	})
}

func TestChat_Metrics(t *testing.T) {
	gateway := &scriptedGateway{script: []scriptedReply{{text: "ok"}, {err: ai.QuotaExceeded("gemini", nil)}}}
	svc, _ := newTestService(gateway, Config{})
	ctx := context.Background()

	svc.Chat(ctx, &Request{SessionID: "s1", UserInput: "a"})
	svc.Chat(ctx, &Request{SessionID: "s1", UserInput: "b"})

	snap := svc.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.RequestTotal)
	assert.Equal(t, int64(1), snap.RequestFailed)
	assert.Equal(t, int64(1), snap.FailuresByCode[string(ai.ErrCodeQuotaExceeded)])
	assert.Equal(t, 2, snap.DurationCount)
}

func TestGenericMessage(t *testing.T) {
	assert.Equal(t, "I'm sorry, Lily encountered a major technical issue. Please check the server console.", GenericMessage("Lily"))
	assert.Contains(t, GenericMessage(""), "the assistant")
}

func texts(turns []ai.Turn) []string {
	result := make([]string, len(turns))
	for i, turn := range turns {
		result[i] = turn.Text
	}
	return result
}

func assertAlternating(t *testing.T, turns []ai.Turn) {
	t.Helper()
	for i, turn := range turns {
		want := ai.RoleUser
		if i%2 == 1 {
			want = ai.RoleAssistant
		}
		assert.Equal(t, want, turn.Role, "turn %d", i)
	}
}
