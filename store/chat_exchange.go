package store

// ChatExchange is one completed user/assistant exchange.
// Exchanges are append-only and are never loaded back into session state.
type ChatExchange struct {
	ID            int32
	UID           string
	SessionID     string
	UserText      string
	AssistantText string
	Provider      string
	CreatedTs     int64
}

type FindChatExchange struct {
	ID        *int32
	UID       *string
	SessionID *string
	// Limit caps the number of rows returned, newest first. Zero means no limit.
	Limit int
}
