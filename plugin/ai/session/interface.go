// Package session keeps per-session conversation transcripts in process memory.
//
// Transcripts live only as long as the process. A transcript is created on the
// first reference to its session id and is mutated only while a Lease for that id
// is held, so turns of concurrent requests on one session never interleave.
package session

import (
	"context"

	"github.com/hrygo/lily/plugin/ai"
)

// DefaultSessionID is used when the caller does not supply a session id.
const DefaultSessionID = "default_user"

// ConversationStore maps session ids to transcripts.
type ConversationStore interface {
	// GetOrCreate returns the transcript for sessionID, registering an empty one
	// on first reference. It never fails.
	GetOrCreate(sessionID string) *Transcript

	// Acquire waits for exclusive use of the session's transcript.
	// It fails only when ctx is done first.
	Acquire(ctx context.Context, sessionID string) (*Lease, error)

	// Snapshot returns a copy of the session's turns.
	Snapshot(sessionID string) ([]ai.Turn, bool)

	// Len returns the number of live sessions.
	Len() int

	// CleanupExpired removes idle sessions and returns how many were removed.
	CleanupExpired(ctx context.Context) (int64, error)
}

// NormalizeSessionID maps an absent id to DefaultSessionID.
func NormalizeSessionID(sessionID string) string {
	if sessionID == "" {
		return DefaultSessionID
	}
	return sessionID
}
