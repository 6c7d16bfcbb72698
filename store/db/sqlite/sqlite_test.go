package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/lily/internal/profile"
	"github.com/hrygo/lily/store"
)

func TestWithPragmas(t *testing.T) {
	assert.Equal(t, ":memory:", withPragmas(":memory:"))
	assert.Equal(t, "lily.db?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", withPragmas("lily.db"))
	assert.Equal(t, "lily.db?mode=rwc&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", withPragmas("lily.db?mode=rwc"))
	assert.Equal(t, "lily.db?_pragma=foreign_keys(1)", withPragmas("lily.db?_pragma=foreign_keys(1)"))
}

func TestNewDB(t *testing.T) {
	t.Run("NilProfile", func(t *testing.T) {
		_, err := NewDB(nil)
		assert.Error(t, err)
	})

	t.Run("EmptyDSN", func(t *testing.T) {
		_, err := NewDB(&profile.Profile{Driver: "sqlite"})
		assert.Error(t, err)
	})
}

func TestFileDatabase(t *testing.T) {
	ctx := context.Background()
	p := &profile.Profile{Mode: "dev", Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "lily.db")}

	driver, err := NewDB(p)
	require.NoError(t, err)

	initialized, err := driver.IsInitialized(ctx)
	require.NoError(t, err)
	assert.False(t, initialized)

	ts := store.New(driver, p)
	require.NoError(t, ts.Migrate(ctx))

	_, err = ts.CreateChatExchange(ctx, &store.ChatExchange{SessionID: "s1", UserText: "hi", AssistantText: "hello"})
	require.NoError(t, err)
	require.NoError(t, ts.Close())

	// Reopen: the archive survives, the schema is not reapplied.
	driver, err = NewDB(p)
	require.NoError(t, err)
	ts = store.New(driver, p)
	defer ts.Close()
	require.NoError(t, ts.Migrate(ctx))

	count, err := ts.CountChatExchanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
