package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/hrygo/lily/store"
)

func (d *DB) CreateChatExchange(ctx context.Context, create *store.ChatExchange) (*store.ChatExchange, error) {
	fields := []string{"uid", "session_id", "user_text", "assistant_text", "provider", "created_ts"}
	args := []any{create.UID, create.SessionID, create.UserText, create.AssistantText, create.Provider, create.CreatedTs}

	stmt := `INSERT INTO chat_exchange (` + strings.Join(fields, ", ") + `) VALUES (` + placeholders(len(args)) + `) RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create chat_exchange: %w", err)
	}
	return create, nil
}

func (d *DB) ListChatExchanges(ctx context.Context, find *store.FindChatExchange) ([]*store.ChatExchange, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *find.SessionID)
	}

	query := `SELECT id, uid, session_id, user_text, assistant_text, provider, created_ts FROM chat_exchange WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_ts DESC, id DESC`
	if find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat_exchanges: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ChatExchange, 0)
	for rows.Next() {
		e := &store.ChatExchange{}
		if err := rows.Scan(&e.ID, &e.UID, &e.SessionID, &e.UserText, &e.AssistantText, &e.Provider, &e.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan chat_exchange: %w", err)
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat_exchanges: %w", err)
	}
	return list, nil
}

func (d *DB) CountChatExchanges(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_exchange`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chat_exchanges: %w", err)
	}
	return count, nil
}
