package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hearthfire/cookforge/store"
)

func (d *DB) CreateConversationRecord(ctx context.Context, create *store.ConversationRecord) (*store.ConversationRecord, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	args := []any{create.SessionID, create.ConversationID, create.SystemPrompt, create.CatalogName, create.Transcript, create.CreatedTs}
	stmt := `INSERT INTO conversation_record (session_id, conversation_id, system_prompt, catalog_name, transcript, created_ts)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create conversation record: %w", err)
	}

	return create, nil
}

func (d *DB) ListConversationRecords(ctx context.Context, find *store.FindConversationRecord) ([]*store.ConversationRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.SessionID != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *find.SessionID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *find.ConversationID)
	}

	query := `SELECT id, session_id, conversation_id, system_prompt, catalog_name, transcript, created_ts
		FROM conversation_record WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC`
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation records: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ConversationRecord, 0)
	for rows.Next() {
		record := &store.ConversationRecord{}
		if err := rows.Scan(&record.ID, &record.SessionID, &record.ConversationID, &record.SystemPrompt, &record.CatalogName, &record.Transcript, &record.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan conversation record: %w", err)
		}
		list = append(list, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation records: %w", err)
	}

	return list, nil
}
