package chatcache

import (
	"context"
	"fmt"
)

var schemaQueries = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL,
		created_at TEXT,
		json TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS room_state (
		room_id TEXT PRIMARY KEY,
		cached_at_ms INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_room_created_idx
		ON messages (room_id, created_at_ms DESC)`,
}

func ensureSchema(ctx context.Context, e Engine) error {
	for _, query := range schemaQueries {
		if _, err := e.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to ensure chat cache schema: %w", err)
		}
	}
	return nil
}
