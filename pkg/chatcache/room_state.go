package chatcache

import (
	"context"
	"fmt"
)

// RoomState records when a room was last written to the cache.
type RoomState struct {
	RoomID     string `json:"room_id"`
	CachedAtMS int64  `json:"cached_at_ms"`
}

// GetRoomState returns the room's cache state, or nil if it has none.
func (c *Cache) GetRoomState(ctx context.Context, roomID string) (*RoomState, error) {
	if roomID == "" {
		c.invalidArgument("get_room_state", "room_id")
		return nil, nil
	}
	e, err := c.ready(ctx)
	if err != nil || e == nil {
		return nil, err
	}
	return getRoomState(ctx, e, roomID)
}

// SetRoomCachedAt stores cachedAtMS as the room's cache time. Zero means now.
func (c *Cache) SetRoomCachedAt(ctx context.Context, roomID string, cachedAtMS int64) error {
	if roomID == "" {
		c.invalidArgument("set_room_cached_at", "room_id")
		return nil
	}
	e, err := c.ready(ctx)
	if err != nil || e == nil {
		return err
	}
	if cachedAtMS == 0 {
		cachedAtMS = c.now().UnixMilli()
	}
	return upsertRoomState(ctx, e, roomID, cachedAtMS)
}

func getRoomState(ctx context.Context, e Engine, roomID string) (*RoomState, error) {
	rows, err := e.QueryAll(ctx,
		`SELECT room_id, cached_at_ms FROM room_state WHERE room_id=?`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get room state: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &RoomState{
		RoomID:     rows[0].String("room_id"),
		CachedAtMS: rows[0].Int64("cached_at_ms"),
	}, nil
}

func upsertRoomState(ctx context.Context, e Engine, roomID string, cachedAtMS int64) error {
	_, err := e.Exec(ctx, `
		INSERT INTO room_state (room_id, cached_at_ms)
		VALUES (?, ?)
		ON CONFLICT (room_id) DO UPDATE SET cached_at_ms=excluded.cached_at_ms
	`, roomID, cachedAtMS)
	if err != nil {
		return fmt.Errorf("failed to set room state: %w", err)
	}
	return nil
}
