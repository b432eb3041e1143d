package chatcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/lrhodin/chatcache/pkg/metrics"
)

const (
	DefaultMaxMessages   = 5000
	DefaultLoadLimit     = 5000
	DefaultRetentionDays = 30
)

// Cache mirrors chat room messages into local SQLite storage. It is an
// acceleration layer only: when storage can't be opened the cache turns
// itself off and every method becomes a no-op.
type Cache struct {
	opener *Opener
	log    zerolog.Logger
	now    func() time.Time

	lock        sync.Mutex
	initialized bool
	enabled     bool
	engine      Engine
}

// LoadResult is what LoadRoomMessages returns. CachedAt is nil if the room
// has never been cached.
type LoadResult struct {
	Messages []json.RawMessage `json:"messages"`
	CachedAt *int64            `json:"cachedAt"`
}

// New creates a cache on top of opener. The opener is owned by the caller,
// who is also responsible for closing it.
func New(opener *Opener, log zerolog.Logger) *Cache {
	return &Cache{
		opener: opener,
		log:    log.With().Str("component", "chatcache").Logger(),
		now:    time.Now,
	}
}

// Initialize opens storage and ensures the schema exists. It is safe to call
// repeatedly. If no storage engine is available the cache is disabled and
// Initialize returns nil.
func (c *Cache) Initialize(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.initializeLocked(ctx)
}

func (c *Cache) initializeLocked(ctx context.Context) error {
	e, err := c.opener.Open(ctx)
	if errors.Is(err, ErrStorageUnavailable) {
		c.log.Warn().Err(err).Msg("Chat cache storage unavailable, running with cache disabled")
		c.initialized = true
		c.enabled = false
		c.engine = nil
		metrics.Enabled.Set(0)
		return nil
	} else if err != nil {
		return err
	}
	if err = ensureSchema(ctx, e); err != nil {
		return err
	}
	c.initialized = true
	c.enabled = true
	c.engine = e
	metrics.Enabled.Set(1)
	c.log.Debug().Str("engine", e.Name()).Msg("Chat cache initialized")
	return nil
}

// Enabled reports whether the cache has working storage. It is false until
// Initialize has run.
func (c *Cache) Enabled() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.initialized && c.enabled
}

// EngineName returns the name of the storage engine in use, or "" if the
// cache is disabled or not yet initialized.
func (c *Cache) EngineName() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.engine == nil {
		return ""
	}
	return c.engine.Name()
}

// ready returns the engine, initializing on first use. A nil engine with a
// nil error means the cache is disabled.
func (c *Cache) ready(ctx context.Context) (Engine, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.initialized {
		if err := c.initializeLocked(ctx); err != nil {
			return nil, err
		}
	}
	if !c.enabled {
		return nil, nil
	}
	return c.engine, nil
}

func (c *Cache) invalidArgument(op, key string) {
	c.log.Debug().
		Err(ErrInvalidArgument).
		Str("operation", op).
		Str("missing", key).
		Msg("Ignoring chat cache call with missing key")
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

const upsertMessageQuery = `
	INSERT INTO messages (message_id, room_id, created_at_ms, created_at, json, updated_at_ms)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (message_id) DO UPDATE SET
		room_id=excluded.room_id,
		created_at_ms=excluded.created_at_ms,
		created_at=excluded.created_at,
		json=excluded.json,
		updated_at_ms=excluded.updated_at_ms
`

// trimRoomQuery keeps only the newest N rows of a room. Ties on
// created_at_ms are broken by message_id so the kept set is deterministic.
const trimRoomQuery = `
	DELETE FROM messages
	WHERE room_id=? AND message_id NOT IN (
		SELECT message_id FROM messages
		WHERE room_id=?
		ORDER BY created_at_ms DESC, message_id DESC
		LIMIT ?
	)
`

// SaveRoomMessages upserts messages for roomID, refreshes the room's cache
// timestamp and trims the room to its maxMessages newest rows, all in one
// transaction. Items without an id or that can't be encoded are skipped.
// maxMessages <= 0 means DefaultMaxMessages.
func (c *Cache) SaveRoomMessages(ctx context.Context, roomID string, messages []any, maxMessages int) error {
	if roomID == "" {
		c.invalidArgument("save_room_messages", "room_id")
		return nil
	}
	e, err := c.ready(ctx)
	if err != nil || e == nil {
		return err
	}
	defer observe("save_room_messages")()
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	log := c.log.With().Str("room_id", roomID).Logger()

	now := c.now()
	rows := make([]*messageRow, 0, len(messages))
	for i, msg := range messages {
		row, err := encodeMessage(msg, now)
		if err != nil {
			log.Debug().Err(err).Int("index", i).Msg("Skipping message that can't be cached")
			metrics.MessagesSkipped.WithLabelValues("malformed").Inc()
			continue
		}
		rows = append(rows, row)
	}

	nowMS := now.UnixMilli()
	var trimmed int64
	err = e.WithTransaction(ctx, func(ctx context.Context) error {
		for _, row := range rows {
			_, err := e.Exec(ctx, upsertMessageQuery,
				row.MessageID, roomID, row.CreatedAtMS, nullableString(row.CreatedAt), row.JSON, nowMS,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert message %s: %w", row.MessageID, err)
			}
		}
		if err := upsertRoomState(ctx, e, roomID, nowMS); err != nil {
			return err
		}
		res, err := e.Exec(ctx, trimRoomQuery, roomID, roomID, maxMessages)
		if err != nil {
			return fmt.Errorf("failed to trim room: %w", err)
		}
		trimmed = res.RowsAffected
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save room messages: %w", err)
	}
	metrics.MessagesSaved.Add(float64(len(rows)))
	metrics.MessagesTrimmed.Add(float64(trimmed))
	log.Debug().
		Int("saved", len(rows)).
		Int("skipped", len(messages)-len(rows)).
		Int64("trimmed", trimmed).
		Msg("Saved room messages to cache")
	return nil
}

// LoadRoomMessages returns up to limit cached messages for roomID, newest
// first, along with when the room was last cached. Rows whose JSON no longer
// parses are left out. limit <= 0 means DefaultLoadLimit.
func (c *Cache) LoadRoomMessages(ctx context.Context, roomID string, limit int) (*LoadResult, error) {
	result := &LoadResult{Messages: make([]json.RawMessage, 0)}
	if roomID == "" {
		c.invalidArgument("load_room_messages", "room_id")
		return result, nil
	}
	e, err := c.ready(ctx)
	if err != nil || e == nil {
		return result, err
	}
	defer observe("load_room_messages")()
	if limit <= 0 {
		limit = DefaultLoadLimit
	}

	rows, err := e.QueryAll(ctx, `
		SELECT message_id, json FROM messages
		WHERE room_id=?
		ORDER BY created_at_ms DESC, message_id DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		return result, fmt.Errorf("failed to load room messages: %w", err)
	}
	for _, row := range rows {
		data := row.String("json")
		if !gjson.Valid(data) {
			c.log.Warn().
				Err(ErrMalformedRecord).
				Str("room_id", roomID).
				Str("message_id", row.String("message_id")).
				Msg("Dropping cached message with unparseable JSON")
			metrics.CorruptRows.Inc()
			continue
		}
		result.Messages = append(result.Messages, json.RawMessage(data))
	}
	metrics.MessagesLoaded.Add(float64(len(result.Messages)))

	state, err := getRoomState(ctx, e, roomID)
	if err != nil {
		return result, err
	}
	if state != nil {
		result.CachedAt = &state.CachedAtMS
	}
	return result, nil
}

// DeleteMessage removes one message. Both keys must match.
func (c *Cache) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	if roomID == "" {
		c.invalidArgument("delete_message", "room_id")
		return nil
	} else if messageID == "" {
		c.invalidArgument("delete_message", "message_id")
		return nil
	}
	e, err := c.ready(ctx)
	if err != nil || e == nil {
		return err
	}
	defer observe("delete_message")()
	_, err = e.Exec(ctx, `DELETE FROM messages WHERE room_id=? AND message_id=?`, roomID, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// ClearRoom removes every cached message of roomID and its room state.
func (c *Cache) ClearRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		c.invalidArgument("clear_room", "room_id")
		return nil
	}
	e, err := c.ready(ctx)
	if err != nil || e == nil {
		return err
	}
	defer observe("clear_room")()
	err = e.WithTransaction(ctx, func(ctx context.Context) error {
		for _, table := range []string{"messages", "room_state"} {
			if _, err := e.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE room_id=?`, table), roomID); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear room: %w", err)
	}
	return nil
}

// CleanupOldMessages deletes messages of every room created more than
// maxAgeDays ago and returns how many were removed. maxAgeDays <= 0 means
// DefaultRetentionDays. Scheduling is up to the caller.
func (c *Cache) CleanupOldMessages(ctx context.Context, maxAgeDays int) (int64, error) {
	e, err := c.ready(ctx)
	if err != nil || e == nil {
		return 0, err
	}
	defer observe("cleanup_old_messages")()
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultRetentionDays
	}
	cutoff := c.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).UnixMilli()
	res, err := e.Exec(ctx, `DELETE FROM messages WHERE created_at_ms < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old messages: %w", err)
	}
	metrics.MessagesSwept.Add(float64(res.RowsAffected))
	c.log.Debug().
		Int("max_age_days", maxAgeDays).
		Int64("deleted", res.RowsAffected).
		Msg("Swept old cached messages")
	return res.RowsAffected, nil
}

// ClearAll empties both cache tables.
func (c *Cache) ClearAll(ctx context.Context) error {
	e, err := c.ready(ctx)
	if err != nil || e == nil {
		return err
	}
	defer observe("clear_all")()
	err = e.WithTransaction(ctx, func(ctx context.Context) error {
		for _, table := range []string{"messages", "room_state"} {
			if _, err := e.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// CountRoomMessages returns how many messages are cached for roomID.
func (c *Cache) CountRoomMessages(ctx context.Context, roomID string) (int, error) {
	if roomID == "" {
		c.invalidArgument("count_room_messages", "room_id")
		return 0, nil
	}
	e, err := c.ready(ctx)
	if err != nil || e == nil {
		return 0, err
	}
	rows, err := e.QueryAll(ctx, `SELECT COUNT(*) AS count FROM messages WHERE room_id=?`, roomID)
	if err != nil {
		return 0, fmt.Errorf("failed to count room messages: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int(rows[0].Int64("count")), nil
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
