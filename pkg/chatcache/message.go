package chatcache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// messageRow is one prepared row of the messages table.
type messageRow struct {
	MessageID   string
	CreatedAtMS int64
	CreatedAt   *string
	JSON        string
}

var messageIDFields = []string{"id", "_id"}

const messageTimestampField = "createdAt"

// encodeMessage serializes msg and pulls out the fields the cache indexes on.
// Items that can't be marshalled or carry no identifier are malformed.
func encodeMessage(msg any, now time.Time) (*messageRow, error) {
	var data []byte
	switch v := msg.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		var err error
		data, err = json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
		}
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedRecord)
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedRecord)
	}
	var id string
	for _, field := range messageIDFields {
		if val := parsed.Get(field); val.Exists() && val.Type != gjson.Null {
			id = val.String()
			if id != "" {
				break
			}
		}
	}
	if id == "" {
		return nil, fmt.Errorf("%w: missing message id", ErrMalformedRecord)
	}
	row := &messageRow{MessageID: id, JSON: string(data)}
	row.CreatedAtMS, row.CreatedAt = messageTimestamp(parsed.Get(messageTimestampField), now)
	return row, nil
}

// messageTimestamp converts the createdAt field to epoch milliseconds,
// falling back to now. The original text is returned only for string values.
func messageTimestamp(val gjson.Result, now time.Time) (int64, *string) {
	switch val.Type {
	case gjson.String:
		raw := val.String()
		if ts, ok := parseTimestamp(raw); ok {
			return ts.UnixMilli(), &raw
		}
		return now.UnixMilli(), &raw
	case gjson.Number:
		return val.Int(), nil
	default:
		return now.UnixMilli(), nil
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
