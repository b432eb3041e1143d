package chatcache

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEncodeMessage(t *testing.T) {
	now := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	tests := []struct {
		name          string
		msg           any
		wantID        string
		wantCreatedMS int64
		wantCreatedAt string
		wantErr       bool
	}{
		{
			name:          "ISO timestamp",
			msg:           map[string]any{"id": "m1", "createdAt": "2024-01-01T00:00:00Z"},
			wantID:        "m1",
			wantCreatedMS: 1704067200000,
			wantCreatedAt: "2024-01-01T00:00:00Z",
		},
		{
			name:          "fractional seconds with offset",
			msg:           map[string]any{"id": "m1", "createdAt": "2024-01-01T02:00:00.500+02:00"},
			wantID:        "m1",
			wantCreatedMS: 1704067200500,
			wantCreatedAt: "2024-01-01T02:00:00.500+02:00",
		},
		{
			name:          "epoch milliseconds",
			msg:           map[string]any{"id": "m1", "createdAt": 1704067200000},
			wantID:        "m1",
			wantCreatedMS: 1704067200000,
		},
		{
			name:          "unparseable timestamp falls back to now",
			msg:           map[string]any{"id": "m1", "createdAt": "yesterday"},
			wantID:        "m1",
			wantCreatedMS: now.UnixMilli(),
			wantCreatedAt: "yesterday",
		},
		{
			name:          "missing timestamp falls back to now",
			msg:           map[string]any{"id": "m1"},
			wantID:        "m1",
			wantCreatedMS: now.UnixMilli(),
		},
		{
			name:          "underscore id",
			msg:           map[string]any{"_id": "abc", "createdAt": "2024-01-01T00:00:00Z"},
			wantID:        "abc",
			wantCreatedMS: 1704067200000,
			wantCreatedAt: "2024-01-01T00:00:00Z",
		},
		{
			name:          "numeric id",
			msg:           json.RawMessage(`{"id": 42}`),
			wantID:        "42",
			wantCreatedMS: now.UnixMilli(),
		},
		{name: "missing id", msg: map[string]any{"text": "hi"}, wantErr: true},
		{name: "null id", msg: json.RawMessage(`{"id": null}`), wantErr: true},
		{name: "not an object", msg: []string{"a"}, wantErr: true},
		{name: "invalid raw JSON", msg: json.RawMessage(`{"id":`), wantErr: true},
		{name: "unmarshalable", msg: map[string]any{"id": "x", "f": func() {}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := encodeMessage(tt.msg, now)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedRecord) {
					t.Fatalf("expected ErrMalformedRecord, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if row.MessageID != tt.wantID {
				t.Errorf("id: expected %q, got %q", tt.wantID, row.MessageID)
			}
			if row.CreatedAtMS != tt.wantCreatedMS {
				t.Errorf("created_at_ms: expected %d, got %d", tt.wantCreatedMS, row.CreatedAtMS)
			}
			var gotCreatedAt string
			if row.CreatedAt != nil {
				gotCreatedAt = *row.CreatedAt
			}
			if gotCreatedAt != tt.wantCreatedAt {
				t.Errorf("created_at: expected %q, got %q", tt.wantCreatedAt, gotCreatedAt)
			}
			if !json.Valid([]byte(row.JSON)) {
				t.Errorf("stored JSON is invalid: %s", row.JSON)
			}
		})
	}
}
