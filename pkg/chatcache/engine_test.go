package chatcache

import "testing"

func TestRowInt64(t *testing.T) {
	row := Row{
		"int64":   int64(42),
		"int":     7,
		"float":   float64(3),
		"text":    "1700000000000",
		"bytes":   []byte("-5"),
		"padded":  " 9 ",
		"garbage": "12abc",
		"word":    []byte("soon"),
		"null":    nil,
	}
	tests := []struct {
		col  string
		want int64
	}{
		{"int64", 42},
		{"int", 7},
		{"float", 3},
		{"text", 1700000000000},
		{"bytes", -5},
		{"padded", 9},
		{"garbage", 0},
		{"word", 0},
		{"null", 0},
		{"missing", 0},
	}
	for _, tt := range tests {
		if got := row.Int64(tt.col); got != tt.want {
			t.Errorf("Int64(%q) = %d, want %d", tt.col, got, tt.want)
		}
	}
}
