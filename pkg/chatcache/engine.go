package chatcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Row is one materialized result row keyed by column name.
type Row map[string]any

// Int64 returns the named column as an int64, or 0 if it is missing, NULL
// or text that isn't a base 10 integer.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case []byte:
		return parseInt64(string(v))
	case string:
		return parseInt64(v)
	}
	return 0
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// String returns the named column as a string, or "" if it is missing or NULL.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Result is the engine-neutral outcome of a write statement.
// LastInsertID is zero when the engine can't report it.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// Engine is the uniform statement interface over the supported SQLite
// client libraries. Statements issued with the context handed to a
// WithTransaction callback run inside that transaction.
type Engine interface {
	Name() string
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	QueryAll(ctx context.Context, query string, args ...any) ([]Row, error)
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Close() error
}

// Engine names accepted in Config.Engine.
const (
	EngineAuto   = "auto"
	EngineDBUtil = "dbutil"
	EngineGorm   = "gorm"
)

// sqliteDSN builds the go-sqlite3 DSN shared by both engines and makes
// sure the parent directory exists.
func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", errors.New("missing database path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000", nil
}

// scanRows materializes every row of rs into column-keyed maps.
func scanRows(rs interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Row, error) {
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0)
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err = rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				// The driver may reuse the buffer after the next Scan.
				vals[i] = string(b)
			}
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	if err = rs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func toResult(res sql.Result) Result {
	if res == nil {
		return Result{}
	}
	var out Result
	out.RowsAffected, _ = res.RowsAffected()
	out.LastInsertID, _ = res.LastInsertId()
	return out
}
