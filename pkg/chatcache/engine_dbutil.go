package chatcache

import (
	"context"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"
)

// dbutilEngine talks to SQLite through dbutil's handle methods. dbutil
// carries the active transaction in the context, so Exec and QueryAll
// pick it up without any extra plumbing.
type dbutilEngine struct {
	db *dbutil.Database
}

func openDBUtilEngine(ctx context.Context, path string, log zerolog.Logger) (*dbutilEngine, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := dbutil.NewWithDialect(dsn, "sqlite3")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.RawDB.SetMaxOpenConns(1)
	db.RawDB.SetMaxIdleConns(1)
	db.Log = dbutil.ZeroLogger(log.With().Str("db_engine", EngineDBUtil).Logger())
	if err = db.RawDB.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &dbutilEngine{db: db}, nil
}

func (e *dbutilEngine) Name() string {
	return EngineDBUtil
}

func (e *dbutilEngine) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := e.db.Exec(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	return toResult(res), nil
}

func (e *dbutilEngine) QueryAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := e.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (e *dbutilEngine) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return e.db.DoTxn(ctx, nil, fn)
}

func (e *dbutilEngine) Close() error {
	return e.db.Close()
}
