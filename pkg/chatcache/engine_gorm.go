package chatcache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type gormTxKey struct{}

// gormEngine drives SQLite through gorm, whose only transaction API is the
// Transaction callback. The callback's *gorm.DB is stashed in the context
// so statements issued by the work function land in the same transaction.
type gormEngine struct {
	db  *gorm.DB
	log zerolog.Logger
}

func openGormEngine(ctx context.Context, path string, log zerolog.Logger) (*gormEngine, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err = sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &gormEngine{db: db, log: log.With().Str("db_engine", EngineGorm).Logger()}, nil
}

func (e *gormEngine) handle(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(gormTxKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return e.db.WithContext(ctx)
}

func (e *gormEngine) Name() string {
	return EngineGorm
}

func (e *gormEngine) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	res := e.handle(ctx).Exec(query, args...)
	if res.Error != nil {
		return Result{}, res.Error
	}
	return Result{RowsAffected: res.RowsAffected}, nil
}

func (e *gormEngine) QueryAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := e.handle(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (e *gormEngine) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(gormTxKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, gormTxKey{}, tx))
	})
	if err != nil {
		e.log.Debug().Err(err).Msg("Transaction rolled back")
	}
	return err
}

func (e *gormEngine) Close() error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
