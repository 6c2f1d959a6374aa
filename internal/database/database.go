// Package database provides the project store connection layer.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/models"
)

// Database wraps a gorm connection.
type Database struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New creates a database connection and runs migrations.
func New(cfg *config.DatabaseConfig, log *slog.Logger) (*Database, error) {
	dialector, err := getDialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newSlogGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&models.Project{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Database{db: db, logger: log}, nil
}

func getDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Type {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		// WAL keeps readers unblocked during long pipeline writes.
		dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		return sqlite.Open(dsn), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// DB returns the underlying gorm handle.
func (d *Database) DB() *gorm.DB { return d.db }

// Close closes the underlying connection.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// slogGormLogger adapts slog to gorm's logger interface.
type slogGormLogger struct {
	logger        *slog.Logger
	slowThreshold time.Duration
}

func newSlogGormLogger(log *slog.Logger) logger.Interface {
	return &slogGormLogger{
		logger:        log.With("component", "database"),
		slowThreshold: 200 * time.Millisecond,
	}
}

func (l *slogGormLogger) LogMode(logger.LogLevel) logger.Interface { return l }

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && err != gorm.ErrRecordNotFound:
		l.logger.ErrorContext(ctx, "query failed", "error", err, "sql", sql, "rows", rows, "elapsed", elapsed)
	case elapsed > l.slowThreshold:
		l.logger.WarnContext(ctx, "slow query", "sql", sql, "rows", rows, "elapsed", elapsed)
	default:
		l.logger.DebugContext(ctx, "query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
