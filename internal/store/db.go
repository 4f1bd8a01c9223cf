// Package store owns the gorm schema, connection lifecycle, and repository
// implementations for every domain aggregate. Domain packages define the
// Repository interfaces; this package is the only thing that imports gorm.
package store

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/moguard/panel/internal/config"
	applogger "github.com/moguard/panel/internal/shared/logger"
)

// Open opens the configured driver's gorm.DB and tunes the connection pool.
// Driver selection mirrors the teacher's single-driver connection.go,
// generalized to the three drivers the config exposes (§2 AMBIENT STACK).
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = gormmysql.Open(cfg.DSN)
	case "postgres":
		dialector = gormpostgres.Open(cfg.DSN)
	case "sqlite":
		dialector = gormsqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:      gormlogger.New(&bridgeLogger{}, gormlogger.Config{SlowThreshold: 200 * time.Millisecond, LogLevel: gormlogger.Warn}),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	applogger.Info("database connection established", zap.String("driver", cfg.Driver))
	return db, nil
}

// bridgeLogger forwards gorm's logger.Writer calls into the shared zap logger.
type bridgeLogger struct{}

func (l *bridgeLogger) Printf(format string, args ...any) {
	applogger.Get().Sugar().Debugf(format, args...)
}
