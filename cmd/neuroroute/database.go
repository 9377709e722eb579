package main

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/piwi3910/neuroroute/internal/database"
)

// openDatabase opens a GORM connection against dsn, picking the dialector
// from its scheme/prefix: postgres:// and postgresql:// use
// gorm.io/driver/postgres, mysql:// uses gorm.io/driver/mysql, and anything
// else (including a bare file path or ":memory:") is treated as sqlite for
// local/single-node deployments.
func openDatabase(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	case strings.HasPrefix(dsn, "mysql://"):
		dialector = mysql.Open(strings.TrimPrefix(dsn, "mysql://"))
	default:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := db.AutoMigrate(&database.Config{}, &database.ModelConfig{}, &database.AuditLog{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	logger.Info("database connected", zap.String("dsn_prefix", dsnPrefix(dsn)))
	return db, nil
}

// dsnPrefix returns just enough of dsn to identify its driver in logs,
// without leaking credentials embedded in a connection string.
func dsnPrefix(dsn string) string {
	if i := strings.Index(dsn, "://"); i > 0 {
		return dsn[:i]
	}
	return "sqlite"
}
