package data

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite:"

// Connect opens MySQL, or SQLite when the DSN starts with "sqlite:".
func Connect(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, sqlitePrefix) {
		return ConnectSQLite(strings.TrimPrefix(dsn, sqlitePrefix))
	}
	return ConnectMySQL(dsn)
}

// ConnectMySQL opens a gorm DB with sane defaults.
func ConnectMySQL(dsn string) (*gorm.DB, error) {
	dsn = ensureParam(dsn, "parseTime", "true")
	if !strings.Contains(dsn, "charset=") {
		dsn = ensureParam(dsn, "charset", "utf8mb4")
		dsn = ensureParam(dsn, "collation", "utf8mb4_unicode_ci")
	}

	return gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger(), TranslateError: true})
}

// ConnectSQLite opens a SQLite database at path. An empty path or ":memory:"
// yields a private in-memory database.
func ConnectSQLite(path string) (*gorm.DB, error) {
	if path == "" || path == ":memory:" {
		path = "file::memory:"
	}
	path = ensureParam(path, "_pragma", "foreign_keys(1)")
	path = path + "&_pragma=busy_timeout(5000)"

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger(), TranslateError: true})
	if err != nil {
		return nil, err
	}

	// SQLite serialises writers; one connection keeps transactions from
	// tripping over each other and keeps in-memory databases alive.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates or updates every governance table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(gov.Models...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func gormLogger() logger.Interface {
	return logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{SlowThreshold: time.Second, LogLevel: logger.Warn, IgnoreRecordNotFoundError: true, Colorful: false},
	)
}

func ensureParam(dsn, key, val string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + val
}
