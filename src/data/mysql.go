package data

import (
	"fmt"
	"os"
	"strings"
)

// GetMySQLDSN returns the database DSN configured via environment. A value
// prefixed with "sqlite:" selects the embedded SQLite driver.
func GetMySQLDSN() (string, error) {
	dsn := os.Getenv("MYSQL_DSN")
	if strings.TrimSpace(dsn) == "" {
		dsn = os.Getenv("DATABASE_DSN")
	}
	if strings.TrimSpace(dsn) == "" {
		return "", fmt.Errorf("MYSQL_DSN is not set")
	}
	return dsn, nil
}
