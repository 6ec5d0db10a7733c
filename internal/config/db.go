package config

import (
	"fmt"
	"os"
)

// GetDatabaseDriver returns the database/sql driver name: "mysql" (default)
// or "sqlite" for local runs
func GetDatabaseDriver() string {
	switch os.Getenv("DB_DRIVER") {
	case "sqlite", "sqlite3":
		return "sqlite"
	}
	return "mysql"
}

// Returns the database connection string
// It checks for environment variables first, then falls back to a default
func GetDatabaseDSN() string {
	if GetDatabaseDriver() == "sqlite" {
		return getEnv("DATABASE_DSN", "file:streamevents.db?_pragma=busy_timeout(5000)")
	}

	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	database := os.Getenv("DB_NAME")

	if user != "" && password != "" && host != "" && port != "" && database != "" {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", user, password, host, port, database)
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		return dsn
	}

	return "streamevents:streamevents@tcp(localhost:3306)/streamevents?parseTime=true"
}
