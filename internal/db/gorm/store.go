// Package gorm provides GORM-based database operations for semdedup.
package gorm

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for local runs and tests
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store represents the GORM database connection.
type Store struct {
	DB     *gorm.DB
	sqlDB  *sql.DB
	driver string
}

// Config holds database configuration.
type Config struct {
	Driver   string          // "postgres" or "sqlite"
	DSN      string          // PostgreSQL DSN or SQLite file path
	MaxConns int             // Maximum number of open connections (default: 4)
	LogLevel logger.LogLevel // GORM log level (logger.Silent for production)
	// DevSourceTables creates minimal source tables when they are missing.
	DevSourceTables bool
}

// NewStore opens the database, configures the pool and runs migrations.
func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(cfg.LogLevel),
		PrepareStmt:    true,
		TranslateError: true,
	}

	var (
		db    *gorm.DB
		sqlDB *sql.DB
		err   error
	)

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case DriverPostgres, "postgresql", "pg":
		driver = DriverPostgres
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open gorm: %w", err)
		}
		sqlDB, err = db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
	case DriverSQLite, "sqlite3", "":
		driver = DriverSQLite
		// Foreign keys must be on for member cascade deletes
		sqlDB, err = sql.Open("sqlite3", sqliteDSN(cfg.DSN))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db, err = gorm.Open(sqlite.Dialector{Conn: sqlDB}, gormCfg)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("open gorm: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{
		DB:     db,
		sqlDB:  sqlDB,
		driver: driver,
	}

	if err := runMigrations(db, cfg.DevSourceTables); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
		// Retry on a locked database instead of failing immediately
		if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	return store, nil
}

// sqliteDSN appends the foreign key switch to dsn, keeping existing parameters.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=ON"
	}
	return dsn + "?_foreign_keys=ON"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.sqlDB.Ping()
}

// Driver returns the normalized driver name.
func (s *Store) Driver() string {
	return s.driver
}

// GetDB returns the GORM DB instance for standard queries.
func (s *Store) GetDB() *gorm.DB {
	return s.DB
}
