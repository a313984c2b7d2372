package db

import (
	"fmt"
	"os"
	"path/filepath"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/zulandar/mhai/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN from the database configuration.
func DSN(cfg config.DatabaseConfig) string {
	mc := mysqldriver.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	return mc.FormatDSN()
}

// Connect opens a GORM connection for the configured driver.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverSQLite:
		if cfg.Path != ":memory:" {
			if dir := filepath.Dir(cfg.Path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("db: create directory for %s: %w", cfg.Path, err)
				}
			}
		}
		dialector = sqlite.Open(cfg.Path)
	case config.DriverMySQL:
		dialector = mysql.Open(DSN(cfg))
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s: %w", Describe(cfg), err)
	}
	if cfg.Driver == config.DriverSQLite {
		// One connection: SQLite has a single writer and :memory: is per-connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s: %w", Describe(cfg), err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Describe names the database target for error messages without credentials.
func Describe(cfg config.DatabaseConfig) string {
	if cfg.Driver == config.DriverSQLite {
		return "sqlite:" + cfg.Path
	}
	return fmt.Sprintf("mysql:%s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
}
