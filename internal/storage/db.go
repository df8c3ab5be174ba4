package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tg-amnesia/internal/config"
	"tg-amnesia/internal/logger"
)

var (
	// DB is the global database connection
	DB *gorm.DB
)

// AllModels lists every table the bot owns, in erase order.
func AllModels() []interface{} {
	all := make([]interface{}, 0, len(eraseOrder))
	for _, c := range eraseOrder {
		all = append(all, c.Model)
	}
	return all
}

// Initialize sets up the global database connection based on configuration
func Initialize(cfg *config.Config) error {
	db, err := Open(cfg.Database)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// GetDB returns the database connection
func GetDB() *gorm.DB {
	return DB
}

// Open connects to the configured database and tunes the connection pool.
func Open(dbCfg config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := newDialector(dbCfg)
	if err != nil {
		return nil, err
	}

	logger.Infof("Connecting to %s database: %s", dbCfg.Driver, describe(dbCfg))

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewCustomGormLogger(dbCfg.LogLevel),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// Get underlying SQL DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get SQL DB")
	}

	if dbCfg.Driver == "sqlite" {
		// single writer, avoids SQLITE_BUSY between handler goroutines
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	logger.Infof("Database connection established successfully")
	return db, nil
}

// Migrate creates or updates every table in AllModels.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return errors.Wrap(err, "auto migrate")
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newDialector(c config.DatabaseConfig) (gorm.Dialector, error) {
	switch c.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			c.Username, c.Password, c.Host, c.Port, c.DBName, c.Charset)
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode)
		return postgres.Open(dsn), nil
	case "sqlite":
		if c.Path == "" {
			return nil, errors.New("sqlite database path is required")
		}
		if dir := filepath.Dir(c.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.Wrapf(err, "create database directory %s", dir)
			}
		}
		return sqlite.Open(c.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"), nil
	default:
		return nil, errors.Newf("unsupported database driver %q", c.Driver)
	}
}

func describe(c config.DatabaseConfig) string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.DBName)
}
