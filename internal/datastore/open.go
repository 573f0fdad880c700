package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sensorhub/annotator/internal/conf"
	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/logger"
)

// Open connects to the configured draft database and migrates it.
func Open(settings *conf.DraftSettings, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	if settings.IsMySQL() {
		return OpenMySQL(settings.MySQLDSN(), log)
	}
	return OpenSQLite(settings.SQLite.Path, log)
}

// OpenSQLite opens or creates the sqlite database at path. ":memory:" opens
// a private in-memory database.
func OpenSQLite(path string, log logger.Logger) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.New(err).
					Component("datastore").
					Category(errors.CategoryFileIO).
					Context("path", path).
					Build()
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	})
	if err != nil {
		return nil, dbError(err, "open", conf.DriverSQLite)
	}

	// One writer avoids SQLITE_BUSY between concurrent sessions
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info("draft store opened", logger.String("driver", conf.DriverSQLite), logger.String("path", path))
	return newStore(db, conf.DriverSQLite, log)
}

// OpenMySQL connects using a go-sql-driver DSN.
func OpenMySQL(dsn string, log logger.Logger) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	})
	if err != nil {
		return nil, dbError(err, "open", conf.DriverMySQL)
	}
	log.Info("draft store opened", logger.String("driver", conf.DriverMySQL))
	return newStore(db, conf.DriverMySQL, log)
}
