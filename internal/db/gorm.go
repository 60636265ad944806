package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenGorm opens a MySQL or SQLite database through GORM. verbose logs every statement.
func OpenGorm(driver, dsn string, verbose bool) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("open %s: empty dsn", driver)
	}
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.New(mysql.Config{DSN: dsn, DefaultStringSize: 191})
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("open: unsupported gorm driver %q", driver)
	}
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return gdb, nil
}
