// pkg/db/repository.go
package db

import (
	"errors"
	"strconv"
	"strings"

	"github.com/as3contender/alex-orator-bot/pkg/config"
	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Export DB variable
var DB *gorm.DB

func DSN(cfg config.DatabaseConfig) string {
	return "host=" + cfg.Host +
		" user=" + cfg.User +
		" password=" + cfg.Password +
		" dbname=" + cfg.DBName +
		" port=" + strconv.Itoa(cfg.Port) +
		" sslmode=" + cfg.SSLMode
}

func InitDB(cfg config.DatabaseConfig, logCfg config.LoggingConfig) error {
	gormLogger, gormErr := NewGormLogger(logCfg.GormLevel)
	if gormErr != nil {
		logger.Error("invalid gorm log level", "value", logCfg.GormLevel, "error", gormErr)
	}
	gdb, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{Logger: gormLogger, TranslateError: true})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return err
	}
	if err := Migrate(gdb); err != nil {
		logger.Error("failed to migrate database", "error", err)
		return err
	}
	DB = gdb
	return nil
}

// Migrate creates or updates every table and the partial unique index that
// backs the one-live-pair-per-couple rule.
func Migrate(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	if err := gdb.AutoMigrate(AllModels()...); err != nil {
		return err
	}
	return migratePartialIndexes(gdb)
}

// Partial unique indexes enforce the one-live-row rules that AutoMigrate
// cannot express. Postgres and SQLite both accept this syntax.
var partialIndexes = []string{`
CREATE UNIQUE INDEX IF NOT EXISTS ux_pairs_active_key
ON pairs (pair_key)
WHERE status IN ('pending', 'confirmed')
`, `
CREATE UNIQUE INDEX IF NOT EXISTS ux_registrations_active_week
ON registrations (user_id, week_start)
WHERE status = 'active'
`}

func migratePartialIndexes(gdb *gorm.DB) error {
	for _, stmt := range partialIndexes {
		if err := gdb.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// IsUniqueViolation reports whether err comes from a unique index. Dialects
// without error translation are matched on their message.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// Close releases the connection pool behind DB.
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	DB = nil
	return sqlDB.Close()
}
