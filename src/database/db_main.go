package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"alphasniper/src/database/migrations"
	"alphasniper/src/model"
)

// MainDB is the primary read/write database connection used by all services.
var MainDB *gorm.DB

// InitMainDB initializes the main database connection and runs migrations.
// This must be called once at service startup before any worker spawns;
// a migration failure is fatal.
func InitMainDB() error {

	config := GetConfig()
	db, err := gorm.Open(postgres.Open(config.DSN()),
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB from GORM: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.Info("[database] MainDB connection established")

	// Run AutoMigrate only on the main database.
	// Add here all models that belong to the write-side schema.
	if err := MainDB.AutoMigrate(
		&model.SystemConfig{},
		&model.ConfigAudit{},
		&model.ControlCommand{},
		&model.ServiceStatus{},
		&model.MarketData{},
		&model.MarketDataHistory{},
		&model.MarketDataCache{},
		&model.MarketDataCacheHistory{},
		&model.PrecomputeTask{},
		&model.OrderEvent{},
		&model.TradeLog{},
		&model.PositionSnapshot{},
		&model.AiModel{},
		&model.ArchiveAudit{},
		&migrations.SchemaMigration{},
	); err != nil {
		return fmt.Errorf("failed to run schema migrations on MainDB: %w", err)
	}

	if err := migrations.Run(MainDB); err != nil {
		return fmt.Errorf("failed to run data migrations on MainDB: %w", err)
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}
