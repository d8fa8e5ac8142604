package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/config"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Storage struct {
	DB *gorm.DB
}

// New opens the local store. Postgres is retried a few times on startup;
// sqlite is a single file next to the process.
func New(cfg config.DBConfig) (*Storage, error) {
	const op = "storage/postgres"

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var db *gorm.DB
	for i := 0; i < 5; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err == nil {
			break
		}
		slog.Warn("failed to connect to database, retrying...", "driver", cfg.Driver, "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect after multiple retries: %w", op, err)
	}

	slog.Info("successfully connected to database", "driver", cfg.Driver)

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	slog.Info("database auto-migration completed")

	return &Storage{DB: db}, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.PoolEntry{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
			cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port)
		return postgres.Open(dsn), nil
	case "sqlite", "":
		return sqlite.Open(cfg.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func (s *Storage) Stop() error {
	sqlDb, err := s.DB.DB()
	if err != nil {
		return err
	}

	return sqlDb.Close()
}
