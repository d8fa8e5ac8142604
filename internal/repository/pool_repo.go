package repository

import (
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"gorm.io/gorm"
)

type PoolRepository interface {
	ReplacePool(entries []models.PoolEntry) error
	ListPool() ([]models.PoolEntry, error)
}

type poolRepository struct {
	db *gorm.DB
}

func NewPoolRepository(db *gorm.DB) PoolRepository {
	return &poolRepository{db: db}
}

// ReplacePool swaps the mirrored pool for entries in one transaction.
func (db *poolRepository) ReplacePool(entries []models.PoolEntry) error {
	return db.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.PoolEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
}

func (db *poolRepository) ListPool() ([]models.PoolEntry, error) {
	var entries []models.PoolEntry
	if err := db.db.Order("position asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
