package repository_test

import (
	"testing"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	if err := db.AutoMigrate(&models.PoolEntry{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

func TestReplacePool(t *testing.T) {
	testDB := setupTestDB(t)
	poolRepo := repository.NewPoolRepository(testDB)

	t.Run("success_replace_pool", func(t *testing.T) {
		first := []models.PoolEntry{
			{AccountID: "a", Name: "alice", PnL: decimal.NewFromInt(3), Value: decimal.NewFromInt(10300), Position: 0},
			{AccountID: "b", Name: "bob", PnL: decimal.NewFromInt(1), Value: decimal.NewFromInt(10100), Position: 1},
		}
		if err := poolRepo.ReplacePool(first); err != nil {
			t.Fatalf("ReplacePool failed: unexpected error: %v", err)
		}

		second := []models.PoolEntry{
			{AccountID: "c", Name: "carol", PnL: decimal.NewFromInt(-2), Value: decimal.NewFromInt(9800), Position: 0},
		}
		if err := poolRepo.ReplacePool(second); err != nil {
			t.Fatalf("ReplacePool failed: unexpected error: %v", err)
		}

		entries, err := poolRepo.ListPool()
		if err != nil {
			t.Fatalf("ListPool failed: %v", err)
		}

		if len(entries) != 1 || entries[0].AccountID != "c" {
			t.Errorf("Expected only carol after replace, got %+v", entries)
		}

		if !entries[0].PnL.Equal(decimal.NewFromInt(-2)) {
			t.Errorf("Expected pnl -2, got %s", entries[0].PnL)
		}
	})

	t.Run("replace_with_empty_pool", func(t *testing.T) {
		if err := poolRepo.ReplacePool(nil); err != nil {
			t.Fatalf("ReplacePool failed: unexpected error: %v", err)
		}

		entries, err := poolRepo.ListPool()
		if err != nil {
			t.Fatalf("ListPool failed: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("Expected empty pool, got %d entries", len(entries))
		}
	})
}
