package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CoinView struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Total    decimal.Decimal `json:"total"`
}

type CompetitionView struct {
	Phase       string          `json:"phase"`
	EntryTime   int64           `json:"entryTime,omitempty"`
	EndTime     int64           `json:"endTime,omitempty"`
	PnLPercent  decimal.Decimal `json:"pnlPercent"`
	CurrentRank int             `json:"currentRank"`
}

type PortfolioView struct {
	AccountID   string          `json:"accountId"`
	UserName    string          `json:"userName"`
	Balance     decimal.Decimal `json:"balance"`
	NetWorth    decimal.Decimal `json:"netWorth"`
	Coins       []CoinView      `json:"coins"`
	Competition CompetitionView `json:"competition"`
}

// TransactionEvent is published to the activity stream for every appended transaction.
type TransactionEvent struct {
	AccountID   string      `json:"accountId"`
	Transaction Transaction `json:"transaction"`
}

// PoolEntry mirrors one leaderboard entry in the local fallback cache.
type PoolEntry struct {
	AccountID string          `gorm:"primaryKey"`
	Name      string          `gorm:"not null"`
	PnL       decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Value     decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Position  int             `gorm:"not null"`
	UpdatedAt time.Time
}
