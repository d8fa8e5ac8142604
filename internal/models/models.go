package models

import (
	"slices"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxBuy     TransactionType = "BUY"
	TxSell    TransactionType = "SELL"
	TxDeposit TransactionType = "DEPOSIT"
	// TxFee is an outflow; Total is positive and debited from the balance.
	TxFee TransactionType = "FEE"
)

type AssetHolding struct {
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

// Transaction is immutable once appended to a UserState log.
type Transaction struct {
	ID        string          `json:"id"`
	Type      TransactionType `json:"type"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
	Timestamp int64           `json:"timestamp"`
}

// UserState is the whole document stored under users/{identity}.
// It is treated as a value: mutations go through Clone.
type UserState struct {
	AccountID    string           `json:"accountId"`
	Name         string           `json:"name"`
	Balance      decimal.Decimal  `json:"balance"`
	Assets       []AssetHolding   `json:"assets"`
	Transactions []Transaction    `json:"transactions"`
	Competition  CompetitionState `json:"competition"`
}

func NewUserState(accountID, name string, balance decimal.Decimal) UserState {
	return UserState{
		AccountID:    accountID,
		Name:         name,
		Balance:      balance,
		Assets:       []AssetHolding{},
		Transactions: []Transaction{},
	}
}

// Clone returns a copy that shares no mutable memory with u.
func (u UserState) Clone() UserState {
	out := u
	out.Assets = slices.Clone(u.Assets)
	if out.Assets == nil {
		out.Assets = []AssetHolding{}
	}
	out.Transactions = slices.Clone(u.Transactions)
	if out.Transactions == nil {
		out.Transactions = []Transaction{}
	}
	out.Competition = u.Competition.Clone()
	return out
}

// Equal reports value equality; decimals are compared numerically.
func (u UserState) Equal(o UserState) bool {
	if u.AccountID != o.AccountID || u.Name != o.Name || !u.Balance.Equal(o.Balance) {
		return false
	}
	if !slices.EqualFunc(u.Assets, o.Assets, func(a, b AssetHolding) bool {
		return a.Symbol == b.Symbol && a.Amount.Equal(b.Amount)
	}) {
		return false
	}
	if !slices.EqualFunc(u.Transactions, o.Transactions, Transaction.Equal) {
		return false
	}
	return u.Competition.Equal(o.Competition)
}

func (t Transaction) Equal(o Transaction) bool {
	return t.ID == o.ID && t.Type == o.Type && t.Asset == o.Asset &&
		t.Amount.Equal(o.Amount) && t.Price.Equal(o.Price) && t.Total.Equal(o.Total) &&
		t.Timestamp == o.Timestamp
}

// LeaderboardEntry is the read-model stored under competition/players/{accountId}.
type LeaderboardEntry struct {
	Rank      int             `json:"rank"`
	Name      string          `json:"name"`
	AccountID string          `json:"accountId"`
	PnL       decimal.Decimal `json:"pnl"`
	Value     decimal.Decimal `json:"value"`
	IsUser    bool            `json:"isUser"`
}

type PriceQuote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// MarketSnapshot is replaced wholesale on every successful poll.
type MarketSnapshot []PriceQuote
