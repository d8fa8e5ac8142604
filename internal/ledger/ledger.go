// Package ledger implements the balance, holdings and transaction-log rules
// for one user. Every operation takes a UserState value and returns a new one;
// the input is never modified, so a rejected operation leaves no trace.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/lib/errs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	QuoteAsset    = "USD"
	EntryFeeAsset = "ENTRY-FEE"
)

// NormalizeSymbol upper-cases and trims a trading symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NewTransaction stamps a record with a random v4 UUID.
func NewTransaction(kind models.TransactionType, asset string, amount, price, total decimal.Decimal, now time.Time) models.Transaction {
	return models.Transaction{
		ID:        uuid.NewString(),
		Type:      kind,
		Asset:     asset,
		Amount:    amount,
		Price:     price,
		Total:     total,
		Timestamp: now.UnixMilli(),
	}
}

// Holding returns the holding for symbol, if any.
func Holding(state models.UserState, symbol string) (models.AssetHolding, bool) {
	symbol = NormalizeSymbol(symbol)
	for _, h := range state.Assets {
		if h.Symbol == symbol {
			return h, true
		}
	}
	return models.AssetHolding{}, false
}

// Trade executes a simulated BUY or SELL of amount units of symbol at price.
func Trade(state models.UserState, kind models.TransactionType, symbol string, amount, price decimal.Decimal, now time.Time) (models.UserState, models.Transaction, error) {
	const op = "ledger.Trade"

	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return state, models.Transaction{}, fmt.Errorf("%s: %w", op, errs.ErrInvalidSymbol)
	}
	if !amount.IsPositive() || !price.IsPositive() {
		return state, models.Transaction{}, fmt.Errorf("%s: %w", op, errs.ErrInvalidAmount)
	}

	total := amount.Mul(price)
	next := state.Clone()
	idx := holdingIndex(next.Assets, symbol)

	switch kind {
	case models.TxBuy:
		if next.Balance.LessThan(total) {
			return state, models.Transaction{}, fmt.Errorf("%s: %w", op, errs.ErrInsufficientFunds)
		}
		next.Balance = next.Balance.Sub(total)
		if idx >= 0 {
			next.Assets[idx].Amount = next.Assets[idx].Amount.Add(amount)
		} else {
			next.Assets = append(next.Assets, models.AssetHolding{Symbol: symbol, Amount: amount})
		}
	case models.TxSell:
		if idx < 0 || next.Assets[idx].Amount.LessThan(amount) {
			return state, models.Transaction{}, fmt.Errorf("%s: %w", op, errs.ErrInsufficientHoldings)
		}
		next.Balance = next.Balance.Add(total)
		remaining := next.Assets[idx].Amount.Sub(amount)
		if remaining.IsZero() {
			next.Assets = append(next.Assets[:idx], next.Assets[idx+1:]...)
		} else {
			next.Assets[idx].Amount = remaining
		}
	default:
		return state, models.Transaction{}, fmt.Errorf("%s: %w: %q", op, errs.ErrInvalidKind, kind)
	}

	tx := NewTransaction(kind, symbol, amount, price, total, now)
	next.Transactions = append(next.Transactions, tx)
	return next, tx, nil
}

// Deposit credits amount of quote currency. It cannot fail for a positive amount.
func Deposit(state models.UserState, amount decimal.Decimal, now time.Time) (models.UserState, models.Transaction, error) {
	const op = "ledger.Deposit"

	if !amount.IsPositive() {
		return state, models.Transaction{}, fmt.Errorf("%s: %w", op, errs.ErrInvalidAmount)
	}

	next := state.Clone()
	next.Balance = next.Balance.Add(amount)
	tx := NewTransaction(models.TxDeposit, QuoteAsset, amount, decimal.NewFromInt(1), amount, now)
	next.Transactions = append(next.Transactions, tx)
	return next, tx, nil
}

// Charge debits a fee and logs it as a FEE transaction.
func Charge(state models.UserState, asset string, fee decimal.Decimal, now time.Time) (models.UserState, models.Transaction, error) {
	const op = "ledger.Charge"

	if fee.IsNegative() {
		return state, models.Transaction{}, fmt.Errorf("%s: %w", op, errs.ErrInvalidAmount)
	}
	if state.Balance.LessThan(fee) {
		return state, models.Transaction{}, fmt.Errorf("%s: %w", op, errs.ErrInsufficientFunds)
	}

	next := state.Clone()
	next.Balance = next.Balance.Sub(fee)
	tx := NewTransaction(models.TxFee, asset, decimal.NewFromInt(1), fee, fee, now)
	next.Transactions = append(next.Transactions, tx)
	return next, tx, nil
}

// Liquidate sells every holding at its current valuation price and logs one
// SELL per holding. A holding without any known price is sold at zero.
func Liquidate(state models.UserState, prices PriceBook, now time.Time) (models.UserState, []models.Transaction) {
	next := state.Clone()
	txs := make([]models.Transaction, 0, len(next.Assets))

	for _, h := range next.Assets {
		price := prices.Price(state, h.Symbol)
		total := h.Amount.Mul(price)
		next.Balance = next.Balance.Add(total)
		tx := NewTransaction(models.TxSell, h.Symbol, h.Amount, price, total, now)
		next.Transactions = append(next.Transactions, tx)
		txs = append(txs, tx)
	}
	next.Assets = []models.AssetHolding{}

	return next, txs
}

func holdingIndex(assets []models.AssetHolding, symbol string) int {
	for i, h := range assets {
		if h.Symbol == symbol {
			return i
		}
	}
	return -1
}
