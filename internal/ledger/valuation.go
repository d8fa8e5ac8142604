package ledger

import (
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/shopspring/decimal"
)

// PriceBook indexes a market snapshot by symbol.
type PriceBook map[string]decimal.Decimal

func NewPriceBook(snapshot models.MarketSnapshot) PriceBook {
	book := make(PriceBook, len(snapshot))
	for _, q := range snapshot {
		book[NormalizeSymbol(q.Symbol)] = q.Price
	}
	return book
}

// Price returns the valuation price of symbol for state.
//
// A quote from the feed wins. Without one, the price of the latest BUY or SELL
// of that symbol in the user's log is used, and zero when the symbol was never
// traded. Valuation never fails on a missing quote.
func (b PriceBook) Price(state models.UserState, symbol string) decimal.Decimal {
	symbol = NormalizeSymbol(symbol)
	if p, ok := b[symbol]; ok {
		return p
	}
	for i := len(state.Transactions) - 1; i >= 0; i-- {
		tx := state.Transactions[i]
		if tx.Asset != symbol {
			continue
		}
		if tx.Type == models.TxBuy || tx.Type == models.TxSell {
			return tx.Price
		}
	}
	return decimal.Zero
}

// NetWorth is balance plus the market value of all holdings.
func NetWorth(state models.UserState, prices PriceBook) decimal.Decimal {
	total := state.Balance
	for _, h := range state.Assets {
		total = total.Add(h.Amount.Mul(prices.Price(state, h.Symbol)))
	}
	return total
}

// Portfolio builds the per-coin valuation view.
func Portfolio(state models.UserState, prices PriceBook) ([]models.CoinView, decimal.Decimal) {
	coins := make([]models.CoinView, 0, len(state.Assets))
	total := state.Balance
	for _, h := range state.Assets {
		price := prices.Price(state, h.Symbol)
		value := h.Amount.Mul(price)
		coins = append(coins, models.CoinView{
			Symbol:   h.Symbol,
			Quantity: h.Amount,
			Price:    price,
			Total:    value,
		})
		total = total.Add(value)
	}
	return coins, total
}
