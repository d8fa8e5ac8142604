package ledger_test

import (
	"testing"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/ledger"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetWorth(t *testing.T) {
	s := newUser("1000")
	s, _, err := ledger.Trade(s, models.TxBuy, "BTC", d("0.01"), d("50000"), now)
	require.NoError(t, err)
	s, _, err = ledger.Trade(s, models.TxBuy, "ETH", d("0.1"), d("2000"), now)
	require.NoError(t, err)

	t.Run("quoted", func(t *testing.T) {
		book := ledger.NewPriceBook(models.MarketSnapshot{
			{Symbol: "btc", Price: d("60000")},
			{Symbol: "ETH", Price: d("2500")},
		})
		assert.True(t, ledger.NetWorth(s, book).Equal(d("300").Add(d("600")).Add(d("250"))))
	})

	t.Run("missing_quote_uses_last_trade_price", func(t *testing.T) {
		book := ledger.NewPriceBook(models.MarketSnapshot{{Symbol: "BTC", Price: d("60000")}})
		assert.True(t, ledger.NetWorth(s, book).Equal(d("300").Add(d("600")).Add(d("200"))))
	})

	t.Run("never_traded_is_zero", func(t *testing.T) {
		odd := s.Clone()
		odd.Assets = append(odd.Assets, models.AssetHolding{Symbol: "DOGE", Amount: d("1000")})
		assert.True(t, ledger.PriceBook{}.Price(odd, "DOGE").IsZero())
		assert.True(t, ledger.NetWorth(odd, ledger.PriceBook{}).Equal(d("300").Add(d("500")).Add(d("200"))))
	})
}

func TestPortfolioView(t *testing.T) {
	s := newUser("10")
	s, _, err := ledger.Trade(s, models.TxBuy, "BTC", d("0.0001"), d("50000"), now)
	require.NoError(t, err)

	coins, total := ledger.Portfolio(s, ledger.PriceBook{"BTC": d("40000")})
	require.Len(t, coins, 1)
	assert.True(t, coins[0].Total.Equal(d("4")))
	assert.True(t, total.Equal(d("9")))
}
