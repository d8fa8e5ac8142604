package ledger_test

import (
	"testing"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/ledger"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/lib/errs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var now = time.UnixMilli(1_700_000_000_000)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newUser(balance string) models.UserState {
	return models.NewUserState("trader@example.com", "trader", d(balance))
}

func TestTradeScenario(t *testing.T) {
	user := newUser("10000")

	afterBuy, buyTx, err := ledger.Trade(user, models.TxBuy, "BTC", d("0.1"), d("50000"), now)
	require.NoError(t, err)
	assert.True(t, afterBuy.Balance.Equal(d("5000")), "balance %s", afterBuy.Balance)
	require.Len(t, afterBuy.Assets, 1)
	assert.Equal(t, "BTC", afterBuy.Assets[0].Symbol)
	assert.True(t, afterBuy.Assets[0].Amount.Equal(d("0.1")))
	assert.True(t, buyTx.Total.Equal(d("5000")))

	afterSell, sellTx, err := ledger.Trade(afterBuy, models.TxSell, "BTC", d("0.1"), d("52000"), now)
	require.NoError(t, err)
	assert.True(t, afterSell.Balance.Equal(d("10200")), "balance %s", afterSell.Balance)
	assert.Empty(t, afterSell.Assets)
	require.Len(t, afterSell.Transactions, 2)
	assert.Equal(t, models.TxBuy, afterSell.Transactions[0].Type)
	assert.True(t, afterSell.Transactions[0].Total.Equal(d("5000")))
	assert.Equal(t, models.TxSell, afterSell.Transactions[1].Type)
	assert.True(t, sellTx.Total.Equal(d("5200")))

	assert.True(t, user.Balance.Equal(d("10000")), "input state must not change")
	assert.Empty(t, user.Transactions)
}

func TestTradeRejections(t *testing.T) {
	user := newUser("100")
	holder, _, err := ledger.Trade(user, models.TxBuy, "ETH", d("1"), d("50"), now)
	require.NoError(t, err)

	tests := []struct {
		name  string
		state models.UserState
		kind  models.TransactionType
		sym   string
		amt   string
		price string
		want  error
	}{
		{"buy_over_balance", user, models.TxBuy, "BTC", "1", "100.01", errs.ErrInsufficientFunds},
		{"sell_absent_symbol", holder, models.TxSell, "BTC", "1", "10", errs.ErrInsufficientHoldings},
		{"sell_over_holding", holder, models.TxSell, "ETH", "1.5", "10", errs.ErrInsufficientHoldings},
		{"zero_amount", user, models.TxBuy, "BTC", "0", "10", errs.ErrInvalidAmount},
		{"negative_price", user, models.TxBuy, "BTC", "1", "-1", errs.ErrInvalidAmount},
		{"empty_symbol", user, models.TxBuy, " ", "1", "1", errs.ErrInvalidSymbol},
		{"deposit_kind", user, models.TxDeposit, "BTC", "1", "1", errs.ErrInvalidKind},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, _, err := ledger.Trade(tc.state, tc.kind, tc.sym, d(tc.amt), d(tc.price), now)
			require.ErrorIs(t, err, tc.want)
			assert.True(t, got.Equal(tc.state), "state must be unchanged on rejection")
		})
	}
}

func TestTradeMergesHoldingsBySymbol(t *testing.T) {
	user := newUser("1000")
	s, _, err := ledger.Trade(user, models.TxBuy, "btc", d("1"), d("10"), now)
	require.NoError(t, err)
	s, _, err = ledger.Trade(s, models.TxBuy, "BTC", d("2"), d("10"), now)
	require.NoError(t, err)

	require.Len(t, s.Assets, 1)
	assert.True(t, s.Assets[0].Amount.Equal(d("3")))

	s, _, err = ledger.Trade(s, models.TxSell, "BTC", d("1"), d("10"), now)
	require.NoError(t, err)
	h, ok := ledger.Holding(s, "btc")
	require.True(t, ok)
	assert.True(t, h.Amount.Equal(d("2")))
}

func TestDeposit(t *testing.T) {
	user := newUser("0")

	got, tx, err := ledger.Deposit(user, d("250.5"), now)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(d("250.5")))
	assert.Equal(t, models.TxDeposit, tx.Type)
	assert.Equal(t, ledger.QuoteAsset, tx.Asset)
	assert.True(t, tx.Price.Equal(decimal.NewFromInt(1)))
	assert.True(t, tx.Total.Equal(d("250.5")))
	assert.Equal(t, now.UnixMilli(), tx.Timestamp)

	_, _, err = ledger.Deposit(user, d("0"), now)
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)
}

func TestChargeAndLiquidate(t *testing.T) {
	user := newUser("100")
	s, _, err := ledger.Trade(user, models.TxBuy, "SOL", d("2"), d("25"), now)
	require.NoError(t, err)

	liquidated, sells := ledger.Liquidate(s, ledger.PriceBook{"SOL": d("30")}, now)
	require.Len(t, sells, 1)
	assert.Equal(t, models.TxSell, sells[0].Type)
	assert.True(t, sells[0].Total.Equal(d("60")))
	assert.Empty(t, liquidated.Assets)
	assert.True(t, liquidated.Balance.Equal(d("110")))

	charged, fee, err := ledger.Charge(liquidated, ledger.EntryFeeAsset, d("10"), now)
	require.NoError(t, err)
	assert.Equal(t, models.TxFee, fee.Type)
	assert.True(t, charged.Balance.Equal(d("100")))

	_, _, err = ledger.Charge(charged, ledger.EntryFeeAsset, d("100.01"), now)
	assert.ErrorIs(t, err, errs.ErrInsufficientFunds)
}

func TestTransactionIDsAreUnique(t *testing.T) {
	s := newUser("0")
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		var tx models.Transaction
		var err error
		s, tx, err = ledger.Deposit(s, d("1"), now)
		require.NoError(t, err)
		_, dup := seen[tx.ID]
		require.False(t, dup, "duplicate id %s", tx.ID)
		seen[tx.ID] = struct{}{}
	}
}

func amountGen() *rapid.Generator[decimal.Decimal] {
	return rapid.Custom(func(t *rapid.T) decimal.Decimal {
		return decimal.New(rapid.Int64Range(1, 1_000_000).Draw(t, "units"), -4)
	})
}

func TestPropertyBuyThenSellRestoresState(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amount := amountGen().Draw(t, "amount")
		price := amountGen().Draw(t, "price")
		extra := amountGen().Draw(t, "extra")
		user := models.NewUserState("p", "p", amount.Mul(price).Add(extra))

		bought, _, err := ledger.Trade(user, models.TxBuy, "BTC", amount, price, now)
		if err != nil {
			t.Fatalf("buy: %v", err)
		}
		if !bought.Balance.Equal(user.Balance.Sub(amount.Mul(price))) {
			t.Fatalf("buy balance %s", bought.Balance)
		}

		sold, _, err := ledger.Trade(bought, models.TxSell, "BTC", amount, price, now)
		if err != nil {
			t.Fatalf("sell: %v", err)
		}
		if !sold.Balance.Equal(user.Balance) {
			t.Fatalf("round trip balance %s != %s", sold.Balance, user.Balance)
		}
		if len(sold.Assets) != 0 {
			t.Fatalf("round trip left holdings %v", sold.Assets)
		}
		if len(sold.Transactions) != len(user.Transactions)+2 {
			t.Fatalf("expected two new transactions, got %d", len(sold.Transactions))
		}
	})
}

func TestPropertyRejectedTradeDoesNotMutate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amount := amountGen().Draw(t, "amount")
		price := amountGen().Draw(t, "price")
		user := models.NewUserState("p", "p", amount.Mul(price).Sub(decimal.New(1, -8)))

		got, _, err := ledger.Trade(user, models.TxBuy, "BTC", amount, price, now)
		if err == nil {
			t.Fatalf("expected insufficient funds")
		}
		if !got.Equal(user) {
			t.Fatalf("state mutated on rejected buy")
		}

		got, _, err = ledger.Trade(user, models.TxSell, "BTC", amount, price, now)
		if err == nil {
			t.Fatalf("expected insufficient holdings")
		}
		if !got.Equal(user) {
			t.Fatalf("state mutated on rejected sell")
		}
	})
}
