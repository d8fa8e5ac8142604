package competition_test

import (
	"testing"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/competition"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/ledger"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/lib/errs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.UnixMilli(1_700_000_000_000)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var rules = competition.Rules{
	EntryFee:         d("10"),
	BaselineNetWorth: d("10000"),
	Duration:         time.Minute,
}

func TestEnter(t *testing.T) {
	user := models.NewUserState("alice@example.com", "alice", d("500"))
	user, _, err := ledger.Trade(user, models.TxBuy, "BTC", d("0.001"), d("50000"), t0)
	require.NoError(t, err)

	got, txs, err := competition.Enter(user, ledger.PriceBook{"BTC": d("60000")}, rules, t0)
	require.NoError(t, err)

	require.Len(t, txs, 2)
	assert.Equal(t, models.TxSell, txs[0].Type)
	assert.True(t, txs[0].Total.Equal(d("60")), "liquidated at market price")
	assert.Equal(t, models.TxFee, txs[1].Type)
	assert.Equal(t, ledger.EntryFeeAsset, txs[1].Asset)
	assert.True(t, txs[1].Total.Equal(d("10")))

	assert.True(t, got.Balance.Equal(d("10000")))
	assert.Empty(t, got.Assets)
	assert.Len(t, got.Transactions, 3)

	require.True(t, got.Competition.IsCompeting())
	r := got.Competition.Round
	assert.True(t, r.EntryNetWorth.Equal(d("10000")))
	assert.Equal(t, t0.UnixMilli(), r.EntryTime)
	assert.Equal(t, t0.Add(time.Minute).UnixMilli(), r.EndTime)
	assert.True(t, r.PnLPercent.IsZero())
	assert.Zero(t, r.CurrentRank)

	assert.False(t, user.Competition.IsCompeting(), "input state must not change")
}

func TestEnterBankrollIgnoresPriorCash(t *testing.T) {
	poor, _, err := competition.Enter(models.NewUserState("a@example.com", "a", d("10")), nil, rules, t0)
	require.NoError(t, err)
	rich, _, err := competition.Enter(models.NewUserState("b@example.com", "b", d("250000")), nil, rules, t0)
	require.NoError(t, err)

	assert.True(t, poor.Balance.Equal(rules.BaselineNetWorth))
	assert.True(t, rich.Balance.Equal(rules.BaselineNetWorth))
	assert.True(t, poor.Transactions[0].Total.Equal(rules.EntryFee), "fee is still logged")
}

func TestEnterRejections(t *testing.T) {
	t.Run("fee_not_covered", func(t *testing.T) {
		user := models.NewUserState("bob", "bob", d("9.99"))
		got, _, err := competition.Enter(user, nil, rules, t0)
		require.ErrorIs(t, err, errs.ErrInsufficientFunds)
		assert.True(t, got.Equal(user))
	})

	t.Run("already_competing", func(t *testing.T) {
		user := models.NewUserState("bob", "bob", d("100"))
		in, _, err := competition.Enter(user, nil, rules, t0)
		require.NoError(t, err)

		_, _, err = competition.Enter(in, nil, rules, t0.Add(2*time.Minute))
		assert.ErrorIs(t, err, errs.ErrAlreadyCompeting)
	})
}

func TestScoreScenario(t *testing.T) {
	user := models.NewUserState("carol", "carol", d("100"))
	in, _, err := competition.Enter(user, nil, rules, t0)
	require.NoError(t, err)

	in, _, err = ledger.Trade(in, models.TxBuy, "ETH", d("5"), d("1000"), t0)
	require.NoError(t, err)

	scored := competition.Recompute(in, ledger.PriceBook{"ETH": d("1100")}, nil)
	assert.True(t, scored.Competition.Round.PnLPercent.Equal(d("5")), "got %s", scored.Competition.Round.PnLPercent)
	assert.True(t, competition.RecomputeScore(d("10000"), d("10500")).Equal(d("5.0")))
}

func TestRecomputeScoreProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		entry := decimal.New(rapid.Int64Range(1, 1_000_000_000).Draw(t, "entry"), -2)
		current := decimal.New(rapid.Int64Range(0, 1_000_000_000).Draw(t, "current"), -2)

		a := competition.RecomputeScore(entry, current)
		b := competition.RecomputeScore(entry, current)
		if !a.Equal(b) {
			t.Fatalf("non deterministic: %s vs %s", a, b)
		}
		if a.IsZero() != entry.Equal(current) {
			t.Fatalf("pnl %s zero iff equal violated for %s/%s", a, entry, current)
		}
	})
}

func TestRecomputeIdleIsNoop(t *testing.T) {
	user := models.NewUserState("dave", "dave", d("1"))
	assert.True(t, competition.Recompute(user, nil, nil).Equal(user))
}

func TestReset(t *testing.T) {
	idle := models.NewUserState("erin", "erin", d("100"))
	active, _, err := competition.Enter(idle, nil, rules, t0)
	require.NoError(t, err)
	active = competition.Recompute(active, nil, []models.LeaderboardEntry{{AccountID: "erin", Rank: 3}})
	require.Equal(t, 3, active.Competition.Round.CurrentRank)

	for name, state := range map[string]models.UserState{"idle": idle, "active": active} {
		t.Run(name, func(t *testing.T) {
			got := competition.Reset(state)
			assert.False(t, got.Competition.IsCompeting())
			assert.Nil(t, got.Competition.Round)
			assert.True(t, got.Balance.Equal(state.Balance))
		})
	}
}

func TestPhaseAt(t *testing.T) {
	user := models.NewUserState("frank", "frank", d("100"))
	assert.Equal(t, competition.PhaseIdle, competition.PhaseAt(user, t0))

	in, _, err := competition.Enter(user, nil, rules, t0)
	require.NoError(t, err)
	assert.Equal(t, competition.PhaseActive, competition.PhaseAt(in, t0.Add(59*time.Second)))
	assert.Equal(t, competition.PhaseEnded, competition.PhaseAt(in, t0.Add(time.Minute)))

	view := competition.View(in, t0.Add(time.Hour))
	assert.Equal(t, "ended", view.Phase)
	assert.True(t, in.Competition.IsCompeting(), "an ended round stays active for data")
}

func TestProjectLeaderboardEntry(t *testing.T) {
	user := models.NewUserState("gina@example.com", "gina", d("100"))
	in, _, err := competition.Enter(user, nil, rules, t0)
	require.NoError(t, err)
	in.Competition.Round.PnLPercent = d("2.5")

	entry := competition.ProjectLeaderboardEntry(in, d("10250"))
	assert.Equal(t, models.LeaderboardEntry{
		Rank:      0,
		Name:      "gina",
		AccountID: "gina@example.com",
		PnL:       d("2.5"),
		Value:     d("10250"),
		IsUser:    true,
	}, entry)
}
