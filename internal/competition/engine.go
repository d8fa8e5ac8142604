// Package competition owns the per-user competition sub-state: entering a
// round, scoring it against the current market and resetting it. It also
// derives the leaderboard projection that is shared with other players.
package competition

import (
	"fmt"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/ledger"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/lib/errs"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Rules struct {
	EntryFee         decimal.Decimal
	BaselineNetWorth decimal.Decimal
	Duration         time.Duration
}

type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseActive Phase = "active"
	// PhaseEnded is a round past its end time that was not reset yet.
	// It still scores and publishes, but cannot be re-entered.
	PhaseEnded Phase = "ended"
)

// Enter liquidates the user's holdings at current prices, debits the entry
// fee and starts a round from the baseline bankroll. The fee only gates entry:
// the round balance is the baseline whatever cash was left after the debit.
// The returned transactions are the ones appended to the log, in order.
func Enter(state models.UserState, prices ledger.PriceBook, rules Rules, now time.Time) (models.UserState, []models.Transaction, error) {
	const op = "competition.Enter"

	if state.Competition.IsCompeting() {
		return state, nil, fmt.Errorf("%s: %w", op, errs.ErrAlreadyCompeting)
	}

	next, txs := ledger.Liquidate(state, prices, now)

	next, fee, err := ledger.Charge(next, ledger.EntryFeeAsset, rules.EntryFee, now)
	if err != nil {
		return state, nil, fmt.Errorf("%s: %w", op, err)
	}
	txs = append(txs, fee)

	round := models.CompetitionRound{
		EntryNetWorth: rules.BaselineNetWorth,
		EntryTime:     now.UnixMilli(),
		PnLPercent:    decimal.Zero,
	}
	if rules.Duration > 0 {
		round.EndTime = now.Add(rules.Duration).UnixMilli()
	}

	next.Balance = rules.BaselineNetWorth
	next.Assets = []models.AssetHolding{}
	next.Competition = models.ActiveCompetition(round)

	return next, txs, nil
}

// RecomputeScore returns the percentage change from entry to current.
func RecomputeScore(entryNetWorth, currentNetWorth decimal.Decimal) decimal.Decimal {
	if entryNetWorth.IsZero() {
		return decimal.Zero
	}
	return currentNetWorth.Sub(entryNetWorth).Div(entryNetWorth).Mul(hundred)
}

// Recompute refreshes pnlPercent from prices and currentRank from a ranked
// pool. Idle states are returned unchanged.
func Recompute(state models.UserState, prices ledger.PriceBook, ranked []models.LeaderboardEntry) models.UserState {
	if !state.Competition.IsCompeting() {
		return state
	}

	next := state.Clone()
	round := next.Competition.Round
	round.PnLPercent = RecomputeScore(round.EntryNetWorth, ledger.NetWorth(state, prices))
	round.CurrentRank = RankOf(ranked, state.AccountID)
	return next
}

// Reset returns the user to Idle regardless of the prior state.
func Reset(state models.UserState) models.UserState {
	next := state.Clone()
	next.Competition = models.IdleCompetition()
	return next
}

// PhaseAt classifies the competition state against the wall clock.
func PhaseAt(state models.UserState, now time.Time) Phase {
	round := state.Competition.Round
	switch {
	case round == nil:
		return PhaseIdle
	case round.EndTime != 0 && now.UnixMilli() >= round.EndTime:
		return PhaseEnded
	default:
		return PhaseActive
	}
}

// ProjectLeaderboardEntry derives this user's pool entry. Rank is left at zero:
// ranking is a property of the merged pool.
func ProjectLeaderboardEntry(state models.UserState, netWorth decimal.Decimal) models.LeaderboardEntry {
	entry := models.LeaderboardEntry{
		Name:      state.Name,
		AccountID: state.AccountID,
		PnL:       decimal.Zero,
		Value:     netWorth,
		IsUser:    true,
	}
	if r := state.Competition.Round; r != nil {
		entry.PnL = r.PnLPercent
	}
	return entry
}

// View builds the display projection of the competition state.
func View(state models.UserState, now time.Time) models.CompetitionView {
	view := models.CompetitionView{Phase: string(PhaseAt(state, now)), PnLPercent: decimal.Zero}
	if r := state.Competition.Round; r != nil {
		view.EntryTime = r.EntryTime
		view.EndTime = r.EndTime
		view.PnLPercent = r.PnLPercent
		view.CurrentRank = r.CurrentRank
	}
	return view
}
