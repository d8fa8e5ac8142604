package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CompetitionRound holds the fields that only exist while competing.
type CompetitionRound struct {
	EntryNetWorth decimal.Decimal
	EntryTime     int64
	// EndTime is zero when the round has no deadline.
	EndTime     int64
	PnLPercent  decimal.Decimal
	CurrentRank int
}

// CompetitionState is Idle when Round is nil and Active otherwise.
type CompetitionState struct {
	Round *CompetitionRound
}

func IdleCompetition() CompetitionState {
	return CompetitionState{}
}

func ActiveCompetition(r CompetitionRound) CompetitionState {
	return CompetitionState{Round: &r}
}

func (c CompetitionState) IsCompeting() bool {
	return c.Round != nil
}

func (c CompetitionState) Clone() CompetitionState {
	if c.Round == nil {
		return CompetitionState{}
	}
	r := *c.Round
	return CompetitionState{Round: &r}
}

func (c CompetitionState) Equal(o CompetitionState) bool {
	if c.Round == nil || o.Round == nil {
		return c.Round == nil && o.Round == nil
	}
	a, b := c.Round, o.Round
	return a.EntryNetWorth.Equal(b.EntryNetWorth) && a.EntryTime == b.EntryTime &&
		a.EndTime == b.EndTime && a.PnLPercent.Equal(b.PnLPercent) && a.CurrentRank == b.CurrentRank
}

// competitionDoc is the flat wire shape shared with existing remote documents.
type competitionDoc struct {
	IsCompeting   bool            `json:"isCompeting"`
	EntryNetWorth decimal.Decimal `json:"entryNetWorth"`
	EntryTime     int64           `json:"entryTime"`
	PnLPercent    decimal.Decimal `json:"pnlPercent"`
	CurrentRank   int             `json:"currentRank"`
	EndTime       *int64          `json:"endTime,omitempty"`
}

func (c CompetitionState) MarshalJSON() ([]byte, error) {
	doc := competitionDoc{}
	if r := c.Round; r != nil {
		doc = competitionDoc{
			IsCompeting:   true,
			EntryNetWorth: r.EntryNetWorth,
			EntryTime:     r.EntryTime,
			PnLPercent:    r.PnLPercent,
			CurrentRank:   r.CurrentRank,
		}
		if r.EndTime != 0 {
			end := r.EndTime
			doc.EndTime = &end
		}
	}
	return json.Marshal(doc)
}

func (c *CompetitionState) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = CompetitionState{}
		return nil
	}

	var doc competitionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	if !doc.IsCompeting {
		*c = CompetitionState{}
		return nil
	}

	r := CompetitionRound{
		EntryNetWorth: doc.EntryNetWorth,
		EntryTime:     doc.EntryTime,
		PnLPercent:    doc.PnLPercent,
		CurrentRank:   doc.CurrentRank,
	}
	if doc.EndTime != nil {
		r.EndTime = *doc.EndTime
	}
	*c = CompetitionState{Round: &r}
	return nil
}
