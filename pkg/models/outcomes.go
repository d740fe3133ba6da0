package models

import "fmt"

// WinnerOutcome is the contract's match-winner enumeration. The numeric
// values mirror the on-chain encoding and must not be reordered.
type WinnerOutcome uint8

const (
	WinnerNotSet WinnerOutcome = iota
	WinnerHome
	WinnerDraw
	WinnerAway
)

func (w WinnerOutcome) String() string {
	switch w {
	case WinnerHome:
		return "home"
	case WinnerDraw:
		return "draw"
	case WinnerAway:
		return "away"
	default:
		return "not_set"
	}
}

// Valid reports whether the value is one of the contract's encodings,
// including the not-set sentinel.
func (w WinnerOutcome) Valid() bool {
	return w <= WinnerAway
}

// TotalsOutcome is the contract's over/under enumeration against the fixed
// 2.5-goal line. Values mirror the on-chain encoding.
type TotalsOutcome uint8

const (
	TotalsNotSet TotalsOutcome = iota
	TotalsOver
	TotalsUnder
)

func (t TotalsOutcome) String() string {
	switch t {
	case TotalsOver:
		return "over"
	case TotalsUnder:
		return "under"
	default:
		return "not_set"
	}
}

func (t TotalsOutcome) Valid() bool {
	return t <= TotalsUnder
}

// OutcomePair is one slot of a resolution payload: both enumerations for a
// single match, in contract order.
type OutcomePair struct {
	MatchID int64         `json:"match_id"`
	Winner  WinnerOutcome `json:"winner"`
	Totals  TotalsOutcome `json:"totals"`
}

// Set reports whether both halves of the pair carry a concrete result.
// A ready cycle must never submit a pair for which this is false.
func (p OutcomePair) Set() bool {
	return p.Winner != WinnerNotSet && p.Totals != TotalsNotSet
}

func (p OutcomePair) String() string {
	return fmt.Sprintf("match %d: %s/%s", p.MatchID, p.Winner, p.Totals)
}
